package executor

import (
	"bufio"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/promptgate/promptgate/internal/common/logger"
	"github.com/promptgate/promptgate/internal/gateway/auth"
)

// phase tracks the lifecycle state machine of one supervised execution.
type phase int

const (
	phaseRunning phase = iota
	phaseSoftWarned
	phaseTerminated
)

// pipes carries the child's attached output streams from launch to the
// monitor.
type pipes struct {
	stdout io.ReadCloser
	stderr io.ReadCloser
}

// outputBuffer accumulates one stream's output chunks. Appends are unbounded
// by default, matching the agent's observed contract; a byte cap can be set
// to evict the oldest chunks as a hardening measure.
type outputBuffer struct {
	mu       sync.Mutex
	maxBytes int64
	size     int64
	chunks   []string
}

func newOutputBuffer(maxBytes int64) *outputBuffer {
	return &outputBuffer{maxBytes: maxBytes}
}

// append adds a chunk, never replacing earlier output.
func (b *outputBuffer) append(data string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.chunks = append(b.chunks, data)
	b.size += int64(len(data))

	for b.maxBytes > 0 && b.size > b.maxBytes && len(b.chunks) > 0 {
		b.size -= int64(len(b.chunks[0]))
		b.chunks = b.chunks[1:]
	}
}

// String joins the buffered chunks at the current moment.
func (b *outputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := 0
	for _, c := range b.chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range b.chunks {
		out = append(out, c...)
	}
	return string(out)
}

// OutputSink receives live output chunks from a supervised execution.
// Stream is "stdout" or "stderr".
type OutputSink func(stream, data string)

// execution supervises one spawned child until its first terminal event.
//
// Every event source (stream readers, the two timers, the wait goroutine)
// funnels through the resolved flag under the mutex, so an execution resolves
// exactly once: later terminal-like events are ignored and both timers are
// cancelled on the first terminal event observed.
type execution struct {
	id        string
	mode      auth.Mode
	startedAt time.Time

	cmd    *exec.Cmd
	stdout *outputBuffer
	stderr *outputBuffer
	sink   OutputSink

	warnTimer *time.Timer
	killTimer *time.Timer

	mu       sync.Mutex
	phase    phase
	resolved bool

	readers sync.WaitGroup
	done    chan *Result

	onWarn func(elapsed time.Duration)
	logger *logger.Logger
}

// supervise arms both deadline timers and starts the stream readers and the
// exit watcher. The returned channel yields the single Result.
func (e *execution) supervise(p *pipes, warnAfter, killAfter time.Duration) <-chan *Result {
	e.warnTimer = time.AfterFunc(warnAfter, e.softWarn)
	e.killTimer = time.AfterFunc(killAfter, e.hardKill)

	e.readers.Add(2)
	go e.readOutput(p.stdout, "stdout", e.stdout)
	go e.readOutput(p.stderr, "stderr", e.stderr)
	go e.wait()

	return e.done
}

// readOutput drains one stream to EOF, appending chunks to the buffer and
// forwarding them to the sink when one is attached.
func (e *execution) readOutput(r io.ReadCloser, stream string, buf *outputBuffer) {
	defer e.readers.Done()
	defer func() { _ = r.Close() }()

	reader := bufio.NewReader(r)
	for {
		data := make([]byte, 4096)
		n, err := reader.Read(data)
		if n > 0 {
			chunk := string(data[:n])
			buf.append(chunk)
			// Once resolved, the terminal result has been handed off; late
			// chunks are buffered but never forwarded, so a streaming caller
			// sees no output frame after the result frame.
			if e.sink != nil && !e.isResolved() {
				e.sink(stream, chunk)
			}
		}
		if err != nil {
			if err != io.EOF {
				e.logger.Debug("output read error",
					zap.String("stream", stream),
					zap.Error(err))
			}
			return
		}
	}
}

func (e *execution) isResolved() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolved
}

// wait blocks until both readers hit EOF and the child reports its exit
// status, then resolves the execution. Draining the readers first guarantees
// the buffers are complete before the aggregator reads them.
func (e *execution) wait() {
	e.readers.Wait()
	err := e.cmd.Wait()

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			if waitStatus, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				exitCode = waitStatus.ExitStatus()
			} else {
				exitCode = 1
			}
		} else {
			exitCode = 1
		}
	}
	// A SIGKILL from the hard deadline also surfaces here as a wait error;
	// resolveExit is a no-op in that case because hardKill resolved first.
	e.resolveExit(exitCode)
}

// softWarn fires at the soft deadline. It is diagnostic only: the execution
// keeps running and the caller never sees it as an error.
func (e *execution) softWarn() {
	e.mu.Lock()
	if e.resolved {
		e.mu.Unlock()
		return
	}
	e.phase = phaseSoftWarned
	e.mu.Unlock()

	elapsed := time.Since(e.startedAt)
	e.logger.Warn("execution still running past soft deadline",
		zap.Duration("elapsed", elapsed))
	if e.onWarn != nil {
		e.onWarn(elapsed)
	}
}

// hardKill fires at the hard deadline: force-terminate the child and resolve
// as a timeout carrying whatever partial output was buffered.
func (e *execution) hardKill() {
	e.mu.Lock()
	if e.resolved {
		e.mu.Unlock()
		return
	}
	e.resolved = true
	e.phase = phaseTerminated
	e.warnTimer.Stop()
	e.mu.Unlock()

	elapsed := time.Since(e.startedAt)
	e.logger.Error("hard deadline reached, killing agent process",
		zap.Duration("elapsed", elapsed))

	killProcessGroup(e.cmd)

	e.done <- &Result{
		ExecutionID: e.id,
		Outcome:     OutcomeTimeout,
		AuthMode:    e.mode,
		ElapsedMs:   elapsed.Milliseconds(),
	}
}

// resolveExit handles the child's terminal close. If a terminal event
// already resolved the execution (the hard deadline won the race), this is a
// no-op.
func (e *execution) resolveExit(exitCode int) {
	e.mu.Lock()
	if e.resolved {
		e.mu.Unlock()
		return
	}
	e.resolved = true
	e.phase = phaseTerminated
	e.warnTimer.Stop()
	e.killTimer.Stop()
	e.mu.Unlock()

	elapsed := time.Since(e.startedAt)
	e.done <- aggregate(e.id, e.mode, exitCode, e.stdout.String(), e.stderr.String(), elapsed.Milliseconds())
}
