package executor

import (
	"fmt"
	"os/exec"
	"strings"
	"syscall"

	"github.com/promptgate/promptgate/internal/gateway/auth"
)

// credentialVars lists every credential variable the launcher controls.
// BuildEnv strips all of them from the base environment before adding back
// the single group the selected mode requires, so the child never sees an
// ambiguous dual-credential state.
var credentialVars = []string{
	auth.EnvAccessToken,
	auth.EnvRefreshToken,
	auth.EnvExpiresAt,
	auth.EnvAPIKey,
}

// BuildArgs constructs the fixed non-interactive invocation: plain-text
// print mode plus the literal prompt. The optional context string is injected
// ahead of the prompt.
func BuildArgs(prompt, contextText string) []string {
	full := prompt
	if contextText != "" {
		full = contextText + "\n\n" + prompt
	}
	return []string{"--print", "--output-format", "text", full}
}

// BuildEnv constructs the child's environment as an explicit map from the
// given base environment and the selected auth mode. The two credential
// groups are mutually exclusive in the returned map.
func BuildEnv(base []string, mode auth.Mode, state auth.State) map[string]string {
	env := make(map[string]string, len(base))
	for _, entry := range base {
		if eq := strings.IndexByte(entry, '='); eq >= 0 {
			env[entry[:eq]] = entry[eq+1:]
		}
	}

	for _, key := range credentialVars {
		delete(env, key)
	}

	switch mode {
	case auth.ModeSubscription:
		env[auth.EnvAccessToken] = state.AccessToken
		env[auth.EnvRefreshToken] = state.RefreshToken
		env[auth.EnvExpiresAt] = fmt.Sprintf("%d", state.ExpiresAt.UnixMilli())
	case auth.ModeAPIKey:
		env[auth.EnvAPIKey] = state.APIKey
	}

	return env
}

// flattenEnv converts an environment map to the KEY=VALUE slice exec.Cmd
// expects.
func flattenEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}

// launch builds and starts the agent process with the prepared argv and
// environment, attaching pipes for both output streams.
//
// The child's stdin is closed immediately after a successful spawn. This is a
// strict precondition of print mode, not an optimization: an agent run
// non-interactively must never be handed an open input stream or it may block
// forever waiting for input that never arrives.
func launch(binary string, args []string, env map[string]string) (*exec.Cmd, *pipes, error) {
	cmd := exec.Command(binary, args...)
	cmd.Env = flattenEnv(env)
	// Own process group so the hard-deadline kill reaches the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to attach stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to attach stderr: %w", err)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to attach stdin: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}

	_ = stdin.Close()

	return cmd, &pipes{stdout: stdout, stderr: stderr}, nil
}

// killProcessGroup delivers SIGKILL to the child's process group, falling
// back to the main process when the group lookup fails. SIGKILL is required:
// a hung process is not guaranteed to honor catchable termination signals.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	if pgid, err := syscall.Getpgid(cmd.Process.Pid); err == nil {
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	} else {
		_ = cmd.Process.Kill()
	}
}
