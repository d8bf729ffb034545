package bus

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/promptgate/promptgate/internal/common/logger"
)

// MemoryEventBus implements EventBus using in-process dispatch. It is the
// default bus when no NATS URL is configured.
type MemoryEventBus struct {
	subscriptions map[string][]*memorySubscription
	mu            sync.RWMutex
	logger        *logger.Logger
	closed        bool
}

// memorySubscription represents an in-memory subscription
type memorySubscription struct {
	bus     *MemoryEventBus
	subject string
	pattern *regexp.Regexp // For wildcard matching
	handler EventHandler
	active  bool
	mu      sync.Mutex
}

// Unsubscribe removes the subscription
func (s *memorySubscription) Unsubscribe() error {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if subs, ok := s.bus.subscriptions[s.subject]; ok {
		for i, sub := range subs {
			if sub == s {
				s.bus.subscriptions[s.subject] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}

	return nil
}

// IsValid returns whether the subscription is still active
func (s *memorySubscription) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// NewMemoryEventBus creates a new in-memory event bus
func NewMemoryEventBus(log *logger.Logger) *MemoryEventBus {
	return &MemoryEventBus{
		subscriptions: make(map[string][]*memorySubscription),
		logger:        log,
	}
}

// Publish sends an event to all matching subscribers
func (b *MemoryEventBus) Publish(ctx context.Context, subject string, event *Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("event bus is closed")
	}

	for _, subs := range b.subscriptions {
		for _, sub := range subs {
			if !sub.IsValid() || !sub.pattern.MatchString(subject) {
				continue
			}
			// Handlers run synchronously in publish order; a handler error is
			// logged, never propagated to the publisher.
			if err := sub.handler(ctx, event); err != nil {
				b.logger.Error("event handler failed",
					zap.String("subject", subject),
					zap.String("event_type", event.Type),
					zap.Error(err))
			}
		}
	}

	return nil
}

// Subscribe creates a subscription to a subject pattern. NATS-style wildcards
// are supported: '*' matches one token, '>' matches the rest.
func (b *MemoryEventBus) Subscribe(subject string, handler EventHandler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("event bus is closed")
	}

	pattern, err := compileSubjectPattern(subject)
	if err != nil {
		return nil, err
	}

	sub := &memorySubscription{
		bus:     b,
		subject: subject,
		pattern: pattern,
		handler: handler,
		active:  true,
	}
	b.subscriptions[subject] = append(b.subscriptions[subject], sub)

	b.logger.Debug("subscribed to subject", zap.String("subject", subject))
	return sub, nil
}

// Close shuts down the bus; further publishes and subscribes fail.
func (b *MemoryEventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subscriptions = make(map[string][]*memorySubscription)
}

// IsConnected reports whether the bus accepts events.
func (b *MemoryEventBus) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

// compileSubjectPattern converts a NATS-style subject pattern into a regexp.
func compileSubjectPattern(subject string) (*regexp.Regexp, error) {
	tokens := strings.Split(subject, ".")
	parts := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		switch tok {
		case "*":
			parts = append(parts, `[^.]+`)
		case ">":
			parts = append(parts, `.+`)
		default:
			parts = append(parts, regexp.QuoteMeta(tok))
		}
	}
	return regexp.Compile("^" + strings.Join(parts, `\.`) + "$")
}
