// Package notify delivers operator alerts (risk pauses, closed positions,
// adopted orphans) to Telegram and Discord.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Message is one alert.
type Message struct {
	Event string
	Title string
	Body  string
	// Tag marks where the alert came from, e.g. "paper" or "live".
	Tag string
}

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// Notifier fans an alert out to every sender. Events outside the configured
// set are dropped; an empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	tag     string
	logger  *slog.Logger
}

// NewNotifier builds a Notifier. tag is stamped on every message.
func NewNotifier(senders []Sender, events []string, tag string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		tag:     tag,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify delivers to all senders concurrently and joins their errors. One
// failing sender does not stop the others.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "notify: event filtered", slog.String("event", event))
		return nil
	}

	msg := Message{Event: event, Title: title, Body: message, Tag: n.tag}
	errs := make([]error, len(n.senders))
	var wg sync.WaitGroup
	for i, s := range n.senders {
		wg.Add(1)
		go func(i int, s Sender) {
			defer wg.Done()
			if err := s.Send(ctx, msg); err != nil {
				n.logger.WarnContext(ctx, "notify: sender failed",
					slog.String("sender", s.Name()),
					slog.String("event", event),
					slog.String("error", err.Error()),
				)
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
			}
		}(i, s)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

// heading renders "[tag] title".
func heading(msg Message) string {
	if msg.Tag == "" {
		return msg.Title
	}
	return "[" + msg.Tag + "] " + msg.Title
}
