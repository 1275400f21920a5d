// Package notify announces finished and failed runs on chat channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Event types.
const (
	EventRunCompleted = "run_completed"
	EventRunFailed    = "run_failed"
)

// Sender delivers one message to one channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans messages out to every sender. When events is non-empty only
// the listed event types are delivered.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// RunSummary is what a completed-run message reports.
type RunSummary struct {
	RunID       string
	Network     string
	FromBlock   uint64
	ToBlock     uint64
	Settlements int
	Records     int
	Failed      int
	ReportPath  string
}

// RunCompleted announces a finished run.
func (n *Notifier) RunCompleted(ctx context.Context, s RunSummary) error {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s on %s, blocks %d to %d\n", s.RunID, s.Network, s.FromBlock, s.ToBlock)
	fmt.Fprintf(&b, "settlements: %d, envy records: %d", s.Settlements, s.Records)
	if s.Failed > 0 {
		fmt.Fprintf(&b, ", skipped: %d", s.Failed)
	}
	if s.ReportPath != "" {
		fmt.Fprintf(&b, "\nreport: %s", s.ReportPath)
	}
	return n.notify(ctx, EventRunCompleted, "Trade envy run completed", b.String())
}

// RunFailed announces a failed run.
func (n *Notifier) RunFailed(ctx context.Context, network string, runErr error) error {
	return n.notify(ctx, EventRunFailed, "Trade envy run failed", network+": "+runErr.Error())
}

func (n *Notifier) notify(ctx context.Context, event, title, message string) error {
	if n == nil || len(n.senders) == 0 {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}
