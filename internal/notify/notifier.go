// Package notify reports daily snapshot job outcomes to chat channels.
// Outcomes are filtered so operators can choose to hear only about failures.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans a job outcome out to every Sender whose outcome filter
// matches. A nil *Notifier is valid and sends nothing.
type Notifier struct {
	senders  []Sender
	outcomes map[string]bool
	logger   *slog.Logger
}

// NewNotifier creates a Notifier. Only the listed outcomes are forwarded; an
// empty list forwards all of them.
func NewNotifier(senders []Sender, outcomes []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(outcomes))
	for _, o := range outcomes {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = true
		}
	}
	return &Notifier{
		senders:  senders,
		outcomes: allowed,
		logger:   logger.With(slog.String("component", "notifier")),
	}
}

// JobOutcome reports the daily job result for date.
func (n *Notifier) JobOutcome(ctx context.Context, date, outcome string, jobErr error) error {
	if n == nil || len(n.senders) == 0 {
		return nil
	}
	if len(n.outcomes) > 0 && !n.outcomes[outcome] {
		n.logger.DebugContext(ctx, "outcome filtered out", slog.String("outcome", outcome))
		return nil
	}

	title := fmt.Sprintf("indexlab snapshot %s: %s", date, outcome)
	message := "Treemap published."
	if jobErr != nil {
		message = jobErr.Error()
	}
	return n.dispatch(ctx, title, message)
}

// dispatch delivers to every sender; one failing sender does not stop the
// others.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
