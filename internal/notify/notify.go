package notify

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hochfrequenz/knightshock/internal/sweep"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	SweepID string // Optional sweep reference
	Facts   []Fact // Optional key figures, rendered by notifiers that support them
	At      time.Time
}

// Fact is one labelled figure attached to a notification
type Fact struct {
	Label string
	Value string
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers
func (m *MultiNotifier) Send(n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }

// SweepFinished builds the completion notice for a sweep
func SweepFinished(s sweep.Summary) Notification {
	name := s.Name
	if name == "" {
		name = "sweep"
	}

	n := Notification{
		Title: fmt.Sprintf("%s finished", name),
		Message: fmt.Sprintf("%s/%s cases: %s ok, %s undefined, %s failed in %s",
			humanize.Comma(int64(s.Written())),
			humanize.Comma(int64(s.Total)),
			humanize.Comma(int64(s.OK)),
			humanize.Comma(int64(s.Undefined)),
			humanize.Comma(int64(s.Failed)),
			s.Elapsed().Round(time.Second)),
		Type:    NotifySuccess,
		SweepID: s.ID,
		Facts: []Fact{
			{"ok", humanize.Comma(int64(s.OK))},
			{"undefined", humanize.Comma(int64(s.Undefined))},
			{"failed", humanize.Comma(int64(s.Failed))},
			{"elapsed", s.Elapsed().Round(time.Second).String()},
		},
		At: s.Finished,
	}
	if missing := s.Total - s.Written(); missing > 0 {
		n.Facts = append(n.Facts, Fact{"not run", humanize.Comma(int64(missing))})
	}

	switch {
	case s.Cancelled:
		n.Title = fmt.Sprintf("%s cancelled", name)
		n.Type = NotifyWarning
	case s.Failed > 0 && s.Failed == s.Written():
		n.Type = NotifyError
	case s.Failed > 0:
		n.Type = NotifyWarning
	}
	return n
}
