// Package notify models the single user-visible alert slot. The app shows at
// most one alert at a time; opening a new one silently replaces the previous
// alert rather than queueing behind it.
package notify

import "sync"

// Severity classifies an alert for presentation.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Alert is the state of the notification surface.
type Alert struct {
	Open        bool
	Title       string
	Description string
	Severity    Severity
}

// Notifier is a single-slot alert holder with last-write-wins semantics.
type Notifier struct {
	mu       sync.Mutex
	current  Alert
	onChange func(Alert)
}

// NewNotifier creates an empty notifier. onChange, if non-nil, is invoked
// after every state change with the new alert state.
func NewNotifier(onChange func(Alert)) *Notifier {
	return &Notifier{onChange: onChange}
}

// Open replaces the current alert.
func (n *Notifier) Open(title, description string, severity Severity) {
	n.set(Alert{
		Open:        true,
		Title:       title,
		Description: description,
		Severity:    severity,
	})
}

// Error opens an error alert; the common case for command failures.
func (n *Notifier) Error(title, description string) {
	n.Open(title, description, SeverityError)
}

// Clear dismisses the current alert.
func (n *Notifier) Clear() {
	n.set(Alert{})
}

// Current returns the alert state.
func (n *Notifier) Current() Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

func (n *Notifier) set(a Alert) {
	n.mu.Lock()
	n.current = a
	cb := n.onChange
	n.mu.Unlock()

	if cb != nil {
		cb(a)
	}
}
