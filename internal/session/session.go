// Package session contains the two role state machines that sit between the
// transfer engine and the presentation surface. The engine runs on its own
// and reports through lifecycle events; the sessions here reduce that event
// stream into consistent, observable state and issue commands back to the
// engine. A parse failure in one event never touches unrelated state, and a
// reset is unconditionally safe regardless of in-flight events.
package session

import (
	"context"
	"errors"
	"time"
)

// Role distinguishes the two state machines.
type Role int

const (
	RoleSender Role = iota
	RoleReceiver
)

// Phase is the lifecycle position of a session. Sender sessions move through
// Idle → Selecting → Importing → Sharing → Transporting → Completed; receiver
// sessions through Idle → Connecting → Transporting → Exporting → Completed.
// Idle is reachable from every phase via stop/reset.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSelecting
	PhaseImporting
	PhaseSharing
	PhaseConnecting
	PhaseTransporting
	PhaseExporting
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSelecting:
		return "selecting"
	case PhaseImporting:
		return "importing"
	case PhaseSharing:
		return "sharing"
	case PhaseConnecting:
		return "connecting"
	case PhaseTransporting:
		return "transporting"
	case PhaseExporting:
		return "exporting"
	case PhaseCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

var (
	// ErrBusy rejects starting a new operation while one is active. Both
	// roles guard against this uniformly (a double-click must not spawn a
	// second engine command).
	ErrBusy = errors.New("a transfer session is already active")

	// ErrNoPathSelected rejects sharing before a path was selected.
	ErrNoPathSelected = errors.New("no path selected")

	// ErrEmptyTicket rejects receiving with a blank ticket.
	ErrEmptyTicket = errors.New("ticket must not be empty")
)

// TransferProgress is the byte-level transport snapshot. It exists only
// during the transporting phase and is cleared on any transition out of it.
type TransferProgress struct {
	BytesTransferred int64
	TotalBytes       int64
	SpeedBps         float64
	Percent          float64
}

// FileCountProgress tracks import (sender) or export (receiver) file
// counting. These run on their own timeline and may overlap transport.
type FileCountProgress struct {
	Active  bool
	Current int64
	Total   int64
	Percent float64
}

// Metadata is produced exactly once, when a session completes.
type Metadata struct {
	FileName     string
	FileSize     int64
	DurationMS   int64
	StartTime    time.Time
	EndTime      time.Time
	DownloadPath string
}

// Engine is the command boundary to the transfer engine. Completion of
// long-running work is reported through lifecycle events, not return values.
type Engine interface {
	// StartSharing imports path and offers it, returning an opaque ticket.
	StartSharing(ctx context.Context, path string) (string, error)
	// StopSharing withdraws the current offer.
	StopSharing(ctx context.Context) error
	// Receive fetches the transfer identified by ticket into outputPath.
	// A nil return only acknowledges the command; completion is event-driven.
	Receive(ctx context.Context, ticket, outputPath string) error
	// FileSize reports the authoritative byte size of path (recursive for
	// directories).
	FileSize(ctx context.Context, path string) (int64, error)
}

// Clipboard abstracts the system clipboard for ticket copying.
type Clipboard interface {
	WriteText(text string) error
}

// FolderPicker abstracts the native save-location picker.
type FolderPicker interface {
	// BrowseFolder returns the chosen directory, or ErrPickerCancelled.
	BrowseFolder(ctx context.Context) (string, error)
}

// ErrPickerCancelled reports that the user dismissed the picker. Not an
// error condition: the previous selection stays in effect.
var ErrPickerCancelled = errors.New("picker cancelled")
