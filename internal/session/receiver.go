package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ShabbirHasan1/alt-sendme/internal/analytics"
	"github.com/ShabbirHasan1/alt-sendme/internal/events"
	"github.com/ShabbirHasan1/alt-sendme/internal/notify"
	"github.com/ShabbirHasan1/alt-sendme/internal/progress"
)

// DefaultResumeDisplayWindow is how long the resume indicator stays visible
// after a receive-resumed event before it clears itself.
const DefaultResumeDisplayWindow = 5 * time.Second

// Receiver drives the receiving role: redeem a ticket, track transport and
// export events, and assemble completion metadata from whatever the engine
// reported along the way.
type Receiver struct {
	engine Engine
	alerts *notify.Notifier
	picker FolderPicker
	report analytics.Reporter
	log    *logrus.Entry

	resumeWindow time.Duration

	mu        sync.Mutex
	phase     Phase
	ticket    string
	savePath  string
	receiving bool
	startedAt time.Time
	endedAt   time.Time
	transfer  TransferProgress
	exporting FileCountProgress

	// resumedFrom is ephemeral: a timer clears it after resumeWindow unless
	// a later resume event restarts the window. resumeGen invalidates timers
	// from superseded windows.
	resumedFrom int64
	resumeTimer *time.Timer
	resumeGen   uint64

	// fileNames outlives the progress snapshot it arrived with; the
	// completion handler derives the display name from it afterwards. Only
	// an explicit reset clears it.
	fileNames []string
	lastTotal int64
	metadata  *Metadata
}

// NewReceiver wires a receiver session to its collaborators.
func NewReceiver(engine Engine, alerts *notify.Notifier, picker FolderPicker, report analytics.Reporter) *Receiver {
	return &Receiver{
		engine:       engine,
		alerts:       alerts,
		picker:       picker,
		report:       report,
		log:          logrus.WithField("role", "receiver"),
		resumeWindow: DefaultResumeDisplayWindow,
	}
}

// SetResumeDisplayWindow overrides the resume indicator window. Used by
// tests to keep timer assertions fast.
func (r *Receiver) SetResumeDisplayWindow(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resumeWindow = d
}

// Attach subscribes the receiver's event handlers to the bus and returns a
// teardown function that removes all of them exactly once.
func (r *Receiver) Attach(bus *events.Bus) func() {
	unsubs := []events.UnsubscribeFunc{
		bus.Subscribe(events.ReceiveStarted, r.onReceiveStarted),
		bus.Subscribe(events.ReceiveResumed, r.onReceiveResumed),
		bus.Subscribe(events.ReceiveProgress, r.onReceiveProgress),
		bus.Subscribe(events.ReceiveFileNames, r.onReceiveFileNames),
		bus.Subscribe(events.ExportStarted, r.onExportStarted),
		bus.Subscribe(events.ExportProgress, r.onExportProgress),
		bus.Subscribe(events.ExportCompleted, r.onExportCompleted),
		bus.Subscribe(events.ReceiveCompleted, r.onReceiveCompleted),
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			for _, u := range unsubs {
				u()
			}
		})
	}
}

// SetSavePath sets the destination directory for received files.
func (r *Receiver) SetSavePath(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.savePath = path
}

// SavePath returns the currently configured destination.
func (r *Receiver) SavePath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.savePath
}

// BrowseFolder opens the folder picker and, when the user picks a
// directory, makes it the save path. Cancelling keeps the previous
// selection; a picker failure additionally raises an alert.
func (r *Receiver) BrowseFolder(ctx context.Context) {
	dir, err := r.picker.BrowseFolder(ctx)
	if err != nil {
		if !errors.Is(err, ErrPickerCancelled) {
			r.log.WithError(err).Error("Folder picker failed")
			r.alerts.Error("Could not open folder picker", err.Error())
		}
		return
	}
	r.SetSavePath(dir)
}

// Receive redeems the ticket into the configured save path. A nil return
// only means the engine accepted the command; progress and completion arrive
// as events. A rejected command alerts the user and fully resets the session.
func (r *Receiver) Receive(ctx context.Context, ticket string) error {
	ticket = strings.TrimSpace(ticket)
	if ticket == "" {
		r.alerts.Error("Ticket required", "enter the ticket you received from the sender")
		return ErrEmptyTicket
	}

	r.mu.Lock()
	if r.receiving || (r.phase != PhaseIdle && r.phase != PhaseCompleted) {
		r.mu.Unlock()
		return ErrBusy
	}
	if r.phase == PhaseCompleted {
		r.resetLocked()
	}
	r.receiving = true
	r.ticket = ticket
	dest := r.savePath
	r.mu.Unlock()

	err := r.engine.Receive(ctx, ticket, dest)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.receiving = false
	if err != nil {
		r.log.WithError(err).Error("Receive command failed")
		r.alerts.Error("Failed to receive", err.Error())
		r.resetLocked()
		return err
	}
	if r.phase == PhaseIdle {
		r.phase = PhaseConnecting
	}
	r.log.Info("Receive accepted, waiting for transfer events")
	return nil
}

// Reset unconditionally returns the session to idle, clearing the ticket,
// metadata, every progress object, the resume indicator and the retained
// file names. The save path survives; it is configuration, not session
// state. Stale events arriving afterwards find zeroed counters and are
// harmless.
func (r *Receiver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
}

func (r *Receiver) resetLocked() {
	r.phase = PhaseIdle
	r.ticket = ""
	r.startedAt = time.Time{}
	r.endedAt = time.Time{}
	r.transfer = TransferProgress{}
	r.exporting = FileCountProgress{}
	r.clearResumeLocked()
	r.fileNames = nil
	r.lastTotal = 0
	r.metadata = nil
}

func (r *Receiver) clearResumeLocked() {
	r.resumeGen++
	if r.resumeTimer != nil {
		r.resumeTimer.Stop()
		r.resumeTimer = nil
	}
	r.resumedFrom = 0
}

func (r *Receiver) onReceiveStarted(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phase = PhaseTransporting
	r.transfer = TransferProgress{}
	r.startedAt = time.Now()
	r.log.Info("Receive started")
}

// onReceiveResumed records the byte offset transport resumed from and arms a
// self-cancelling timer. A later resume event supersedes the running window
// by bumping the generation counter.
func (r *Receiver) onReceiveResumed(payload string) {
	offset, err := progress.ParseCount(payload)
	if err != nil {
		r.log.WithError(err).WithField("payload", payload).Warn("Dropping malformed resume offset")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resumeTimer != nil {
		r.resumeTimer.Stop()
	}
	r.resumeGen++
	gen := r.resumeGen
	r.resumedFrom = offset
	r.resumeTimer = time.AfterFunc(r.resumeWindow, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.resumeGen == gen {
			r.resumedFrom = 0
			r.resumeTimer = nil
		}
	})
	r.log.WithField("offset", offset).Info("Transfer resumed")
}

func (r *Receiver) onReceiveProgress(payload string) {
	t, err := progress.ParseTriple(payload)
	if err != nil {
		r.log.WithError(err).WithField("payload", payload).Warn("Dropping malformed receive progress")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfer = TransferProgress{
		BytesTransferred: t.A,
		TotalBytes:       t.B,
		SpeedBps:         progress.SpeedBps(t.C),
		Percent:          progress.BytesPercent(t.A, t.B),
	}
	r.lastTotal = t.B
}

func (r *Receiver) onReceiveFileNames(payload string) {
	var names []string
	if err := json.Unmarshal([]byte(payload), &names); err != nil {
		r.log.WithError(err).WithField("payload", payload).Warn("Dropping malformed file name list")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fileNames = names
}

func (r *Receiver) onExportStarted(payload string) {
	total, err := progress.ParseCount(payload)
	if err != nil {
		r.log.WithError(err).WithField("payload", payload).Warn("Dropping malformed export file count")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phase = PhaseExporting
	r.transfer = TransferProgress{}
	r.exporting = FileCountProgress{Active: true, Total: total}
	r.log.WithField("files", total).Info("Export started")
}

func (r *Receiver) onExportProgress(payload string) {
	t, err := progress.ParseTriple(payload)
	if err != nil {
		r.log.WithError(err).WithField("payload", payload).Warn("Dropping malformed export progress")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exporting.Active = true
	r.exporting.Current = t.A
	r.exporting.Total = t.B
	r.exporting.Percent = progress.FileCountPercent(t.C)
}

func (r *Receiver) onExportCompleted(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exporting = FileCountProgress{}
	r.log.Debug("Export completed")
}

// onReceiveCompleted finishes the session. The display name comes from the
// latest retained file-name list and the size from the last known total byte
// count; both may have been updated well after this handler was installed.
func (r *Receiver) onReceiveCompleted(string) {
	r.mu.Lock()
	if r.phase == PhaseCompleted {
		r.mu.Unlock()
		return
	}
	r.phase = PhaseCompleted
	r.endedAt = time.Now()
	r.transfer = TransferProgress{}
	r.clearResumeLocked()

	md := &Metadata{
		FileName:     progress.DisplayName(r.fileNames),
		FileSize:     r.lastTotal,
		DurationMS:   progress.DurationMS(r.startedAt, r.endedAt),
		StartTime:    r.startedAt,
		EndTime:      r.endedAt,
		DownloadPath: r.savePath,
	}
	r.metadata = md
	finalBytes := r.lastTotal
	r.mu.Unlock()

	r.report.TransferCompleted(finalBytes)
	r.log.WithFields(logrus.Fields{
		"file":        md.FileName,
		"size":        md.FileSize,
		"duration_ms": md.DurationMS,
	}).Info("Receive completed")
}

// ReceiverSnapshot is a consistent copy of the receiver state for rendering.
type ReceiverSnapshot struct {
	Phase       Phase
	Ticket      string
	SavePath    string
	Transfer    TransferProgress
	Exporting   FileCountProgress
	ResumedFrom int64
	FileNames   []string
	Metadata    *Metadata
}

// Snapshot returns the current state under the session lock.
func (r *Receiver) Snapshot() ReceiverSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := ReceiverSnapshot{
		Phase:       r.phase,
		Ticket:      r.ticket,
		SavePath:    r.savePath,
		Transfer:    r.transfer,
		Exporting:   r.exporting,
		ResumedFrom: r.resumedFrom,
	}
	if len(r.fileNames) > 0 {
		snap.FileNames = append([]string(nil), r.fileNames...)
	}
	if r.metadata != nil {
		md := *r.metadata
		snap.Metadata = &md
	}
	return snap
}
