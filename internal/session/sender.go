package session

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ShabbirHasan1/alt-sendme/internal/analytics"
	"github.com/ShabbirHasan1/alt-sendme/internal/events"
	"github.com/ShabbirHasan1/alt-sendme/internal/notify"
	"github.com/ShabbirHasan1/alt-sendme/internal/progress"
)

// Sender drives the sending role: select a path, offer it through the
// engine, then track import and transport events until completion.
type Sender struct {
	engine Engine
	alerts *notify.Notifier
	clip   Clipboard
	report analytics.Reporter
	log    *logrus.Entry

	mu           sync.Mutex
	phase        Phase
	selectedPath string
	ticket       string
	starting     bool
	startedAt    time.Time
	endedAt      time.Time
	transfer     TransferProgress
	importing    FileCountProgress
	// lastTotal survives the transfer snapshot being cleared; completion
	// needs the final byte count after the snapshot is already gone.
	lastTotal int64
	metadata  *Metadata
	// epoch invalidates completion work that straddles a reset: the
	// completion handler queries the engine outside the lock and must not
	// write results into a session that was reset meanwhile.
	epoch uint64
}

// NewSender wires a sender session to its collaborators.
func NewSender(engine Engine, alerts *notify.Notifier, clip Clipboard, report analytics.Reporter) *Sender {
	return &Sender{
		engine: engine,
		alerts: alerts,
		clip:   clip,
		report: report,
		log:    logrus.WithField("role", "sender"),
	}
}

// Attach subscribes the sender's event handlers to the bus and returns a
// teardown function that removes all of them exactly once. Handlers read
// session state through the live struct, so values updated by intervening
// events are always observed at their latest value.
func (s *Sender) Attach(bus *events.Bus) func() {
	unsubs := []events.UnsubscribeFunc{
		bus.Subscribe(events.ImportStarted, s.onImportStarted),
		bus.Subscribe(events.ImportFileCount, s.onImportFileCount),
		bus.Subscribe(events.ImportProgress, s.onImportProgress),
		bus.Subscribe(events.ImportCompleted, s.onImportCompleted),
		bus.Subscribe(events.TransferStarted, s.onTransferStarted),
		bus.Subscribe(events.TransferProgress, s.onTransferProgress),
		bus.Subscribe(events.TransferCompleted, s.onTransferCompleted),
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

// SelectPath records the path to offer. Valid only before sharing starts;
// starting a new selection supersedes a prior completed session.
func (s *Sender) SelectPath(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.starting {
		return ErrBusy
	}
	switch s.phase {
	case PhaseIdle, PhaseSelecting, PhaseCompleted:
	default:
		return ErrBusy
	}

	if s.phase == PhaseCompleted {
		s.resetLocked()
	}
	s.selectedPath = path
	s.phase = PhaseSelecting
	s.log.WithField("path", path).Info("Path selected")
	return nil
}

// StartSharing asks the engine to import and offer the selected path. On
// success the session holds the ticket and is in the sharing phase; on
// failure the user gets an alert and the selection stays intact for a retry.
// Import and transport events may arrive while the command is still in
// flight; they are applied independently.
func (s *Sender) StartSharing(ctx context.Context) error {
	s.mu.Lock()
	if s.selectedPath == "" {
		s.mu.Unlock()
		return ErrNoPathSelected
	}
	if s.starting || (s.phase != PhaseIdle && s.phase != PhaseSelecting && s.phase != PhaseImporting) {
		s.mu.Unlock()
		return ErrBusy
	}
	s.starting = true
	path := s.selectedPath
	s.mu.Unlock()

	ticket, err := s.engine.StartSharing(ctx, path)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.starting = false
	if err != nil {
		s.log.WithError(err).Error("Failed to start sharing")
		s.alerts.Error("Failed to start sharing", err.Error())
		s.importing = FileCountProgress{}
		if s.phase == PhaseImporting {
			s.phase = PhaseSelecting
		}
		return err
	}

	s.ticket = ticket
	// Transport may already have begun while the command was in flight;
	// never regress the phase.
	if s.phase == PhaseIdle || s.phase == PhaseSelecting || s.phase == PhaseImporting {
		s.phase = PhaseSharing
	}
	s.log.WithField("ticket", ticket).Info("Sharing started")
	return nil
}

// StopSharing withdraws the offer and resets the session. Local state is
// cleared unconditionally: even when the engine command fails, the session
// returns to idle so it can never get stuck mid-transition.
func (s *Sender) StopSharing(ctx context.Context) error {
	err := s.engine.StopSharing(ctx)
	if err != nil {
		s.log.WithError(err).Error("Failed to stop sharing")
		s.alerts.Error("Failed to stop sharing", err.Error())
	}

	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
	return err
}

// CopyTicket places the current ticket on the system clipboard. No phase
// transition; a failure only raises an alert.
func (s *Sender) CopyTicket() {
	s.mu.Lock()
	ticket := s.ticket
	s.mu.Unlock()

	if ticket == "" {
		s.alerts.Error("Nothing to copy", "no active ticket")
		return
	}
	if err := s.clip.WriteText(ticket); err != nil {
		s.log.WithError(err).Error("Failed to copy ticket")
		s.alerts.Error("Failed to copy ticket", err.Error())
	}
}

// Reset returns the session to idle without contacting the engine.
func (s *Sender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// resetLocked clears every counter and identifier. Callers hold s.mu.
// Alerts are deliberately left alone.
func (s *Sender) resetLocked() {
	s.epoch++
	s.phase = PhaseIdle
	s.selectedPath = ""
	s.ticket = ""
	s.startedAt = time.Time{}
	s.endedAt = time.Time{}
	s.transfer = TransferProgress{}
	s.importing = FileCountProgress{}
	s.lastTotal = 0
	s.metadata = nil
}

func (s *Sender) onImportStarted(string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.importing = FileCountProgress{Active: true}
	if s.phase == PhaseIdle || s.phase == PhaseSelecting {
		s.phase = PhaseImporting
	}
	s.log.Debug("Import started")
}

func (s *Sender) onImportFileCount(payload string) {
	n, err := progress.ParseCount(payload)
	if err != nil {
		s.log.WithError(err).WithField("payload", payload).Warn("Dropping malformed import file count")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.importing.Total = n
}

func (s *Sender) onImportProgress(payload string) {
	t, err := progress.ParseTriple(payload)
	if err != nil {
		s.log.WithError(err).WithField("payload", payload).Warn("Dropping malformed import progress")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.importing.Active = true
	s.importing.Current = t.A
	s.importing.Total = t.B
	s.importing.Percent = progress.FileCountPercent(t.C)
}

// onImportCompleted ends the import timeline only. Sharing may or may not
// have started yet; the two pipelines are tracked independently.
func (s *Sender) onImportCompleted(string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.importing.Active = false
	s.log.Debug("Import completed")
}

func (s *Sender) onTransferStarted(string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseTransporting
	s.transfer = TransferProgress{}
	s.startedAt = time.Now()
	s.log.Info("Transfer started")
}

func (s *Sender) onTransferProgress(payload string) {
	t, err := progress.ParseTriple(payload)
	if err != nil {
		s.log.WithError(err).WithField("payload", payload).Warn("Dropping malformed transfer progress")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfer = TransferProgress{
		BytesTransferred: t.A,
		TotalBytes:       t.B,
		SpeedBps:         progress.SpeedBps(t.C),
		Percent:          progress.BytesPercent(t.A, t.B),
	}
	s.lastTotal = t.B
}

func (s *Sender) onTransferCompleted(string) {
	s.mu.Lock()
	if s.phase == PhaseCompleted {
		// Duplicate completion; the observation was already emitted.
		s.mu.Unlock()
		return
	}
	s.phase = PhaseCompleted
	s.endedAt = time.Now()
	s.transfer = TransferProgress{}
	path := s.selectedPath
	startedAt := s.startedAt
	endedAt := s.endedAt
	finalBytes := s.lastTotal
	epoch := s.epoch
	s.mu.Unlock()

	// The engine remains authoritative for the final size; a query failure
	// is non-fatal and the session still completes.
	size, err := s.engine.FileSize(context.Background(), path)
	if err != nil {
		s.log.WithError(err).WithField("path", path).Warn("File size query failed, completing with size 0")
		size = 0
	}

	md := &Metadata{
		FileName:   progress.DisplayName(pathList(path)),
		FileSize:   size,
		DurationMS: progress.DurationMS(startedAt, endedAt),
		StartTime:  startedAt,
		EndTime:    endedAt,
	}

	s.mu.Lock()
	if s.epoch != epoch {
		// A reset landed while the size query was in flight; the session
		// it belonged to no longer exists.
		s.mu.Unlock()
		s.log.Debug("Discarding completion for a reset session")
		return
	}
	s.metadata = md
	s.mu.Unlock()

	s.report.TransferCompleted(finalBytes)
	s.log.WithFields(logrus.Fields{
		"file":        md.FileName,
		"size":        md.FileSize,
		"duration_ms": md.DurationMS,
	}).Info("Transfer completed")
}

func pathList(path string) []string {
	if path == "" {
		return nil
	}
	return []string{path}
}

// SenderSnapshot is a consistent copy of the sender state for rendering.
type SenderSnapshot struct {
	Phase        Phase
	SelectedPath string
	Ticket       string
	Transfer     TransferProgress
	Importing    FileCountProgress
	Metadata     *Metadata
}

// Snapshot returns the current state under the session lock.
func (s *Sender) Snapshot() SenderSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := SenderSnapshot{
		Phase:        s.phase,
		SelectedPath: s.selectedPath,
		Ticket:       s.ticket,
		Transfer:     s.transfer,
		Importing:    s.importing,
	}
	if s.metadata != nil {
		md := *s.metadata
		snap.Metadata = &md
	}
	return snap
}
