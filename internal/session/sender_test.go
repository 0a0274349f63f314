package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShabbirHasan1/alt-sendme/internal/events"
	"github.com/ShabbirHasan1/alt-sendme/internal/notify"
)

func newTestSender(eng *fakeEngine) (*Sender, *events.Bus, *notify.Notifier, *fakeClipboard, *fakeReporter) {
	bus := events.NewBus()
	alerts := notify.NewNotifier(nil)
	clip := &fakeClipboard{}
	rep := &fakeReporter{}
	s := NewSender(eng, alerts, clip, rep)
	s.Attach(bus)
	return s, bus, alerts, clip, rep
}

func TestSenderHappyPath(t *testing.T) {
	eng := &fakeEngine{ticket: "T1", fileSize: 2000000}
	s, bus, _, _, rep := newTestSender(eng)
	ctx := context.Background()

	require.NoError(t, s.SelectPath("/tmp/video.mp4"))
	assert.Equal(t, PhaseSelecting, s.Snapshot().Phase)

	require.NoError(t, s.StartSharing(ctx))
	snap := s.Snapshot()
	assert.Equal(t, PhaseSharing, snap.Phase)
	assert.Equal(t, "T1", snap.Ticket)
	assert.Equal(t, "/tmp/video.mp4", eng.lastPath)

	bus.Publish(events.TransferStarted, "")
	assert.Equal(t, PhaseTransporting, s.Snapshot().Phase)

	bus.Publish(events.TransferProgress, "1000000:2000000:500000")
	snap = s.Snapshot()
	assert.Equal(t, int64(1000000), snap.Transfer.BytesTransferred)
	assert.Equal(t, int64(2000000), snap.Transfer.TotalBytes)
	assert.InDelta(t, 50.0, snap.Transfer.Percent, 0.001)
	assert.InDelta(t, 500.0, snap.Transfer.SpeedBps, 0.001)

	bus.Publish(events.TransferCompleted, "")
	snap = s.Snapshot()
	assert.Equal(t, PhaseCompleted, snap.Phase)
	assert.Equal(t, TransferProgress{}, snap.Transfer, "progress clears on completion")
	require.NotNil(t, snap.Metadata)
	assert.Equal(t, "video.mp4", snap.Metadata.FileName)
	assert.Equal(t, int64(2000000), snap.Metadata.FileSize)

	assert.Equal(t, []int64{2000000}, rep.recorded())
}

func TestSenderImportOverlapsSharing(t *testing.T) {
	eng := &fakeEngine{ticket: "T2"}
	s, bus, _, _, _ := newTestSender(eng)

	require.NoError(t, s.SelectPath("/data/shared"))

	bus.Publish(events.ImportStarted, "")
	assert.Equal(t, PhaseImporting, s.Snapshot().Phase)

	bus.Publish(events.ImportFileCount, "3")
	bus.Publish(events.ImportProgress, "2:3:66")
	snap := s.Snapshot()
	assert.True(t, snap.Importing.Active)
	assert.Equal(t, int64(2), snap.Importing.Current)
	assert.Equal(t, int64(3), snap.Importing.Total)
	assert.InDelta(t, 66.0, snap.Importing.Percent, 0.001)

	require.NoError(t, s.StartSharing(context.Background()))
	assert.Equal(t, PhaseSharing, s.Snapshot().Phase)

	bus.Publish(events.ImportCompleted, "")
	snap = s.Snapshot()
	assert.False(t, snap.Importing.Active)
	assert.Equal(t, PhaseSharing, snap.Phase, "import completion does not end sharing")
}

func TestSenderStartWithoutPath(t *testing.T) {
	s, _, _, _, _ := newTestSender(&fakeEngine{})
	assert.ErrorIs(t, s.StartSharing(context.Background()), ErrNoPathSelected)
}

func TestSenderBusyRejection(t *testing.T) {
	eng := &fakeEngine{ticket: "T3"}
	s, bus, _, _, _ := newTestSender(eng)
	ctx := context.Background()

	require.NoError(t, s.SelectPath("/tmp/a"))
	require.NoError(t, s.StartSharing(ctx))

	assert.ErrorIs(t, s.StartSharing(ctx), ErrBusy)
	assert.ErrorIs(t, s.SelectPath("/tmp/b"), ErrBusy)
	assert.Equal(t, 1, eng.startCalls, "busy rejection must not reach the engine")

	bus.Publish(events.TransferStarted, "")
	assert.ErrorIs(t, s.StartSharing(ctx), ErrBusy)
}

func TestSenderStartFailureAlertsAndKeepsSelection(t *testing.T) {
	eng := &fakeEngine{startErr: errors.New("no network")}
	s, _, alerts, _, _ := newTestSender(eng)

	require.NoError(t, s.SelectPath("/tmp/a"))
	err := s.StartSharing(context.Background())
	require.Error(t, err)

	snap := s.Snapshot()
	assert.Equal(t, PhaseSelecting, snap.Phase)
	assert.Equal(t, "/tmp/a", snap.SelectedPath, "selection survives for a retry")
	assert.Empty(t, snap.Ticket)

	alert := alerts.Current()
	assert.True(t, alert.Open)
	assert.Contains(t, alert.Description, "no network")
}

func TestSenderStopAlwaysResets(t *testing.T) {
	eng := &fakeEngine{ticket: "T4", stopErr: errors.New("channel already closed")}
	s, bus, alerts, _, _ := newTestSender(eng)
	ctx := context.Background()

	require.NoError(t, s.SelectPath("/tmp/a"))
	require.NoError(t, s.StartSharing(ctx))
	bus.Publish(events.TransferStarted, "")
	bus.Publish(events.TransferProgress, "10:100:5000")

	err := s.StopSharing(ctx)
	require.Error(t, err)
	assert.True(t, alerts.Current().Open)

	snap := s.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Empty(t, snap.Ticket)
	assert.Empty(t, snap.SelectedPath)
	assert.Equal(t, TransferProgress{}, snap.Transfer)
}

func TestSenderMalformedProgressDropped(t *testing.T) {
	eng := &fakeEngine{ticket: "T5"}
	s, bus, _, _, _ := newTestSender(eng)

	require.NoError(t, s.SelectPath("/tmp/a"))
	require.NoError(t, s.StartSharing(context.Background()))
	bus.Publish(events.TransferStarted, "")
	bus.Publish(events.TransferProgress, "500:1000:2000")
	before := s.Snapshot()

	for _, payload := range []string{"12:34", "a:b:c", "", "1:2:3:4", "1.5:2:3"} {
		bus.Publish(events.TransferProgress, payload)
	}

	assert.Equal(t, before.Transfer, s.Snapshot().Transfer, "malformed ticks leave progress unchanged")
}

func TestSenderFileSizeFailureCompletesWithZero(t *testing.T) {
	eng := &fakeEngine{ticket: "T6", fileSizeErr: errors.New("stat failed")}
	s, bus, _, _, rep := newTestSender(eng)

	require.NoError(t, s.SelectPath("/tmp/gone.bin"))
	require.NoError(t, s.StartSharing(context.Background()))
	bus.Publish(events.TransferStarted, "")
	bus.Publish(events.TransferProgress, "900:900:1000")
	bus.Publish(events.TransferCompleted, "")

	snap := s.Snapshot()
	assert.Equal(t, PhaseCompleted, snap.Phase)
	require.NotNil(t, snap.Metadata)
	assert.Equal(t, int64(0), snap.Metadata.FileSize)
	assert.Equal(t, "gone.bin", snap.Metadata.FileName)
	assert.Equal(t, []int64{900}, rep.recorded(), "observation uses the last known total")
}

func TestSenderDuplicateCompletionReportsOnce(t *testing.T) {
	eng := &fakeEngine{ticket: "T7", fileSize: 42}
	s, bus, _, _, rep := newTestSender(eng)

	require.NoError(t, s.SelectPath("/tmp/a"))
	require.NoError(t, s.StartSharing(context.Background()))
	bus.Publish(events.TransferStarted, "")
	bus.Publish(events.TransferProgress, "42:42:100")
	bus.Publish(events.TransferCompleted, "")
	bus.Publish(events.TransferCompleted, "")

	assert.Equal(t, []int64{42}, rep.recorded())
}

func TestSenderCopyTicket(t *testing.T) {
	eng := &fakeEngine{ticket: "COPYME12"}
	s, _, alerts, clip, _ := newTestSender(eng)

	s.CopyTicket()
	assert.True(t, alerts.Current().Open, "copying with no ticket alerts")
	assert.Empty(t, clip.writes)

	alerts.Clear()
	require.NoError(t, s.SelectPath("/tmp/a"))
	require.NoError(t, s.StartSharing(context.Background()))
	s.CopyTicket()
	assert.Equal(t, []string{"COPYME12"}, clip.writes)
	assert.False(t, alerts.Current().Open)
}

func TestSenderSelectAfterCompletionStartsFresh(t *testing.T) {
	eng := &fakeEngine{ticket: "T8", fileSize: 10}
	s, bus, _, _, _ := newTestSender(eng)

	require.NoError(t, s.SelectPath("/tmp/a"))
	require.NoError(t, s.StartSharing(context.Background()))
	bus.Publish(events.TransferStarted, "")
	bus.Publish(events.TransferCompleted, "")
	require.Equal(t, PhaseCompleted, s.Snapshot().Phase)

	require.NoError(t, s.SelectPath("/tmp/b"))
	snap := s.Snapshot()
	assert.Equal(t, PhaseSelecting, snap.Phase)
	assert.Equal(t, "/tmp/b", snap.SelectedPath)
	assert.Empty(t, snap.Ticket)
	assert.Nil(t, snap.Metadata)
}

func TestSenderResetFromAnyState(t *testing.T) {
	eng := &fakeEngine{ticket: "T9"}
	s, bus, _, _, _ := newTestSender(eng)

	require.NoError(t, s.SelectPath("/tmp/a"))
	require.NoError(t, s.StartSharing(context.Background()))
	bus.Publish(events.ImportStarted, "")
	bus.Publish(events.TransferStarted, "")
	bus.Publish(events.TransferProgress, "1:2:3")

	s.Reset()
	snap := s.Snapshot()
	assert.Equal(t, SenderSnapshot{}, snap)

	// A second reset is a no-op, never an error.
	s.Reset()
	assert.Equal(t, PhaseIdle, s.Snapshot().Phase)
}

func TestSenderResetDuringCompletionQueryDiscardsMetadata(t *testing.T) {
	eng := &fakeEngine{
		ticket:          "TB",
		fileSize:        42,
		fileSizeStarted: make(chan struct{}),
		fileSizeRelease: make(chan struct{}),
	}
	s, bus, _, _, rep := newTestSender(eng)

	require.NoError(t, s.SelectPath("/tmp/a"))
	require.NoError(t, s.StartSharing(context.Background()))
	bus.Publish(events.TransferStarted, "")
	bus.Publish(events.TransferProgress, "42:42:100")

	completed := make(chan struct{})
	go func() {
		bus.Publish(events.TransferCompleted, "")
		close(completed)
	}()

	// Reset while the completion handler is inside the size query; its
	// result must not leak into the fresh session.
	<-eng.fileSizeStarted
	s.Reset()
	close(eng.fileSizeRelease)
	<-completed

	snap := s.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Nil(t, snap.Metadata)
	assert.Empty(t, rep.recorded(), "a reset session emits no observation")
}

func TestSenderDetachStopsDelivery(t *testing.T) {
	eng := &fakeEngine{ticket: "TA"}
	bus := events.NewBus()
	s := NewSender(eng, notify.NewNotifier(nil), &fakeClipboard{}, &fakeReporter{})
	detach := s.Attach(bus)

	bus.Publish(events.TransferStarted, "")
	require.Equal(t, PhaseTransporting, s.Snapshot().Phase)

	s.Reset()
	detach()
	detach() // safe to call twice

	bus.Publish(events.TransferStarted, "")
	assert.Equal(t, PhaseIdle, s.Snapshot().Phase)
}
