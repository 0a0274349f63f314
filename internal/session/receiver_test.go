package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShabbirHasan1/alt-sendme/internal/events"
	"github.com/ShabbirHasan1/alt-sendme/internal/notify"
)

func newTestReceiver(eng *fakeEngine) (*Receiver, *events.Bus, *notify.Notifier, *fakeReporter) {
	bus := events.NewBus()
	alerts := notify.NewNotifier(nil)
	rep := &fakeReporter{}
	r := NewReceiver(eng, alerts, &fakePicker{}, rep)
	r.Attach(bus)
	return r, bus, alerts, rep
}

func TestReceiverHappyPath(t *testing.T) {
	eng := &fakeEngine{}
	r, bus, _, rep := newTestReceiver(eng)

	r.SetSavePath("/home/user/Downloads")
	require.NoError(t, r.Receive(context.Background(), "  T1  "))
	assert.Equal(t, "T1", eng.lastTicket, "ticket is trimmed before the engine sees it")
	assert.Equal(t, "/home/user/Downloads", eng.lastDest)
	assert.Equal(t, PhaseConnecting, r.Snapshot().Phase)

	bus.Publish(events.ReceiveStarted, "")
	assert.Equal(t, PhaseTransporting, r.Snapshot().Phase)

	bus.Publish(events.ReceiveFileNames, `["docs/a.pdf","docs/b.pdf"]`)
	assert.Equal(t, []string{"docs/a.pdf", "docs/b.pdf"}, r.Snapshot().FileNames)

	bus.Publish(events.ReceiveProgress, "1500000:2000000:750000")
	snap := r.Snapshot()
	assert.Equal(t, int64(1500000), snap.Transfer.BytesTransferred)
	assert.InDelta(t, 75.0, snap.Transfer.Percent, 0.001)
	assert.InDelta(t, 750.0, snap.Transfer.SpeedBps, 0.001)

	bus.Publish(events.ExportStarted, "2")
	snap = r.Snapshot()
	assert.Equal(t, PhaseExporting, snap.Phase)
	assert.Equal(t, TransferProgress{}, snap.Transfer, "export clears the transport snapshot")
	assert.True(t, snap.Exporting.Active)
	assert.Equal(t, int64(2), snap.Exporting.Total)

	bus.Publish(events.ExportProgress, "1:2:50")
	assert.Equal(t, int64(1), r.Snapshot().Exporting.Current)

	bus.Publish(events.ExportCompleted, "")
	bus.Publish(events.ReceiveCompleted, "")
	snap = r.Snapshot()
	assert.Equal(t, PhaseCompleted, snap.Phase)
	require.NotNil(t, snap.Metadata)
	assert.Equal(t, "docs", snap.Metadata.FileName, "shared top directory names the transfer")
	assert.Equal(t, int64(2000000), snap.Metadata.FileSize)
	assert.Equal(t, "/home/user/Downloads", snap.Metadata.DownloadPath)

	assert.Equal(t, []int64{2000000}, rep.recorded())
}

func TestReceiverEmptyTicket(t *testing.T) {
	eng := &fakeEngine{}
	r, _, alerts, _ := newTestReceiver(eng)

	assert.ErrorIs(t, r.Receive(context.Background(), "   "), ErrEmptyTicket)
	assert.True(t, alerts.Current().Open)
	assert.Equal(t, 0, eng.receiveCalls)
	assert.Equal(t, PhaseIdle, r.Snapshot().Phase)
}

func TestReceiverBusyRejection(t *testing.T) {
	eng := &fakeEngine{}
	r, bus, _, _ := newTestReceiver(eng)
	ctx := context.Background()

	require.NoError(t, r.Receive(ctx, "T1"))
	assert.ErrorIs(t, r.Receive(ctx, "T2"), ErrBusy)

	bus.Publish(events.ReceiveStarted, "")
	assert.ErrorIs(t, r.Receive(ctx, "T2"), ErrBusy)
	assert.Equal(t, 1, eng.receiveCalls)
}

func TestReceiverCommandFailureResets(t *testing.T) {
	eng := &fakeEngine{receiveErr: errors.New("ticket not found")}
	r, _, alerts, _ := newTestReceiver(eng)

	r.SetSavePath("/dst")
	err := r.Receive(context.Background(), "BADCODE1")
	require.Error(t, err)

	alert := alerts.Current()
	assert.True(t, alert.Open)
	assert.Contains(t, alert.Description, "ticket not found")

	snap := r.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Empty(t, snap.Ticket)
	assert.Equal(t, "/dst", snap.SavePath, "save path is configuration, not session state")
}

func TestReceiverResumeIndicatorWindow(t *testing.T) {
	eng := &fakeEngine{}
	r, bus, _, _ := newTestReceiver(eng)
	r.SetResumeDisplayWindow(100 * time.Millisecond)

	require.NoError(t, r.Receive(context.Background(), "T1"))
	bus.Publish(events.ReceiveStarted, "")

	bus.Publish(events.ReceiveResumed, "500000")
	assert.Equal(t, int64(500000), r.Snapshot().ResumedFrom)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(500000), r.Snapshot().ResumedFrom, "indicator visible inside the window")

	// A second resume restarts the window rather than letting the first
	// timer clear the new value.
	bus.Publish(events.ReceiveResumed, "600000")
	time.Sleep(70 * time.Millisecond)
	assert.Equal(t, int64(600000), r.Snapshot().ResumedFrom, "restarted window still open")

	assert.Eventually(t, func() bool {
		return r.Snapshot().ResumedFrom == 0
	}, time.Second, 10*time.Millisecond, "indicator clears itself after the window")
}

func TestReceiverResumeClearedOnCompletion(t *testing.T) {
	eng := &fakeEngine{}
	r, bus, _, _ := newTestReceiver(eng)
	r.SetResumeDisplayWindow(time.Hour)

	require.NoError(t, r.Receive(context.Background(), "T1"))
	bus.Publish(events.ReceiveStarted, "")
	bus.Publish(events.ReceiveResumed, "500000")
	require.Equal(t, int64(500000), r.Snapshot().ResumedFrom)

	bus.Publish(events.ReceiveCompleted, "")
	assert.Equal(t, int64(0), r.Snapshot().ResumedFrom)
}

func TestReceiverFallbackDisplayName(t *testing.T) {
	eng := &fakeEngine{}
	r, bus, _, rep := newTestReceiver(eng)

	require.NoError(t, r.Receive(context.Background(), "T1"))
	bus.Publish(events.ReceiveStarted, "")
	bus.Publish(events.ReceiveProgress, "2000000:2000000:100000")
	// No file-name event arrived before completion.
	bus.Publish(events.ReceiveCompleted, "")

	snap := r.Snapshot()
	require.NotNil(t, snap.Metadata)
	assert.Equal(t, "files", snap.Metadata.FileName)
	assert.Equal(t, int64(2000000), snap.Metadata.FileSize)
	assert.Equal(t, []int64{2000000}, rep.recorded())
}

func TestReceiverMalformedPayloadsDropped(t *testing.T) {
	eng := &fakeEngine{}
	r, bus, _, _ := newTestReceiver(eng)

	require.NoError(t, r.Receive(context.Background(), "T1"))
	bus.Publish(events.ReceiveStarted, "")
	bus.Publish(events.ReceiveProgress, "100:200:300")
	bus.Publish(events.ReceiveFileNames, `["a.txt"]`)
	before := r.Snapshot()

	bus.Publish(events.ReceiveProgress, "12:34")
	bus.Publish(events.ReceiveProgress, "x:y:z")
	bus.Publish(events.ReceiveFileNames, `not json`)
	bus.Publish(events.ReceiveResumed, "many")
	bus.Publish(events.ExportStarted, "nope")

	snap := r.Snapshot()
	assert.Equal(t, before.Transfer, snap.Transfer)
	assert.Equal(t, before.FileNames, snap.FileNames)
	assert.Equal(t, int64(0), snap.ResumedFrom)
	assert.Equal(t, PhaseTransporting, snap.Phase, "malformed export count does not switch phase")
}

func TestReceiverLateFileNamesWin(t *testing.T) {
	eng := &fakeEngine{}
	r, bus, _, _ := newTestReceiver(eng)

	require.NoError(t, r.Receive(context.Background(), "T1"))
	bus.Publish(events.ReceiveStarted, "")
	bus.Publish(events.ReceiveFileNames, `["old.bin"]`)
	bus.Publish(events.ReceiveFileNames, `["new.bin"]`)
	bus.Publish(events.ReceiveProgress, "10:10:1")
	bus.Publish(events.ReceiveCompleted, "")

	snap := r.Snapshot()
	require.NotNil(t, snap.Metadata)
	assert.Equal(t, "new.bin", snap.Metadata.FileName, "completion reads the latest list, not a captured one")
}

func TestReceiverResetKeepsSavePath(t *testing.T) {
	eng := &fakeEngine{}
	r, bus, _, _ := newTestReceiver(eng)

	r.SetSavePath("/dst")
	require.NoError(t, r.Receive(context.Background(), "T1"))
	bus.Publish(events.ReceiveStarted, "")
	bus.Publish(events.ReceiveResumed, "100")
	bus.Publish(events.ReceiveProgress, "1:2:3")
	bus.Publish(events.ReceiveFileNames, `["a"]`)

	r.Reset()
	snap := r.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Empty(t, snap.Ticket)
	assert.Equal(t, TransferProgress{}, snap.Transfer)
	assert.Equal(t, int64(0), snap.ResumedFrom)
	assert.Nil(t, snap.FileNames)
	assert.Equal(t, "/dst", snap.SavePath)

	// A new session after reset is accepted.
	require.NoError(t, r.Receive(context.Background(), "T2"))
}

func TestReceiverReceiveAfterCompletionStartsFresh(t *testing.T) {
	eng := &fakeEngine{}
	r, bus, _, rep := newTestReceiver(eng)

	require.NoError(t, r.Receive(context.Background(), "T1"))
	bus.Publish(events.ReceiveStarted, "")
	bus.Publish(events.ReceiveProgress, "5:5:1")
	bus.Publish(events.ReceiveCompleted, "")
	require.Equal(t, PhaseCompleted, r.Snapshot().Phase)

	require.NoError(t, r.Receive(context.Background(), "T2"))
	snap := r.Snapshot()
	assert.Equal(t, PhaseConnecting, snap.Phase)
	assert.Equal(t, "T2", snap.Ticket)
	assert.Nil(t, snap.Metadata)
	assert.Equal(t, []int64{5}, rep.recorded(), "old session's observation stays at one")
}

func TestReceiverBrowseFolder(t *testing.T) {
	eng := &fakeEngine{}
	alerts := notify.NewNotifier(nil)
	rep := &fakeReporter{}

	r := NewReceiver(eng, alerts, &fakePicker{dir: "/picked"}, rep)
	r.BrowseFolder(context.Background())
	assert.Equal(t, "/picked", r.SavePath())

	r = NewReceiver(eng, alerts, &fakePicker{err: ErrPickerCancelled}, rep)
	r.SetSavePath("/previous")
	r.BrowseFolder(context.Background())
	assert.Equal(t, "/previous", r.SavePath(), "cancel keeps the previous selection")
	assert.False(t, alerts.Current().Open, "cancel is not an error")

	r = NewReceiver(eng, alerts, &fakePicker{err: errors.New("dbus unavailable")}, rep)
	r.BrowseFolder(context.Background())
	assert.True(t, alerts.Current().Open, "picker failure alerts")
}
