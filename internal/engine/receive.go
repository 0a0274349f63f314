package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"github.com/ShabbirHasan1/alt-sendme/internal/config"
	"github.com/ShabbirHasan1/alt-sendme/internal/events"
)

// receiveServer handles one incoming transfer: stage the byte stream next to
// the destination, then export it into the manifest layout. The stage file
// is what makes resumption work — whatever survived a previous attempt is
// offered back to the sender as the starting offset.
type receiveServer struct {
	cfg  *config.Config
	bus  *events.Bus
	code string
	dest string
	done func(error)
	log  *logrus.Entry

	mu       sync.Mutex
	man      *manifest
	stage    *os.File
	received int64
	start    time.Time
	lastTick time.Time
	finished bool
}

func newReceiveServer(cfg *config.Config, bus *events.Bus, code, dest string, done func(error)) *receiveServer {
	return &receiveServer{
		cfg:  cfg,
		bus:  bus,
		code: code,
		dest: dest,
		done: done,
		log:  logrus.WithField("component", "receive"),
	}
}

func (r *receiveServer) stagePath() string {
	return filepath.Join(r.dest, ".alt-sendme-"+r.code+".part")
}

// attach registers the incoming data channel handlers on pc.
func (r *receiveServer) attach(pc *webrtc.PeerConnection) {
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != dataChannelLabel {
			return
		}

		dc.OnOpen(func() {
			r.log.WithField("label", dc.Label()).Debug("Data channel opened")
			r.bus.Publish(events.ReceiveStarted, "")
		})

		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			if msg.IsString {
				r.handleControl(dc, string(msg.Data))
				return
			}
			r.handleData(msg.Data)
		})

		dc.OnClose(func() {
			r.abort(nil)
		})

		dc.OnError(func(err error) {
			r.abort(err)
		})
	})
}

func (r *receiveServer) handleControl(dc *webrtc.DataChannel, text string) {
	switch {
	case strings.HasPrefix(text, manifestPrefix):
		r.handleManifest(dc, strings.TrimPrefix(text, manifestPrefix))
	case text == eofMarker:
		r.finish()
	default:
		r.log.WithField("message", text).Warn("Ignoring unknown control message")
	}
}

// handleManifest opens the stage file, determines the resume offset from
// whatever a previous attempt left behind and asks the sender to start
// there.
func (r *receiveServer) handleManifest(dc *webrtc.DataChannel, encoded string) {
	var man manifest
	if err := json.Unmarshal([]byte(encoded), &man); err != nil {
		r.abort(fmt.Errorf("malformed manifest: %w", err))
		return
	}
	for _, entry := range man.Files {
		if !validEntryName(entry.Name) {
			r.abort(fmt.Errorf("unsafe file name in manifest: %q", entry.Name))
			return
		}
	}

	names, err := json.Marshal(man.names())
	if err == nil {
		r.bus.Publish(events.ReceiveFileNames, string(names))
	}

	var offset int64
	if fi, err := os.Stat(r.stagePath()); err == nil && fi.Size() <= man.TotalSize {
		offset = fi.Size()
	}

	stage, err := os.OpenFile(r.stagePath(), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		r.abort(fmt.Errorf("failed to open stage file: %w", err))
		return
	}
	if err := stage.Truncate(offset); err != nil {
		stage.Close()
		r.abort(fmt.Errorf("failed to truncate stage file: %w", err))
		return
	}
	if _, err := stage.Seek(offset, io.SeekStart); err != nil {
		stage.Close()
		r.abort(fmt.Errorf("failed to seek stage file: %w", err))
		return
	}

	r.mu.Lock()
	r.man = &man
	r.stage = stage
	r.received = offset
	r.start = time.Now()
	r.mu.Unlock()

	if offset > 0 {
		r.bus.Publish(events.ReceiveResumed, strconv.FormatInt(offset, 10))
		r.log.WithField("offset", offset).Info("Resuming from staged bytes")
	}

	if err := dc.SendText(resumePrefix + strconv.FormatInt(offset, 10)); err != nil {
		r.abort(fmt.Errorf("failed to request stream: %w", err))
	}
}

func (r *receiveServer) handleData(data []byte) {
	r.mu.Lock()
	if r.stage == nil || r.man == nil {
		// Data before the manifest handshake; drop it.
		r.mu.Unlock()
		return
	}

	if _, err := r.stage.Write(data); err != nil {
		r.mu.Unlock()
		r.abort(fmt.Errorf("failed to write stage file: %w", err))
		return
	}
	r.received += int64(len(data))

	var payload string
	if time.Since(r.lastTick) >= progressInterval {
		r.lastTick = time.Now()
		elapsed := time.Since(r.start).Seconds()
		var speed float64
		if elapsed > 0 {
			speed = float64(r.received) / elapsed
		}
		payload = fmt.Sprintf("%d:%d:%d", r.received, r.man.TotalSize, int64(speed*1000))
	}
	r.mu.Unlock()

	if payload != "" {
		r.bus.Publish(events.ReceiveProgress, payload)
	}
}

// finish closes the stage and exports it into the destination layout.
func (r *receiveServer) finish() {
	r.mu.Lock()
	if r.finished || r.man == nil {
		r.mu.Unlock()
		return
	}
	r.finished = true
	man := r.man
	stage := r.stage
	r.stage = nil
	received := r.received
	r.mu.Unlock()

	// Final transport tick so the UI lands on the true byte count.
	r.bus.Publish(events.ReceiveProgress,
		fmt.Sprintf("%d:%d:%d", received, man.TotalSize, 0))

	if stage != nil {
		stage.Close()
	}

	if err := r.export(man); err != nil {
		r.done(err)
		return
	}

	os.Remove(r.stagePath())
	r.bus.Publish(events.ReceiveCompleted, "")
	r.log.WithField("bytes", received).Info("Receive complete")
	r.done(nil)
}

// export splits the staged concatenation back into individual files under
// the destination.
func (r *receiveServer) export(man *manifest) error {
	r.bus.Publish(events.ExportStarted, strconv.Itoa(len(man.Files)))

	stage, err := os.Open(r.stagePath())
	if err != nil {
		return fmt.Errorf("failed to reopen stage file: %w", err)
	}
	defer stage.Close()

	for i, entry := range man.Files {
		if err := exportEntry(stage, r.dest, entry); err != nil {
			return fmt.Errorf("failed to export %s: %w", entry.Name, err)
		}
		done := i + 1
		r.bus.Publish(events.ExportProgress,
			fmt.Sprintf("%d:%d:%d", done, len(man.Files), done*100/len(man.Files)))
	}

	r.bus.Publish(events.ExportCompleted, "")
	return nil
}

func exportEntry(stage *os.File, dest string, entry manifestEntry) error {
	outPath := filepath.Join(dest, filepath.FromSlash(entry.Name))
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.CopyN(out, stage, entry.Size); err != nil {
		return err
	}
	return nil
}

func (r *receiveServer) abort(err error) {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	r.finished = true
	if r.stage != nil {
		r.stage.Close()
		r.stage = nil
	}
	r.mu.Unlock()

	// The stage file stays behind on purpose: it is the resume state for
	// the next attempt.
	r.done(err)
}
