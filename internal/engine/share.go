package engine

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"github.com/ShabbirHasan1/alt-sendme/internal/config"
	"github.com/ShabbirHasan1/alt-sendme/internal/events"
)

// Wire markers on the data channel. The sender opens with a manifest, the
// receiver replies with the offset it already holds, and a text EOF closes
// the byte stream.
const (
	manifestPrefix = "MANIFEST:"
	resumePrefix   = "RESUME:"
	eofMarker      = "EOF"
)

// progressInterval throttles transport progress events so the bus is not
// flooded on fast links.
const progressInterval = 150 * time.Millisecond

// shareServer serves one offered manifest over a sender-created data
// channel. Transport starts when the receiver announces its resume offset.
type shareServer struct {
	cfg *config.Config
	bus *events.Bus
	man *manifest
	log *logrus.Entry

	dc         *webrtc.DataChannel
	sendMoreCh chan struct{}
	// stopped unblocks the flow-control wait when the share is withdrawn;
	// once the channel is dead OnBufferedAmountLow never fires again.
	stopped <-chan struct{}
}

func newShareServer(cfg *config.Config, bus *events.Bus, man *manifest, stopped <-chan struct{}) *shareServer {
	return &shareServer{
		cfg:        cfg,
		bus:        bus,
		man:        man,
		log:        logrus.WithField("component", "share"),
		sendMoreCh: make(chan struct{}, 1),
		stopped:    stopped,
	}
}

// createChannel creates the transfer channel on pc and wires its handlers.
// Must run before the offer is created so the channel is negotiated.
func (s *shareServer) createChannel(pc *webrtc.PeerConnection) error {
	ordered := true
	dc, err := pc.CreateDataChannel(dataChannelLabel, &webrtc.DataChannelInit{
		Ordered: &ordered,
	})
	if err != nil {
		return fmt.Errorf("failed to create data channel: %w", err)
	}
	s.dc = dc

	dc.OnOpen(func() {
		s.log.WithField("label", dc.Label()).Debug("Data channel opened, sending manifest")
		encoded, err := s.man.encode()
		if err != nil {
			s.log.WithError(err).Error("Failed to encode manifest")
			return
		}
		if err := dc.SendText(manifestPrefix + encoded); err != nil {
			s.log.WithError(err).Error("Failed to send manifest")
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if !msg.IsString {
			return
		}
		text := string(msg.Data)
		if offsetStr, ok := strings.CutPrefix(text, resumePrefix); ok {
			var offset int64
			if _, err := fmt.Sscanf(offsetStr, "%d", &offset); err != nil {
				s.log.WithField("payload", text).Warn("Ignoring malformed resume request")
				return
			}
			go s.stream(offset)
		}
	})

	// Flow control: pause reading when the SCTP buffer backs up and resume
	// on the low-water callback.
	dc.SetBufferedAmountLowThreshold(s.cfg.WebRTC.BufferedAmountLowThreshold)
	dc.OnBufferedAmountLow(func() {
		select {
		case s.sendMoreCh <- struct{}{}:
		default:
		}
	})

	return nil
}

// stream sends the concatenated manifest payload starting at offset,
// reporting transport progress as it goes.
func (s *shareServer) stream(offset int64) {
	s.bus.Publish(events.TransferStarted, "")

	total := s.man.TotalSize
	if offset < 0 || offset > total {
		offset = 0
	}

	start := time.Now()
	sent := offset
	lastTick := time.Time{}

	emit := func() {
		elapsed := time.Since(start).Seconds()
		var speed float64
		if elapsed > 0 {
			speed = float64(sent-offset) / elapsed
		}
		s.bus.Publish(events.TransferProgress,
			fmt.Sprintf("%d:%d:%d", sent, total, int64(speed*1000)))
	}

	var skip = offset
	buffer := make([]byte, s.cfg.WebRTC.PacketSize)

	for _, entry := range s.man.Files {
		if skip >= entry.Size {
			skip -= entry.Size
			continue
		}
		if err := s.streamFile(entry, skip, buffer, &sent, total, &lastTick, emit); err != nil {
			s.log.WithError(err).WithField("file", entry.Name).Error("Transfer aborted")
			return
		}
		skip = 0
	}

	if err := s.dc.SendText(eofMarker); err != nil {
		s.log.WithError(err).Error("Failed to send EOF")
		return
	}

	emit()
	s.bus.Publish(events.TransferCompleted, "")
	s.log.WithFields(logrus.Fields{
		"bytes":   sent - offset,
		"resumed": offset,
	}).Info("Transfer complete")
}

func (s *shareServer) streamFile(entry manifestEntry, seek int64, buffer []byte, sent *int64, total int64, lastTick *time.Time, emit func()) error {
	src, err := s.openEntry(entry, seek)
	if err != nil {
		return err
	}
	defer src.Close()

	for {
		n, err := src.Read(buffer)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buffer[:n])
			if err := s.dc.Send(data); err != nil {
				return fmt.Errorf("failed to send data: %w", err)
			}
			*sent += int64(n)

			if time.Since(*lastTick) >= progressInterval {
				*lastTick = time.Now()
				emit()
			}

			if s.dc.BufferedAmount() > s.cfg.WebRTC.MaxBufferedAmount {
				if err := s.waitForBuffer(); err != nil {
					return err
				}
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", entry.Name, err)
		}
	}
}

// waitForBuffer blocks until the SCTP buffer drains below the low-water mark
// or the share is withdrawn.
func (s *shareServer) waitForBuffer() error {
	select {
	case <-s.sendMoreCh:
		return nil
	case <-s.stopped:
		return fmt.Errorf("share stopped while waiting for buffer to drain")
	}
}

func (s *shareServer) openEntry(entry manifestEntry, seek int64) (*os.File, error) {
	f, err := os.Open(entry.absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", entry.Name, err)
	}
	if seek > 0 {
		if _, err := f.Seek(seek, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to seek in %s: %w", entry.Name, err)
		}
	}
	return f, nil
}
