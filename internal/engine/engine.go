// Package engine implements the transfer engine behind the session layer's
// command boundary: content import, ticket signalling and the byte transport
// over a WebRTC data channel. The engine never touches session state
// directly; everything it learns is reported through lifecycle events on the
// bus, and commands are acknowledged through plain return values.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"github.com/ShabbirHasan1/alt-sendme/internal/config"
	"github.com/ShabbirHasan1/alt-sendme/internal/events"
	"github.com/ShabbirHasan1/alt-sendme/internal/signalling"
	"github.com/ShabbirHasan1/alt-sendme/pkg/utils"
)

var (
	// ErrAlreadySharing rejects a second concurrent share offer.
	ErrAlreadySharing = errors.New("already sharing, stop the current share first")

	// ErrAlreadyReceiving rejects a second concurrent receive.
	ErrAlreadyReceiving = errors.New("a receive is already in progress")

	// ErrInvalidTicket rejects a ticket that is not a session code.
	ErrInvalidTicket = errors.New("invalid ticket")
)

// dataChannelLabel names the file transfer channel on the peer connection.
const dataChannelLabel = "fileTransfer"

// Engine is the WebRTC transfer engine. One engine handles at most one share
// and one receive at a time.
type Engine struct {
	cfg     *config.Config
	bus     *events.Bus
	signals *signalling.Service
	log     *logrus.Entry

	mu      sync.Mutex
	share   *shareSession
	receive *receiveSession
}

type shareSession struct {
	code   string
	pc     *webrtc.PeerConnection
	cancel context.CancelFunc
}

type receiveSession struct {
	code string
	pc   *webrtc.PeerConnection
}

// New creates an engine publishing lifecycle events on bus.
func New(cfg *config.Config, bus *events.Bus, signals *signalling.Service) *Engine {
	return &Engine{
		cfg:     cfg,
		bus:     bus,
		signals: signals,
		log:     logrus.WithField("component", "engine"),
	}
}

// StartSharing imports path, publishes an offer and returns the session code
// as the transfer ticket. The offer then waits in the background for a
// receiver to answer; transport events follow once one connects.
func (e *Engine) StartSharing(ctx context.Context, path string) (string, error) {
	shareCtx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	if e.share != nil {
		e.mu.Unlock()
		cancel()
		return "", ErrAlreadySharing
	}
	// Reserve the slot before the slow import and signalling work so a
	// second concurrent command cannot race past the guard.
	e.share = &shareSession{cancel: cancel}
	e.mu.Unlock()

	fail := func(err error) (string, error) {
		cancel()
		e.clearShare()
		return "", err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fail(fmt.Errorf("failed to resolve path: %w", err))
	}
	if _, err := os.Stat(abs); err != nil {
		return fail(fmt.Errorf("path does not exist: %s", abs))
	}

	man, err := e.importPath(abs)
	if err != nil {
		return fail(fmt.Errorf("failed to import %s: %w", abs, err))
	}

	pc, err := e.newPeerConnection("sender")
	if err != nil {
		return fail(err)
	}

	srv := newShareServer(e.cfg, e.bus, man, shareCtx.Done())
	if err := srv.createChannel(pc); err != nil {
		pc.Close()
		return fail(err)
	}

	code, err := e.signals.OfferSession(ctx, pc)
	if err != nil {
		pc.Close()
		return fail(err)
	}

	e.mu.Lock()
	if e.share == nil {
		// StopSharing won the race while the offer was being published.
		e.mu.Unlock()
		pc.Close()
		e.signals.ClearSession(ctx, code)
		return "", fmt.Errorf("sharing stopped before the offer was ready")
	}
	e.share.code = code
	e.share.pc = pc
	e.mu.Unlock()

	go func() {
		if err := e.signals.AwaitAnswer(shareCtx, pc, code); err != nil {
			if shareCtx.Err() == nil {
				e.log.WithError(err).Warn("No answer for offered session")
			}
		}
	}()

	e.log.WithFields(logrus.Fields{"ticket": code, "path": abs}).Info("Share offered")
	return code, nil
}

// StopSharing withdraws the current offer. Stopping when nothing is shared
// is a no-op so resets stay idempotent. The slot may still be a reservation
// whose offer never finished; there is nothing to close or clear then.
func (e *Engine) StopSharing(ctx context.Context) error {
	e.mu.Lock()
	sh := e.share
	e.share = nil
	e.mu.Unlock()

	if sh == nil {
		return nil
	}

	sh.cancel()
	var errs []error
	if sh.pc != nil {
		if err := sh.pc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close peer connection: %w", err))
		}
	}
	if sh.code != "" {
		if err := e.signals.ClearSession(ctx, sh.code); err != nil {
			errs = append(errs, fmt.Errorf("failed to clear session: %w", err))
		}
	}
	e.log.WithField("ticket", sh.code).Info("Share stopped")
	return errors.Join(errs...)
}

func (e *Engine) clearShare() {
	e.mu.Lock()
	e.share = nil
	e.mu.Unlock()
}

// Receive answers the offer behind ticket and starts receiving into
// outputPath. A nil return acknowledges the command only; progress and
// completion are reported through events.
func (e *Engine) Receive(ctx context.Context, ticket, outputPath string) error {
	if !utils.IsValidCode(ticket) {
		return ErrInvalidTicket
	}
	if err := os.MkdirAll(outputPath, 0o755); err != nil {
		return fmt.Errorf("failed to prepare output directory: %w", err)
	}

	e.mu.Lock()
	if e.receive != nil {
		e.mu.Unlock()
		return ErrAlreadyReceiving
	}
	// Reserve the slot before signalling so a double command cannot race.
	e.receive = &receiveSession{code: ticket}
	e.mu.Unlock()

	pc, err := e.newPeerConnection("receiver")
	if err != nil {
		e.clearReceive()
		return err
	}

	srv := newReceiveServer(e.cfg, e.bus, ticket, outputPath, func(err error) {
		if err != nil {
			e.log.WithError(err).Error("Receive failed")
		}
		pc.Close()
		e.clearReceive()
	})
	srv.attach(pc)

	if err := e.signals.AnswerSession(ctx, pc, ticket); err != nil {
		pc.Close()
		e.clearReceive()
		return err
	}

	e.mu.Lock()
	if e.receive != nil {
		e.receive.pc = pc
	}
	e.mu.Unlock()

	e.log.WithFields(logrus.Fields{"ticket": ticket, "dest": outputPath}).Info("Receive answered")
	return nil
}

func (e *Engine) clearReceive() {
	e.mu.Lock()
	e.receive = nil
	e.mu.Unlock()
}

// FileSize returns the byte size of path; directories are summed
// recursively.
func (e *Engine) FileSize(ctx context.Context, path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return info.Size(), nil
	}

	var total int64
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.Type().IsRegular() {
			fi, err := d.Info()
			if err != nil {
				return err
			}
			total += fi.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to walk %s: %w", path, err)
	}
	return total, nil
}

// PathType reports whether path is a "file" or a "directory".
func (e *Engine) PathType(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("path does not exist: %s", path)
	}
	if info.IsDir() {
		return "directory", nil
	}
	if info.Mode().IsRegular() {
		return "file", nil
	}
	return "", fmt.Errorf("path is neither a file nor a directory: %s", path)
}

// newPeerConnection creates a peer connection with the configured ICE
// servers and state logging.
func (e *Engine) newPeerConnection(role string) (*webrtc.PeerConnection, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: e.cfg.WebRTC.ICEServers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		e.log.WithFields(logrus.Fields{
			"role":  role,
			"state": state.String(),
		}).Debug("Peer connection state changed")
	})
	return pc, nil
}
