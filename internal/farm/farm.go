package farm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ellenhp/bambu-farm/internal/infrastructure/config"
	"github.com/ellenhp/bambu-farm/internal/printer"
)

// Session defaults used when the config leaves a value unset.
const (
	defaultQueueSize         = 16
	defaultRetryDelay        = 10 * time.Second
	defaultEnumerateInterval = time.Second
	defaultRegistryTimeout   = time.Second
)

// Options holds the collaborators and settings for a Farm.
type Options struct {
	Registry   *printer.Registry
	Dialer     Dialer
	Transferer Transferer
	Sessions   config.SessionsConfig
	Uploads    config.UploadsConfig
	Logger     Logger  // optional
	Metrics    Metrics // optional
}

// Farm is the gateway core: it lists printers, runs one relay session per
// connected printer and orchestrates uploads.
//
// Thread Safety: All methods are safe for concurrent use.
type Farm struct {
	hub      *hub
	dialer   Dialer
	uploader *Uploader
	cfg      config.SessionsConfig

	// ctx is cancelled by Close and parents every session.
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once

	logger  Logger
	metrics Metrics
}

// New creates a Farm and starts its session hub.
//
// Returns:
//   - *Farm: Ready for use; call Close to release it
//   - error: If a required collaborator is missing
func New(opts Options) (*Farm, error) {
	if opts.Registry == nil {
		return nil, errors.New("farm: registry is required")
	}
	if opts.Dialer == nil {
		return nil, errors.New("farm: dialer is required")
	}
	if opts.Transferer == nil {
		return nil, errors.New("farm: transferer is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	cfg := opts.Sessions
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.EnumerateInterval <= 0 {
		cfg.EnumerateInterval = defaultEnumerateInterval
	}
	if cfg.RegistryTimeout <= 0 {
		cfg.RegistryTimeout = defaultRegistryTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Farm{
		hub:      newHub(opts.Registry),
		dialer:   opts.Dialer,
		uploader: NewUploader(opts.Transferer, opts.Uploads, logger, metrics),
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// EnumeratePrinters streams the full roster, once immediately and then
// every enumerate interval, until ctx is cancelled.
//
// If the hub does not answer within the registry timeout the emission is
// skipped. After max_registry_failures consecutive skips the channel is
// closed. The channel is also closed when the farm shuts down.
func (f *Farm) EnumeratePrinters(ctx context.Context) <-chan []printer.Record {
	out := make(chan []printer.Record)

	go func() {
		defer close(out)

		ticker := time.NewTicker(f.cfg.EnumerateInterval)
		defer ticker.Stop()

		failures := 0
		for {
			records, err := f.rosterWithTimeout(ctx)
			switch {
			case err == nil:
				failures = 0
				select {
				case out <- records:
				case <-ctx.Done():
					return
				}

			case ctx.Err() != nil, errors.Is(err, ErrClosed):
				return

			default:
				failures++
				f.metrics.RegistryUnavailable()
				f.logger.Warn("skipping roster emission", "error", err, "consecutive", failures)
				if limit := f.cfg.MaxRegistryFailures; limit > 0 && failures >= limit {
					f.logger.Error("roster stream giving up", "failures", failures)
					return
				}
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

func (f *Farm) rosterWithTimeout(ctx context.Context) ([]printer.Record, error) {
	rctx, cancel := context.WithTimeout(ctx, f.cfg.RegistryTimeout)
	defer cancel()

	records, err := f.hub.roster(rctx)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("%w: %w", ErrRegistryUnavailable, err)
	}
	return records, err
}

// Printers returns the current roster.
func (f *Farm) Printers(ctx context.Context) ([]printer.Record, error) {
	return f.rosterWithTimeout(ctx)
}

// ConnectPrinter opens a relay session to a printer.
//
// Any existing session for the same printer is retired first, and its
// connection is closed before the new one is dialled. The session lives
// until ctx is cancelled, the device connection ends, or it is replaced.
//
// Parameters:
//   - ctx: Lifetime of the session (typically the client's stream context)
//   - id: Printer device ID
//
// Returns:
//   - *Stream: Device reports, ending with a disconnect message
//   - error: printer.ErrNotFound for unknown IDs, ErrSessionFailed if the
//     connection or subscription fails, ErrSessionClosed if the session was
//     replaced while connecting
func (f *Farm) ConnectPrinter(ctx context.Context, id string) (*Stream, error) {
	if f.ctx.Err() != nil {
		return nil, ErrClosed
	}

	rec, err := f.hub.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	s := newSession(ctx, rec.ID, f.cfg.QueueSize)
	stopOnShutdown := context.AfterFunc(f.ctx, s.retire)

	// fail tears down a session that never went live.
	fail := func(err error) (*Stream, error) {
		stopOnShutdown()
		s.finish()
		cctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		_ = f.hub.remove(cctx, s)
		return nil, err
	}

	prev, err := f.hub.register(ctx, s)
	if err != nil {
		return fail(err)
	}
	if prev != nil {
		f.logger.Info("replacing printer session",
			"device_id", rec.ID,
			"old_session_id", prev.id,
			"new_session_id", s.id,
		)
		prev.retire()
		select {
		case <-prev.done:
		case <-s.ctx.Done():
			return fail(f.sessionEndErr(ctx))
		}
	}

	f.logger.Info("connecting to printer", "printer", rec, "session_id", s.id)

	conn, err := f.dialer.Dial(s.ctx, rec)
	if err != nil {
		if s.ctx.Err() != nil {
			return fail(f.sessionEndErr(ctx))
		}
		f.logger.Warn("printer connection failed", "device_id", rec.ID, "error", err)
		return fail(fmt.Errorf("%w: %s: %w", ErrSessionFailed, rec.ID, err))
	}

	sub, err := conn.SubscribeReports(s.ctx)
	if err != nil {
		_ = conn.Close()
		if s.ctx.Err() != nil {
			return fail(f.sessionEndErr(ctx))
		}
		f.logger.Warn("printer subscription failed", "device_id", rec.ID, "error", err)
		return fail(fmt.Errorf("%w: %s: %w", ErrSessionFailed, rec.ID, err))
	}

	out := make(chan IncomingMessage)
	r := &relay{
		s:          s,
		conn:       conn,
		sub:        sub,
		out:        out,
		consumer:   ctx,
		retryDelay: f.cfg.RetryDelay,
		hub:        f.hub,
		logger:     f.logger,
		metrics:    f.metrics,
	}

	s.setStatus(StatusLive)
	f.metrics.SessionOpened(rec.ID)
	f.logger.Info("printer session live", "device_id", rec.ID, "session_id", s.id)

	go func() {
		defer stopOnShutdown()
		r.run()
	}()

	return &Stream{
		deviceID:  rec.ID,
		sessionID: s.id,
		messages:  out,
		done:      s.done,
	}, nil
}

// sessionEndErr explains why a session ended while connecting.
func (f *Farm) sessionEndErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.ctx.Err() != nil {
		return ErrClosed
	}
	return ErrSessionClosed
}

// SendMessage queues payload for the printer's live session.
//
// It blocks while the session's queue is full.
//
// Returns:
//   - error: ErrSessionNotFound if the printer has no session,
//     ErrSessionClosed if it ended before accepting the message, or ctx.Err()
func (f *Farm) SendMessage(ctx context.Context, id string, payload []byte) error {
	s, err := f.hub.session(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return err
	}
	return s.enqueue(ctx, payload)
}

// UploadFile delivers payload to remotePath on the printer.
//
// Returns:
//   - bool: Whether the printer accepted the file
//   - error: printer.ErrNotFound for unknown IDs, ErrInvalidUpload, or ctx.Err()
func (f *Farm) UploadFile(ctx context.Context, id string, payload []byte, remotePath string) (bool, error) {
	rec, err := f.hub.lookup(ctx, id)
	if err != nil {
		return false, err
	}

	f.logger.Info("uploading file", "device_id", rec.ID, "remote_path", remotePath, "bytes", len(payload))
	return f.uploader.Upload(ctx, rec, payload, remotePath)
}

// Sessions returns a snapshot of the indexed sessions, ordered by device ID.
func (f *Farm) Sessions(ctx context.Context) ([]SessionInfo, error) {
	sessions, err := f.hub.sessions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SessionInfo, len(sessions))
	for i, s := range sessions {
		out[i] = s.info()
	}
	return out, nil
}

// Close retires every session, waits for their relays to finish and stops
// the hub. It is safe to call more than once.
func (f *Farm) Close() error {
	f.closeOnce.Do(func() {
		f.cancel()

		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		sessions, err := f.hub.drain(ctx)
		cancel()
		if err != nil {
			f.logger.Warn("draining sessions", "error", err)
		}

		for _, s := range sessions {
			s.retire()
			<-s.done
		}

		f.hub.stop()
		f.logger.Info("farm stopped", "sessions_closed", len(sessions))
	})
	return nil
}
