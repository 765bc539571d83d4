package farm

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ellenhp/bambu-farm/internal/infrastructure/config"
	"github.com/ellenhp/bambu-farm/internal/printer"
)

// Upload defaults used when the config leaves a value unset.
const (
	defaultMaxUploads       = 4
	defaultUploadTimeout    = 10 * time.Minute
	defaultProgressInterval = time.Second
)

// Uploader delivers files to printers.
//
// Each transfer is a blocking delete-then-store sequence. It runs on its own
// goroutine and reports back over a channel, so the caller's goroutine only
// waits and logs progress. A weighted semaphore caps how many transfers run
// at once across the farm.
//
// Thread Safety: Upload is safe for concurrent use.
type Uploader struct {
	transfer         Transferer
	sem              *semaphore.Weighted
	timeout          time.Duration
	scratchDir       string
	progressInterval time.Duration
	logger           Logger
	metrics          Metrics
}

// NewUploader creates an Uploader over the given transfer capability.
func NewUploader(transfer Transferer, cfg config.UploadsConfig, logger Logger, metrics Metrics) *Uploader {
	if logger == nil {
		logger = noopLogger{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	limit := cfg.MaxConcurrent
	if limit <= 0 {
		limit = defaultMaxUploads
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultUploadTimeout
	}

	return &Uploader{
		transfer:         transfer,
		sem:              semaphore.NewWeighted(int64(limit)),
		timeout:          timeout,
		scratchDir:       cfg.ScratchDir,
		progressInterval: defaultProgressInterval,
		logger:           logger,
		metrics:          metrics,
	}
}

// Upload places payload at remotePath on the printer.
//
// The steps are:
//  1. Delete remotePath (failure ignored; the file usually does not exist)
//  2. Write payload to a scratch file
//  3. Store the scratch file at remotePath
//
// Parameters:
//   - ctx: Cancels the wait for a worker slot and the transfer itself
//   - rec: Target printer
//   - payload: File contents
//   - remotePath: Destination path on the printer
//
// Returns:
//   - bool: true only if the store completed and the transport reported success
//   - error: ErrInvalidUpload for an empty path, or ctx.Err() if the caller
//     gave up. Transfer failures are reported as (false, nil).
func (u *Uploader) Upload(ctx context.Context, rec printer.Record, payload []byte, remotePath string) (bool, error) {
	if remotePath == "" {
		return false, fmt.Errorf("%w: remote path cannot be empty", ErrInvalidUpload)
	}

	if err := u.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer u.sem.Release(1)

	start := time.Now()
	tctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		result <- u.transferFile(tctx, rec, payload, remotePath)
	}()

	ticker := time.NewTicker(u.progressInterval)
	defer ticker.Stop()

	var err error
wait:
	for {
		select {
		case err = <-result:
			break wait
		case <-ticker.C:
			u.logger.Info("upload in progress",
				"device_id", rec.ID,
				"remote_path", remotePath,
				"elapsed", time.Since(start).Round(time.Second),
			)
		}
	}

	elapsed := time.Since(start)
	ok := err == nil
	u.metrics.UploadFinished(rec.ID, ok, elapsed.Seconds())

	if !ok {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		u.logger.Warn("upload failed",
			"device_id", rec.ID,
			"remote_path", remotePath,
			"error", err,
		)
		return false, nil
	}

	u.logger.Info("upload complete",
		"device_id", rec.ID,
		"remote_path", remotePath,
		"bytes", len(payload),
		"duration", elapsed,
	)
	return true, nil
}

// transferFile runs on the worker goroutine.
func (u *Uploader) transferFile(ctx context.Context, rec printer.Record, payload []byte, remotePath string) error {
	if err := u.transfer.Delete(ctx, rec, remotePath); err != nil {
		u.logger.Debug("pre-upload delete failed", "device_id", rec.ID, "remote_path", remotePath, "error", err)
	}

	scratch, err := os.CreateTemp(u.scratchDir, "bambufarm-upload-*")
	if err != nil {
		return fmt.Errorf("creating scratch file: %w", err)
	}
	defer os.Remove(scratch.Name()) //nolint:errcheck // best-effort cleanup
	defer scratch.Close()           //nolint:errcheck // read-only by then

	if _, err := scratch.Write(payload); err != nil {
		return fmt.Errorf("writing scratch file: %w", err)
	}
	if _, err := scratch.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding scratch file: %w", err)
	}

	return u.transfer.Store(ctx, rec, remotePath, scratch)
}
