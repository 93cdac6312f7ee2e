package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Lllllllleong/documentsummaryflow/internal/gcp"
	"github.com/Lllllllleong/documentsummaryflow/internal/models"
	"github.com/kaptinlin/jsonschema"
)

// DefaultPollInterval matches how often the upload page checked for results.
const DefaultPollInterval = 20 * time.Second

// Outcome is how a poll loop ended.
type Outcome string

const (
	OutcomeComplete  Outcome = "complete"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeCancelled Outcome = "cancelled"
)

// ErrPollTimedOut is the error carried by an OutcomeTimedOut result.
var ErrPollTimedOut = errors.New("no results before the polling limit")

// StoredRecord is a result record as read from the document store.
type StoredRecord struct {
	DocumentID string
	Record     models.UploadRecord
}

// ResultStore looks up the records the processing service wrote for a job.
type ResultStore interface {
	FindResults(ctx context.Context, jobID string) ([]StoredRecord, error)
}

// PollResult is the terminal state of one poll loop.
type PollResult struct {
	Job      models.JobHandle
	Outcome  Outcome
	Records  []models.ResultRecord
	Attempts int
	Err      error
}

// PollerConfig bounds a poll loop. Zero MaxAttempts and MaxDuration poll until a
// result or an error arrives.
type PollerConfig struct {
	Interval    time.Duration
	MaxAttempts int
	MaxDuration time.Duration
}

// LoadPollerConfig reads POLL_INTERVAL, POLL_MAX_ATTEMPTS and POLL_MAX_DURATION.
func LoadPollerConfig() (PollerConfig, error) {
	interval, err := gcp.GetEnvDuration("POLL_INTERVAL", DefaultPollInterval)
	if err != nil {
		return PollerConfig{}, err
	}
	maxAttempts, err := gcp.GetEnvInt("POLL_MAX_ATTEMPTS", 0)
	if err != nil {
		return PollerConfig{}, err
	}
	maxDuration, err := gcp.GetEnvDuration("POLL_MAX_DURATION", 0)
	if err != nil {
		return PollerConfig{}, err
	}
	return PollerConfig{Interval: interval, MaxAttempts: maxAttempts, MaxDuration: maxDuration}, nil
}

// Poller repeatedly queries a ResultStore for a job's records.
type Poller struct {
	store  ResultStore
	schema *jsonschema.Schema
	config PollerConfig
}

// NewPoller creates a Poller. A non-positive interval means DefaultPollInterval.
func NewPoller(store ResultStore, config PollerConfig) (*Poller, error) {
	if store == nil {
		return nil, fmt.Errorf("NewPoller: store cannot be nil")
	}
	if config.Interval <= 0 {
		config.Interval = DefaultPollInterval
	}
	schema, err := compileProcessedDataSchema()
	if err != nil {
		return nil, err
	}
	return &Poller{store: store, schema: schema, config: config}, nil
}

// PollHandle controls one running poll loop.
type PollHandle struct {
	Job models.JobHandle

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	result PollResult
}

// Cancel stops the loop. It is safe to call more than once and after the loop ended.
func (h *PollHandle) Cancel() {
	h.cancel()
}

// Done is closed once the loop has ended and its callback has returned.
func (h *PollHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the loop ends and returns its result.
func (h *PollHandle) Wait() PollResult {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

// Start begins polling for job in the background. onDone, if non-nil, is called
// exactly once with the terminal result, from the polling goroutine. The first
// query runs one interval after Start.
func (p *Poller) Start(ctx context.Context, job models.JobHandle, mode models.Mode, onDone func(*PollHandle, PollResult)) *PollHandle {
	ctx, cancel := context.WithCancel(ctx)
	h := &PollHandle{Job: job, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		defer cancel()

		res := p.run(ctx, job, mode)
		h.mu.Lock()
		h.result = res
		h.mu.Unlock()
		if onDone != nil {
			onDone(h, res)
		}
	}()
	return h
}

func (p *Poller) run(ctx context.Context, job models.JobHandle, mode models.Mode) PollResult {
	logCtx := slog.With("jobId", job.ID, "mode", mode)
	logCtx.Info("Started polling for results.", "interval", p.config.Interval.String())

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if p.config.MaxDuration > 0 {
		timer := time.NewTimer(p.config.MaxDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	res := PollResult{Job: job}
	for {
		select {
		case <-ctx.Done():
			res.Outcome, res.Err = OutcomeCancelled, ctx.Err()
			logCtx.Info("Polling cancelled.", "attempts", res.Attempts)
			return res
		case <-deadline:
			res.Outcome, res.Err = OutcomeTimedOut, ErrPollTimedOut
			logCtx.Warn("Polling timed out.", "attempts", res.Attempts, "maxDuration", p.config.MaxDuration.String())
			return res
		case <-ticker.C:
		}

		res.Attempts++
		records, err := p.fetch(ctx, job, mode)
		if err != nil {
			if ctx.Err() != nil {
				res.Outcome, res.Err = OutcomeCancelled, ctx.Err()
				return res
			}
			res.Outcome, res.Err = OutcomeFailed, err
			logCtx.Error("Polling query failed. Stopping.", "attempt", res.Attempts, "error", err)
			return res
		}
		if len(records) > 0 {
			res.Outcome, res.Records = OutcomeComplete, records
			logCtx.Info("Results found.", "attempt", res.Attempts, "recordCount", len(records))
			return res
		}
		if p.config.MaxAttempts > 0 && res.Attempts >= p.config.MaxAttempts {
			res.Outcome, res.Err = OutcomeTimedOut, ErrPollTimedOut
			logCtx.Warn("Polling gave up.", "attempts", res.Attempts)
			return res
		}
	}
}

// fetch runs one query and converts every ready record. Records still missing
// their output are skipped; a malformed payload fails the attempt.
func (p *Poller) fetch(ctx context.Context, job models.JobHandle, mode models.Mode) ([]models.ResultRecord, error) {
	stored, err := p.store.FindResults(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results for job %s: %w", job.ID, err)
	}

	var out []models.ResultRecord
	for _, s := range stored {
		if !s.Record.Ready() {
			continue
		}
		if err := validateProcessedData(p.schema, []byte(s.Record.ProcessedData)); err != nil {
			return nil, fmt.Errorf("document %s: %w", s.DocumentID, err)
		}
		rec, err := models.NewResultRecord(s.DocumentID, s.Record, mode)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
