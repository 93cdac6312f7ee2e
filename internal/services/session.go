package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Lllllllleong/documentsummaryflow/internal/models"
	"github.com/Lllllllleong/documentsummaryflow/internal/workspace"
)

// State is the processing status of a session.
type State string

const (
	StateIdle            State = "idle"
	StateAwaitingOptions State = "awaitingOptions"
	StateProcessing      State = "processing"
	StateComplete        State = "complete"
	StateFailed          State = "failed"
	StateTimedOut        State = "timedOut"
)

// Submitter sends a submission to the relay.
type Submitter interface {
	Submit(ctx context.Context, sub *models.Submission) (models.JobHandle, error)
}

// ResultPoller starts a poll loop for a job.
type ResultPoller interface {
	Start(ctx context.Context, job models.JobHandle, mode models.Mode, onDone func(*PollHandle, PollResult)) *PollHandle
}

// SnapshotStore is the part of the workspace the session needs.
type SnapshotStore interface {
	Save(ctx context.Context, records []models.ResultRecord, files []models.FileRef, mode models.Mode) (workspace.Snapshot, error)
	Select(id int) (workspace.Snapshot, error)
	SetDisplayed(content models.DisplayedContent) error
}

// Session drives one user's upload workflow: select files, confirm, poll,
// display, save. All fields are guarded by mu; poll callbacks arrive on the
// poller's goroutine.
type Session struct {
	submitter Submitter
	poller    ResultPoller
	store     SnapshotStore

	mu        sync.Mutex
	state     State
	collector *Collector
	active    *PollHandle
	job       models.JobHandle
	mode      models.Mode
	records   []models.ResultRecord
	files     []models.FileRef
	display   *Display
	lastErr   error
	onChange  func(State)
}

// NewSession creates an idle session. store may be nil when snapshots are not used.
func NewSession(submitter Submitter, poller ResultPoller, store SnapshotStore) *Session {
	return &Session{
		submitter: submitter,
		poller:    poller,
		store:     store,
		state:     StateIdle,
		collector: NewCollector(),
	}
}

// OnStateChange registers a callback run after every state transition. It is
// called with the session lock held and must not call back into the session.
func (s *Session) OnStateChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Collector exposes the submission being assembled.
func (s *Session) Collector() *Collector {
	return s.collector
}

// State returns the current processing status.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error behind a failed or timed out state.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Display returns what is currently shown, or nil.
func (s *Session) Display() *Display {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.display
}

// Job returns the handle of the latest submission.
func (s *Session) Job() models.JobHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job
}

// SelectFiles replaces the file selection. Any displayed result is cleared and
// an outstanding poll is cancelled first so a late result cannot overwrite the
// new submission.
func (s *Session) SelectFiles(files []models.FileUpload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateProcessing && s.active == nil {
		return models.ErrSubmissionInFlight
	}
	s.cancelActiveLocked()
	s.clearLocked()
	s.collector.SetFiles(files)
	s.setStateLocked(StateAwaitingOptions)
	return nil
}

// ClearDisplay drops any shown result and returns to idle. Calling it twice
// leaves the same empty state.
func (s *Session) ClearDisplay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelActiveLocked()
	s.clearLocked()
	s.collector.SetFiles(nil)
	s.setStateLocked(StateIdle)
}

func (s *Session) clearLocked() {
	s.display = nil
	s.records = nil
	s.files = nil
	s.lastErr = nil
}

func (s *Session) cancelActiveLocked() {
	if s.active != nil {
		s.active.Cancel()
		s.active = nil
	}
}

func (s *Session) setStateLocked(state State) {
	if s.state == state {
		return
	}
	slog.Info("Session state changed.", "from", s.state, "to", state, "jobId", s.job.ID)
	s.state = state
	if s.onChange != nil {
		s.onChange(state)
	}
}

// Submit sends the collected submission and starts polling for its results.
// It is refused while another submission is processing.
func (s *Session) Submit(ctx context.Context) (*PollHandle, error) {
	s.mu.Lock()
	if s.state == StateProcessing {
		s.mu.Unlock()
		return nil, models.ErrSubmissionInFlight
	}
	sub, err := s.collector.Build()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.cancelActiveLocked()
	s.lastErr = nil
	s.mode = sub.Mode
	s.setStateLocked(StateProcessing)
	s.mu.Unlock()

	job, err := s.submitter.Submit(ctx, sub)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateProcessing {
		// Files were reselected while the upload was in flight.
		return nil, fmt.Errorf("%w: submission superseded", models.ErrUploadFailed)
	}
	if err != nil {
		s.lastErr = err
		s.setStateLocked(StateAwaitingOptions)
		return nil, err
	}

	s.job = job
	s.files = pendingFileRefs(sub.Files)
	s.active = s.poller.Start(ctx, job, sub.Mode, s.onPollDone)
	return s.active, nil
}

// pendingFileRefs describes the submitted files until the store returns their
// hosted locations.
func pendingFileRefs(files []models.FileUpload) []models.FileRef {
	refs := make([]models.FileRef, 0, len(files))
	for i, f := range files {
		refs = append(refs, models.FileRef{
			ID:       fmt.Sprintf("%d", i),
			Filename: f.Name,
			Key:      models.FileKey(f.Name),
		})
	}
	return refs
}

func (s *Session) onPollDone(h *PollHandle, res PollResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h != s.active {
		slog.Info("Ignoring result of a superseded poll.", "jobId", res.Job.ID, "outcome", res.Outcome)
		return
	}
	s.active = nil

	switch res.Outcome {
	case OutcomeComplete:
		s.records = res.Records
		s.files = fileRefs(res.Records)
		s.display = Render(s.records, s.files, s.mode)
		s.setStateLocked(StateComplete)
		s.persistDisplayLocked()
	case OutcomeFailed:
		s.lastErr = res.Err
		s.setStateLocked(StateFailed)
	case OutcomeTimedOut:
		s.lastErr = res.Err
		s.setStateLocked(StateTimedOut)
	case OutcomeCancelled:
		s.lastErr = res.Err
		s.setStateLocked(StateIdle)
	}
}

func fileRefs(records []models.ResultRecord) []models.FileRef {
	refs := make([]models.FileRef, 0, len(records))
	for _, r := range records {
		refs = append(refs, r.File)
	}
	return refs
}

func (s *Session) persistDisplayLocked() {
	if s.store == nil || s.display == nil {
		return
	}
	if err := s.store.SetDisplayed(s.display.Content()); err != nil {
		slog.Warn("Failed to persist displayed content", "error", err)
	}
}

// SaveSnapshot stores the currently displayed results.
func (s *Session) SaveSnapshot(ctx context.Context) (workspace.Snapshot, error) {
	if s.store == nil {
		return workspace.Snapshot{}, errors.New("no workspace store configured")
	}
	s.mu.Lock()
	records, files, mode := s.records, s.files, s.mode
	s.mu.Unlock()
	if len(records) == 0 {
		return workspace.Snapshot{}, errors.New("no results to save")
	}
	return s.store.Save(ctx, records, files, mode)
}

// SelectSnapshot replaces the displayed results with a saved snapshot. A poll
// still running keeps going and will replace the display when it completes.
func (s *Session) SelectSnapshot(id int) (*Display, error) {
	if s.store == nil {
		return nil, errors.New("no workspace store configured")
	}
	snap, err := s.store.Select(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = snap.Records
	s.files = snap.Files
	s.mode = snap.Mode
	s.display = Render(snap.Records, snap.Files, snap.Mode)
	s.persistDisplayLocked()
	return s.display, nil
}
