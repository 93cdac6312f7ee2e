package services

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/Lllllllleong/documentsummaryflow/internal/models"
	"github.com/Lllllllleong/documentsummaryflow/internal/workspace"
)

type fakeSubmitter struct {
	mu    sync.Mutex
	ids   []string
	err   error
	calls int
	// entered and release, when set, block Submit until release is closed.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeSubmitter) Submit(ctx context.Context, sub *models.Submission) (models.JobHandle, error) {
	if f.entered != nil {
		close(f.entered)
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return models.JobHandle{}, f.err
	}
	return models.JobHandle{ID: f.ids[f.calls-1]}, nil
}

// manualPoller hands out handles whose completion the test drives.
type manualPoller struct {
	mu      sync.Mutex
	handles []*PollHandle
	done    []func(*PollHandle, PollResult)
}

func (m *manualPoller) Start(ctx context.Context, job models.JobHandle, mode models.Mode, onDone func(*PollHandle, PollResult)) *PollHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := &PollHandle{Job: job, cancel: func() {}, done: make(chan struct{})}
	m.handles = append(m.handles, h)
	m.done = append(m.done, onDone)
	return h
}

func (m *manualPoller) finish(i int, res PollResult) {
	m.mu.Lock()
	h, fn := m.handles[i], m.done[i]
	m.mu.Unlock()
	fn(h, res)
}

func pngUpload() []models.FileUpload {
	return []models.FileUpload{{Name: "report.png", Data: []byte("x")}}
}

func openTestStore(t *testing.T) *workspace.Store {
	t.Helper()
	store, err := workspace.Open(filepath.Join(t.TempDir(), "workspace.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store
}

func TestSessionClearDisplayIsIdempotent(t *testing.T) {
	s := NewSession(&fakeSubmitter{}, &manualPoller{}, nil)
	if err := s.SelectFiles(pngUpload()); err != nil {
		t.Fatalf("SelectFiles: %v", err)
	}

	s.ClearDisplay()
	first := []any{s.State(), s.Display(), s.Err(), len(s.Collector().Files())}
	s.ClearDisplay()
	second := []any{s.State(), s.Display(), s.Err(), len(s.Collector().Files())}

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("state after second clear = %v, want %v", second, first)
	}
	if s.State() != StateIdle {
		t.Fatalf("state = %s, want idle", s.State())
	}
}

func TestSessionSubmitPollAndSnapshotRoundTrip(t *testing.T) {
	store := openTestStore(t)
	results := &fakeResultStore{responses: []func() ([]StoredRecord, error){
		empty,
		func() ([]StoredRecord, error) { return []StoredRecord{readyRecord("job1")}, nil },
	}}
	s := NewSession(&fakeSubmitter{ids: []string{"job1"}}, newTestPoller(t, results, PollerConfig{}), store)

	var states []State
	s.OnStateChange(func(st State) { states = append(states, st) })

	if err := s.SelectFiles(pngUpload()); err != nil {
		t.Fatalf("SelectFiles: %v", err)
	}
	h, err := s.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res := waitDone(t, h); res.Outcome != OutcomeComplete {
		t.Fatalf("outcome = %s, err = %v", res.Outcome, res.Err)
	}

	if s.State() != StateComplete {
		t.Fatalf("state = %s, want complete", s.State())
	}
	want := []State{StateAwaitingOptions, StateProcessing, StateComplete}
	if !reflect.DeepEqual(states, want) {
		t.Fatalf("transitions = %v, want %v", states, want)
	}
	shown := s.Display()
	if len(shown.Groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(shown.Groups))
	}
	if _, ok := store.Displayed(); !ok {
		t.Fatal("displayed content was not persisted")
	}

	snap, err := s.SaveSnapshot(context.Background())
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if snap.ID != 1 || snap.Label != "Saved Response 1" {
		t.Fatalf("snapshot = %d %q", snap.ID, snap.Label)
	}

	s.ClearDisplay()
	if s.Display() != nil {
		t.Fatal("display not cleared")
	}

	restored, err := s.SelectSnapshot(snap.ID)
	if err != nil {
		t.Fatalf("SelectSnapshot: %v", err)
	}
	if !reflect.DeepEqual(restored.Groups, shown.Groups) {
		t.Fatalf("restored groups differ:\n%+v\n%+v", restored.Groups, shown.Groups)
	}
}

func TestSessionIgnoresSupersededPoll(t *testing.T) {
	poller := &manualPoller{}
	s := NewSession(&fakeSubmitter{ids: []string{"job1", "job2"}}, poller, nil)

	s.SelectFiles(pngUpload())
	if _, err := s.Submit(context.Background()); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if err := s.SelectFiles(pngUpload()); err != nil {
		t.Fatalf("reselect during poll: %v", err)
	}
	if _, err := s.Submit(context.Background()); err != nil {
		t.Fatalf("second Submit: %v", err)
	}

	stale := PollResult{Job: models.JobHandle{ID: "job1"}, Outcome: OutcomeComplete, Records: []models.ResultRecord{{}}}
	poller.finish(0, stale)
	if s.State() != StateProcessing || s.Display() != nil {
		t.Fatalf("stale result applied: state = %s", s.State())
	}

	boom := errors.New("query failed")
	poller.finish(1, PollResult{Job: models.JobHandle{ID: "job2"}, Outcome: OutcomeFailed, Err: boom})
	if s.State() != StateFailed {
		t.Fatalf("state = %s, want failed", s.State())
	}
	if !errors.Is(s.Err(), boom) {
		t.Fatalf("err = %v", s.Err())
	}
	if s.Job().ID != "job2" {
		t.Fatalf("job = %q", s.Job().ID)
	}
}

func TestSessionTimedOutPoll(t *testing.T) {
	poller := &manualPoller{}
	s := NewSession(&fakeSubmitter{ids: []string{"job1"}}, poller, nil)
	s.SelectFiles(pngUpload())
	if _, err := s.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	poller.finish(0, PollResult{Outcome: OutcomeTimedOut, Err: ErrPollTimedOut})
	if s.State() != StateTimedOut || !errors.Is(s.Err(), ErrPollTimedOut) {
		t.Fatalf("state = %s, err = %v", s.State(), s.Err())
	}
}

func TestSessionRejectsSecondSubmitWhileProcessing(t *testing.T) {
	s := NewSession(&fakeSubmitter{ids: []string{"job1", "job2"}}, &manualPoller{}, nil)
	s.SelectFiles(pngUpload())
	if _, err := s.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := s.Submit(context.Background()); !errors.Is(err, models.ErrSubmissionInFlight) {
		t.Fatalf("err = %v, want ErrSubmissionInFlight", err)
	}
}

func TestSessionSelectFilesDuringUpload(t *testing.T) {
	sub := &fakeSubmitter{ids: []string{"job1"}, entered: make(chan struct{}), release: make(chan struct{})}
	s := NewSession(sub, &manualPoller{}, nil)
	s.SelectFiles(pngUpload())

	errc := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background())
		errc <- err
	}()
	<-sub.entered

	if err := s.SelectFiles(pngUpload()); !errors.Is(err, models.ErrSubmissionInFlight) {
		t.Fatalf("err = %v, want ErrSubmissionInFlight", err)
	}
	close(sub.release)
	if err := <-errc; err != nil {
		t.Fatalf("Submit: %v", err)
	}
}

func TestSessionUploadFailureReturnsToOptions(t *testing.T) {
	s := NewSession(&fakeSubmitter{err: models.ErrUploadFailed}, &manualPoller{}, nil)
	s.SelectFiles(pngUpload())

	if _, err := s.Submit(context.Background()); !errors.Is(err, models.ErrUploadFailed) {
		t.Fatalf("err = %v", err)
	}
	if s.State() != StateAwaitingOptions {
		t.Fatalf("state = %s, want awaitingOptions", s.State())
	}
	if len(s.Collector().Files()) != 1 {
		t.Fatal("selection lost after a failed upload")
	}
}

func TestSessionSaveWithoutResults(t *testing.T) {
	s := NewSession(&fakeSubmitter{}, &manualPoller{}, openTestStore(t))
	if _, err := s.SaveSnapshot(context.Background()); err == nil {
		t.Fatal("expected error saving with no results")
	}
	if _, err := s.SelectSnapshot(7); !errors.Is(err, workspace.ErrSnapshotNotFound) {
		t.Fatalf("err = %v, want ErrSnapshotNotFound", err)
	}
}
