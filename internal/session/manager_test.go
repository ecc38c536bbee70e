package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vidgrab/vidgrab/internal/api"
	"github.com/vidgrab/vidgrab/internal/config"
	"github.com/vidgrab/vidgrab/internal/delivery"
	apperrors "github.com/vidgrab/vidgrab/internal/errors"
	"github.com/vidgrab/vidgrab/internal/progress"
	"github.com/vidgrab/vidgrab/internal/store"
)

const testURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

// fakeStream is a scriptable progress stream.
type fakeStream struct {
	events chan progress.Event
	err    error

	mu       sync.Mutex
	started  *progress.StartRequest
	closed   bool
	startErr error
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan progress.Event, 16)}
}

func (s *fakeStream) Start(req progress.StartRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = &req
	return nil
}

func (s *fakeStream) Events() <-chan progress.Event { return s.events }

func (s *fakeStream) Err() error { return s.err }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStream) startRequest() *progress.StartRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *fakeStream) wasClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeControl records out-of-band control calls.
type fakeControl struct {
	mu        sync.Mutex
	cancelled []string
	active    []api.ActiveDownload
	activeErr error
}

func (f *fakeControl) Cancel(ctx context.Context, jobID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, jobID)
	return "cancelled", nil
}

func (f *fakeControl) GetActiveDownloads(ctx context.Context) ([]api.ActiveDownload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activeErr != nil {
		return nil, f.activeErr
	}
	return f.active, nil
}

func (f *fakeControl) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cancelled)
}

// fakeDeliverer records deliveries.
type fakeDeliverer struct {
	mu    sync.Mutex
	descs []delivery.Descriptor
	err   error
}

func (f *fakeDeliverer) Deliver(ctx context.Context, desc delivery.Descriptor) (*delivery.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.descs = append(f.descs, desc)
	if f.err != nil {
		return nil, f.err
	}
	return &delivery.Result{Filename: desc.Filename, Location: "/tmp/" + desc.Filename, Size: 1024}, nil
}

func (f *fakeDeliverer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.descs)
}

// fakeRecorder counts history materializations.
type fakeRecorder struct {
	mu      sync.Mutex
	entries []api.HistoryEntry
}

func (f *fakeRecorder) Record(ctx context.Context, entry api.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type managerFixture struct {
	manager  *Manager
	store    store.Store
	control  *fakeControl
	deliver  *fakeDeliverer
	recorder *fakeRecorder
	stream   *fakeStream

	mu    sync.Mutex
	dials int
}

func newFixture(t *testing.T) *managerFixture {
	t.Helper()

	s, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	cfg := &config.Config{
		WSBaseURL:      "ws://test",
		RequestTimeout: 2 * time.Second,
		HandshakeWait:  300 * time.Millisecond,
		AutoClearDelay: 50 * time.Millisecond,
	}

	f := &managerFixture{
		store:    s,
		control:  &fakeControl{},
		deliver:  &fakeDeliverer{},
		recorder: &fakeRecorder{},
		stream:   newFakeStream(),
	}
	dial := func(ctx context.Context, wsBaseURL, jobID string) (EventStream, error) {
		f.mu.Lock()
		f.dials++
		f.mu.Unlock()
		return f.stream, nil
	}
	f.manager = NewManager(cfg, s, f.control, f.deliver, f.recorder, dial)
	return f
}

func (f *managerFixture) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (f *managerFixture) waitForStatus(t *testing.T, status JobStatus) Job {
	t.Helper()
	var job Job
	waitFor(t, "status "+string(status), func() bool {
		j, _ := f.manager.Job()
		job = j
		return j.Status == status
	})
	return job
}

func TestManager_SubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		url      string
		wantCode string
	}{
		{"empty url", "", apperrors.CodeEmptyURL},
		{"unsupported host", "https://www.example.com/video", apperrors.CodeUnsupportedHost},
		{"not a url", "not a url", apperrors.CodeUnsupportedHost},
		{"bad youtube id", "https://www.youtube.com/watch?v=x", apperrors.CodeValidationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.manager.Submit(ctx, tt.url, Options{})
			if !apperrors.HasCode(err, tt.wantCode) {
				t.Errorf("Submit(%q) error = %v, want %s", tt.url, err, tt.wantCode)
			}
		})
	}

	if f.dialCount() != 0 {
		t.Errorf("rejected submissions opened %d channels", f.dialCount())
	}
}

func TestManager_SubmitSeedsOptionsFromPreferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	jobID, err := f.manager.Submit(ctx, testURL, Options{})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if jobID == "" {
		t.Fatal("Submit() returned an empty job id")
	}

	waitFor(t, "start frame", func() bool { return f.stream.startRequest() != nil })

	start := f.stream.startRequest()
	if start.URL != testURL {
		t.Errorf("start URL = %q, want %q", start.URL, testURL)
	}
	if start.Type != "video" || start.Quality != "720p" || start.Format != "mp4" {
		t.Errorf("start options = %s/%s/%s, want defaults video/720p/mp4", start.Type, start.Quality, start.Format)
	}

	job, active := f.manager.Job()
	if !active {
		t.Fatal("Job() reports no active job after Submit")
	}
	if job.Status != StatusInitializing {
		t.Errorf("status = %s, want initializing", job.Status)
	}

	// The snapshot is durable.
	var persisted Job
	if err := f.store.Get(ctx, store.KeyActiveJob, &persisted); err != nil {
		t.Fatalf("persisted snapshot: %v", err)
	}
	if persisted.ID != jobID {
		t.Errorf("persisted job id = %q, want %q", persisted.ID, jobID)
	}
}

func TestManager_SubmitExplicitOptionsWin(t *testing.T) {
	f := newFixture(t)

	if _, err := f.manager.Submit(context.Background(), testURL, Options{MediaType: "audio", Quality: "1080p", Format: "m4a"}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	waitFor(t, "start frame", func() bool { return f.stream.startRequest() != nil })
	start := f.stream.startRequest()
	if start.Type != "audio" || start.Quality != "1080p" || start.Format != "m4a" {
		t.Errorf("start options = %s/%s/%s, want audio/1080p/m4a", start.Type, start.Quality, start.Format)
	}
}

func TestManager_SingleActiveJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.manager.Submit(ctx, testURL, Options{})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	_, err = f.manager.Submit(ctx, "https://vimeo.com/123456", Options{})
	if !apperrors.HasCode(err, apperrors.CodeJobConflict) {
		t.Fatalf("second Submit() error = %v, want JOB_CONFLICT", err)
	}

	job, _ := f.manager.Job()
	if job.ID != first {
		t.Errorf("active job changed to %q after rejected submit", job.ID)
	}
}

func TestManager_PercentMonotonic(t *testing.T) {
	f := newFixture(t)

	if _, err := f.manager.Submit(context.Background(), testURL, Options{}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitFor(t, "start frame", func() bool { return f.stream.startRequest() != nil })

	f.stream.events <- progress.Event{Status: progress.StatusDownloading, Percent: 50}
	waitFor(t, "percent 50", func() bool {
		j, _ := f.manager.Job()
		return j.Percent == 50
	})

	// A stale lower percent must not move the bar backwards.
	f.stream.events <- progress.Event{Status: progress.StatusDownloading, Percent: 30}
	f.stream.events <- progress.Event{Status: progress.StatusDownloading, Percent: 80}
	waitFor(t, "percent 80", func() bool {
		j, _ := f.manager.Job()
		return j.Percent == 80
	})

	j, _ := f.manager.Job()
	if j.Status != StatusDownloading {
		t.Errorf("status = %s, want downloading", j.Status)
	}
}

func TestManager_ProcessingPinsPercent(t *testing.T) {
	f := newFixture(t)

	if _, err := f.manager.Submit(context.Background(), testURL, Options{}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitFor(t, "start frame", func() bool { return f.stream.startRequest() != nil })

	f.stream.events <- progress.Event{Status: progress.StatusDownloading, Percent: 99.7}
	f.stream.events <- progress.Event{Status: progress.StatusProcessing, Message: "Merging formats"}

	job := f.waitForStatus(t, StatusProcessing)
	if job.Percent != 95 {
		t.Errorf("processing percent = %v, want 95", job.Percent)
	}
	if job.StatusMessage != "Merging formats" {
		t.Errorf("status message = %q", job.StatusMessage)
	}
}

func TestManager_CompletedDeliversAndRecordsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	jobID, err := f.manager.Submit(ctx, testURL, Options{})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitFor(t, "start frame", func() bool { return f.stream.startRequest() != nil })

	f.stream.events <- progress.Event{Status: progress.StatusDownloading, Percent: 100}
	f.stream.events <- progress.Event{
		Status:   progress.StatusCompleted,
		Filename: "video.mp4",
		FileURL:  "/downloads/video.mp4",
		Title:    "A Video",
	}
	close(f.stream.events)

	waitFor(t, "delivery", func() bool { return f.deliver.count() == 1 })
	waitFor(t, "history entry", func() bool { return f.recorder.count() == 1 })

	f.recorder.mu.Lock()
	entry := f.recorder.entries[0]
	f.recorder.mu.Unlock()
	if entry.ID != jobID || entry.Title != "A Video" || entry.URL != testURL {
		t.Errorf("history entry = %+v", entry)
	}

	// Terminal jobs leave no durable active record.
	var persisted Job
	if err := f.store.Get(ctx, store.KeyActiveJob, &persisted); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("active record after completion: err = %v, want ErrNotFound", err)
	}

	// The session resets to idle after the auto-clear delay.
	waitFor(t, "idle", func() bool {
		_, active := f.manager.Job()
		j, _ := f.manager.Job()
		return !active && j.Status == StatusIdle
	})
}

func TestManager_CompletedWithoutDescriptorIsError(t *testing.T) {
	f := newFixture(t)

	if _, err := f.manager.Submit(context.Background(), testURL, Options{}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitFor(t, "start frame", func() bool { return f.stream.startRequest() != nil })

	f.stream.events <- progress.Event{Status: progress.StatusCompleted}
	close(f.stream.events)

	f.waitForStatus(t, StatusError)
	if f.deliver.count() != 0 {
		t.Errorf("delivery ran for a completed event without a descriptor")
	}
	if f.recorder.count() != 0 {
		t.Errorf("history recorded for a failed completion")
	}
}

func TestManager_DeliveryFailureIsError(t *testing.T) {
	f := newFixture(t)
	f.deliver.err = apperrors.EmptyArtifact("video.mp4")

	if _, err := f.manager.Submit(context.Background(), testURL, Options{}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitFor(t, "start frame", func() bool { return f.stream.startRequest() != nil })

	f.stream.events <- progress.Event{
		Status:   progress.StatusCompleted,
		Filename: "video.mp4",
		FileURL:  "/downloads/video.mp4",
	}
	close(f.stream.events)

	f.waitForStatus(t, StatusError)
	if f.recorder.count() != 0 {
		t.Errorf("history recorded despite failed delivery")
	}
}

func TestManager_CancelIsImmediateAndFencesLateEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	jobID, err := f.manager.Submit(ctx, testURL, Options{})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitFor(t, "start frame", func() bool { return f.stream.startRequest() != nil })

	f.stream.events <- progress.Event{Status: progress.StatusDownloading, Percent: 40}
	waitFor(t, "downloading", func() bool {
		j, _ := f.manager.Job()
		return j.Status == StatusDownloading
	})

	if err := f.manager.Cancel(ctx, jobID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	// The local transition does not wait for the server round trip.
	j, _ := f.manager.Job()
	if j.Status != StatusCancelled {
		t.Fatalf("status after Cancel = %s, want cancelled", j.Status)
	}
	if !f.stream.wasClosed() {
		t.Errorf("channel left open after Cancel")
	}

	// A late terminal event from the stale stream must not resurrect the job.
	f.stream.events <- progress.Event{
		Status:   progress.StatusCompleted,
		Filename: "video.mp4",
		FileURL:  "/downloads/video.mp4",
	}
	close(f.stream.events)

	waitFor(t, "server cancel", func() bool { return f.control.cancelCount() == 1 })
	if f.deliver.count() != 0 {
		t.Errorf("stale completed event triggered delivery after cancel")
	}

	j, _ = f.manager.Job()
	if j.Status != StatusCancelled && j.Status != StatusIdle {
		t.Errorf("status after stale event = %s", j.Status)
	}
}

func TestManager_CancelWithoutActiveJob(t *testing.T) {
	f := newFixture(t)

	if err := f.manager.Cancel(context.Background(), "no-such-job"); err != nil {
		t.Errorf("Cancel() with no active job error = %v, want nil", err)
	}
	if f.control.cancelCount() != 0 {
		t.Errorf("server cancel issued with no active job")
	}
}

func TestManager_ServerErrorEvent(t *testing.T) {
	f := newFixture(t)

	if _, err := f.manager.Submit(context.Background(), testURL, Options{}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitFor(t, "start frame", func() bool { return f.stream.startRequest() != nil })

	f.stream.events <- progress.Event{Status: progress.StatusError, Message: "Video unavailable"}
	close(f.stream.events)

	job := f.waitForStatus(t, StatusError)
	if job.StatusMessage != "Video unavailable" {
		t.Errorf("status message = %q", job.StatusMessage)
	}
}

func TestManager_ChannelClosedWithoutTerminalIsError(t *testing.T) {
	f := newFixture(t)
	f.stream.err = apperrors.ChannelClosed("progress channel closed abnormally")

	if _, err := f.manager.Submit(context.Background(), testURL, Options{}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitFor(t, "start frame", func() bool { return f.stream.startRequest() != nil })

	f.stream.events <- progress.Event{Status: progress.StatusDownloading, Percent: 20}
	close(f.stream.events)

	f.waitForStatus(t, StatusError)
}

func TestManager_ReconnectFromSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snapshot := Job{
		ID:        "job-resume",
		SourceURL: testURL,
		Status:    StatusDownloading,
		Percent:   40,
	}
	if err := f.store.Set(ctx, store.KeyActiveJob, snapshot); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	// The server's checkpoint arrives before the bounded wait expires.
	f.stream.events <- progress.Event{Status: progress.StatusReconnected, Percent: 35}

	jobID, err := f.manager.Reconnect(ctx)
	if err != nil {
		t.Fatalf("Reconnect() error = %v", err)
	}
	if jobID != "job-resume" {
		t.Errorf("Reconnect() job id = %q, want job-resume", jobID)
	}

	// No start frame is sent when resuming.
	waitFor(t, "checkpoint applied", func() bool {
		j, _ := f.manager.Job()
		return j.Percent == 35
	})
	if f.stream.startRequest() != nil {
		t.Errorf("Reconnect() sent a start frame")
	}

	// The first post-reconnect event may move the bar backwards; later ones
	// are monotonic again.
	f.stream.events <- progress.Event{Status: progress.StatusDownloading, Percent: 30}
	waitFor(t, "percent 30", func() bool {
		j, _ := f.manager.Job()
		return j.Percent == 30
	})
	f.stream.events <- progress.Event{Status: progress.StatusDownloading, Percent: 25}
	f.stream.events <- progress.Event{Status: progress.StatusDownloading, Percent: 45}
	waitFor(t, "percent 45", func() bool {
		j, _ := f.manager.Job()
		return j.Percent == 45
	})
}

func TestManager_ReconnectTimeoutMeansJobLost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snapshot := Job{ID: "job-lost", SourceURL: testURL, Status: StatusDownloading, Percent: 10}
	if err := f.store.Set(ctx, store.KeyActiveJob, snapshot); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	// No handshake event ever arrives.
	if _, err := f.manager.Reconnect(ctx); err != nil {
		t.Fatalf("Reconnect() error = %v", err)
	}

	f.waitForStatus(t, StatusError)

	// The stale record is gone, so the next session starts clean.
	var persisted Job
	if err := f.store.Get(ctx, store.KeyActiveJob, &persisted); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("active record after lost job: err = %v, want ErrNotFound", err)
	}
}

func TestManager_ReconnectNothingToResume(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Reconnect(context.Background())
	if !apperrors.HasCode(err, apperrors.CodeNoActiveJob) {
		t.Errorf("Reconnect() error = %v, want NO_ACTIVE_JOB", err)
	}
	if !ErrNoActiveJob(err) {
		t.Errorf("ErrNoActiveJob() = false for %v", err)
	}
}

func TestManager_ReconnectAdoptsServerDownload(t *testing.T) {
	f := newFixture(t)
	f.control.active = []api.ActiveDownload{
		{DownloadID: "job-remote", Progress: 62, Status: "downloading"},
	}
	f.stream.events <- progress.Event{Status: progress.StatusReconnected, Percent: 62}

	jobID, err := f.manager.Reconnect(context.Background())
	if err != nil {
		t.Fatalf("Reconnect() error = %v", err)
	}
	if jobID != "job-remote" {
		t.Errorf("Reconnect() adopted %q, want job-remote", jobID)
	}

	waitFor(t, "checkpoint applied", func() bool {
		j, _ := f.manager.Job()
		return j.Percent == 62
	})
}

func TestManager_ClearResetsToIdle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.manager.Submit(ctx, testURL, Options{}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitFor(t, "start frame", func() bool { return f.stream.startRequest() != nil })

	f.manager.Clear(ctx)

	if _, active := f.manager.Job(); active {
		t.Errorf("Job() still active after Clear")
	}
	var persisted Job
	if err := f.store.Get(ctx, store.KeyActiveJob, &persisted); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("active record after Clear: err = %v, want ErrNotFound", err)
	}
}

func TestManager_WaitStartedCoversStartFrame(t *testing.T) {
	f := newFixture(t)

	if _, err := f.manager.Submit(context.Background(), testURL, Options{}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := f.manager.WaitStarted(ctx); err != nil {
		t.Fatalf("WaitStarted() error = %v", err)
	}

	// By the time WaitStarted returns, the start frame must be on the wire;
	// a detached process exiting here leaves a running server-side job.
	if f.stream.startRequest() == nil {
		t.Error("WaitStarted() returned before the start frame was sent")
	}
}

func TestManager_WaitStartedSurfacesDialFailure(t *testing.T) {
	s, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	cfg := &config.Config{
		WSBaseURL:      "ws://test",
		RequestTimeout: 2 * time.Second,
		HandshakeWait:  300 * time.Millisecond,
		AutoClearDelay: 50 * time.Millisecond,
	}
	dial := func(ctx context.Context, wsBaseURL, jobID string) (EventStream, error) {
		return nil, errors.New("no route to host")
	}
	m := NewManager(cfg, s, &fakeControl{}, &fakeDeliverer{}, &fakeRecorder{}, dial)

	if _, err := m.Submit(context.Background(), testURL, Options{}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := m.WaitStarted(ctx); !apperrors.HasCode(err, apperrors.CodeConnectionError) {
		t.Errorf("WaitStarted() error = %v, want CONNECTION_ERROR", err)
	}
}

func TestManager_WaitStartedIdleIsNoOp(t *testing.T) {
	f := newFixture(t)

	if err := f.manager.WaitStarted(context.Background()); err != nil {
		t.Errorf("WaitStarted() with no job = %v, want nil", err)
	}
}

func TestManager_SubscribeObservesTransitions(t *testing.T) {
	f := newFixture(t)

	updates, unsubscribe := f.manager.Subscribe()
	defer unsubscribe()

	if _, err := f.manager.Submit(context.Background(), testURL, Options{}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitFor(t, "start frame", func() bool { return f.stream.startRequest() != nil })
	f.stream.events <- progress.Event{Status: progress.StatusDownloading, Percent: 10}

	seen := make(map[JobStatus]bool)
	timeout := time.After(3 * time.Second)
	for !seen[StatusDownloading] {
		select {
		case j := <-updates:
			seen[j.Status] = true
		case <-timeout:
			t.Fatalf("timed out, saw %v", seen)
		}
	}
	if !seen[StatusInitializing] {
		t.Errorf("subscription missed the initializing transition")
	}
}
