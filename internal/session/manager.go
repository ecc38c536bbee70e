// Package session owns the lifecycle of the single active download job:
// submission, progress events, cancellation, reconnection, delivery and
// history materialization. All state transitions for a job run through one
// mutex-guarded transition function, preserving the serialization the
// protocol assumes.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vidgrab/vidgrab/internal/api"
	"github.com/vidgrab/vidgrab/internal/config"
	"github.com/vidgrab/vidgrab/internal/delivery"
	apperrors "github.com/vidgrab/vidgrab/internal/errors"
	"github.com/vidgrab/vidgrab/internal/logger"
	"github.com/vidgrab/vidgrab/internal/metrics"
	"github.com/vidgrab/vidgrab/internal/platforms"
	"github.com/vidgrab/vidgrab/internal/progress"
	"github.com/vidgrab/vidgrab/internal/store"
)

// processingPercent pins the progress bar while the server post-processes;
// it stops reporting byte-level progress at that point.
const processingPercent = 95.0

// EventStream is one job's progress stream, as the manager consumes it.
// *progress.Channel satisfies it; tests substitute a scripted stream.
type EventStream interface {
	Start(req progress.StartRequest) error
	Events() <-chan progress.Event
	Err() error
	Close() error
}

// DialFunc opens the progress stream for a job.
type DialFunc func(ctx context.Context, wsBaseURL, jobID string) (EventStream, error)

// ControlAPI is the backend's out-of-band control surface.
type ControlAPI interface {
	Cancel(ctx context.Context, jobID string) (string, error)
	GetActiveDownloads(ctx context.Context) ([]api.ActiveDownload, error)
}

// Deliverer retrieves a completed job's artifact and stores it.
type Deliverer interface {
	Deliver(ctx context.Context, desc delivery.Descriptor) (*delivery.Result, error)
}

// Recorder appends finished jobs to the history ledger.
type Recorder interface {
	Record(ctx context.Context, entry api.HistoryEntry) error
}

// Manager owns the single active job.
type Manager struct {
	cfg      *config.Config
	store    store.Store
	control  ControlAPI
	registry *platforms.Registry
	deliver  Deliverer
	ledger   Recorder
	dial     DialFunc
	log      *logger.Logger
	met      *metrics.Metrics

	mu              sync.Mutex
	job             *Job
	channel         EventStream
	generation      uint64
	justReconnected bool
	started         chan error

	subMu   sync.Mutex
	subs    map[int]chan Job
	nextSub int
}

// NewManager wires a session manager. A nil dial uses the real WebSocket
// channel.
func NewManager(cfg *config.Config, s store.Store, control ControlAPI, deliverer Deliverer, ledger Recorder, dial DialFunc) *Manager {
	if dial == nil {
		dial = func(ctx context.Context, wsBaseURL, jobID string) (EventStream, error) {
			return progress.Dial(ctx, wsBaseURL, jobID)
		}
	}
	return &Manager{
		cfg:      cfg,
		store:    s,
		control:  control,
		registry: platforms.DefaultRegistry(),
		deliver:  deliverer,
		ledger:   ledger,
		dial:     dial,
		log:      logger.Default().WithComponent("session"),
		met:      metrics.Default(),
		subs:     make(map[int]chan Job),
	}
}

// Job returns a snapshot of the current job, or false when idle.
func (m *Manager) Job() (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.job == nil {
		return Job{Status: StatusIdle}, false
	}
	return *m.job, true
}

// Subscribe returns a channel of job snapshots emitted after every
// transition, plus a cancel function. Slow subscribers drop updates rather
// than block the state machine.
func (m *Manager) Subscribe() (<-chan Job, func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan Job, 32)
	m.subs[id] = ch

	return ch, func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if sub, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub)
		}
	}
}

func (m *Manager) notify(snapshot Job) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- snapshot:
		default:
		}
	}
}

// Submit validates the URL, creates a job, opens its progress channel and
// sends the start frame. It returns as soon as the job is persisted; all
// further updates arrive asynchronously.
func (m *Manager) Submit(ctx context.Context, rawURL string, opts Options) (string, error) {
	if rawURL == "" {
		return "", apperrors.EmptyURL()
	}

	result := m.registry.Validate(rawURL)
	if !result.Valid {
		if result.Platform == platforms.PlatformUnknown {
			host := platforms.Host(rawURL)
			if host == "" {
				host = rawURL
			}
			return "", apperrors.UnsupportedHost(host)
		}
		return "", apperrors.ValidationError(result.Error)
	}

	prefs := LoadPreferences(ctx, m.store)
	opts = prefs.seed(opts)

	m.mu.Lock()
	if m.job != nil && m.job.Status.IsActive() {
		active := m.job.ID
		m.mu.Unlock()
		return "", apperrors.JobConflict(active)
	}

	m.generation++
	gen := m.generation
	now := time.Now()
	job := &Job{
		ID:            uuid.New().String(),
		SourceURL:     rawURL,
		Platform:      string(result.Platform),
		Options:       opts,
		Status:        StatusInitializing,
		StatusMessage: "Starting download...",
		Generation:    gen,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.job = job
	m.justReconnected = false
	started := make(chan error, 1)
	m.started = started
	m.persistLocked(ctx)
	snapshot := *job
	m.mu.Unlock()

	m.met.IncrCounter(metrics.CounterJobsSubmitted)
	m.notify(snapshot)
	m.log.Info(ctx, "job submitted", map[string]interface{}{
		"job_id":   job.ID,
		"platform": job.Platform,
		"type":     opts.MediaType,
		"quality":  opts.Quality,
	})

	start := &progress.StartRequest{
		URL:     rawURL,
		Type:    opts.MediaType,
		Quality: opts.Quality,
		Format:  opts.Format,
	}
	go m.openChannel(job.ID, gen, start, false, started)

	return job.ID, nil
}

// WaitStarted blocks until the most recently opened progress channel has
// dialed and sent its start frame, returning the failure if that phase did
// not complete. Detached submissions call this before the process exits so
// the job is guaranteed to be running server-side.
func (m *Manager) WaitStarted(ctx context.Context) error {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if started == nil {
		return nil
	}

	select {
	case err := <-started:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel transitions the job to cancelled immediately, regardless of
// network outcome, then asks the server to stop. With no active job (or a
// mismatched id) it is a no-op that still clears local state.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	m.mu.Lock()

	if m.job == nil || (jobID != "" && m.job.ID != jobID) || !m.job.Status.IsActive() {
		m.resetLocked(ctx)
		m.mu.Unlock()
		return nil
	}

	id := m.job.ID
	m.terminalLocked(ctx, StatusCancelled, "Download cancelled by user")
	snapshot := *m.job
	m.mu.Unlock()

	m.met.IncrCounter(metrics.CounterJobsCancelled)
	m.notify(snapshot)

	// Best-effort server-side cancel; the local state is already final and
	// any late confirmation will carry a stale generation.
	go func() {
		cancelCtx, cancel := context.WithTimeout(context.Background(), m.cfg.RequestTimeout)
		defer cancel()
		if _, err := m.control.Cancel(cancelCtx, id); err != nil {
			m.log.Warn(cancelCtx, "server-side cancel failed", map[string]interface{}{
				"job_id": id,
				"error":  err.Error(),
			})
		}
	}()

	m.scheduleAutoClear(id)
	return nil
}

// Reconnect resumes observing a persisted active job, or rediscovers one
// the server still tracks. Exactly one reconnect attempt is made; a job the
// server no longer knows is treated as lost.
func (m *Manager) Reconnect(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.job != nil && m.job.Status.IsActive() {
		id := m.job.ID
		m.mu.Unlock()
		return id, apperrors.JobConflict(id)
	}

	var snapshot Job
	err := m.store.Get(ctx, store.KeyActiveJob, &snapshot)
	switch {
	case err == nil && snapshot.Status.IsActive() && snapshot.ID != "":
		// Persisted snapshot wins over server-side rediscovery.
	case err == nil:
		// Stale record for a finished job: discard it.
		m.store.Delete(ctx, store.KeyActiveJob)
		fallthrough
	default:
		m.mu.Unlock()
		adopted, aerr := m.adoptActiveDownload(ctx)
		if aerr != nil {
			return "", aerr
		}
		m.mu.Lock()
		if m.job != nil && m.job.Status.IsActive() {
			id := m.job.ID
			m.mu.Unlock()
			return id, apperrors.JobConflict(id)
		}
		snapshot = adopted
	}

	m.generation++
	snapshot.Generation = m.generation
	snapshot.UpdatedAt = time.Now()
	job := snapshot
	m.job = &job
	m.justReconnected = false
	started := make(chan error, 1)
	m.started = started
	m.persistLocked(ctx)
	gen := m.generation
	notifySnapshot := *m.job
	m.mu.Unlock()

	m.met.IncrCounter(metrics.CounterReconnects)
	m.notify(notifySnapshot)
	m.log.Info(ctx, "reconnecting to job", map[string]interface{}{
		"job_id": job.ID,
	})

	go m.openChannel(job.ID, gen, nil, true, started)
	return job.ID, nil
}

// adoptActiveDownload asks the server for jobs started from other sessions
// and adopts the first one.
func (m *Manager) adoptActiveDownload(ctx context.Context) (Job, error) {
	downloads, err := m.control.GetActiveDownloads(ctx)
	if err != nil {
		return Job{}, apperrors.NoActiveJob().WithCause(err)
	}
	if len(downloads) == 0 {
		return Job{}, apperrors.NoActiveJob()
	}

	dl := downloads[0]
	status := StatusDownloading
	switch progress.Status(dl.Status) {
	case progress.StatusInitializing:
		status = StatusInitializing
	case progress.StatusProcessing:
		status = StatusProcessing
	}

	now := time.Now()
	return Job{
		ID:        dl.DownloadID,
		Status:    status,
		Percent:   dl.Progress,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Clear forcibly resets to idle, closing any open channel. It never fails.
func (m *Manager) Clear(ctx context.Context) {
	m.mu.Lock()
	m.resetLocked(ctx)
	m.mu.Unlock()
	m.notify(Job{Status: StatusIdle})
}

// openChannel dials the stream, optionally sends the start frame, and pumps
// events. reconnecting bounds the wait for the handshake event. The started
// channel receives the outcome of the dial-and-start phase exactly once.
func (m *Manager) openChannel(jobID string, gen uint64, start *progress.StartRequest, reconnecting bool, started chan<- error) {
	signalStarted := func(err error) {
		select {
		case started <- err:
		default:
		}
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), m.cfg.RequestTimeout)
	ch, err := m.dial(dialCtx, m.cfg.WSBaseURL, jobID)
	cancel()
	if err != nil {
		wrapped := apperrors.ConnectionError("failed to open progress channel").WithCause(err)
		signalStarted(wrapped)
		m.failJob(gen, wrapped)
		return
	}

	m.mu.Lock()
	if m.job == nil || m.job.Generation != gen || !m.job.Status.IsActive() {
		// The job was cancelled or cleared while dialing.
		m.mu.Unlock()
		ch.Close()
		signalStarted(nil)
		return
	}
	m.channel = ch
	m.mu.Unlock()

	if start != nil {
		if err := ch.Start(*start); err != nil {
			ch.Close()
			signalStarted(err)
			m.failJob(gen, err)
			return
		}
	}
	signalStarted(nil)

	if reconnecting {
		select {
		case ev, ok := <-ch.Events():
			if !ok {
				ch.Close()
				m.failJob(gen, apperrors.JobLost(jobID))
				return
			}
			m.apply(gen, ev)
		case <-time.After(m.cfg.HandshakeWait):
			ch.Close()
			m.failJob(gen, apperrors.JobLost(jobID))
			return
		}
	}

	for ev := range ch.Events() {
		m.apply(gen, ev)
	}

	// Stream ended. If the job is still active this generation, no terminal
	// event arrived, so the closure is abnormal by definition.
	if err := ch.Err(); err != nil {
		m.failJob(gen, err)
	} else {
		m.failJob(gen, apperrors.ChannelClosed("progress channel closed before a terminal event"))
	}
}

// apply is the single state-transition function. Every invocation
// re-persists the full job snapshot.
func (m *Manager) apply(gen uint64, ev progress.Event) {
	m.mu.Lock()

	if m.job == nil || m.job.Generation != gen || m.job.Status.IsTerminal() {
		m.mu.Unlock()
		m.met.IncrCounter(metrics.CounterEventsDropped)
		return
	}

	ctx := context.Background()
	job := m.job
	job.UpdatedAt = time.Now()

	var deliverDesc *delivery.Descriptor

	switch ev.Status {
	case progress.StatusInitializing:
		job.Status = StatusInitializing
		if ev.Message != "" {
			job.StatusMessage = ev.Message
		}

	case progress.StatusDownloading:
		job.Status = StatusDownloading
		if m.justReconnected {
			// The first post-reconnect event carries the server's
			// authoritative checkpoint and may move backwards.
			job.Percent = ev.Percent
			m.justReconnected = false
		} else if ev.Percent > job.Percent {
			job.Percent = ev.Percent
		}
		job.StatusMessage = ev.DisplayStatus()

	case progress.StatusProcessing:
		job.Status = StatusProcessing
		job.Percent = processingPercent
		if ev.Message != "" {
			job.StatusMessage = ev.Message
		} else {
			job.StatusMessage = "Processing file..."
		}

	case progress.StatusReconnected:
		job.Percent = ev.Percent
		if ev.Message != "" {
			job.StatusMessage = ev.Message
		}
		m.justReconnected = true

	case progress.StatusCompleted:
		if ev.Filename == "" && ev.FileURL == "" {
			// Completed without delivery metadata cannot be materialized.
			m.terminalLocked(ctx, StatusError, "completed event carried no delivery descriptor")
			break
		}
		if ev.Title != "" {
			job.Title = ev.Title
		}
		m.terminalLocked(ctx, StatusCompleted, "Download completed successfully")
		job.Percent = 100
		deliverDesc = &delivery.Descriptor{Filename: ev.Filename, Locator: ev.FileURL}

	case progress.StatusCancelled:
		m.terminalLocked(ctx, StatusCancelled, firstNonEmpty(ev.Message, "Download cancelled"))
		m.met.IncrCounter(metrics.CounterJobsCancelled)

	case progress.StatusError:
		m.terminalLocked(ctx, StatusError, firstNonEmpty(ev.Message, "download failed"))
		m.met.IncrCounter(metrics.CounterJobsFailed)
	}

	if job.Status.IsActive() {
		m.persistLocked(ctx)
	}
	snapshot := *job
	m.mu.Unlock()

	m.met.IncrCounter(metrics.CounterEventsApplied)
	m.notify(snapshot)

	if deliverDesc != nil {
		go m.deliverAndRecord(snapshot, *deliverDesc)
	} else if snapshot.Status.IsTerminal() && snapshot.Status != StatusCompleted {
		m.scheduleAutoClear(snapshot.ID)
	}
}

// deliverAndRecord runs the file-delivery step for a completed job and
// materializes exactly one history entry on success.
func (m *Manager) deliverAndRecord(job Job, desc delivery.Descriptor) {
	ctx := context.Background()

	result, err := m.deliver.Deliver(ctx, desc)
	if err != nil {
		m.met.IncrCounter(metrics.CounterDeliveryErrors)
		m.log.Error(ctx, "delivery failed", err, map[string]interface{}{
			"job_id": job.ID,
		})

		m.mu.Lock()
		if m.job != nil && m.job.ID == job.ID {
			m.job.Status = StatusError
			m.job.StatusMessage = fmt.Sprintf("delivery failed: %v", err)
			m.job.UpdatedAt = time.Now()
			snapshot := *m.job
			m.mu.Unlock()
			m.notify(snapshot)
		} else {
			m.mu.Unlock()
		}
		m.scheduleAutoClear(job.ID)
		return
	}

	m.met.IncrCounter(metrics.CounterDeliveries)
	m.met.IncrCounter(metrics.CounterJobsCompleted)

	title := job.Title
	if title == "" {
		title = result.Filename
	}
	entry := api.HistoryEntry{
		ID:        job.ID,
		Title:     title,
		URL:       job.SourceURL,
		Quality:   job.Options.Quality,
		Format:    job.Options.Format,
		Type:      job.Options.MediaType,
		Timestamp: time.Now().UnixMilli(),
		Thumbnail: job.Thumbnail,
	}
	if err := m.ledger.Record(ctx, entry); err != nil {
		m.log.Warn(ctx, "failed to record history entry", map[string]interface{}{
			"job_id": job.ID,
			"error":  err.Error(),
		})
	}

	m.log.Info(ctx, "artifact delivered", map[string]interface{}{
		"job_id":   job.ID,
		"filename": result.Filename,
		"location": result.Location,
		"size":     result.Size,
	})

	m.scheduleAutoClear(job.ID)
}

// failJob drives the job to error for channel-level failures. Stale
// generations and already-terminal jobs are silent no-ops.
func (m *Manager) failJob(gen uint64, cause error) {
	m.mu.Lock()
	if m.job == nil || m.job.Generation != gen || m.job.Status.IsTerminal() {
		m.mu.Unlock()
		return
	}

	ctx := context.Background()
	m.terminalLocked(ctx, StatusError, cause.Error())
	snapshot := *m.job
	m.mu.Unlock()

	m.met.IncrCounter(metrics.CounterJobsFailed)
	m.log.Error(ctx, "job failed", cause, map[string]interface{}{
		"job_id": snapshot.ID,
	})
	m.notify(snapshot)
	m.scheduleAutoClear(snapshot.ID)
}

// terminalLocked performs a terminal transition: close the channel, stop
// fencing events in, and drop the persisted active record. Callers hold the
// mutex.
func (m *Manager) terminalLocked(ctx context.Context, status JobStatus, message string) {
	m.job.Status = status
	m.job.StatusMessage = message
	m.job.UpdatedAt = time.Now()
	m.justReconnected = false

	if m.channel != nil {
		m.channel.Close()
		m.channel = nil
	}

	// Terminal jobs are cleared from durable storage; they stay visible in
	// memory until the auto-clear delay elapses.
	if err := m.store.Delete(ctx, store.KeyActiveJob); err != nil {
		m.log.Warn(ctx, "failed to clear active job record", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// resetLocked drops all local job state. Callers hold the mutex.
func (m *Manager) resetLocked(ctx context.Context) {
	if m.channel != nil {
		m.channel.Close()
		m.channel = nil
	}
	m.job = nil
	m.justReconnected = false
	if err := m.store.Delete(ctx, store.KeyActiveJob); err != nil {
		m.log.Warn(ctx, "failed to clear active job record", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// scheduleAutoClear resets a terminal job to idle after the configured
// delay, so the completion state stays briefly visible.
func (m *Manager) scheduleAutoClear(jobID string) {
	time.AfterFunc(m.cfg.AutoClearDelay, func() {
		m.mu.Lock()
		if m.job == nil || m.job.ID != jobID || !m.job.Status.IsTerminal() {
			m.mu.Unlock()
			return
		}
		m.job = nil
		m.mu.Unlock()
		m.notify(Job{Status: StatusIdle})
	})
}

// persistLocked writes the full job snapshot. Persistence failures are
// logged but never block a transition; the UI must stay live.
func (m *Manager) persistLocked(ctx context.Context) {
	if m.job == nil {
		return
	}
	if err := m.store.Set(ctx, store.KeyActiveJob, m.job); err != nil {
		m.log.Warn(ctx, "failed to persist job snapshot", map[string]interface{}{
			"job_id": m.job.ID,
			"error":  err.Error(),
		})
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ErrNoActiveJob reports whether an error means there was nothing to resume.
func ErrNoActiveJob(err error) bool {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Code == apperrors.CodeNoActiveJob
	}
	return false
}
