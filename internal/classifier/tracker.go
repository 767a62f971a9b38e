// Package classifier tracks asynchronous disease-classification jobs.
// The model backend is an external collaborator: jobs are submitted
// fire-and-forget and observed by non-blocking polls.
package classifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agriclip/chat-service/internal/metrics"
	"github.com/agriclip/chat-service/internal/models"
)

var ErrUnknownJob = errors.New("unknown classification job")

// ClassifyRequest mirrors the model backend's submit contract.
type ClassifyRequest struct {
	UploadID       string `json:"uploadId"`
	CropType       string `json:"cropType,omitempty"`
	Location       string `json:"location,omitempty"`
	AdditionalInfo string `json:"additionalInfo,omitempty"`
}

// Backend performs the actual classification. Implementations must be
// safe for concurrent use.
type Backend interface {
	Classify(ctx context.Context, req ClassifyRequest) (*models.ClassificationResult, error)
}

// Correlation ties a job back to the chat message that triggered it.
type Correlation struct {
	MessageID string
	SessionID string
	UserID    string
}

// Snapshot is the last known state of a job. Never blocks the caller.
type Snapshot struct {
	UploadID    string                       `json:"uploadId"`
	Status      models.JobStatus             `json:"status"`
	Result      *models.ClassificationResult `json:"classification,omitempty"`
	Error       string                       `json:"error,omitempty"`
	Correlation Correlation                  `json:"-"`
}

type job struct {
	uploadID     string
	status       models.JobStatus
	result       *models.ClassificationResult
	errMsg       string
	corr         Correlation
	materialized bool
	createdAt    time.Time
	updatedAt    time.Time
}

// Tracker owns job state keyed by upload id. Submit is idempotent per
// upload: a second submit while a job exists returns the existing
// snapshot and starts nothing.
type Tracker struct {
	mu        sync.Mutex
	jobs      map[string]*job
	backend   Backend
	log       *zap.SugaredLogger
	retention time.Duration

	// evict is swapped in tests to avoid real timers.
	evict func(d time.Duration, fn func()) *time.Timer
}

func NewTracker(backend Backend, retention time.Duration, log *zap.SugaredLogger) *Tracker {
	if retention <= 0 {
		retention = time.Hour
	}
	return &Tracker{
		jobs:      make(map[string]*job),
		backend:   backend,
		log:       log,
		retention: retention,
		evict:     time.AfterFunc,
	}
}

// Submit creates a queued job for the upload unless one already exists,
// then triggers the backend asynchronously. The returned snapshot is the
// job's current state in both cases.
func (t *Tracker) Submit(req ClassifyRequest, corr Correlation) Snapshot {
	t.mu.Lock()
	if j, ok := t.jobs[req.UploadID]; ok {
		snap := snapshotOf(j)
		t.mu.Unlock()
		return snap
	}
	now := time.Now().UTC()
	j := &job{
		uploadID:  req.UploadID,
		status:    models.JobQueued,
		corr:      corr,
		createdAt: now,
		updatedAt: now,
	}
	t.jobs[req.UploadID] = j
	snap := snapshotOf(j)
	t.mu.Unlock()

	metrics.ClassificationJobs.WithLabelValues(string(models.JobQueued)).Inc()
	go t.run(req)
	return snap
}

// Poll returns the last known state without blocking. The second return
// is false when no job exists for the upload.
func (t *Tracker) Poll(uploadID string) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[uploadID]
	if !ok {
		return Snapshot{}, false
	}
	return snapshotOf(j), true
}

// MarkMaterialized is the exactly-once gate for result messages: the
// first caller on a terminal job gets true, everyone after gets false.
func (t *Tracker) MarkMaterialized(uploadID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[uploadID]
	if !ok || !j.status.Terminal() || j.materialized {
		return false
	}
	j.materialized = true
	return true
}

// Unmark releases the materialization gate so a failed append can be
// retried by a later poll.
func (t *Tracker) Unmark(uploadID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if j, ok := t.jobs[uploadID]; ok {
		j.materialized = false
	}
}

func (t *Tracker) run(req ClassifyRequest) {
	t.transition(req.UploadID, models.JobProcessing, nil, "")

	// The backend call carries no deadline of its own: a job that never
	// returns is bounded only by the client's polling budget.
	res, err := t.backend.Classify(context.Background(), req)
	if err != nil {
		t.log.Warnw("classification failed", "uploadId", req.UploadID, "error", err)
		t.transition(req.UploadID, models.JobFailed, nil, err.Error())
		return
	}
	t.transition(req.UploadID, models.JobCompleted, res, "")
}

func (t *Tracker) transition(uploadID string, to models.JobStatus, res *models.ClassificationResult, errMsg string) {
	t.mu.Lock()
	j, ok := t.jobs[uploadID]
	if !ok || j.status.Terminal() {
		// Terminal states are final.
		t.mu.Unlock()
		return
	}
	j.status = to
	j.result = res
	j.errMsg = errMsg
	j.updatedAt = time.Now().UTC()
	t.mu.Unlock()

	metrics.ClassificationJobs.WithLabelValues(string(to)).Inc()
	if to.Terminal() {
		t.evict(t.retention, func() { t.remove(uploadID) })
	}
}

func (t *Tracker) remove(uploadID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.jobs, uploadID)
}

func snapshotOf(j *job) Snapshot {
	return Snapshot{
		UploadID:    j.uploadID,
		Status:      j.status,
		Result:      j.result,
		Error:       j.errMsg,
		Correlation: j.corr,
	}
}
