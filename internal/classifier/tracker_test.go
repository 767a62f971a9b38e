package classifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agriclip/chat-service/internal/models"
)

type errBackend struct{ err error }

func (b errBackend) Classify(ctx context.Context, req ClassifyRequest) (*models.ClassificationResult, error) {
	return nil, b.err
}

// blockingBackend holds jobs in processing until release is closed.
type blockingBackend struct{ release chan struct{} }

func (b *blockingBackend) Classify(ctx context.Context, req ClassifyRequest) (*models.ClassificationResult, error) {
	<-b.release
	return &models.ClassificationResult{DiseaseName: "Rust Disease", Confidence: 78}, nil
}

func newTestTracker(backend Backend) *Tracker {
	t := NewTracker(backend, time.Hour, zap.NewNop().Sugar())
	// No real timers in tests.
	t.evict = func(d time.Duration, fn func()) *time.Timer { return nil }
	return t
}

func TestSubmitIsIdempotentPerUpload(t *testing.T) {
	b := &blockingBackend{release: make(chan struct{})}
	tr := newTestTracker(b)

	first := tr.Submit(ClassifyRequest{UploadID: "up1"}, Correlation{MessageID: "m1", SessionID: "s1", UserID: "u1"})
	second := tr.Submit(ClassifyRequest{UploadID: "up1"}, Correlation{MessageID: "m2"})

	assert.Equal(t, "up1", first.UploadID)
	assert.Equal(t, "m1", second.Correlation.MessageID)
	close(b.release)
}

func TestJobReachesCompleted(t *testing.T) {
	tr := newTestTracker(NewFakeBackend(nil, 0))
	tr.Submit(ClassifyRequest{UploadID: "up1"}, Correlation{})

	require.Eventually(t, func() bool {
		snap, ok := tr.Poll("up1")
		return ok && snap.Status == models.JobCompleted
	}, time.Second, 5*time.Millisecond)

	snap, _ := tr.Poll("up1")
	require.NotNil(t, snap.Result)
	assert.NotEmpty(t, snap.Result.DiseaseName)
	assert.Empty(t, snap.Error)
}

func TestJobReachesFailed(t *testing.T) {
	tr := newTestTracker(errBackend{err: errors.New("model offline")})
	tr.Submit(ClassifyRequest{UploadID: "up1"}, Correlation{})

	require.Eventually(t, func() bool {
		snap, ok := tr.Poll("up1")
		return ok && snap.Status == models.JobFailed
	}, time.Second, 5*time.Millisecond)

	snap, _ := tr.Poll("up1")
	assert.Equal(t, "model offline", snap.Error)
	assert.Nil(t, snap.Result)
}

func TestPollUnknownUpload(t *testing.T) {
	tr := newTestTracker(NewFakeBackend(nil, 0))
	_, ok := tr.Poll("nope")
	assert.False(t, ok)
}

func TestTerminalStateIsFinal(t *testing.T) {
	tr := newTestTracker(NewFakeBackend(nil, 0))
	tr.Submit(ClassifyRequest{UploadID: "up1"}, Correlation{})
	require.Eventually(t, func() bool {
		snap, ok := tr.Poll("up1")
		return ok && snap.Status.Terminal()
	}, time.Second, 5*time.Millisecond)

	tr.transition("up1", models.JobProcessing, nil, "")
	snap, _ := tr.Poll("up1")
	assert.Equal(t, models.JobCompleted, snap.Status)
}

func TestMarkMaterializedExactlyOnce(t *testing.T) {
	tr := newTestTracker(NewFakeBackend(nil, 0))
	tr.Submit(ClassifyRequest{UploadID: "up1"}, Correlation{})
	require.Eventually(t, func() bool {
		snap, ok := tr.Poll("up1")
		return ok && snap.Status.Terminal()
	}, time.Second, 5*time.Millisecond)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.MarkMaterialized("up1") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	// Unmark reopens the gate for exactly one more winner.
	tr.Unmark("up1")
	assert.True(t, tr.MarkMaterialized("up1"))
	assert.False(t, tr.MarkMaterialized("up1"))
}

func TestMarkMaterializedRequiresTerminalJob(t *testing.T) {
	b := &blockingBackend{release: make(chan struct{})}
	tr := newTestTracker(b)
	tr.Submit(ClassifyRequest{UploadID: "up1"}, Correlation{})

	assert.False(t, tr.MarkMaterialized("up1"))
	assert.False(t, tr.MarkMaterialized("missing"))
	close(b.release)
}

func TestTerminalJobsAreEvictedAfterRetention(t *testing.T) {
	tr := NewTracker(NewFakeBackend(nil, 0), time.Hour, zap.NewNop().Sugar())
	evicted := make(chan func(), 1)
	tr.evict = func(d time.Duration, fn func()) *time.Timer {
		evicted <- fn
		return nil
	}

	tr.Submit(ClassifyRequest{UploadID: "up1"}, Correlation{})
	select {
	case fn := <-evicted:
		fn()
	case <-time.After(time.Second):
		t.Fatal("eviction was never scheduled")
	}

	_, ok := tr.Poll("up1")
	assert.False(t, ok)
}

func TestFakeBackendIsDeterministic(t *testing.T) {
	f := NewFakeBackend(nil, 0)
	a, err := f.Classify(context.Background(), ClassifyRequest{UploadID: "up1"})
	require.NoError(t, err)
	b, err := f.Classify(context.Background(), ClassifyRequest{UploadID: "up1"})
	require.NoError(t, err)
	assert.Equal(t, a.DiseaseName, b.DiseaseName)
	assert.Equal(t, a.Confidence, b.Confidence)
}
