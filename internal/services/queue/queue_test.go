package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/phambaophuc/phantom-splice/internal/metrics"
	"github.com/phambaophuc/phantom-splice/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type fakeRemover struct {
	err error
}

func (f *fakeRemover) RemoveBackground(_ context.Context, data []byte, _ string) (*models.Cutout, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Cutout{PNG: append([]byte("png:"), data...), Width: 3, Height: 2}, nil
}

type fakeBlobs struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}}
}

func (f *fakeBlobs) Upload(_ context.Context, key string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.objects[key] = data
	return "https://cdn.example/" + key, nil
}

func (f *fakeBlobs) Download(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

type fakeJobs struct {
	mu      sync.Mutex
	jobs    map[string]models.ProcessingJob
	history []string
	saveErr error
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: map[string]models.ProcessingJob{}}
}

func (f *fakeJobs) SaveJob(_ context.Context, job *models.ProcessingJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.jobs[job.ID] = *job
	f.history = append(f.history, job.Status)
	return nil
}

func (f *fakeJobs) GetJob(_ context.Context, id string) (*models.ProcessingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, errors.New("job not found")
	}
	return &job, nil
}

func (f *fakeJobs) ListJobs(_ context.Context) ([]*models.ProcessingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.ProcessingJob, 0, len(f.jobs))
	for _, job := range f.jobs {
		job := job
		out = append(out, &job)
	}
	return out, nil
}

type fakeAck struct {
	acked, nacked bool
	requeue       bool
}

func (a *fakeAck) Ack(uint64, bool) error {
	a.acked = true
	return nil
}

func (a *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked = true
	a.requeue = requeue
	return nil
}

func (a *fakeAck) Reject(uint64, bool) error { return nil }

func newTestQueue(remover CutoutRemover, blobs BlobStore, jobs JobStore, m *metrics.Metrics) *QueueService {
	return &QueueService{
		logger:    zap.NewNop(),
		queueName: DefaultQueueName,
		processor: remover,
		blobs:     blobs,
		jobs:      jobs,
		metrics:   m,
		now:       func() time.Time { return fixedNow },
	}
}

func delivery(t *testing.T, ack amqp.Acknowledger, job *models.ProcessingJob) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(job)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body}
}

func TestProcessMessage_Completes(t *testing.T) {
	blobs := newFakeBlobs()
	blobs.objects["uploads/cat.png"] = []byte("raw")
	jobs := newFakeJobs()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	q := newTestQueue(&fakeRemover{}, blobs, jobs, m)
	ack := &fakeAck{}

	q.processMessage(context.Background(), delivery(t, ack, &models.ProcessingJob{
		ID:        "job1",
		Filename:  "cat.png",
		SourceKey: "uploads/cat.png",
		Status:    models.StatusPending,
	}), 1)

	assert.True(t, ack.acked)
	assert.Equal(t, []string{models.StatusProcessing, models.StatusCompleted}, jobs.history)

	job, err := jobs.GetJob(context.Background(), "job1")
	require.NoError(t, err)
	require.NotNil(t, job.Result)
	assert.Equal(t, "https://cdn.example/processed/job1.png", job.Result.URL)
	assert.Equal(t, 3, job.Result.Width)
	assert.Equal(t, 2, job.Result.Height)
	assert.Equal(t, int64(len("png:raw")), job.Result.FileSize)
	assert.Equal(t, fixedNow, job.UpdatedAt)
	assert.Empty(t, job.Error)
	assert.Equal(t, []byte("png:raw"), blobs.objects["processed/job1.png"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Jobs.WithLabelValues(models.StatusCompleted)))
}

func TestProcessMessage_Failures(t *testing.T) {
	tests := []struct {
		name      string
		remover   *fakeRemover
		source    []byte
		uploadErr error
		wantErr   string
	}{
		{
			name:    "missing original",
			remover: &fakeRemover{},
			wantErr: "failed to download image: object not found",
		},
		{
			name:    "segmentation error",
			remover: &fakeRemover{err: errors.New("failed to decode image: image: unknown format")},
			source:  []byte("raw"),
			wantErr: "failed to decode image: image: unknown format",
		},
		{
			name:      "upload error",
			remover:   &fakeRemover{},
			source:    []byte("raw"),
			uploadErr: errors.New("bucket full"),
			wantErr:   "failed to save processed image: bucket full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blobs := newFakeBlobs()
			if tt.source != nil {
				blobs.objects["uploads/x.png"] = tt.source
			}
			blobs.uploadErr = tt.uploadErr
			jobs := newFakeJobs()
			q := newTestQueue(tt.remover, blobs, jobs, nil)
			ack := &fakeAck{}

			q.processMessage(context.Background(), delivery(t, ack, &models.ProcessingJob{
				ID:        "job2",
				SourceKey: "uploads/x.png",
			}), 1)

			assert.True(t, ack.acked)
			job, err := jobs.GetJob(context.Background(), "job2")
			require.NoError(t, err)
			assert.Equal(t, models.StatusFailed, job.Status)
			assert.Equal(t, tt.wantErr, job.Error)
			assert.Nil(t, job.Result)
		})
	}
}

func TestProcessMessage_MalformedIsDropped(t *testing.T) {
	jobs := newFakeJobs()
	q := newTestQueue(&fakeRemover{}, newFakeBlobs(), jobs, nil)

	for _, body := range [][]byte{[]byte("{not json"), []byte(`{"status":"pending"}`)} {
		ack := &fakeAck{}
		q.processMessage(context.Background(), amqp.Delivery{Acknowledger: ack, Body: body}, 1)

		assert.True(t, ack.nacked)
		assert.False(t, ack.requeue)
		assert.False(t, ack.acked)
	}
	assert.Empty(t, jobs.history)
}

func TestProcessMessage_StoreFailureStillAcks(t *testing.T) {
	blobs := newFakeBlobs()
	blobs.objects["k"] = []byte("raw")
	jobs := newFakeJobs()
	jobs.saveErr = errors.New("redis down")
	q := newTestQueue(&fakeRemover{}, blobs, jobs, nil)
	ack := &fakeAck{}

	q.processMessage(context.Background(), delivery(t, ack, &models.ProcessingJob{ID: "j", SourceKey: "k"}), 1)

	assert.True(t, ack.acked)
}

func TestSweeper_Sweep(t *testing.T) {
	jobs := newFakeJobs()
	ctx := context.Background()
	old := fixedNow.Add(-time.Hour)
	fresh := fixedNow.Add(-time.Minute)

	for _, job := range []*models.ProcessingJob{
		{ID: "stale-pending", Status: models.StatusPending, CreatedAt: old},
		{ID: "stale-processing", Status: models.StatusProcessing, CreatedAt: old, UpdatedAt: old},
		{ID: "fresh", Status: models.StatusProcessing, CreatedAt: old, UpdatedAt: fresh},
		{ID: "done", Status: models.StatusCompleted, CreatedAt: old, UpdatedAt: old},
	} {
		require.NoError(t, jobs.SaveJob(ctx, job))
	}

	m := metrics.NewMetrics(prometheus.NewRegistry())
	s := NewSweeper(jobs, "@every 1m", 10*time.Minute, m, zap.NewNop())
	s.now = func() time.Time { return fixedNow }

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for id, want := range map[string]string{
		"stale-pending":    models.StatusFailed,
		"stale-processing": models.StatusFailed,
		"fresh":            models.StatusProcessing,
		"done":             models.StatusCompleted,
	} {
		job, err := jobs.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, job.Status, id)
	}

	job, _ := jobs.GetJob(ctx, "stale-processing")
	assert.Equal(t, "job timed out after 10m0s in processing state", job.Error)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Jobs.WithLabelValues(models.StatusFailed)))
}

func TestSweeper_StartRejectsBadSchedule(t *testing.T) {
	s := NewSweeper(newFakeJobs(), "every now and then", time.Minute, nil, zap.NewNop())
	assert.Error(t, s.Start())
	s.Stop()
}

func TestSweeper_StartStop(t *testing.T) {
	s := NewSweeper(newFakeJobs(), "@every 1h", time.Minute, nil, zap.NewNop())
	require.NoError(t, s.Start())
	s.Stop()
}

func TestQueueService_Disconnected(t *testing.T) {
	q := newTestQueue(&fakeRemover{}, newFakeBlobs(), newFakeJobs(), nil)

	stats, err := q.GetQueueStats()
	require.NoError(t, err)
	assert.Equal(t, &models.QueueStats{Name: DefaultQueueName}, stats)

	err = q.PublishJob(context.Background(), &models.ProcessingJob{ID: "j1"})
	assert.EqualError(t, err, "failed to publish job j1: queue not connected")

	assert.Equal(t, "unhealthy: connection closed", q.HealthCheck())
}

func TestPublishJob_CancelledContext(t *testing.T) {
	q := newTestQueue(&fakeRemover{}, newFakeBlobs(), newFakeJobs(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, q.PublishJob(ctx, &models.ProcessingJob{ID: "j1"}), context.Canceled)
}
