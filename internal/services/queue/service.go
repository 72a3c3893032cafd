package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/phambaophuc/phantom-splice/internal/metrics"
	"github.com/phambaophuc/phantom-splice/internal/models"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const DefaultQueueName = "cutout_jobs"

type CutoutRemover interface {
	RemoveBackground(ctx context.Context, data []byte, filename string) (*models.Cutout, error)
}

type BlobStore interface {
	Upload(ctx context.Context, key string, data []byte) (string, error)
	Download(ctx context.Context, key string) ([]byte, error)
}

type JobStore interface {
	SaveJob(ctx context.Context, job *models.ProcessingJob) error
	GetJob(ctx context.Context, id string) (*models.ProcessingJob, error)
	ListJobs(ctx context.Context) ([]*models.ProcessingJob, error)
}

type QueueService struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	logger    *zap.Logger
	queueName string
	processor CutoutRemover
	blobs     BlobStore
	jobs      JobStore
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewQueueService(
	rabbitmqURL string,
	queueName string,
	prefetch int,
	processor CutoutRemover,
	blobs BlobStore,
	jobs JobStore,
	m *metrics.Metrics,
	logger *zap.Logger,
) (*QueueService, error) {
	if queueName == "" {
		queueName = DefaultQueueName
	}

	conn, err := amqp.Dial(rabbitmqURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	_, err = channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if prefetch > 0 {
		if err := channel.Qos(prefetch, 0, false); err != nil {
			channel.Close()
			conn.Close()
			return nil, fmt.Errorf("failed to set prefetch: %w", err)
		}
	}

	return &QueueService{
		conn:      conn,
		channel:   channel,
		logger:    logger,
		queueName: queueName,
		processor: processor,
		blobs:     blobs,
		jobs:      jobs,
		metrics:   m,
		now:       time.Now,
	}, nil
}

// Close closes the queue connection
func (q *QueueService) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
