package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/phambaophuc/phantom-splice/internal/models"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const jobMessageType = "cutout.job"

// PublishJob enqueues a pending job as a persistent JSON message. The
// message ID is the job ID so redeliveries can be correlated in logs.
func (q *QueueService) PublishJob(ctx context.Context, job *models.ProcessingJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !q.connected() {
		return fmt.Errorf("failed to publish job %s: queue not connected", job.ID)
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Type:         jobMessageType,
		MessageId:    job.ID,
		Timestamp:    q.now(),
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}
	// Default exchange: the routing key is the queue name.
	if err := q.channel.Publish("", q.queueName, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish job %s: %w", job.ID, err)
	}

	q.logger.Info("Job published to queue",
		zap.String("job_id", job.ID),
		zap.String("queue", q.queueName))
	return nil
}
