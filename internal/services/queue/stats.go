package queue

import (
	"fmt"

	"github.com/phambaophuc/phantom-splice/internal/models"
)

// GetQueueStats asks the broker for the backlog and consumer count of the
// job queue.
func (q *QueueService) GetQueueStats() (*models.QueueStats, error) {
	if !q.connected() {
		return &models.QueueStats{Name: q.queueName}, nil
	}

	info, err := q.channel.QueueInspect(q.queueName)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect queue %s: %w", q.queueName, err)
	}

	return &models.QueueStats{
		Name:      info.Name,
		Messages:  info.Messages,
		Consumers: info.Consumers,
		Connected: true,
	}, nil
}

func (q *QueueService) HealthCheck() string {
	switch {
	case q.conn == nil || q.conn.IsClosed():
		return "unhealthy: connection closed"
	case q.channel == nil:
		return "unhealthy: channel not available"
	default:
		return "healthy"
	}
}

func (q *QueueService) connected() bool {
	return q.conn != nil && !q.conn.IsClosed() && q.channel != nil
}
