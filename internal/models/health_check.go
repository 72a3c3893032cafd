package models

import "time"

const (
	HealthAlive   = "alive"
	LivenessReply = "The spirits are ready"
)

// Liveness is the fixed payload of the liveness probe.
type Liveness struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type HealthCheck struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

// QueueStats describes the job queue as seen by the broker.
type QueueStats struct {
	Name      string `json:"name"`
	Messages  int    `json:"messages"`
	Consumers int    `json:"consumers"`
	Connected bool   `json:"connected"`
}
