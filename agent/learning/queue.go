package learning

import (
	"context"
	"errors"
	"strings"
	"sync"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
	qstashx "github.com/fernandofuc/tistis-platform-sub010/pkg/qstash"
)

// QStashQueue hands learning updates to the async learning pipeline via
// QStash; the pipeline owns aggregation and model updates, this side only
// publishes.
type QStashQueue struct {
	client      *qstashx.Client
	destination string
}

func NewQStashQueue(client *qstashx.Client, destination string) (*QStashQueue, error) {
	if client == nil {
		return nil, errors.New("qstash client is required")
	}
	if strings.TrimSpace(destination) == "" {
		return nil, errors.New("learning destination url is required")
	}
	return &QStashQueue{client: client, destination: destination}, nil
}

func (q *QStashQueue) EnqueueLearningUpdate(ctx context.Context, update contractx.LearningUpdate) error {
	return q.client.Publish(ctx, q.destination, update)
}

// MemoryQueue collects updates in process, for tests and local runs.
type MemoryQueue struct {
	mu      sync.Mutex
	updates []contractx.LearningUpdate
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) EnqueueLearningUpdate(_ context.Context, update contractx.LearningUpdate) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.updates = append(q.updates, update)
	return nil
}

func (q *MemoryQueue) All() []contractx.LearningUpdate {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]contractx.LearningUpdate, len(q.updates))
	copy(out, q.updates)
	return out
}
