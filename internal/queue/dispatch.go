package queue

import (
	"context"
	"encoding/json"

	"github.com/OFFIS-RIT/tagrel/pkg/engine"
	"github.com/OFFIS-RIT/tagrel/pkg/logger"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// JobMsg is the wire form of an engine.Job.
type JobMsg struct {
	engine.Job
	CorrelationID string `json:"correlation_id"`
}

// Dispatcher publishes jobs to JobQueue.
type Dispatcher struct {
	ch    Channel
	queue string
}

var _ engine.Dispatcher = (*Dispatcher)(nil)

func NewDispatcher(ch Channel) *Dispatcher {
	return &Dispatcher{ch: ch, queue: JobQueue}
}

func (d *Dispatcher) Dispatch(ctx context.Context, job engine.Job) error {
	if err := validate.Struct(job); err != nil {
		return err
	}
	id, err := gonanoid.New()
	if err != nil {
		return err
	}
	body, err := json.Marshal(JobMsg{Job: job, CorrelationID: id})
	if err != nil {
		return err
	}
	if err := PublishFIFO(ctx, d.ch, d.queue, body); err != nil {
		return err
	}
	logger.Info("[Queue] Dispatched job", "relationship_id", job.RelationshipID, "operation", string(job.Operation), "correlation_id", id)
	return nil
}
