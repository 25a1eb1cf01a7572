// Package events forwards processing events to a message queue. Posting is
// fire and forget: a failed publish is logged by the caller and never stops
// a harvest.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nggdpp/ndc-harvester/internal/logging"
	"github.com/nggdpp/ndc-harvester/internal/models"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "ndc.harvest.batches"

// EventType names what happened.
type EventType string

const (
	EventBatchCompleted EventType = "batch.completed"
	EventBatchFailed    EventType = "batch.failed"
	EventJobCompleted   EventType = "job.completed"
)

// Event is the JSON payload posted for each processing step.
type Event struct {
	Type         EventType                `json:"type"`
	CollectionID string                   `json:"collection_id,omitempty"`
	JobID        string                   `json:"job_id,omitempty"`
	SourceURL    string                   `json:"source_url,omitempty"`
	Normalizer   string                   `json:"normalizer,omitempty"`
	RecordCount  int                      `json:"record_count"`
	NoticeCount  int                      `json:"notice_count"`
	Errors       []models.ProcessingError `json:"errors,omitempty"`
	Timestamp    time.Time                `json:"timestamp"`
}

// BatchEvent describes a finished batch.
func BatchEvent(b *models.Batch) Event {
	ev := Event{
		Type:        EventBatchCompleted,
		SourceURL:   b.Meta.SourceURL,
		Normalizer:  b.Meta.Normalizer,
		RecordCount: len(b.Records),
		NoticeCount: b.NoticeCount(),
		Errors:      b.Meta.ErrorList,
		Timestamp:   time.Now().UTC(),
	}
	if b.Meta.CompletedAt != nil {
		ev.Timestamp = *b.Meta.CompletedAt
	}
	if b.Meta.Failed() {
		ev.Type = EventBatchFailed
	}
	if b.Collection != nil {
		ev.CollectionID = b.Collection.ID
	}
	return ev
}

// JobEvent describes a finished harvest job.
func JobEvent(job *models.HarvestJob) Event {
	return Event{
		Type:         EventJobCompleted,
		CollectionID: job.CollectionID,
		JobID:        job.ID,
		RecordCount:  job.RecordCount,
		NoticeCount:  job.NoticeCount,
		Timestamp:    time.Now().UTC(),
	}
}

// Publisher posts events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close()
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close()                               {}

// NATSPublisher posts events as JSON on a NATS subject.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
	log     *logging.Logger
}

// Connect dials NATS and returns a publisher for subject.
func Connect(url, subject string, log *logging.Logger) (*NATSPublisher, error) {
	log = logging.OrNop(log).Component("events")
	nc, err := nats.Connect(url,
		nats.Name("ndc-harvester"),
		nats.Timeout(10*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{nc: nc, subject: subject, log: log}, nil
}

// Publish encodes ev and posts it without waiting for a reply.
func (p *NATSPublisher) Publish(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.log.Warn("nats drain failed", "error", err)
		p.nc.Close()
	}
}
