// Package events fans checkpoint and anomaly notifications out to the
// websocket hub and the Kafka event stream. Delivery is best effort and never
// affects the outcome of the submission that produced the event.
package events

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type Type string

const (
	CheckpointRecorded Type = "checkpoint.recorded"
	AnomalyDetected    Type = "anomaly.detected"
	ShipmentDelayed    Type = "shipment.delayed"
	DocumentsTampered  Type = "documents.tampered"
	ShipmentCreated    Type = "shipment.created"
)

type Event struct {
	Type       Type      `json:"type"`
	ShipmentID string    `json:"shipment_id"`
	At         time.Time `json:"at"`
	Payload    any       `json:"payload"`
	// Recipients are user ids that should get a live push.
	Recipients []string `json:"-"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Fanout publishes to every publisher and logs the ones that fail.
type Fanout struct {
	publishers []Publisher
	log        logrus.FieldLogger
}

func NewFanout(log logrus.FieldLogger, publishers ...Publisher) *Fanout {
	return &Fanout{publishers: publishers, log: log}
}

func (f *Fanout) Add(p Publisher) {
	f.publishers = append(f.publishers, p)
}

func (f *Fanout) Publish(ctx context.Context, ev Event) error {
	for _, p := range f.publishers {
		if err := p.Publish(ctx, ev); err != nil {
			f.log.WithFields(logrus.Fields{
				"event":       ev.Type,
				"shipment_id": ev.ShipmentID,
			}).WithError(err).Warn("event publish failed")
		}
	}
	return nil
}

// Recorder keeps published events in memory. Used by tests.
type Recorder struct {
	ch chan Event
}

func NewRecorder(buffer int) *Recorder {
	return &Recorder{ch: make(chan Event, buffer)}
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	select {
	case r.ch <- ev:
	default:
	}
	return nil
}

func (r *Recorder) Events() <-chan Event {
	return r.ch
}

// Drain returns everything recorded so far without blocking.
func (r *Recorder) Drain() []Event {
	var out []Event
	for {
		select {
		case ev := <-r.ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}
