package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher streams events to a topic keyed by shipment id, so a
// consumer sees each shipment's events in order.
//
// Publishing never blocks: while the broker is unreachable the client buffers
// up to maxBufferedRecords and further events are dropped.
type KafkaPublisher struct {
	client  *kgo.Client
	log     logrus.FieldLogger
	dropped atomic.Int64
}

const (
	maxBufferedRecords = 10000
	deliveryTimeout    = 30 * time.Second
)

func NewKafkaPublisher(brokers []string, topic string, log logrus.FieldLogger, opts ...kgo.Opt) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(0),
		kgo.MaxBufferedRecords(maxBufferedRecords),
		kgo.RecordDeliveryTimeout(deliveryTimeout),
	}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, log: log}, nil
}

func (k *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	rec := &kgo.Record{
		Key:   []byte(ev.ShipmentID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event-type", Value: []byte(ev.Type)},
		},
	}
	// The produce outlives the request context.
	k.client.TryProduce(context.WithoutCancel(ctx), rec, func(r *kgo.Record, err error) {
		if err == nil {
			return
		}
		k.dropped.Add(1)
		entry := k.log.WithField("shipment_id", ev.ShipmentID).WithError(err)
		if errors.Is(err, kgo.ErrMaxBuffered) {
			entry.Debug("kafka buffer full, event dropped")
			return
		}
		entry.Warn("kafka produce failed")
	})
	return nil
}

// Dropped is the number of events that never reached the broker.
func (k *KafkaPublisher) Dropped() int64 {
	return k.dropped.Load()
}

// Close flushes buffered records and closes the client.
func (k *KafkaPublisher) Close(ctx context.Context) {
	if err := k.client.Flush(ctx); err != nil {
		k.log.WithError(err).Warn("kafka flush failed")
	}
	k.client.Close()
}
