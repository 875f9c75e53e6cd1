package narrative

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"supply-daddy-api-server/internal/logger"
	"supply-daddy-api-server/internal/models"
)

// NarrativeStore is where finished narratives are written back.
type NarrativeStore interface {
	SetNarrative(ctx context.Context, anomalyID, narrative string) error
}

type job struct {
	shipment *models.Shipment
	anomaly  models.Anomaly
}

// Worker narrates anomalies in the background. Enqueue never blocks the
// caller: when the queue is full the job is dropped and logged.
type Worker struct {
	narrator Narrator
	store    NarrativeStore
	workers  int
	queue    chan job
	log      logrus.FieldLogger
}

func NewWorker(narrator Narrator, store NarrativeStore, workers, queueSize int, log logrus.FieldLogger) *Worker {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Worker{
		narrator: narrator,
		store:    store,
		workers:  workers,
		queue:    make(chan job, queueSize),
		log:      log.WithField("module", "narrative"),
	}
}

func (w *Worker) Enqueue(shipment *models.Shipment, anomalies []models.Anomaly) {
	for _, a := range anomalies {
		select {
		case w.queue <- job{shipment: shipment, anomaly: a}:
		default:
			w.log.WithFields(logrus.Fields{
				"shipment_id": shipment.ShipmentID,
				"anomaly_id":  a.AnomalyID,
			}).Warn("narrative queue full, dropping anomaly")
		}
	}
}

// Run processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-w.queue:
					w.process(ctx, j)
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

func (w *Worker) process(ctx context.Context, j job) {
	text, err := w.narrator.Narrate(ctx, j.shipment, j.anomaly)
	if err != nil {
		logger.LogError(w.log, "narrative", "process", "narration failed", j.anomaly.AnomalyID, err)
		return
	}
	if err := w.store.SetNarrative(ctx, j.anomaly.AnomalyID, text); err != nil {
		logger.LogError(w.log, "narrative", "process", "storing narrative failed", j.anomaly.AnomalyID, err)
		return
	}
	w.log.WithField("anomaly_id", j.anomaly.AnomalyID).Debug("anomaly narrated")
}
