// Package checkpoint is the ingestion and verification pipeline. It is the
// only writer of a shipment's arrival times, status, anomaly flag and anchor
// list.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"supply-daddy-api-server/internal/anomaly"
	"supply-daddy-api-server/internal/database"
	"supply-daddy-api-server/internal/events"
	"supply-daddy-api-server/internal/hashing"
	"supply-daddy-api-server/internal/ledger"
	"supply-daddy-api-server/internal/logger"
	"supply-daddy-api-server/internal/metrics"
	"supply-daddy-api-server/internal/models"
	"supply-daddy-api-server/internal/routegraph"
	"supply-daddy-api-server/internal/sentinel"
)

const moduleName = "checkpoint"

// Enricher receives freshly stored anomalies for background enrichment.
type Enricher interface {
	Enqueue(shipment *models.Shipment, anomalies []models.Anomaly)
}

type Deps struct {
	Shipments  database.ShipmentRepository
	Anomalies  database.AnomalyRepository
	Ledger     ledger.Ledger
	Graph      *routegraph.Graph
	Classifier *anomaly.Classifier
	Gate       Gate
	Events     events.Publisher
	Enricher   Enricher
	Metrics    *metrics.Metrics
	Log        logrus.FieldLogger
	Clock      func() time.Time
}

type Engine struct {
	shipments  database.ShipmentRepository
	anomalies  database.AnomalyRepository
	ledger     ledger.Ledger
	graph      *routegraph.Graph
	classifier *anomaly.Classifier
	gate       Gate
	events     events.Publisher
	enricher   Enricher
	metrics    *metrics.Metrics
	log        logrus.FieldLogger
	clock      func() time.Time
}

func NewEngine(d Deps) *Engine {
	e := &Engine{
		shipments:  d.Shipments,
		anomalies:  d.Anomalies,
		ledger:     d.Ledger,
		graph:      d.Graph,
		classifier: d.Classifier,
		gate:       d.Gate,
		events:     d.Events,
		enricher:   d.Enricher,
		metrics:    d.Metrics,
		log:        d.Log,
		clock:      d.Clock,
	}
	if e.gate == nil {
		e.gate = NewLocalGate()
	}
	if e.graph == nil {
		e.graph = routegraph.MustDefault()
	}
	if e.classifier == nil {
		e.classifier = anomaly.New(anomaly.DefaultConfig())
	}
	if e.log == nil {
		e.log = logger.Discard()
	}
	if e.clock == nil {
		e.clock = func() time.Time { return time.Now().UTC() }
	}
	return e
}

func (e *Engine) Graph() *routegraph.Graph { return e.graph }

func (e *Engine) Classifier() *anomaly.Classifier { return e.classifier }

// Now is the engine clock, overridable in tests.
func (e *Engine) Now() time.Time { return e.clock() }

func (e *Engine) Shipments() database.ShipmentRepository { return e.shipments }

func (e *Engine) Anomalies() database.AnomalyRepository { return e.anomalies }

func (e *Engine) Ledger() ledger.Ledger { return e.ledger }

func (e *Engine) Events() events.Publisher { return e.events }

func (e *Engine) Enricher() Enricher { return e.enricher }

func (e *Engine) Metrics() *metrics.Metrics { return e.metrics }

// Exclusive runs fn while holding the submission gate. Administrative
// mutations go through here so they never interleave with a submission.
func (e *Engine) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	release, err := e.gate.TryAcquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// Submit records the arrival of a shipment at a route stop.
//
// On ErrLedgerWriteFailed nothing was changed. When the ledger entry was
// committed but storing the shipment or its anomalies failed, Submit returns
// the result together with an error wrapping sentinel.ErrPersistFailed; the
// shipment is reconciled from the ledger on its next submission.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (*Result, error) {
	start := time.Now()
	if err := validateRequest(req); err != nil {
		e.metrics.IncrementRejected("validation")
		return nil, err
	}

	release, err := e.gate.TryAcquire(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrBusy) {
			e.metrics.IncrementRejected("busy")
		}
		return nil, err
	}
	defer release()

	res, err := e.submit(ctx, req)
	if res != nil {
		e.metrics.ObserveSubmission(string(res.Outcome), start)
	}
	return res, err
}

func (e *Engine) submit(ctx context.Context, req SubmitRequest) (*Result, error) {
	stored, err := e.shipments.Get(ctx, req.ShipmentID)
	if err != nil {
		return nil, err
	}
	stored, err = e.reconcile(ctx, stored)
	if err != nil {
		return nil, err
	}

	if stored.RouteIndex(req.LocationCode) < 0 {
		e.metrics.IncrementRejected("not_on_route")
		return nil, fmt.Errorf("location %s is not on the route of %s: %w", req.LocationCode, req.ShipmentID, sentinel.ErrNotFound)
	}
	idx := stored.NextStopIndex()
	if stored.CurrentStatus == models.StatusDelivered || idx < 0 {
		e.metrics.IncrementRejected("out_of_order")
		return nil, fmt.Errorf("shipment %s is already delivered: %w", req.ShipmentID, sentinel.ErrInvalidTransition)
	}
	// A route may pass through the same hub twice; only the first unvisited
	// stop accepts a check-in.
	if stored.Route[idx].LocationCode != req.LocationCode {
		e.metrics.IncrementRejected("out_of_order")
		if !visitsLater(stored, idx, req.LocationCode) {
			return nil, fmt.Errorf("checkpoint at %s already recorded: %w", req.LocationCode, sentinel.ErrInvalidTransition)
		}
		return nil, fmt.Errorf("cannot check in at %s, previous stop %s not visited yet: %w",
			req.LocationCode, stored.Route[idx].LocationCode, sentinel.ErrInvalidTransition)
	}

	arrivedAt := e.clock()
	if req.Timestamp != nil {
		arrivedAt = *req.Timestamp
	}
	// Stores keep millisecond precision; the ledger hash must survive a round trip.
	arrivedAt = arrivedAt.UTC().Truncate(time.Millisecond)
	if idx > 0 {
		if prev := stored.Route[idx-1].ActualArrival; prev != nil && arrivedAt.Before(*prev) {
			return nil, fmt.Errorf("arrival at %s precedes arrival at %s: %w",
				req.LocationCode, stored.Route[idx-1].LocationCode, sentinel.ErrValidation)
		}
	}

	// Everything below works on a copy; stored stays untouched until Save.
	s := stored.Clone()
	hv := hashing.VerifyDocuments(hashing.Digest(s.DocHash), s.POText, s.InvoiceText, s.BOLText)

	report, anomalies := e.arrive(s, idx, anomaly.Observed{
		Temperature: req.Telemetry.Temperature,
		Humidity:    req.Telemetry.Humidity,
		WeightKg:    req.Telemetry.WeightKg,
		ArrivedAt:   arrivedAt,
	}, hv)
	isFinal := idx == len(s.Route)-1

	entry := models.Checkpoint{
		ShipmentID:   s.ShipmentID,
		LocationCode: req.LocationCode,
		Timestamp:    arrivedAt,
		WeightKg:     req.Telemetry.WeightKg,
		DocumentHash: hv.CurrentDigest.String(),
		AnchoredHash: hv.ExpectedDigest.String(),
		ScannedBy:    req.ScannedBy,
	}
	receipt, err := e.ledger.Append(ctx, entry)
	if err != nil {
		e.metrics.IncrementLedgerFailure()
		logger.LogError(e.log, moduleName, "Submit", "ledger append failed", logrus.Fields{
			"shipment_id": s.ShipmentID, "location": req.LocationCode,
		}, err)
		return nil, fmt.Errorf("%w: %v", sentinel.ErrLedgerWriteFailed, err)
	}
	entry.Index = receipt.Index
	entry.AnchorRef = receipt.AnchorRef
	if full, err := e.ledger.Get(ctx, s.ShipmentID, receipt.Index); err == nil {
		entry = full
	}
	if receipt.Index != idx {
		e.log.WithFields(logrus.Fields{
			"shipment_id": s.ShipmentID, "ledger_index": receipt.Index, "route_index": idx,
		}).Warn("ledger index and route position diverged")
	}

	s.BlockchainTxHashes = append(s.BlockchainTxHashes, receipt.AnchorRef)
	// The digest seen here is what the next stop verifies against.
	s.DocHash = hv.CurrentDigest.String()
	if isFinal {
		s.CurrentStatus = models.StatusDelivered
	} else {
		s.CurrentStatus = models.StatusInTransit
	}

	res := &Result{
		ShipmentID:   s.ShipmentID,
		LocationCode: req.LocationCode,
		NodeIndex:    idx,
		Status:       s.CurrentStatus,
		Outcome:      outcomeOf(isFinal, hv, report),
		AnomalyFlag:  s.AnomalyFlag,
		IsFinal:      isFinal,
		Checkpoint:   entry,
		HashVerification: models.HashVerification{
			Verified:       hv.Match,
			TamperDetected: hv.TamperDetected(),
			ExpectedHash:   hv.ExpectedDigest.String(),
			CurrentHash:    hv.CurrentDigest.String(),
		},
		Anomalies:    anomalies,
		DelaySeconds: math.Round(report.Delay.Seconds()),
		Shipment:     s,
	}

	// Anomalies go first: their ids are stable, so a replay after a failed
	// save stores nothing twice.
	if err := e.anomalies.AppendMany(ctx, anomalies); err != nil {
		logger.LogError(e.log, moduleName, "Submit", "anomaly append failed", s.ShipmentID, err)
		return res, fmt.Errorf("store anomalies for %s: %w: %v", s.ShipmentID, sentinel.ErrPersistFailed, err)
	}
	if err := e.shipments.Save(ctx, s); err != nil {
		logger.LogError(e.log, moduleName, "Submit", "shipment save failed after ledger commit", s.ShipmentID, err)
		return res, fmt.Errorf("save shipment %s: %w: %v", s.ShipmentID, sentinel.ErrPersistFailed, err)
	}
	e.recordAnomalies(s, anomalies)

	e.publish(ctx, s, res)
	e.log.WithFields(logrus.Fields{
		"shipment_id": s.ShipmentID,
		"location":    req.LocationCode,
		"index":       entry.Index,
		"outcome":     res.Outcome,
		"anomalies":   len(anomalies),
	}).Info("checkpoint recorded")
	return res, nil
}

// reconcile replays ledger entries that were committed while the matching
// shipment save failed. Each entry is classified again from what the ledger
// recorded, so a document change seen at that stop is not lost.
func (e *Engine) reconcile(ctx context.Context, s *models.Shipment) (*models.Shipment, error) {
	count, err := e.ledger.Count(ctx, s.ShipmentID)
	if err != nil {
		return nil, fmt.Errorf("count ledger entries: %w", err)
	}
	arrived := s.ArrivedCount()
	if count <= arrived {
		return s, nil
	}

	missing, err := e.ledger.Range(ctx, s.ShipmentID, arrived, count)
	if err != nil {
		return nil, fmt.Errorf("read unreconciled ledger entries: %w", err)
	}
	fixed := s.Clone()
	var replayed []models.Anomaly
	for _, cp := range missing {
		idx := fixed.NextStopIndex()
		if idx < 0 || fixed.Route[idx].LocationCode != cp.LocationCode {
			return nil, fmt.Errorf("ledger entry %d at %s does not match the route of %s: %w",
				cp.Index, cp.LocationCode, s.ShipmentID, sentinel.ErrConflict)
		}
		hv := hashing.Compare(hashing.Digest(cp.AnchoredHash), hashing.Digest(cp.DocumentHash))
		if cp.AnchoredHash == "" {
			hv.Match = true
		}
		_, found := e.arrive(fixed, idx, anomaly.Observed{WeightKg: cp.WeightKg, ArrivedAt: cp.Timestamp}, hv)
		replayed = append(replayed, found...)
		fixed.BlockchainTxHashes = append(fixed.BlockchainTxHashes, cp.AnchorRef)
		fixed.DocHash = cp.DocumentHash
	}
	if fixed.NextStopIndex() < 0 {
		fixed.CurrentStatus = models.StatusDelivered
	} else {
		fixed.CurrentStatus = models.StatusInTransit
	}

	if err := e.anomalies.AppendMany(ctx, replayed); err != nil {
		return nil, fmt.Errorf("reconcile %s anomalies: %w: %v", s.ShipmentID, sentinel.ErrPersistFailed, err)
	}
	if err := e.shipments.Save(ctx, fixed); err != nil {
		return nil, fmt.Errorf("reconcile %s: %w: %v", s.ShipmentID, sentinel.ErrPersistFailed, err)
	}
	e.recordAnomalies(fixed, replayed)
	e.log.WithFields(logrus.Fields{
		"shipment_id": s.ShipmentID,
		"replayed":    len(missing),
		"anomalies":   len(replayed),
	}).Warn("shipment reconciled from ledger")
	return fixed, nil
}

// arrive marks route position idx as reached at obs.ArrivedAt, moves the
// downstream schedule and classifies the arrival. Anomalies come back stamped
// with ids derived from the stop, so classifying the same stop twice yields
// the same ids.
func (e *Engine) arrive(s *models.Shipment, idx int, obs anomaly.Observed, hv hashing.Verification) (anomaly.Report, []models.Anomaly) {
	if s.RiskProfile.BaselineWeightKg <= 0 && obs.WeightKg > 0 {
		s.RiskProfile.BaselineWeightKg = obs.WeightKg
	}
	report := e.classifier.Classify(obs, anomaly.Expected{Profile: s.RiskProfile, ExpectedArrival: s.Route[idx].ExpectedArrival}, hv)

	at := obs.ArrivedAt
	s.Route[idx].ActualArrival = &at
	if idx < len(s.Route)-1 {
		e.graph.RecomputeETAs(s.Route, idx, at)
		if report.Delay > 0 {
			routegraph.ShiftExpectedArrivals(s.Route, idx, report.Delay)
		}
	}
	if report.Critical() {
		s.AnomalyFlag = true
	}

	anomalies := report.Anomalies
	for i := range anomalies {
		anomalies[i].AnomalyID = stopAnomalyID(s.ShipmentID, idx, anomalies[i].AnomalyType)
		anomalies[i].ShipmentID = s.ShipmentID
		anomalies[i].LocationCode = s.Route[idx].LocationCode
		anomalies[i].CreatedAt = at
	}
	return report, anomalies
}

func (e *Engine) recordAnomalies(s *models.Shipment, anomalies []models.Anomaly) {
	if len(anomalies) == 0 {
		return
	}
	for _, a := range anomalies {
		e.metrics.IncrementAnomaly(string(a.AnomalyType), string(a.Severity))
	}
	if e.enricher != nil {
		e.enricher.Enqueue(s.Clone(), anomalies)
	}
}

func stopAnomalyID(shipmentID string, idx int, t models.AnomalyType) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s/%d/%s", shipmentID, idx, t))).String()
}

func visitsLater(s *models.Shipment, from int, locationCode string) bool {
	for i := from + 1; i < len(s.Route); i++ {
		if s.Route[i].LocationCode == locationCode {
			return true
		}
	}
	return false
}

func (e *Engine) publish(ctx context.Context, s *models.Shipment, res *Result) {
	if e.events == nil {
		return
	}
	recipients := []string{s.ManufacturerID, s.ReceiverID}
	_ = e.events.Publish(ctx, events.Event{
		Type:       events.CheckpointRecorded,
		ShipmentID: s.ShipmentID,
		At:         res.Checkpoint.Timestamp,
		Payload:    res,
		Recipients: recipients,
	})
	for _, a := range res.Anomalies {
		_ = e.events.Publish(ctx, events.Event{
			Type:       events.AnomalyDetected,
			ShipmentID: s.ShipmentID,
			At:         a.CreatedAt,
			Payload:    a,
			Recipients: recipients,
		})
	}
}

func outcomeOf(isFinal bool, hv hashing.Verification, report anomaly.Report) Outcome {
	switch {
	case isFinal:
		return OutcomeDelivered
	case hv.TamperDetected():
		return OutcomeTamperDetected
	case !report.Empty():
		return OutcomeAnomalyDetected
	default:
		return OutcomeTransferred
	}
}

func validateRequest(req SubmitRequest) error {
	switch {
	case req.ShipmentID == "":
		return fmt.Errorf("shipment id is required: %w", sentinel.ErrValidation)
	case req.LocationCode == "":
		return fmt.Errorf("location code is required: %w", sentinel.ErrValidation)
	case req.ScannedBy == "":
		return fmt.Errorf("scanned by is required: %w", sentinel.ErrValidation)
	}
	return ValidateTelemetry(req.Telemetry)
}

// ValidateTelemetry rejects readings no sensor could have produced.
func ValidateTelemetry(t models.Telemetry) error {
	if !finite(t.WeightKg) || t.WeightKg < 0 {
		return fmt.Errorf("weight_kg must be a non-negative number: %w", sentinel.ErrValidation)
	}
	if t.Temperature != nil && !finite(*t.Temperature) {
		return fmt.Errorf("temperature must be a number: %w", sentinel.ErrValidation)
	}
	if t.Humidity != nil {
		h := *t.Humidity
		if !finite(h) || h < 0 || h > 100 {
			return fmt.Errorf("humidity must be between 0 and 100: %w", sentinel.ErrValidation)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
