package checkpoint

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"supply-daddy-api-server/internal/database"
	"supply-daddy-api-server/internal/events"
	"supply-daddy-api-server/internal/hashing"
	"supply-daddy-api-server/internal/ledger"
	"supply-daddy-api-server/internal/models"
	"supply-daddy-api-server/internal/routegraph"
	"supply-daddy-api-server/internal/sentinel"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// flakyLedger fails appends while fail is set.
type flakyLedger struct {
	*ledger.Memory
	fail atomic.Bool
}

func (l *flakyLedger) Append(ctx context.Context, cp models.Checkpoint) (ledger.Receipt, error) {
	if l.fail.Load() {
		return ledger.Receipt{}, errors.New("anchor unreachable")
	}
	return l.Memory.Append(ctx, cp)
}

// flakyShipments fails the next failSaves calls to Save.
type flakyShipments struct {
	*database.MemoryShipments
	failSaves atomic.Int32
}

func (r *flakyShipments) Save(ctx context.Context, s *models.Shipment) error {
	if r.failSaves.Load() > 0 {
		r.failSaves.Add(-1)
		return errors.New("write concern timeout")
	}
	return r.MemoryShipments.Save(ctx, s)
}

// flakyAnomalies fails the next failAppends calls to AppendMany.
type flakyAnomalies struct {
	*database.MemoryAnomalies
	failAppends atomic.Int32
}

func (r *flakyAnomalies) AppendMany(ctx context.Context, anomalies []models.Anomaly) error {
	if r.failAppends.Load() > 0 {
		r.failAppends.Add(-1)
		return errors.New("anomaly store unavailable")
	}
	return r.MemoryAnomalies.AppendMany(ctx, anomalies)
}

type captureEnricher struct {
	mu    sync.Mutex
	calls [][]models.Anomaly
}

func (c *captureEnricher) Enqueue(_ *models.Shipment, anomalies []models.Anomaly) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, anomalies)
}

type EngineSuite struct {
	suite.Suite
	ctx       context.Context
	clock     *fakeClock
	depart    time.Time
	graph     *routegraph.Graph
	shipments *flakyShipments
	anomalies *flakyAnomalies
	ledger    *flakyLedger
	gate      *LocalGate
	recorder  *events.Recorder
	enricher  *captureEnricher
	engine    *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.depart = time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC)
	s.clock = &fakeClock{now: s.depart}
	s.graph = routegraph.MustDefault()
	s.shipments = &flakyShipments{MemoryShipments: database.NewMemoryShipments()}
	s.anomalies = &flakyAnomalies{MemoryAnomalies: database.NewMemoryAnomalies()}
	s.ledger = &flakyLedger{Memory: ledger.NewMemory()}
	s.gate = NewLocalGate()
	s.recorder = events.NewRecorder(64)
	s.enricher = &captureEnricher{}
	s.engine = NewEngine(Deps{
		Shipments: s.shipments,
		Anomalies: s.anomalies,
		Ledger:    s.ledger,
		Graph:     s.graph,
		Gate:      s.gate,
		Events:    s.recorder,
		Enricher:  s.enricher,
		Clock:     s.clock.Now,
	})
}

func (s *EngineSuite) newShipment(id string, codes ...string) *models.Shipment {
	if len(codes) == 0 {
		codes = []string{"DEL", "JAI", "AMD"}
	}
	route, err := s.graph.StopsFor(codes, s.depart)
	s.Require().NoError(err)
	sh := &models.Shipment{
		ShipmentID:     id,
		Origin:         codes[0],
		Destination:    codes[len(codes)-1],
		ManufacturerID: "M1",
		ReceiverID:     "R1",
		Route:          route,
		RiskProfile:    models.RiskProfile{ProductCategory: "pharmaceutical", BaselineWeightKg: 100},
		CurrentStatus:  models.StatusCreated,
		POText:         "A",
		InvoiceText:    "INV",
		BOLText:        "BOL",
		DocHash:        hashing.DocumentHash("A", "INV", "BOL").String(),
		CreatedAt:      s.depart,
	}
	s.Require().NoError(s.shipments.Create(s.ctx, sh))
	return sh
}

func (s *EngineSuite) req(shipmentID, location string) SubmitRequest {
	return SubmitRequest{
		ShipmentID:   shipmentID,
		LocationCode: location,
		Telemetry:    models.Telemetry{Temperature: models.Float64(5), Humidity: models.Float64(40), WeightKg: 100},
		ScannedBy:    "scanner-1",
	}
}

// arrive moves the clock to the planned arrival at route position i.
func (s *EngineSuite) arrive(sh *models.Shipment, i int) {
	s.clock.Set(*sh.Route[i].ExpectedArrival)
}

func (s *EngineSuite) ledgerCount(id string) int {
	n, err := s.ledger.Count(s.ctx, id)
	s.Require().NoError(err)
	return n
}

func (s *EngineSuite) TestFullJourneyToDelivery() {
	sh := s.newShipment("SHP-1")

	s.arrive(sh, 0)
	res, err := s.engine.Submit(s.ctx, s.req("SHP-1", "DEL"))
	s.Require().NoError(err)
	s.Equal(OutcomeTransferred, res.Outcome)
	s.Equal(models.StatusInTransit, res.Status)
	s.Equal(0, res.NodeIndex)
	s.Equal(0, res.Checkpoint.Index)
	s.False(res.HashVerification.TamperDetected)
	s.Empty(res.Anomalies)

	s.arrive(sh, 1)
	res, err = s.engine.Submit(s.ctx, s.req("SHP-1", "JAI"))
	s.Require().NoError(err)
	s.Equal(1, res.Checkpoint.Index)
	s.False(res.IsFinal)

	s.arrive(sh, 2)
	res, err = s.engine.Submit(s.ctx, s.req("SHP-1", "AMD"))
	s.Require().NoError(err)
	s.Equal(OutcomeDelivered, res.Outcome)
	s.Equal(models.StatusDelivered, res.Status)
	s.True(res.IsFinal)

	stored, err := s.shipments.Get(s.ctx, "SHP-1")
	s.Require().NoError(err)
	s.Equal(models.StatusDelivered, stored.CurrentStatus)
	s.True(stored.OrderingValid())
	s.Equal(-1, stored.NextStopIndex())
	s.Len(stored.BlockchainTxHashes, 3)
	s.Equal(int64(3), stored.Version)

	s.Equal(3, s.ledgerCount("SHP-1"))
	entries, err := s.ledger.Range(s.ctx, "SHP-1", 0, 3)
	s.Require().NoError(err)
	s.NoError(ledger.VerifyChain(entries))
	for i, cp := range entries {
		s.Equal(stored.Route[i].LocationCode, cp.LocationCode)
		s.Equal(stored.BlockchainTxHashes[i], cp.AnchorRef)
	}

	s.Run("delivered shipment accepts nothing further", func() {
		_, err := s.engine.Submit(s.ctx, s.req("SHP-1", "AMD"))
		s.Require().ErrorIs(err, sentinel.ErrInvalidTransition)
		_, err = s.engine.Submit(s.ctx, s.req("SHP-1", "DEL"))
		s.Require().ErrorIs(err, sentinel.ErrInvalidTransition)
		s.Equal(3, s.ledgerCount("SHP-1"))
	})
}

func (s *EngineSuite) TestNoSkipAndNoRepeat() {
	s.newShipment("SHP-1")

	_, err := s.engine.Submit(s.ctx, s.req("SHP-1", "AMD"))
	s.Require().ErrorIs(err, sentinel.ErrInvalidTransition)

	stored, err := s.shipments.Get(s.ctx, "SHP-1")
	s.Require().NoError(err)
	for _, stop := range stored.Route {
		s.Nil(stop.ActualArrival)
	}
	s.Equal(models.StatusCreated, stored.CurrentStatus)
	s.Zero(s.ledgerCount("SHP-1"))

	_, err = s.engine.Submit(s.ctx, s.req("SHP-1", "DEL"))
	s.Require().NoError(err)

	_, err = s.engine.Submit(s.ctx, s.req("SHP-1", "DEL"))
	s.Require().ErrorIs(err, sentinel.ErrInvalidTransition)
	s.Contains(err.Error(), "already recorded")
	s.Equal(1, s.ledgerCount("SHP-1"))
}

func (s *EngineSuite) TestNotFound() {
	s.newShipment("SHP-1")

	_, err := s.engine.Submit(s.ctx, s.req("SHP-404", "DEL"))
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.engine.Submit(s.ctx, s.req("SHP-1", "MUM"))
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
	s.Zero(s.ledgerCount("SHP-1"))
}

func (s *EngineSuite) TestTamperDetectedAtNextStop() {
	sh := s.newShipment("SHP-1")

	s.arrive(sh, 0)
	res, err := s.engine.Submit(s.ctx, s.req("SHP-1", "DEL"))
	s.Require().NoError(err)
	s.False(res.HashVerification.TamperDetected)

	// overwrite the text without touching the anchored hash
	stored, err := s.shipments.Get(s.ctx, "SHP-1")
	s.Require().NoError(err)
	stored.POText = "B"
	s.Require().NoError(s.shipments.Save(s.ctx, stored))

	s.arrive(sh, 1)
	res, err = s.engine.Submit(s.ctx, s.req("SHP-1", "JAI"))
	s.Require().NoError(err)
	s.True(res.HashVerification.TamperDetected)
	s.False(res.HashVerification.Verified)
	s.Equal(hashing.DocumentHash("A", "INV", "BOL").String(), res.HashVerification.ExpectedHash)
	s.Equal(hashing.DocumentHash("B", "INV", "BOL").String(), res.HashVerification.CurrentHash)
	s.Equal(OutcomeTamperDetected, res.Outcome)
	s.True(res.AnomalyFlag)
	s.Require().NotEmpty(res.Anomalies)
	s.Equal(models.AnomalyDocumentTampered, res.Anomalies[0].AnomalyType)
	s.Equal(models.SeverityCritical, res.Anomalies[0].Severity)
	s.Equal("JAI", res.Anomalies[0].LocationCode)
	s.NotEmpty(res.Anomalies[0].AnomalyID)

	stored, err = s.shipments.Get(s.ctx, "SHP-1")
	s.Require().NoError(err)
	s.Equal(models.StatusAnomaly, stored.DisplayStatus())
	s.Equal(models.StatusInTransit, stored.CurrentStatus)

	feed, err := s.anomalies.List(s.ctx, models.AnomalyFilter{ShipmentIDs: []string{"SHP-1"}})
	s.Require().NoError(err)
	s.Len(feed, 1)

	s.Run("the altered bundle is anchored for the next stop", func() {
		s.arrive(sh, 2)
		res, err := s.engine.Submit(s.ctx, s.req("SHP-1", "AMD"))
		s.Require().NoError(err)
		s.False(res.HashVerification.TamperDetected)
		s.True(res.AnomalyFlag)
	})
}

func (s *EngineSuite) TestValidationRejectsBeforeAnyMutation() {
	s.newShipment("SHP-1")

	bad := []models.Telemetry{
		{WeightKg: -1},
		{WeightKg: math.NaN()},
		{WeightKg: 10, Humidity: models.Float64(120)},
		{WeightKg: 10, Humidity: models.Float64(-3)},
		{WeightKg: 10, Temperature: models.Float64(math.Inf(1))},
	}
	for _, tel := range bad {
		r := s.req("SHP-1", "DEL")
		r.Telemetry = tel
		_, err := s.engine.Submit(s.ctx, r)
		s.Require().ErrorIs(err, sentinel.ErrValidation)
	}

	missing := s.req("SHP-1", "DEL")
	missing.ScannedBy = ""
	_, err := s.engine.Submit(s.ctx, missing)
	s.Require().ErrorIs(err, sentinel.ErrValidation)

	s.Zero(s.ledgerCount("SHP-1"))
	stored, err := s.shipments.Get(s.ctx, "SHP-1")
	s.Require().NoError(err)
	s.Equal(int64(0), stored.Version)
}

func (s *EngineSuite) TestArrivalBeforePreviousStopIsRejected() {
	sh := s.newShipment("SHP-1")
	s.arrive(sh, 1)
	_, err := s.engine.Submit(s.ctx, s.req("SHP-1", "DEL"))
	s.Require().NoError(err)

	r := s.req("SHP-1", "JAI")
	early := s.depart
	r.Timestamp = &early
	_, err = s.engine.Submit(s.ctx, r)
	s.Require().ErrorIs(err, sentinel.ErrValidation)
	s.Equal(1, s.ledgerCount("SHP-1"))
}

func (s *EngineSuite) TestLedgerFailureLeavesShipmentUntouched() {
	s.newShipment("SHP-1")
	before, err := s.shipments.Get(s.ctx, "SHP-1")
	s.Require().NoError(err)

	s.ledger.fail.Store(true)
	r := s.req("SHP-1", "DEL")
	r.Telemetry.Temperature = models.Float64(30)
	_, err = s.engine.Submit(s.ctx, r)
	s.Require().ErrorIs(err, sentinel.ErrLedgerWriteFailed)

	after, err := s.shipments.Get(s.ctx, "SHP-1")
	s.Require().NoError(err)
	s.Equal(before, after)

	feed, err := s.anomalies.List(s.ctx, models.AnomalyFilter{})
	s.Require().NoError(err)
	s.Empty(feed)
	s.Empty(s.recorder.Drain())
	s.False(s.gate.Held())

	s.ledger.fail.Store(false)
	res, err := s.engine.Submit(s.ctx, s.req("SHP-1", "DEL"))
	s.Require().NoError(err)
	s.Equal(0, res.Checkpoint.Index)
}

func (s *EngineSuite) TestPersistFailureIsReconciledFromLedger() {
	sh := s.newShipment("SHP-1")

	s.shipments.failSaves.Store(1)
	s.arrive(sh, 0)
	res, err := s.engine.Submit(s.ctx, s.req("SHP-1", "DEL"))
	s.Require().ErrorIs(err, sentinel.ErrPersistFailed)
	s.Require().NotNil(res)
	s.Equal(0, res.Checkpoint.Index)
	s.Equal(1, s.ledgerCount("SHP-1"))

	stored, err := s.shipments.Get(s.ctx, "SHP-1")
	s.Require().NoError(err)
	s.Nil(stored.Route[0].ActualArrival)

	s.arrive(sh, 1)
	res, err = s.engine.Submit(s.ctx, s.req("SHP-1", "JAI"))
	s.Require().NoError(err)
	s.Equal(1, res.NodeIndex)
	s.Equal(1, res.Checkpoint.Index)

	stored, err = s.shipments.Get(s.ctx, "SHP-1")
	s.Require().NoError(err)
	s.NotNil(stored.Route[0].ActualArrival)
	s.NotNil(stored.Route[1].ActualArrival)
	s.Len(stored.BlockchainTxHashes, 2)
	s.Equal(2, s.ledgerCount("SHP-1"))
}

// tamperAfterOrigin checks in at the origin, then overwrites the PO text behind the
// anchored hash so the next stop sees a changed bundle.
func (s *EngineSuite) tamperAfterOrigin(sh *models.Shipment) {
	s.arrive(sh, 0)
	_, err := s.engine.Submit(s.ctx, s.req(sh.ShipmentID, sh.Route[0].LocationCode))
	s.Require().NoError(err)

	stored, err := s.shipments.Get(s.ctx, sh.ShipmentID)
	s.Require().NoError(err)
	stored.POText = "B"
	s.Require().NoError(s.shipments.Save(s.ctx, stored))
}

func (s *EngineSuite) tamperFeed(id string) []models.Anomaly {
	feed, err := s.anomalies.List(s.ctx, models.AnomalyFilter{ShipmentIDs: []string{id}})
	s.Require().NoError(err)
	var out []models.Anomaly
	for _, a := range feed {
		if a.AnomalyType == models.AnomalyDocumentTampered {
			out = append(out, a)
		}
	}
	return out
}

func (s *EngineSuite) TestTamperSurvivesFailedShipmentSave() {
	sh := s.newShipment("SHP-1")
	s.tamperAfterOrigin(sh)

	s.shipments.failSaves.Store(1)
	s.arrive(sh, 1)
	res, err := s.engine.Submit(s.ctx, s.req("SHP-1", "JAI"))
	s.Require().ErrorIs(err, sentinel.ErrPersistFailed)
	s.True(res.HashVerification.TamperDetected)
	s.Equal(hashing.DocumentHash("A", "INV", "BOL").String(), res.Checkpoint.AnchoredHash)

	s.arrive(sh, 2)
	res, err = s.engine.Submit(s.ctx, s.req("SHP-1", "AMD"))
	s.Require().NoError(err)
	s.False(res.HashVerification.TamperDetected)
	s.True(res.AnomalyFlag)

	stored, err := s.shipments.Get(s.ctx, "SHP-1")
	s.Require().NoError(err)
	s.True(stored.AnomalyFlag)
	s.Equal(models.StatusDelivered, stored.CurrentStatus)

	feed := s.tamperFeed("SHP-1")
	s.Require().Len(feed, 1)
	s.Equal("JAI", feed[0].LocationCode)
}

func (s *EngineSuite) TestTamperRecreatedWhenAnomalyStoreFails() {
	sh := s.newShipment("SHP-1")
	s.tamperAfterOrigin(sh)

	s.anomalies.failAppends.Store(1)
	s.arrive(sh, 1)
	_, err := s.engine.Submit(s.ctx, s.req("SHP-1", "JAI"))
	s.Require().ErrorIs(err, sentinel.ErrPersistFailed)
	s.Empty(s.tamperFeed("SHP-1"))

	stored, err := s.shipments.Get(s.ctx, "SHP-1")
	s.Require().NoError(err)
	s.Nil(stored.Route[1].ActualArrival)
	s.False(stored.AnomalyFlag)

	s.arrive(sh, 2)
	_, err = s.engine.Submit(s.ctx, s.req("SHP-1", "AMD"))
	s.Require().NoError(err)

	stored, err = s.shipments.Get(s.ctx, "SHP-1")
	s.Require().NoError(err)
	s.True(stored.AnomalyFlag)
	s.Equal(models.StatusAnomaly, stored.DisplayStatus())
	s.Len(stored.BlockchainTxHashes, 3)

	feed := s.tamperFeed("SHP-1")
	s.Require().Len(feed, 1)
	s.Equal("JAI", feed[0].LocationCode)
	s.Equal(models.SeverityCritical, feed[0].Severity)
	s.Equal(hashing.DocumentHash("A", "INV", "BOL").String(), feed[0].Details["expected_hash"])
}

func (s *EngineSuite) TestRouteRevisitingHub() {
	sh := s.newShipment("SHP-1", "DEL", "JAI", "DEL", "AMD")

	for i, code := range []string{"DEL", "JAI"} {
		s.arrive(sh, i)
		_, err := s.engine.Submit(s.ctx, s.req("SHP-1", code))
		s.Require().NoError(err)
	}

	_, err := s.engine.Submit(s.ctx, s.req("SHP-1", "JAI"))
	s.Require().ErrorIs(err, sentinel.ErrInvalidTransition)
	s.Contains(err.Error(), "already recorded")

	_, err = s.engine.Submit(s.ctx, s.req("SHP-1", "AMD"))
	s.Require().ErrorIs(err, sentinel.ErrInvalidTransition)
	s.Contains(err.Error(), "previous stop DEL not visited")

	s.arrive(sh, 2)
	res, err := s.engine.Submit(s.ctx, s.req("SHP-1", "DEL"))
	s.Require().NoError(err)
	s.Equal(2, res.NodeIndex)
	s.Equal(2, res.Checkpoint.Index)

	s.arrive(sh, 3)
	res, err = s.engine.Submit(s.ctx, s.req("SHP-1", "AMD"))
	s.Require().NoError(err)
	s.Equal(OutcomeDelivered, res.Outcome)

	stored, err := s.shipments.Get(s.ctx, "SHP-1")
	s.Require().NoError(err)
	s.True(stored.OrderingValid())
	s.Equal(models.StatusDelivered, stored.CurrentStatus)
}

func (s *EngineSuite) TestBusyGateRejects() {
	s.newShipment("SHP-1")

	release, err := s.gate.TryAcquire(s.ctx)
	s.Require().NoError(err)

	_, err = s.engine.Submit(s.ctx, s.req("SHP-1", "DEL"))
	s.Require().ErrorIs(err, sentinel.ErrBusy)

	err = s.engine.Exclusive(s.ctx, func(context.Context) error { return nil })
	s.Require().ErrorIs(err, sentinel.ErrBusy)

	release()
	_, err = s.engine.Submit(s.ctx, s.req("SHP-1", "DEL"))
	s.Require().NoError(err)
}

func (s *EngineSuite) TestDelayRaisesAnomalyAndRipples() {
	sh := s.newShipment("SHP-1")
	s.arrive(sh, 0)
	_, err := s.engine.Submit(s.ctx, s.req("SHP-1", "DEL"))
	s.Require().NoError(err)

	// JAI planned at +5h; arrive 8h late against a 6h allowance
	s.clock.Set(sh.Route[1].ExpectedArrival.Add(8 * time.Hour))
	res, err := s.engine.Submit(s.ctx, s.req("SHP-1", "JAI"))
	s.Require().NoError(err)
	s.Equal(OutcomeAnomalyDetected, res.Outcome)
	s.Equal(float64(8*3600), res.DelaySeconds)
	s.Require().Len(res.Anomalies, 1)
	s.Equal(models.AnomalyDelay, res.Anomalies[0].AnomalyType)
	s.Equal(models.SeverityMedium, res.Anomalies[0].Severity)
	s.False(res.AnomalyFlag)

	stored, err := s.shipments.Get(s.ctx, "SHP-1")
	s.Require().NoError(err)
	s.Equal(sh.Route[2].ExpectedArrival.Add(8*time.Hour), *stored.Route[2].ExpectedArrival)
	s.Equal(s.clock.Now().Add(10*time.Hour), *stored.Route[2].ETA)

	s.Run("the same delay is not reported again downstream", func() {
		s.clock.Set(*stored.Route[2].ExpectedArrival)
		res, err := s.engine.Submit(s.ctx, s.req("SHP-1", "AMD"))
		s.Require().NoError(err)
		s.Empty(res.Anomalies)
	})
}

func (s *EngineSuite) TestBaselineWeightFromFirstCheckpoint() {
	sh := s.newShipment("SHP-1")
	stored, err := s.shipments.Get(s.ctx, "SHP-1")
	s.Require().NoError(err)
	stored.RiskProfile.BaselineWeightKg = 0
	s.Require().NoError(s.shipments.Save(s.ctx, stored))

	s.arrive(sh, 0)
	r := s.req("SHP-1", "DEL")
	r.Telemetry.WeightKg = 500
	res, err := s.engine.Submit(s.ctx, r)
	s.Require().NoError(err)
	s.Empty(res.Anomalies)
	s.Equal(500.0, res.Shipment.RiskProfile.BaselineWeightKg)

	s.arrive(sh, 1)
	r = s.req("SHP-1", "JAI")
	r.Telemetry.WeightKg = 400
	res, err = s.engine.Submit(s.ctx, r)
	s.Require().NoError(err)
	s.Require().Len(res.Anomalies, 1)
	s.Equal(models.AnomalyWeightDeviation, res.Anomalies[0].AnomalyType)
	s.Equal(models.SeverityCritical, res.Anomalies[0].Severity)
	s.True(res.AnomalyFlag)
}

func (s *EngineSuite) TestEventsAndEnrichment() {
	sh := s.newShipment("SHP-1")
	s.arrive(sh, 0)
	r := s.req("SHP-1", "DEL")
	r.Telemetry.Temperature = models.Float64(12)
	_, err := s.engine.Submit(s.ctx, r)
	s.Require().NoError(err)

	got := s.recorder.Drain()
	s.Require().Len(got, 2)
	s.Equal(events.CheckpointRecorded, got[0].Type)
	s.Equal([]string{"M1", "R1"}, got[0].Recipients)
	s.Equal(events.AnomalyDetected, got[1].Type)

	s.Require().Len(s.enricher.calls, 1)
	s.Equal(models.AnomalyTemperatureBreach, s.enricher.calls[0][0].AnomalyType)
}

func (s *EngineSuite) TestConcurrentSubmissionsKeepOrder() {
	ids := []string{"SHP-A", "SHP-B", "SHP-C", "SHP-D"}
	for _, id := range ids {
		s.newShipment(id, "DEL", "JAI", "AMD", "MUM")
	}
	s.clock.Set(s.depart.Add(time.Hour))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for attempt := 0; attempt < 2000; attempt++ {
				id := ids[rng.Intn(len(ids))]
				sh, err := s.shipments.Get(s.ctx, id)
				if err != nil {
					return
				}
				next := sh.NextStopIndex()
				if next < 0 {
					if s.allDelivered(ids) {
						return
					}
					continue
				}
				_, err = s.engine.Submit(s.ctx, s.req(id, sh.Route[next].LocationCode))
				if err != nil && !errors.Is(err, sentinel.ErrBusy) && !errors.Is(err, sentinel.ErrInvalidTransition) {
					s.Failf("unexpected error", "%v", err)
					return
				}
			}
		}(int64(w))
	}
	wg.Wait()

	for _, id := range ids {
		sh, err := s.shipments.Get(s.ctx, id)
		s.Require().NoError(err)
		s.True(sh.OrderingValid(), id)

		n := s.ledgerCount(id)
		s.Equal(sh.ArrivedCount(), n, id)
		entries, err := s.ledger.Range(s.ctx, id, 0, n)
		s.Require().NoError(err)
		s.NoError(ledger.VerifyChain(entries))
		for i, cp := range entries {
			s.Equal(i, cp.Index)
			s.Equal(sh.Route[i].LocationCode, cp.LocationCode)
		}
	}
}

func (s *EngineSuite) allDelivered(ids []string) bool {
	for _, id := range ids {
		sh, err := s.shipments.Get(s.ctx, id)
		if err != nil || sh.CurrentStatus != models.StatusDelivered {
			return false
		}
	}
	return true
}
