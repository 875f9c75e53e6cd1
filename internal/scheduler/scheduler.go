// Package scheduler drives simulated shipments along their routes by
// submitting synthesized checkpoints through the checkpoint engine.
package scheduler

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"supply-daddy-api-server/config"
	"supply-daddy-api-server/internal/checkpoint"
	"supply-daddy-api-server/internal/logger"
	"supply-daddy-api-server/internal/metrics"
	"supply-daddy-api-server/internal/models"
	"supply-daddy-api-server/internal/routegraph"
	"supply-daddy-api-server/internal/sentinel"
)

const (
	moduleName = "scheduler"

	// defaultWeightKg seeds shipments created without a baseline weight.
	defaultWeightKg = 500.0
)

type Config struct {
	// HourScale is the wall-clock time one hour of planned travel takes.
	HourScale      time.Duration
	OriginDwell    time.Duration
	SettleInterval time.Duration
	IdleInterval   time.Duration
	ScannerID      string
	StartPaused    bool
}

func ConfigFrom(c config.SimulationConfig) Config {
	return Config{
		HourScale:      c.HourScale,
		OriginDwell:    c.OriginDwell,
		SettleInterval: c.SettleInterval,
		IdleInterval:   c.IdleInterval,
		ScannerID:      c.ScannerID,
		StartPaused:    !c.Enabled,
	}
}

// Override replaces parts of the next synthesized reading for a shipment.
type Override struct {
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	WeightKg    *float64 `json:"weight_kg,omitempty"`
}

func (o Override) empty() bool {
	return o.Temperature == nil && o.Humidity == nil && o.WeightKg == nil
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Paused           bool       `json:"paused"`
	Running          bool       `json:"running"`
	Cycles           int64      `json:"cycles"`
	Failures         int64      `json:"failures"`
	LastShipmentID   string     `json:"last_shipment_id,omitempty"`
	LastLocation     string     `json:"last_location,omitempty"`
	LastOutcome      string     `json:"last_outcome,omitempty"`
	LastError        string     `json:"last_error,omitempty"`
	LastRunAt        *time.Time `json:"last_run_at,omitempty"`
	PendingOverrides int        `json:"pending_overrides"`
}

type target struct {
	shipment *models.Shipment
	index    int
	wait     time.Duration
}

type Scheduler struct {
	engine  *checkpoint.Engine
	cfg     Config
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	rng     *rand.Rand

	mu        sync.Mutex
	paused    bool
	interrupt chan struct{} // closed by Pause to abort the pending wait
	resumed   chan struct{} // closed by Resume
	overrides map[string]Override
	cursor    string
	status    Status
}

func New(engine *checkpoint.Engine, cfg Config, log logrus.FieldLogger, m *metrics.Metrics) *Scheduler {
	if log == nil {
		log = logger.Discard()
	}
	if cfg.ScannerID == "" {
		cfg.ScannerID = "sim-scanner"
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = time.Second
	}
	s := &Scheduler{
		engine:    engine,
		cfg:       cfg,
		log:       log.WithField("module", moduleName),
		metrics:   m,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		paused:    cfg.StartPaused,
		interrupt: make(chan struct{}),
		resumed:   make(chan struct{}),
		overrides: make(map[string]Override),
	}
	s.status.Paused = cfg.StartPaused
	m.SetSchedulerPaused(cfg.StartPaused)
	return s
}

// Run blocks until ctx is cancelled. It returns nil on cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	s.setRunning(true)
	defer s.setRunning(false)
	s.log.WithField("hour_scale", s.cfg.HourScale.String()).Info("transit scheduler started")

	for {
		if !s.waitWhilePaused(ctx) {
			s.log.Info("transit scheduler stopped")
			return nil
		}

		t, err := s.next(ctx)
		if err != nil {
			s.fail("", "", err)
			s.sleep(ctx, s.cfg.IdleInterval)
			continue
		}
		if t == nil {
			s.metrics.IncrementSchedulerCycle("idle")
			s.sleep(ctx, s.cfg.IdleInterval)
			continue
		}

		if !s.sleep(ctx, t.wait) {
			// Paused or cancelled; the target is recomputed on the next pass.
			continue
		}
		s.fire(ctx, t)
		s.sleep(ctx, s.cfg.SettleInterval)
	}
}

func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return
	}
	s.paused = true
	s.status.Paused = true
	close(s.interrupt)
	s.resumed = make(chan struct{})
	s.metrics.SetSchedulerPaused(true)
	s.log.Info("transit simulation paused")
}

func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return
	}
	s.paused = false
	s.status.Paused = false
	s.interrupt = make(chan struct{})
	close(s.resumed)
	s.metrics.SetSchedulerPaused(false)
	s.log.Info("transit simulation resumed")
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.PendingOverrides = len(s.overrides)
	return st
}

// OverrideTelemetry merges o into the pending override for shipmentID. It is
// consumed by the next synthesized checkpoint of that shipment.
func (s *Scheduler) OverrideTelemetry(shipmentID string, o Override) {
	if o.empty() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.overrides[shipmentID]
	if o.Temperature != nil {
		cur.Temperature = o.Temperature
	}
	if o.Humidity != nil {
		cur.Humidity = o.Humidity
	}
	if o.WeightKg != nil {
		cur.WeightKg = o.WeightKg
	}
	s.overrides[shipmentID] = cur
}

func (s *Scheduler) takeOverride(shipmentID string) (Override, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.overrides[shipmentID]
	delete(s.overrides, shipmentID)
	return o, ok
}

// next picks the first active shipment after the cursor, wrapping around.
func (s *Scheduler) next(ctx context.Context) (*target, error) {
	active, err := s.engine.Shipments().ListActive(ctx)
	if err != nil {
		return nil, err
	}
	var candidates []*models.Shipment
	for _, sh := range active {
		if sh.CurrentStatus != models.StatusDelivered && sh.NextStopIndex() >= 0 {
			candidates = append(candidates, sh)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	cursor := s.cursor
	s.mu.Unlock()

	pick := candidates[0]
	for _, sh := range candidates {
		if sh.ShipmentID > cursor {
			pick = sh
			break
		}
	}

	idx := pick.NextStopIndex()
	wait := s.cfg.OriginDwell
	if idx > 0 {
		wait = TravelWait(s.engine.Graph(), pick.Route[idx-1].LocationCode, pick.Route[idx].LocationCode, s.cfg.HourScale)
	}
	return &target{shipment: pick, index: idx, wait: wait}, nil
}

func (s *Scheduler) fire(ctx context.Context, t *target) {
	sh := t.shipment
	location := sh.Route[t.index].LocationCode

	s.mu.Lock()
	s.cursor = sh.ShipmentID
	s.mu.Unlock()

	// The target was picked before the travel wait; a manual checkpoint may
	// have moved the shipment on since then.
	current, err := s.engine.Shipments().Get(ctx, sh.ShipmentID)
	if err != nil {
		s.fail(sh.ShipmentID, location, err)
		return
	}
	if current.CurrentStatus == models.StatusDelivered || current.NextStopIndex() != t.index {
		s.metrics.IncrementSchedulerCycle("stale")
		s.log.WithFields(logrus.Fields{
			"shipment_id": sh.ShipmentID,
			"location":    location,
		}).Debug("target moved during travel wait, skipped")
		return
	}
	sh = current

	req := checkpoint.SubmitRequest{
		ShipmentID:   sh.ShipmentID,
		LocationCode: location,
		Telemetry:    s.synthesize(sh),
		ScannedBy:    s.cfg.ScannerID,
	}
	res, err := s.engine.Submit(ctx, req)
	if res == nil || (err != nil && !errors.Is(err, sentinel.ErrPersistFailed)) {
		s.fail(sh.ShipmentID, location, err)
		return
	}

	now := time.Now().UTC()
	s.mu.Lock()
	s.status.Cycles++
	s.status.LastShipmentID = sh.ShipmentID
	s.status.LastLocation = location
	s.status.LastOutcome = string(res.Outcome)
	s.status.LastError = ""
	s.status.LastRunAt = &now
	s.mu.Unlock()
	s.metrics.IncrementSchedulerCycle("ok")

	s.log.WithFields(logrus.Fields{
		"shipment_id": sh.ShipmentID,
		"location":    location,
		"outcome":     res.Outcome,
	}).Debug("simulated checkpoint submitted")
}

// synthesize produces a reading inside the category's safe envelope, with
// any pending override applied on top.
func (s *Scheduler) synthesize(sh *models.Shipment) models.Telemetry {
	p := s.engine.Classifier().Config().PolicyFor(sh.RiskProfile.ProductCategory)

	baseline := sh.RiskProfile.BaselineWeightKg
	if baseline <= 0 {
		baseline = defaultWeightKg
	}
	spread := math.Min(0.01, p.WeightTolerance) * 0.9
	t := models.Telemetry{
		Temperature: models.Float64(round1(between(s.rng, p.TempMin, p.TempMax))),
		Humidity:    models.Float64(round1(between(s.rng, p.HumidityMin, p.HumidityMax))),
		WeightKg:    baseline * (1 + spread*(2*s.rng.Float64()-1)),
	}

	if o, ok := s.takeOverride(sh.ShipmentID); ok {
		if o.Temperature != nil {
			t.Temperature = o.Temperature
		}
		if o.Humidity != nil {
			t.Humidity = o.Humidity
		}
		if o.WeightKg != nil {
			t.WeightKg = *o.WeightKg
		}
		s.log.WithField("shipment_id", sh.ShipmentID).Info("telemetry override applied")
	}
	return t
}

func (s *Scheduler) fail(shipmentID, location string, err error) {
	result := "failed"
	if errors.Is(err, sentinel.ErrBusy) {
		result = "busy"
	}
	s.metrics.IncrementSchedulerCycle(result)

	s.mu.Lock()
	s.status.Failures++
	s.status.LastError = err.Error()
	s.mu.Unlock()

	logger.LogError(s.log, moduleName, "fire", "simulated checkpoint rejected", logrus.Fields{
		"shipment_id": shipmentID,
		"location":    location,
	}, err)
}

func (s *Scheduler) setRunning(running bool) {
	s.mu.Lock()
	s.status.Running = running
	s.mu.Unlock()
}

// waitWhilePaused blocks until resumed. It returns false once ctx is done.
func (s *Scheduler) waitWhilePaused(ctx context.Context) bool {
	for {
		s.mu.Lock()
		paused, resumed := s.paused, s.resumed
		s.mu.Unlock()
		if !paused {
			return ctx.Err() == nil
		}
		select {
		case <-ctx.Done():
			return false
		case <-resumed:
		}
	}
}

// sleep waits for d and reports whether the full wait elapsed. Pause and
// cancellation cut it short.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	s.mu.Lock()
	paused, interrupt := s.paused, s.interrupt
	s.mu.Unlock()
	if paused {
		return false
	}
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-interrupt:
		return false
	case <-timer.C:
		return true
	}
}

func between(rng *rand.Rand, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + rng.Float64()*(hi-lo)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// TravelWait is the wall-clock wait the scheduler applies between two stops.
func TravelWait(g *routegraph.Graph, from, to string, hourScale time.Duration) time.Duration {
	return time.Duration(g.TravelHours(from, to) * float64(hourScale))
}
