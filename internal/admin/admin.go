// Package admin is the privileged "god mode" surface used by demo operators.
// Every mutation shares the checkpoint submission gate.
package admin

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"supply-daddy-api-server/internal/checkpoint"
	"supply-daddy-api-server/internal/events"
	"supply-daddy-api-server/internal/hashing"
	"supply-daddy-api-server/internal/logger"
	"supply-daddy-api-server/internal/models"
	"supply-daddy-api-server/internal/routegraph"
	"supply-daddy-api-server/internal/scheduler"
	"supply-daddy-api-server/internal/sentinel"
)

// Simulation is the part of the transit scheduler the admin surface drives.
type Simulation interface {
	Pause()
	Resume()
	Status() scheduler.Status
	OverrideTelemetry(shipmentID string, o scheduler.Override)
}

type Service struct {
	engine     *checkpoint.Engine
	simulation Simulation
	log        logrus.FieldLogger
}

func NewService(engine *checkpoint.Engine, simulation Simulation, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{engine: engine, simulation: simulation, log: log.WithField("module", "admin")}
}

// TamperRequest overwrites document text. Nil fields are left alone.
type TamperRequest struct {
	POText      *string `json:"po_text"`
	InvoiceText *string `json:"invoice_text"`
	BOLText     *string `json:"bol_text"`
}

type TamperResult struct {
	ShipmentID   string   `json:"shipment_id"`
	AnchoredHash string   `json:"anchored_hash"`
	CurrentHash  string   `json:"current_hash"`
	Fields       []string `json:"fields"`
	Message      string   `json:"message"`
}

type DelayResult struct {
	ShipmentID   string             `json:"shipment_id"`
	NodeIndex    int                `json:"node_index"`
	LocationCode string             `json:"location_code"`
	DelayHours   float64            `json:"delay_hours"`
	Route        []models.RouteStop `json:"route"`
	Anomalies    []models.Anomaly   `json:"anomalies"`
	AnomalyFlag  bool               `json:"anomaly_flag"`
}

// ManualCheckpoint submits a checkpoint on behalf of an operator.
func (s *Service) ManualCheckpoint(ctx context.Context, req checkpoint.SubmitRequest) (*checkpoint.Result, error) {
	return s.engine.Submit(ctx, req)
}

// Tamper overwrites document text without touching the anchored hash, so the
// next checkpoint detects the change.
func (s *Service) Tamper(ctx context.Context, shipmentID string, req TamperRequest) (*TamperResult, error) {
	if req.POText == nil && req.InvoiceText == nil && req.BOLText == nil {
		return nil, fmt.Errorf("at least one document field is required: %w", sentinel.ErrValidation)
	}

	var out *TamperResult
	err := s.engine.Exclusive(ctx, func(ctx context.Context) error {
		sh, err := s.engine.Shipments().Get(ctx, shipmentID)
		if err != nil {
			return err
		}
		var fields []string
		if req.POText != nil {
			sh.POText = *req.POText
			fields = append(fields, "po_text")
		}
		if req.InvoiceText != nil {
			sh.InvoiceText = *req.InvoiceText
			fields = append(fields, "invoice_text")
		}
		if req.BOLText != nil {
			sh.BOLText = *req.BOLText
			fields = append(fields, "bol_text")
		}
		if err := s.engine.Shipments().Save(ctx, sh); err != nil {
			return err
		}

		out = &TamperResult{
			ShipmentID:   sh.ShipmentID,
			AnchoredHash: sh.DocHash,
			CurrentHash:  hashing.DocumentHash(sh.POText, sh.InvoiceText, sh.BOLText).String(),
			Fields:       fields,
			Message:      "documents modified; the next checkpoint will flag the mismatch",
		}
		s.publish(ctx, events.Event{
			Type:       events.DocumentsTampered,
			ShipmentID: sh.ShipmentID,
			At:         s.engine.Now(),
			Payload:    out,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"shipment_id": shipmentID, "fields": out.Fields}).Warn("documents tampered via god mode")
	return out, nil
}

// InjectDelay pushes every stop after nodeIndex back by delayHours and
// records a DELAY anomaly when the delay exceeds the category allowance.
func (s *Service) InjectDelay(ctx context.Context, shipmentID string, nodeIndex int, delayHours float64) (*DelayResult, error) {
	if math.IsNaN(delayHours) || math.IsInf(delayHours, 0) || delayHours <= 0 {
		return nil, fmt.Errorf("delay_hours must be positive: %w", sentinel.ErrValidation)
	}

	var out *DelayResult
	var stored []models.Anomaly
	var snapshot *models.Shipment
	err := s.engine.Exclusive(ctx, func(ctx context.Context) error {
		sh, err := s.engine.Shipments().Get(ctx, shipmentID)
		if err != nil {
			return err
		}
		if nodeIndex < 0 || nodeIndex >= len(sh.Route) {
			return fmt.Errorf("node_index %d outside route of %d stops: %w", nodeIndex, len(sh.Route), sentinel.ErrValidation)
		}
		if sh.CurrentStatus == models.StatusDelivered {
			return fmt.Errorf("shipment %s is already delivered: %w", shipmentID, sentinel.ErrInvalidTransition)
		}

		delay := routegraph.Hours(delayHours)
		routegraph.PropagateDelay(sh.Route, nodeIndex, delay)

		report := s.engine.Classifier().ClassifyDelay(sh.RiskProfile.ProductCategory, delay)
		now := s.engine.Now()
		location := sh.Route[nodeIndex].LocationCode
		for i := range report.Anomalies {
			report.Anomalies[i].AnomalyID = uuid.NewString()
			report.Anomalies[i].ShipmentID = sh.ShipmentID
			report.Anomalies[i].LocationCode = location
			report.Anomalies[i].CreatedAt = now
			report.Anomalies[i].Details["injected"] = true
		}
		if report.Critical() {
			sh.AnomalyFlag = true
		}

		if err := s.engine.Shipments().Save(ctx, sh); err != nil {
			return err
		}
		if len(report.Anomalies) > 0 {
			if err := s.engine.Anomalies().AppendMany(ctx, report.Anomalies); err != nil {
				return fmt.Errorf("store delay anomaly: %w: %v", sentinel.ErrPersistFailed, err)
			}
		}

		stored = report.Anomalies
		snapshot = sh
		out = &DelayResult{
			ShipmentID:   sh.ShipmentID,
			NodeIndex:    nodeIndex,
			LocationCode: location,
			DelayHours:   delayHours,
			Route:        sh.Route,
			Anomalies:    report.Anomalies,
			AnomalyFlag:  sh.AnomalyFlag,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m := s.engine.Metrics()
	for _, a := range stored {
		m.IncrementAnomaly(string(a.AnomalyType), string(a.Severity))
	}
	if enricher := s.engine.Enricher(); enricher != nil && len(stored) > 0 {
		enricher.Enqueue(snapshot.Clone(), stored)
	}
	recipients := []string{snapshot.ManufacturerID, snapshot.ReceiverID}
	s.publish(ctx, events.Event{
		Type:       events.ShipmentDelayed,
		ShipmentID: shipmentID,
		At:         s.engine.Now(),
		Payload:    out,
		Recipients: recipients,
	})
	for _, a := range stored {
		s.publish(ctx, events.Event{
			Type:       events.AnomalyDetected,
			ShipmentID: shipmentID,
			At:         a.CreatedAt,
			Payload:    a,
			Recipients: recipients,
		})
	}
	s.log.WithFields(logrus.Fields{
		"shipment_id": shipmentID,
		"node_index":  nodeIndex,
		"delay_hours": delayHours,
	}).Info("delay injected")
	return out, nil
}

// OverrideTelemetry queues readings for the next simulated checkpoint of the
// shipment. The readings go through the engine like any other checkpoint.
func (s *Service) OverrideTelemetry(ctx context.Context, shipmentID string, o scheduler.Override) error {
	if s.simulation == nil {
		return fmt.Errorf("transit simulation is not configured: %w", sentinel.ErrConflict)
	}
	if o.Temperature == nil && o.Humidity == nil && o.WeightKg == nil {
		return fmt.Errorf("at least one reading is required: %w", sentinel.ErrValidation)
	}
	probe := models.Telemetry{Temperature: o.Temperature, Humidity: o.Humidity}
	if o.WeightKg != nil {
		probe.WeightKg = *o.WeightKg
	}
	if err := checkpoint.ValidateTelemetry(probe); err != nil {
		return err
	}

	sh, err := s.engine.Shipments().Get(ctx, shipmentID)
	if err != nil {
		return err
	}
	if sh.CurrentStatus == models.StatusDelivered {
		return fmt.Errorf("shipment %s is already delivered: %w", shipmentID, sentinel.ErrInvalidTransition)
	}
	s.simulation.OverrideTelemetry(shipmentID, o)
	s.log.WithField("shipment_id", shipmentID).Info("telemetry override queued")
	return nil
}

func (s *Service) PauseSimulation() (scheduler.Status, error) {
	if s.simulation == nil {
		return scheduler.Status{}, fmt.Errorf("transit simulation is not configured: %w", sentinel.ErrConflict)
	}
	s.simulation.Pause()
	return s.simulation.Status(), nil
}

func (s *Service) ResumeSimulation() (scheduler.Status, error) {
	if s.simulation == nil {
		return scheduler.Status{}, fmt.Errorf("transit simulation is not configured: %w", sentinel.ErrConflict)
	}
	s.simulation.Resume()
	return s.simulation.Status(), nil
}

func (s *Service) SimulationStatus() (scheduler.Status, error) {
	if s.simulation == nil {
		return scheduler.Status{}, fmt.Errorf("transit simulation is not configured: %w", sentinel.ErrConflict)
	}
	return s.simulation.Status(), nil
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if p := s.engine.Events(); p != nil {
		_ = p.Publish(ctx, ev)
	}
}
