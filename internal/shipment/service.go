// Package shipment creates and reads shipments and owns the legitimate
// document update path.
package shipment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"supply-daddy-api-server/internal/auth"
	"supply-daddy-api-server/internal/checkpoint"
	"supply-daddy-api-server/internal/database"
	"supply-daddy-api-server/internal/events"
	"supply-daddy-api-server/internal/hashing"
	"supply-daddy-api-server/internal/logger"
	"supply-daddy-api-server/internal/models"
	"supply-daddy-api-server/internal/narrative"
	"supply-daddy-api-server/internal/sentinel"
)

const moduleName = "shipment"

// Archiver keeps an off-site copy of every document version.
type Archiver interface {
	ArchiveDocuments(ctx context.Context, shipmentID, poText, invoiceText, bolText, docHash string) (string, error)
}

type CreateRequest struct {
	Origin           string   `json:"origin"`
	Destination      string   `json:"destination"`
	ReceiverID       string   `json:"receiver_id"`
	ManufacturerID   string   `json:"manufacturer_id"`
	ProductCategory  string   `json:"product_category"`
	BaselineWeightKg float64  `json:"baseline_weight_kg"`
	RiskFlags        []string `json:"risk_flags"`
	POText           string   `json:"po_text"`
	InvoiceText      string   `json:"invoice_text"`
	BOLText          string   `json:"bol_text"`
	// Route lists explicit stop codes; empty means the shortest path.
	Route []string `json:"route"`
}

type DocumentsUpdate struct {
	POText      *string `json:"po_text"`
	InvoiceText *string `json:"invoice_text"`
	BOLText     *string `json:"bol_text"`
}

type Deps struct {
	Engine     *checkpoint.Engine
	Users      database.UserRepository
	Archiver   Archiver
	Classifier narrative.DocumentClassifier
	Log        logrus.FieldLogger
}

type Service struct {
	engine     *checkpoint.Engine
	users      database.UserRepository
	archiver   Archiver
	classifier narrative.DocumentClassifier
	log        logrus.FieldLogger
}

func NewService(d Deps) *Service {
	log := d.Log
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		engine:     d.Engine,
		users:      d.Users,
		archiver:   d.Archiver,
		classifier: d.Classifier,
		log:        log.WithField("module", moduleName),
	}
}

// NewShipmentID returns an id of the form SHP-XXXXXXXX.
func NewShipmentID() string {
	return "SHP-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *Service) Create(ctx context.Context, caller auth.Identity, req CreateRequest) (*models.Shipment, error) {
	manufacturerID := caller.UserID
	switch caller.Role {
	case models.RoleManufacturer:
	case models.RoleAdmin:
		if req.ManufacturerID != "" {
			manufacturerID = req.ManufacturerID
		}
	default:
		return nil, fmt.Errorf("role %s cannot create shipments: %w", caller.Role, sentinel.ErrForbidden)
	}

	req.Origin = strings.ToUpper(strings.TrimSpace(req.Origin))
	req.Destination = strings.ToUpper(strings.TrimSpace(req.Destination))
	if err := validateCreate(req); err != nil {
		return nil, err
	}
	if err := s.checkReceiver(ctx, req.ReceiverID); err != nil {
		return nil, err
	}

	now := s.engine.Now()
	graph := s.engine.Graph()
	var (
		route []models.RouteStop
		err   error
	)
	if len(req.Route) > 0 {
		codes := make([]string, len(req.Route))
		for i, c := range req.Route {
			codes[i] = strings.ToUpper(strings.TrimSpace(c))
		}
		if codes[0] != req.Origin || codes[len(codes)-1] != req.Destination {
			return nil, fmt.Errorf("route must start at origin and end at destination: %w", sentinel.ErrValidation)
		}
		route, err = graph.StopsFor(codes, now)
	} else {
		route, err = graph.PlanRoute(req.Origin, req.Destination, now)
	}
	if err != nil {
		return nil, err
	}

	profile := models.RiskProfile{
		ProductCategory:  strings.ToLower(strings.TrimSpace(req.ProductCategory)),
		BaselineWeightKg: req.BaselineWeightKg,
		RiskFlags:        req.RiskFlags,
	}
	if profile.ProductCategory == "" {
		profile.ProductCategory, profile.RiskFlags = s.classify(ctx, req)
	}

	sh := &models.Shipment{
		ShipmentID:         NewShipmentID(),
		Origin:             req.Origin,
		Destination:        req.Destination,
		ManufacturerID:     manufacturerID,
		ReceiverID:         req.ReceiverID,
		Route:              route,
		RiskProfile:        profile,
		CurrentStatus:      models.StatusCreated,
		POText:             req.POText,
		InvoiceText:        req.InvoiceText,
		BOLText:            req.BOLText,
		DocHash:            hashing.DocumentHash(req.POText, req.InvoiceText, req.BOLText).String(),
		BlockchainTxHashes: []string{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	sh.DocumentArchiveURL = s.archive(ctx, sh)

	if err := s.engine.Shipments().Create(ctx, sh); err != nil {
		return nil, err
	}

	if p := s.engine.Events(); p != nil {
		_ = p.Publish(ctx, events.Event{
			Type:       events.ShipmentCreated,
			ShipmentID: sh.ShipmentID,
			At:         now,
			Payload:    sh,
			Recipients: []string{sh.ManufacturerID, sh.ReceiverID},
		})
	}
	s.log.WithFields(logrus.Fields{
		"shipment_id": sh.ShipmentID,
		"origin":      sh.Origin,
		"destination": sh.Destination,
		"stops":       len(sh.Route),
	}).Info("shipment created")
	return sh, nil
}

func validateCreate(req CreateRequest) error {
	switch {
	case req.Origin == "" || req.Destination == "":
		return fmt.Errorf("origin and destination are required: %w", sentinel.ErrValidation)
	case req.ReceiverID == "":
		return fmt.Errorf("receiver_id is required: %w", sentinel.ErrValidation)
	case req.BaselineWeightKg < 0:
		return fmt.Errorf("baseline_weight_kg must not be negative: %w", sentinel.ErrValidation)
	}
	return nil
}

func (s *Service) checkReceiver(ctx context.Context, receiverID string) error {
	if s.users == nil {
		return nil
	}
	u, err := s.users.FindByID(ctx, receiverID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return fmt.Errorf("receiver %s does not exist: %w", receiverID, sentinel.ErrValidation)
	}
	if err != nil {
		return err
	}
	if u.Role != models.RoleReceiver {
		return fmt.Errorf("user %s is not a receiver: %w", receiverID, sentinel.ErrValidation)
	}
	return nil
}

// classify falls back to the default category when no classifier is set or
// it fails.
func (s *Service) classify(ctx context.Context, req CreateRequest) (string, []string) {
	if s.classifier == nil || (req.POText == "" && req.InvoiceText == "" && req.BOLText == "") {
		return "default", req.RiskFlags
	}
	c, err := s.classifier.ClassifyDocuments(ctx, req.POText, req.InvoiceText, req.BOLText)
	if err != nil {
		logger.LogError(s.log, moduleName, "Create", "document classification failed", nil, err)
		return "default", req.RiskFlags
	}
	flags := append(append([]string(nil), req.RiskFlags...), c.RiskFlags...)
	return c.ProductCategory, flags
}

func (s *Service) archive(ctx context.Context, sh *models.Shipment) string {
	if s.archiver == nil {
		return sh.DocumentArchiveURL
	}
	url, err := s.archiver.ArchiveDocuments(ctx, sh.ShipmentID, sh.POText, sh.InvoiceText, sh.BOLText, sh.DocHash)
	if err != nil {
		logger.LogError(s.log, moduleName, "archive", "document archive failed", sh.ShipmentID, err)
		return sh.DocumentArchiveURL
	}
	return url
}

func (s *Service) Get(ctx context.Context, caller auth.Identity, shipmentID string) (*models.Shipment, error) {
	sh, err := s.engine.Shipments().Get(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	if !caller.CanView(sh) {
		return nil, fmt.Errorf("shipment %s: %w", shipmentID, sentinel.ErrForbidden)
	}
	return sh, nil
}

// List returns the shipments the caller may see, newest first.
func (s *Service) List(ctx context.Context, caller auth.Identity, status models.ShipmentStatus) ([]*models.Shipment, error) {
	filter := database.ShipmentFilter{Status: status}
	switch caller.Role {
	case models.RoleAdmin, models.RoleTransitNode:
	case models.RoleManufacturer:
		filter.ManufacturerID = caller.UserID
	case models.RoleReceiver:
		filter.ReceiverID = caller.UserID
	default:
		return []*models.Shipment{}, nil
	}
	return s.engine.Shipments().List(ctx, filter)
}

// UpdateDocuments replaces document text and re-anchors the hash. Only the
// manufacturer (or an admin) may do this, and only before delivery.
func (s *Service) UpdateDocuments(ctx context.Context, caller auth.Identity, shipmentID string, upd DocumentsUpdate) (*models.Shipment, error) {
	if upd.POText == nil && upd.InvoiceText == nil && upd.BOLText == nil {
		return nil, fmt.Errorf("at least one document field is required: %w", sentinel.ErrValidation)
	}

	var out *models.Shipment
	err := s.engine.Exclusive(ctx, func(ctx context.Context) error {
		sh, err := s.engine.Shipments().Get(ctx, shipmentID)
		if err != nil {
			return err
		}
		if !caller.IsAdmin() && !(caller.Role == models.RoleManufacturer && sh.ManufacturerID == caller.UserID) {
			return fmt.Errorf("shipment %s: %w", shipmentID, sentinel.ErrForbidden)
		}
		if sh.CurrentStatus == models.StatusDelivered {
			return fmt.Errorf("documents of delivered shipment %s are final: %w", shipmentID, sentinel.ErrInvalidTransition)
		}
		if upd.POText != nil {
			sh.POText = *upd.POText
		}
		if upd.InvoiceText != nil {
			sh.InvoiceText = *upd.InvoiceText
		}
		if upd.BOLText != nil {
			sh.BOLText = *upd.BOLText
		}
		sh.DocHash = hashing.DocumentHash(sh.POText, sh.InvoiceText, sh.BOLText).String()
		sh.DocumentArchiveURL = s.archive(ctx, sh)
		if err := s.engine.Shipments().Save(ctx, sh); err != nil {
			return err
		}
		out = sh
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"shipment_id": shipmentID, "doc_hash": out.DocHash}).Info("shipment documents updated")
	return out, nil
}

// Anomalies is the anomaly feed. shipmentID narrows it to one shipment the
// caller may view; empty means every shipment the caller may view.
func (s *Service) Anomalies(ctx context.Context, caller auth.Identity, shipmentID string, resolved *bool) ([]models.Anomaly, error) {
	filter := models.AnomalyFilter{Resolved: resolved}
	switch {
	case shipmentID != "":
		if _, err := s.Get(ctx, caller, shipmentID); err != nil {
			return nil, err
		}
		filter.ShipmentIDs = []string{shipmentID}
	case caller.IsAdmin():
	default:
		visible, err := s.List(ctx, caller, "")
		if err != nil {
			return nil, err
		}
		if len(visible) == 0 {
			return []models.Anomaly{}, nil
		}
		for _, sh := range visible {
			filter.ShipmentIDs = append(filter.ShipmentIDs, sh.ShipmentID)
		}
	}
	return s.engine.Anomalies().List(ctx, filter)
}

// Ledger returns the full checkpoint history of a shipment in ledger order.
func (s *Service) Ledger(ctx context.Context, caller auth.Identity, shipmentID string) ([]models.Checkpoint, error) {
	if _, err := s.Get(ctx, caller, shipmentID); err != nil {
		return nil, err
	}
	l := s.engine.Ledger()
	count, err := l.Count(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	return l.Range(ctx, shipmentID, 0, count)
}

func (s *Service) LedgerEntry(ctx context.Context, caller auth.Identity, shipmentID string, index int) (models.Checkpoint, error) {
	if _, err := s.Get(ctx, caller, shipmentID); err != nil {
		return models.Checkpoint{}, err
	}
	return s.engine.Ledger().Get(ctx, shipmentID, index)
}
