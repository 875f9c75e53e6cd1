// Package narrative enriches anomalies with a short human-readable risk
// narrative and classifies shipment documents, using Gemini when an API key
// is configured.
package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"supply-daddy-api-server/internal/models"
)

const DefaultModel = "gemini-2.0-flash"

// Narrator writes a narrative for one anomaly.
type Narrator interface {
	Narrate(ctx context.Context, shipment *models.Shipment, a models.Anomaly) (string, error)
}

// Classification is the risk profile inferred from shipment documents.
type Classification struct {
	ProductCategory    string   `json:"product_category"`
	RiskFlags          []string `json:"risk_flags"`
	HazardClass        *string  `json:"hazard_class"`
	ComplianceRequired []string `json:"compliance_required"`
	ConfidenceScore    float64  `json:"confidence_score"`
}

// DocumentClassifier infers a product category from document text.
type DocumentClassifier interface {
	ClassifyDocuments(ctx context.Context, poText, invoiceText, bolText string) (Classification, error)
}

type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

func NewGemini(ctx context.Context, apiKey, model string, timeout time.Duration) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("GenAI API key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Gemini{client: client, model: model, timeout: timeout}, nil
}

func (g *Gemini) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("GenAI returned an empty response")
	}
	return text, nil
}

func (g *Gemini) Narrate(ctx context.Context, shipment *models.Shipment, a models.Anomaly) (string, error) {
	masker := NewMasker()
	prompt := masker.Mask(AnomalyPrompt(shipment, a), shipment.ManufacturerID, shipment.ReceiverID)
	text, err := g.generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	return masker.Unmask(text), nil
}

func (g *Gemini) ClassifyDocuments(ctx context.Context, poText, invoiceText, bolText string) (Classification, error) {
	masker := NewMasker()
	prompt := ClassificationPrompt(masker.Mask(poText), masker.Mask(invoiceText), masker.Mask(bolText))
	text, err := g.generate(ctx, prompt)
	if err != nil {
		return Classification{}, err
	}
	c, err := ParseClassification(text)
	if err != nil {
		return Classification{}, err
	}
	c.ProductCategory = masker.Unmask(c.ProductCategory)
	return c, nil
}

// AnomalyPrompt asks for a short assessment of one anomaly.
func AnomalyPrompt(s *models.Shipment, a models.Anomaly) string {
	details, _ := json.Marshal(a.Details)
	var b strings.Builder
	b.WriteString("You are a supply chain risk analyst. In at most three sentences, ")
	b.WriteString("assess the business impact of this anomaly and recommend one action.\n\n")
	fmt.Fprintf(&b, "Shipment: %s (%s -> %s)\n", s.ShipmentID, s.Origin, s.Destination)
	fmt.Fprintf(&b, "Product category: %s\n", s.RiskProfile.ProductCategory)
	fmt.Fprintf(&b, "Anomaly: %s, severity %s, at %s\n", a.AnomalyType, a.Severity, a.LocationCode)
	fmt.Fprintf(&b, "Details: %s\n", details)
	return b.String()
}

func ClassificationPrompt(poText, invoiceText, bolText string) string {
	return fmt.Sprintf(`You are a supply chain compliance auditor. Analyze the following shipping documents and classify the shipment.

== PURCHASE ORDER ==
%s

== INVOICE ==
%s

== BILL OF LADING ==
%s

Respond ONLY with a JSON object with the keys product_category (one of pharmaceutical, food_grain, lithium_battery, electronics, or a custom category), risk_flags, hazard_class, compliance_required and confidence_score.`,
		poText, invoiceText, bolText)
}

// ParseClassification reads the model's JSON answer, tolerating a fenced
// code block around it.
func ParseClassification(text string) (Classification, error) {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		var lines []string
		for _, l := range strings.Split(cleaned, "\n") {
			if !strings.HasPrefix(strings.TrimSpace(l), "```") {
				lines = append(lines, l)
			}
		}
		cleaned = strings.Join(lines, "\n")
	}
	var c Classification
	if err := json.Unmarshal([]byte(cleaned), &c); err != nil {
		return Classification{}, fmt.Errorf("parse classification: %w", err)
	}
	c.ProductCategory = strings.ToLower(strings.TrimSpace(c.ProductCategory))
	if c.ProductCategory == "" {
		c.ProductCategory = "default"
	}
	return c, nil
}

// Template is the offline narrator used when no API key is configured.
type Template struct{}

func (Template) Narrate(_ context.Context, s *models.Shipment, a models.Anomaly) (string, error) {
	category := s.RiskProfile.ProductCategory
	if category == "" {
		category = "unclassified"
	}
	action := "Notify the quality assurance team and monitor the next checkpoint."
	switch a.Severity {
	case models.SeverityCritical, models.SeverityHigh:
		action = "Hold the shipment at its current node for inspection and notify quality assurance."
	}
	if a.AnomalyType.IsIntegrity() {
		action = "Freeze document changes and reconcile the paperwork with the manufacturer before release."
	}
	return fmt.Sprintf("%s %s anomaly at %s on %s shipment %s. Downstream delivery may be affected. %s",
		a.Severity, a.AnomalyType, a.LocationCode, category, s.ShipmentID, action), nil
}
