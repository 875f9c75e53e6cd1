// server/internal/models/common.go
package models

// Telemetry là dữ liệu cảm biến gửi kèm mỗi lần check-in tại một node.
type Telemetry struct {
	Temperature *float64 `bson:"temperature,omitempty" json:"temperature"`
	Humidity    *float64 `bson:"humidity,omitempty" json:"humidity"`
	WeightKg    float64  `bson:"weightKg" json:"weight_kg"`
}

// HashVerification is the document-integrity part of a checkpoint response.
type HashVerification struct {
	Verified       bool   `json:"verified"`
	TamperDetected bool   `json:"tamper_detected"`
	ExpectedHash   string `json:"expected_hash"`
	CurrentHash    string `json:"current_hash"`
}

// Float64 returns a pointer to v; handy for optional telemetry fields.
func Float64(v float64) *float64 {
	return &v
}
