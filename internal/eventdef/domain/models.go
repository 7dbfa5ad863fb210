package domain

import "encoding/json"

// ComplexityRange bounds the caller supplied complexity score.
type ComplexityRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Clamp limits v to [Min, Max].
func (r ComplexityRange) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

type Multipliers struct {
	Complexity *ComplexityRange   `json:"complexity,omitempty"`
	Features   map[string]float64 `json:"features,omitempty"`
}

// Definition is the pricing rule for one billable operation.
type Definition struct {
	EventType   string       `json:"eventType"`
	BaseCredits float64      `json:"baseCredits"`
	Description string       `json:"description"`
	Category    string       `json:"category"`
	Endpoint    string       `json:"endpoint,omitempty"`
	Multipliers *Multipliers `json:"multipliers,omitempty"`
}

// HasComplexity reports whether a complexity score affects the cost.
func (d Definition) HasComplexity() bool {
	return d.Multipliers != nil && d.Multipliers.Complexity != nil
}

// FeatureCredits returns the additive feature amounts, possibly nil.
func (d Definition) FeatureCredits() map[string]float64 {
	if d.Multipliers == nil {
		return nil
	}
	return d.Multipliers.Features
}

// UpdateRequest is a partial definition merged over the stored one.
type UpdateRequest struct {
	EventType string
	Patch     json.RawMessage
}
