// Package insight defines the Finding type and the merge/rank pipeline that
// every analysis surface (chat, batch, advisor, greeting, what-if) shares.
package insight

import (
	"encoding/json"
	"strings"
)

// ImpactDirection classifies what a finding's dollar figure means.
type ImpactDirection string

const (
	DirectionSave  ImpactDirection = "save"
	DirectionEarn  ImpactDirection = "earn"
	DirectionAvoid ImpactDirection = "avoid"
)

// Urgency classifies how time-sensitive a finding is.
type Urgency string

const (
	UrgencyImmediate Urgency = "immediate"
	UrgencyThisMonth Urgency = "this_month"
	UrgencyEvergreen Urgency = "evergreen"
)

// Confidence classifies how sure the producing agent is.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Finding is one structured analysis result. Title is the identity key for
// deduplication (case-insensitive, whitespace-trimmed).
type Finding struct {
	Title           string          `json:"title"`
	DollarImpact    float64         `json:"dollar_impact"`
	ImpactDirection ImpactDirection `json:"impact_direction"`
	Urgency         Urgency         `json:"urgency"`
	Reasoning       string          `json:"reasoning"`
	Confidence      Confidence      `json:"confidence"`
	WhatToDo        string          `json:"what_to_do"`
	Domain          string          `json:"domain,omitempty"`
	Source          string          `json:"_source,omitempty"`

	// impactMissing records that the wire payload had no numeric
	// dollar_impact. Findings constructed in Go always have one.
	impactMissing bool
}

type findingWire struct {
	Title           string           `json:"title"`
	DollarImpact    *json.Number     `json:"dollar_impact"`
	ImpactDirection ImpactDirection  `json:"impact_direction"`
	Urgency         Urgency          `json:"urgency"`
	Reasoning       string           `json:"reasoning"`
	Confidence      Confidence       `json:"confidence"`
	WhatToDo        string           `json:"what_to_do"`
	Domain          string           `json:"domain"`
	Source          string           `json:"_source"`
}

// UnmarshalJSON tolerates missing or non-numeric dollar_impact instead of
// failing the whole payload; the finding is marked invalid and dropped at
// merge time.
func (f *Finding) UnmarshalJSON(data []byte) error {
	var w findingWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	f.Title = w.Title
	f.ImpactDirection = w.ImpactDirection
	f.Urgency = w.Urgency
	f.Reasoning = w.Reasoning
	f.Confidence = w.Confidence
	f.WhatToDo = w.WhatToDo
	f.Domain = w.Domain
	f.Source = w.Source
	f.DollarImpact = 0
	f.impactMissing = true
	if w.DollarImpact != nil {
		if v, err := w.DollarImpact.Float64(); err == nil {
			f.DollarImpact = v
			f.impactMissing = false
		}
	}
	return nil
}

// Valid reports whether all seven required fields are present and the
// dollar impact was numeric. Invalid findings are dropped, never surfaced.
func (f Finding) Valid() bool {
	if f.impactMissing {
		return false
	}
	if f.Title == "" || f.Reasoning == "" || f.WhatToDo == "" {
		return false
	}
	switch f.ImpactDirection {
	case DirectionSave, DirectionEarn, DirectionAvoid:
	default:
		return false
	}
	switch f.Urgency {
	case UrgencyImmediate, UrgencyThisMonth, UrgencyEvergreen:
	default:
		return false
	}
	switch f.Confidence {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
	default:
		return false
	}
	return true
}

// TitleKey returns the normalized dedup key for the finding.
func (f Finding) TitleKey() string {
	return strings.ToLower(strings.TrimSpace(f.Title))
}
