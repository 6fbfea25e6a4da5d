// ABOUTME: Three-level confidence ranking shared by intents and field updates
// ABOUTME: Ordered so that tie-breaks and thresholds compare with plain operators
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Confidence is a closed, totally ordered ranking: Low < Medium < High.
type Confidence int

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceMedium:
		return "medium"
	default:
		return "low"
	}
}

// ParseConfidence accepts a label ("high", "Medium") or a probability
// ("0.9"). Unrecognized input is reported as false and ranks Low.
func ParseConfidence(s string) (Confidence, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "high":
		return ConfidenceHigh, true
	case "medium", "med":
		return ConfidenceMedium, true
	case "low":
		return ConfidenceLow, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return ConfidenceFromScore(f), true
	}
	return ConfidenceLow, false
}

// ConfidenceFromScore buckets a 0..1 probability.
func ConfidenceFromScore(f float64) Confidence {
	switch {
	case f >= 0.8:
		return ConfidenceHigh
	case f >= 0.5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Min returns the lower of two confidences.
func (c Confidence) Min(other Confidence) Confidence {
	if other < c {
		return other
	}
	return c
}

func (c Confidence) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Confidence) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var f float64
		if ferr := json.Unmarshal(data, &f); ferr != nil {
			return fmt.Errorf("confidence must be a label or number: %w", err)
		}
		*c = ConfidenceFromScore(f)
		return nil
	}
	*c, _ = ParseConfidence(s)
	return nil
}

func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Confidence) UnmarshalText(text []byte) error {
	parsed, ok := ParseConfidence(string(text))
	if !ok {
		return fmt.Errorf("unknown confidence %q", string(text))
	}
	*c = parsed
	return nil
}
