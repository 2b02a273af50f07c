package domain

import (
	"errors"
	"fmt"
)

var ErrInvalidConfidence = errors.New("confidence bounds must satisfy 0 <= lower <= upper <= 1")

// ConfidenceInterval expresses trust in a claim as a range rather than a
// point estimate. The width of the interval carries information: a narrow
// interval means the system is sure about how sure it is.
type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// NewConfidenceInterval rejects out-of-range bounds. This is the boundary
// where callers assert new values; computation paths that may drift past the
// bounds use ClampedConfidence instead.
func NewConfidenceInterval(lower, upper float64) (ConfidenceInterval, error) {
	if lower < 0 || upper > 1 || lower > upper {
		return ConfidenceInterval{}, fmt.Errorf("%w: got (%g, %g)", ErrInvalidConfidence, lower, upper)
	}
	return ConfidenceInterval{Lower: lower, Upper: upper}, nil
}

// ClampedConfidence builds an interval from raw computation output, clamping
// both bounds into [0, 1] and forcing lower <= upper.
func ClampedConfidence(lower, upper float64) ConfidenceInterval {
	lower = clamp01(lower)
	upper = clamp01(upper)
	if lower > upper {
		lower = upper
	}
	return ConfidenceInterval{Lower: lower, Upper: upper}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (c ConfidenceInterval) Midpoint() float64 {
	return (c.Lower + c.Upper) / 2
}

func (c ConfidenceInterval) Width() float64 {
	return c.Upper - c.Lower
}

func (c ConfidenceInterval) Contains(v float64) bool {
	return v >= c.Lower && v <= c.Upper
}
