package review

import (
	"math"

	"github.com/spf13/cast"
)

// Default review steps in minutes, used whenever a configured value is missing or invalid.
const (
	DefaultAgainMinutes = 10
	DefaultHardMinutes  = 60
	DefaultGoodMinutes  = 720
	DefaultEasyMinutes  = 2160
)

// ReviewDurations holds the base interval, in minutes, for each review rating.
type ReviewDurations struct {
	Again float64 `json:"again"`
	Hard  float64 `json:"hard"`
	Good  float64 `json:"good"`
	Easy  float64 `json:"easy"`
}

// DefaultDurations returns the fixed default review steps.
func DefaultDurations() ReviewDurations {
	return ReviewDurations{
		Again: DefaultAgainMinutes,
		Hard:  DefaultHardMinutes,
		Good:  DefaultGoodMinutes,
		Easy:  DefaultEasyMinutes,
	}
}

// Minutes returns the base interval for a review rating. Retire and unknown
// ratings have no interval and return 0.
func (d ReviewDurations) Minutes(r Rating) float64 {
	switch r {
	case Again:
		return d.Again
	case Hard:
		return d.Hard
	case Good:
		return d.Good
	case Easy:
		return d.Easy
	}
	return 0
}

// Normalized replaces every non-positive or non-finite value with its default.
func (d ReviewDurations) Normalized() ReviewDurations {
	def := DefaultDurations()
	return ReviewDurations{
		Again: validOr(d.Again, def.Again),
		Hard:  validOr(d.Hard, def.Hard),
		Good:  validOr(d.Good, def.Good),
		Easy:  validOr(d.Easy, def.Easy),
	}
}

// NormalizeDurations builds a fully populated ReviewDurations from a raw
// settings value. The raw value is usually a decoded JSON object; any value
// that coerces to a finite number > 0 is accepted for its rating key. Unknown
// keys are ignored and anything else falls back to the defaults.
func NormalizeDurations(raw any) ReviewDurations {
	switch v := raw.(type) {
	case ReviewDurations:
		return v.Normalized()
	case *ReviewDurations:
		if v == nil {
			return DefaultDurations()
		}
		return v.Normalized()
	case map[string]any:
		return fromMap(v)
	case map[string]float64:
		m := make(map[string]any, len(v))
		for k, n := range v {
			m[k] = n
		}
		return fromMap(m)
	}
	return DefaultDurations()
}

func fromMap(m map[string]any) ReviewDurations {
	def := DefaultDurations()
	return ReviewDurations{
		Again: coerceMinutes(m[Again.String()], def.Again),
		Hard:  coerceMinutes(m[Hard.String()], def.Hard),
		Good:  coerceMinutes(m[Good.String()], def.Good),
		Easy:  coerceMinutes(m[Easy.String()], def.Easy),
	}
}

func coerceMinutes(v any, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	n, err := cast.ToFloat64E(v)
	if err != nil {
		return fallback
	}
	return validOr(n, fallback)
}

func validOr(n, fallback float64) float64 {
	if math.IsNaN(n) || math.IsInf(n, 0) || n <= 0 {
		return fallback
	}
	return n
}
