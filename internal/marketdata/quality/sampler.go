package quality

import (
	"strings"

	"github.com/shopspring/decimal"
)

// SamplerStrategy selects which DataSampler filtering rule is active.
type SamplerStrategy int

const (
	SampleNone SamplerStrategy = iota
	SampleTimeInterval
	SampleCountInterval
	SampleAdaptive
)

// ParseSamplerStrategy maps a config file's strategy string to a
// SamplerStrategy, defaulting to SampleNone for an empty or unknown value.
func ParseSamplerStrategy(s string) SamplerStrategy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "time_interval":
		return SampleTimeInterval
	case "count_interval":
		return SampleCountInterval
	case "adaptive":
		return SampleAdaptive
	default:
		return SampleNone
	}
}

// SamplerConfig carries the per-strategy parameters.
type SamplerConfig struct {
	Strategy           SamplerStrategy
	IntervalMs         int64
	CountInterval      int
	VolatilityThreshold float64
}

// DataSampler decides whether an incoming (ts, price) observation should
// be forwarded downstream, per §4.4.
type DataSampler struct {
	cfg SamplerConfig

	lastSampleTsMs int64
	lastPrice      decimal.Decimal
	hasLastPrice   bool
	seenCount      int
}

func NewDataSampler(cfg SamplerConfig) *DataSampler {
	return &DataSampler{cfg: cfg}
}

// Accept reports whether the observation at (tsMs, price) passes the
// configured strategy, updating internal state as a side effect.
func (s *DataSampler) Accept(tsMs int64, price decimal.Decimal) bool {
	s.seenCount++

	switch s.cfg.Strategy {
	case SampleNone:
		s.lastSampleTsMs = tsMs
		s.lastPrice, s.hasLastPrice = price, true
		return true

	case SampleTimeInterval:
		if !s.hasLastPrice || tsMs-s.lastSampleTsMs >= s.cfg.IntervalMs {
			s.lastSampleTsMs = tsMs
			s.lastPrice, s.hasLastPrice = price, true
			return true
		}
		return false

	case SampleCountInterval:
		n := s.cfg.CountInterval
		if n <= 0 {
			n = 1
		}
		accept := (s.seenCount-1)%n == 0
		if accept {
			s.lastSampleTsMs = tsMs
			s.lastPrice, s.hasLastPrice = price, true
		}
		return accept

	case SampleAdaptive:
		if s.hasLastPrice && !s.lastPrice.IsZero() {
			change, _ := price.Sub(s.lastPrice).Abs().Div(s.lastPrice).Float64()
			if change >= s.cfg.VolatilityThreshold {
				s.lastSampleTsMs = tsMs
				s.lastPrice = price
				return true
			}
		}
		if !s.hasLastPrice || tsMs-s.lastSampleTsMs >= s.cfg.IntervalMs {
			s.lastSampleTsMs = tsMs
			s.lastPrice, s.hasLastPrice = price, true
			return true
		}
		return false

	default:
		return true
	}
}
