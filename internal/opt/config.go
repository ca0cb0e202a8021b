package opt

import (
	"fmt"
	"math"
	"time"

	"evacroute/internal/graph"
)

// SearchConfig tunes a single optimization request. Weights need not sum to
// one; only their ratio matters. Timeout bounds a whole FindKRoutes, Routes
// or Evacuate call, not each search inside it.
type SearchConfig struct {
	RiskWeight      float64       `json:"riskWeight" yaml:"riskWeight"`
	TimeWeight      float64       `json:"timeWeight" yaml:"timeWeight"`
	NumPaths        int           `json:"numPaths" yaml:"numPaths"`
	DiversityFactor float64       `json:"diversityFactor" yaml:"diversityFactor"` // in [0,1]
	UnknownRisk     float64       `json:"unknownRisk" yaml:"unknownRisk"`         // substituted for missing risk
	CriticalRisk    float64       `json:"criticalRisk" yaml:"criticalRisk"`       // edges strictly above count as critical
	TimeScaleSec    float64       `json:"timeScaleSec" yaml:"timeScaleSec"`       // 0: graph's longest edge time
	HeuristicWeight float64       `json:"heuristicWeight" yaml:"heuristicWeight"` // 1 keeps A* optimal
	MaxExpansions   int           `json:"maxExpansions" yaml:"maxExpansions"`     // 0: unbounded
	Timeout         time.Duration `json:"timeout" yaml:"timeout"`                 // whole planner call; 0: none
	MaxSafeZones    int           `json:"maxSafeZones" yaml:"maxSafeZones"`
}

// DefaultSearchConfig mirrors the weighting used by the field planners:
// risk dominates time 70/30.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		RiskWeight:      0.7,
		TimeWeight:      0.3,
		NumPaths:        3,
		DiversityFactor: 0.3,
		UnknownRisk:     graph.DefaultUnknownRisk,
		CriticalRisk:    0.7,
		HeuristicWeight: 1,
		Timeout:         2 * time.Second,
		MaxSafeZones:    5,
	}
}

// Validate checks ranges. Errors wrap graph.ErrInvalidInput.
func (c SearchConfig) Validate() error {
	bad := func(format string, a ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{graph.ErrInvalidInput}, a...)...)
	}
	switch {
	case !nonNeg(c.RiskWeight) || !nonNeg(c.TimeWeight):
		return bad("riskWeight and timeWeight must be >= 0")
	case c.RiskWeight+c.TimeWeight == 0:
		return bad("riskWeight and timeWeight cannot both be 0")
	case c.NumPaths < 1:
		return bad("numPaths must be >= 1, got %d", c.NumPaths)
	case !nonNeg(c.DiversityFactor) || c.DiversityFactor > 1:
		return bad("diversityFactor must be in [0,1], got %v", c.DiversityFactor)
	case !(c.UnknownRisk > 0 && c.UnknownRisk <= 1):
		return bad("unknownRisk must be in (0,1], got %v", c.UnknownRisk)
	case !nonNeg(c.CriticalRisk) || c.CriticalRisk > 1:
		return bad("criticalRisk must be in [0,1], got %v", c.CriticalRisk)
	case !nonNeg(c.TimeScaleSec):
		return bad("timeScaleSec must be >= 0")
	case !(c.HeuristicWeight >= 0) || math.IsInf(c.HeuristicWeight, 0):
		return bad("heuristicWeight must be >= 0")
	case c.MaxExpansions < 0:
		return bad("maxExpansions must be >= 0")
	case c.Timeout < 0:
		return bad("timeout must be >= 0")
	case c.MaxSafeZones < 0:
		return bad("maxSafeZones must be >= 0")
	}
	return nil
}

func nonNeg(v float64) bool { return v >= 0 && !math.IsInf(v, 0) }
