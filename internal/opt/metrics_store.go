package opt

import "sync"

// SearchStats summarizes one planner call.
type SearchStats struct {
	Kind       string `json:"kind"` // routes, evacuate
	Outcome    string `json:"outcome"`
	Routes     int    `json:"routes"`
	Expansions int    `json:"expansions"`
	DurationMs int64  `json:"durationMs"`
}

// CityStats aggregates SearchStats per city since process start.
type CityStats struct {
	Searches   int            `json:"searches"`
	Outcomes   map[string]int `json:"outcomes"`
	Expansions int            `json:"expansions"`
	Last       SearchStats    `json:"last"`
}

var (
	mu    sync.Mutex
	stats = map[string]*CityStats{}
)

func RecordStats(city string, st SearchStats) {
	mu.Lock()
	defer mu.Unlock()
	cs := stats[city]
	if cs == nil {
		cs = &CityStats{Outcomes: map[string]int{}}
		stats[city] = cs
	}
	cs.Searches++
	cs.Outcomes[st.Outcome]++
	cs.Expansions += st.Expansions
	cs.Last = st
}

// GetStats returns a copy of the aggregate for city.
func GetStats(city string) (CityStats, bool) {
	mu.Lock()
	defer mu.Unlock()
	cs := stats[city]
	if cs == nil {
		return CityStats{}, false
	}
	out := *cs
	out.Outcomes = make(map[string]int, len(cs.Outcomes))
	for k, v := range cs.Outcomes {
		out.Outcomes[k] = v
	}
	return out, true
}
