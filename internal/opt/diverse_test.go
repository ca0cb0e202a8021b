package opt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindKRoutes_FewerDistinctThanRequested(t *testing.T) {
	g := exampleGraph(t)
	cfg := weights(0.5, 0.5)
	cfg.NumPaths = 3
	cfg.DiversityFactor = 1

	routes, err := FindKRoutes(context.Background(), g, "A", "D", cfg)
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, []string{"A", "B", "D"}, routes[0].NodeIDs)
	assert.InDelta(t, 1.1, routes[0].Cost, 1e-9)
	assert.Equal(t, []string{"A", "C", "D"}, routes[1].NodeIDs)
	assert.InDelta(t, 1.7, routes[1].Cost, 1e-9)
}

func TestFindKRoutes_PenaltiesAccumulate(t *testing.T) {
	// At 0.3 one penalty level is not enough to push the search off A-B-D
	// (1.1*1.3 < 1.7); the second level is (1.1*1.6 > 1.7).
	g := exampleGraph(t)
	cfg := weights(0.5, 0.5)
	cfg.NumPaths = 3

	routes, err := FindKRoutes(context.Background(), g, "A", "D", cfg)
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, []string{"ab", "bd"}, routes[0].EdgeIDs)
	assert.Equal(t, []string{"ac", "cd"}, routes[1].EdgeIDs)
	assert.InDelta(t, routes[1].Cost, routes[1].SearchCost, 1e-12)

	cfg.NumPaths = 2
	routes, err = FindKRoutes(context.Background(), g, "A", "D", cfg)
	require.NoError(t, err)
	assert.Len(t, routes, 1)
}

func TestFindKRoutes_ZeroDiversityCollapses(t *testing.T) {
	g := exampleGraph(t)
	cfg := DefaultSearchConfig()
	cfg.NumPaths = 5
	cfg.DiversityFactor = 0

	routes, err := FindKRoutes(context.Background(), g, "A", "D", cfg)
	require.NoError(t, err)
	assert.Len(t, routes, 1)
}

func TestFindKRoutes_RankedAndDistinct(t *testing.T) {
	g := exampleGraph(t)
	cfg := weights(0.5, 0.5)
	cfg.NumPaths = 4
	cfg.DiversityFactor = 1

	routes, err := FindKRoutes(context.Background(), g, "A", "D", cfg)
	require.NoError(t, err)
	seen := map[string]bool{}
	for i, r := range routes {
		require.False(t, seen[r.key()], "duplicate route %v", r.EdgeIDs)
		seen[r.key()] = true
		if i > 0 {
			assert.LessOrEqual(t, routes[i-1].Cost, r.Cost)
		}
	}
}

func TestFindKRoutes_Deterministic(t *testing.T) {
	g := exampleGraph(t)
	cfg := weights(0.5, 0.5)
	cfg.DiversityFactor = 1

	first, err := FindKRoutes(context.Background(), g, "A", "D", cfg)
	require.NoError(t, err)
	want, err := json.Marshal(first)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := FindKRoutes(context.Background(), g, "A", "D", cfg)
		require.NoError(t, err)
		got, err := json.Marshal(again)
		require.NoError(t, err)
		require.JSONEq(t, string(want), string(got))
	}
}

func TestFindKRoutes_Outcomes(t *testing.T) {
	g := exampleGraph(t)

	routes, err := FindKRoutes(context.Background(), g, "A", "E", DefaultSearchConfig())
	require.ErrorIs(t, err, ErrUnreachable)
	assert.Nil(t, routes)

	routes, err = FindKRoutes(context.Background(), g, "C", "C", DefaultSearchConfig())
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, []string{"C"}, routes[0].NodeIDs)

	cfg := DefaultSearchConfig()
	cfg.NumPaths = 0
	_, err = FindKRoutes(context.Background(), g, "A", "D", cfg)
	require.Error(t, err)
}

func TestFindKRoutes_LaterFailureKeepsPartial(t *testing.T) {
	g := exampleGraph(t)
	cfg := DefaultSearchConfig()
	cfg.DiversityFactor = 1
	cfg.NumPaths = 3

	// the first run pops D within budget; the penalized second run does not
	cfg.MaxExpansions = 2
	routes, err := FindKRoutes(context.Background(), g, "A", "D", cfg)
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, "D", routes[0].NodeIDs[len(routes[0].NodeIDs)-1])

	cfg.MaxExpansions = 1
	routes, err = FindKRoutes(context.Background(), g, "A", "D", cfg)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Empty(t, routes)
}

func TestFindKRoutes_TimeoutCoversWholeCall(t *testing.T) {
	ctx, cancel := withBudget(context.Background(), SearchConfig{})
	defer cancel()
	_, ok := ctx.Deadline()
	assert.False(t, ok, "no timeout means no deadline")

	ctx, cancel = withBudget(context.Background(), SearchConfig{Timeout: time.Minute})
	defer cancel()
	dl, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), dl, 5*time.Second)

	cfg := DefaultSearchConfig()
	cfg.Timeout = time.Nanosecond
	routes, err := FindKRoutes(context.Background(), exampleGraph(t), "A", "D", cfg)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Empty(t, routes)
}
