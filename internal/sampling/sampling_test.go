package sampling

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melonattacker/honeycluster/internal/model"
	"github.com/melonattacker/honeycluster/internal/storage"
)

func mkRows(skilled, interactive, bot int) []storage.FeatureRow {
	var rows []storage.FeatureRow
	add := func(prefix string, n int, tool, unique float64) {
		for i := 0; i < n; i++ {
			fv := model.NeutralFeatureVector()
			fv.ToolSignatures = tool
			fv.UniqueCommandsRatio = unique
			rows = append(rows, storage.FeatureRow{Source: "s", SessionID: fmt.Sprintf("%s%d", prefix, i), Features: fv})
		}
	}
	add("k", skilled, 0.4, 0.9)
	add("i", interactive, 0, 0.8)
	add("b", bot, 0, 0.1)
	return rows
}

func TestTierOf(t *testing.T) {
	c := DefaultConfig()
	cases := []struct {
		tool, unique float64
		want         Tier
	}{
		{0.1, 0.0, TierSkilled},
		{0.1, 0.9, TierSkilled},
		{0, 0.31, TierInteractive},
		{0, 0.3, TierBot},
		{0, 0, TierBot},
	}
	for _, tc := range cases {
		fv := model.NeutralFeatureVector()
		fv.ToolSignatures = tc.tool
		fv.UniqueCommandsRatio = tc.unique
		assert.Equal(t, tc.want, c.TierOf(fv), "tool=%v unique=%v", tc.tool, tc.unique)
	}
}

func TestSampleBounds(t *testing.T) {
	c := DefaultConfig()
	c.Budget = 100
	rows := mkRows(50, 5, 200)

	out, rep, err := c.Sample(rows)
	require.NoError(t, err)
	// skilled 20 of 50, interactive 5 of 30 wanted, bot 50 of 200.
	assert.Len(t, out, 75)
	assert.Equal(t, 75, rep.Sampled)
	assert.Equal(t, 25, rep.Shortfall)
	require.Len(t, rep.Tiers, 3)
	assert.Equal(t, TierReport{Tier: TierInteractive, Available: 5, Target: 30, Drawn: 5}, rep.Tiers[1])

	seen := map[string]bool{}
	perTier := map[Tier]int{}
	for _, r := range out {
		assert.False(t, seen[r.SessionID], "duplicate %s", r.SessionID)
		seen[r.SessionID] = true
		perTier[c.TierOf(r.Features)]++
	}
	assert.Equal(t, map[Tier]int{TierSkilled: 20, TierInteractive: 5, TierBot: 50}, perTier)
	assert.LessOrEqual(t, len(out), c.Budget)
}

func TestSampleDeterministic(t *testing.T) {
	c := DefaultConfig()
	c.Budget = 40
	rows := mkRows(30, 30, 30)

	a, _, err := c.Sample(rows)
	require.NoError(t, err)
	b, _, err := c.Sample(rows)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c.Seed = 7
	d, _, err := c.Sample(rows)
	require.NoError(t, err)
	assert.NotEqual(t, a, d)
}

func TestSampleEmpty(t *testing.T) {
	c := DefaultConfig()
	_, _, err := c.Sample(nil)
	assert.ErrorIs(t, err, model.ErrEmptyDataset)

	// Only bot rows, but bots get no share.
	c.Proportions = map[Tier]float64{TierSkilled: 0.5, TierInteractive: 0.5}
	_, rep, err := c.Sample(mkRows(0, 0, 10))
	assert.ErrorIs(t, err, model.ErrEmptyDataset)
	assert.Equal(t, 10, rep.Input)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	c := DefaultConfig()
	c.Budget = 0
	assert.Error(t, c.Validate())

	c = DefaultConfig()
	c.Proportions[TierBot] = 0.9
	assert.Error(t, c.Validate())

	c = DefaultConfig()
	c.Proportions["elite"] = 0
	assert.Error(t, c.Validate())
}
