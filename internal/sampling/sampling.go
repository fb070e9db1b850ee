// Package sampling draws a bounded, tier-stratified subset of feature rows
// before normalization and clustering.
package sampling

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/melonattacker/honeycluster/internal/model"
	"github.com/melonattacker/honeycluster/internal/storage"
)

type Tier string

const (
	TierSkilled     Tier = "skilled"
	TierInteractive Tier = "interactive"
	TierBot         Tier = "bot"
)

// Tiers lists the tiers in draw order.
func Tiers() []Tier { return []Tier{TierSkilled, TierInteractive, TierBot} }

const (
	DefaultBudget          = 200000
	DefaultSeed            = 42
	DefaultUniqueThreshold = 0.3
)

type Config struct {
	Budget          int              `yaml:"budget" json:"budget"`
	Seed            uint64           `yaml:"seed" json:"seed"`
	Proportions     map[Tier]float64 `yaml:"proportions" json:"proportions"`
	UniqueThreshold float64          `yaml:"unique_threshold" json:"unique_threshold"`
}

func DefaultConfig() Config {
	return Config{
		Budget: DefaultBudget,
		Seed:   DefaultSeed,
		Proportions: map[Tier]float64{
			TierSkilled:     0.20,
			TierInteractive: 0.30,
			TierBot:         0.50,
		},
		UniqueThreshold: DefaultUniqueThreshold,
	}
}

func (c Config) Validate() error {
	if c.Budget <= 0 {
		return fmt.Errorf("sampling budget must be positive, got %d", c.Budget)
	}
	sum := 0.0
	for t, p := range c.Proportions {
		switch t {
		case TierSkilled, TierInteractive, TierBot:
		default:
			return fmt.Errorf("unknown sampling tier %q", t)
		}
		if p < 0 || p > 1 {
			return fmt.Errorf("proportion of tier %s out of [0,1]: %v", t, p)
		}
		sum += p
	}
	if sum > 1+1e-9 {
		return fmt.Errorf("sampling proportions sum to %v", sum)
	}
	return nil
}

// TierOf classifies one vector. The tiers do not overlap: any tool signature
// makes a session skilled regardless of its unique-command ratio.
func (c Config) TierOf(fv model.FeatureVector) Tier {
	switch {
	case fv.ToolSignatures > 0:
		return TierSkilled
	case fv.UniqueCommandsRatio > c.UniqueThreshold:
		return TierInteractive
	default:
		return TierBot
	}
}

// Partition returns row indexes per tier, in input order.
func (c Config) Partition(rows []storage.FeatureRow) map[Tier][]int {
	out := make(map[Tier][]int, 3)
	for i, r := range rows {
		t := c.TierOf(r.Features)
		out[t] = append(out[t], i)
	}
	return out
}

type TierReport struct {
	Tier      Tier `json:"tier"`
	Available int  `json:"available"`
	Target    int  `json:"target"`
	Drawn     int  `json:"drawn"`
}

// Report describes one draw. Shortfall is the sum over tiers of target
// minus drawn; it is not made up from other tiers.
type Report struct {
	Input     int          `json:"input"`
	Sampled   int          `json:"sampled"`
	Shortfall int          `json:"shortfall"`
	Tiers     []TierReport `json:"tiers"`
}

// Sample draws up to int(Budget*p) rows from each tier without replacement
// and shuffles the result. The same seed and input give the same sample.
func (c Config) Sample(rows []storage.FeatureRow) ([]storage.FeatureRow, Report, error) {
	rep := Report{Input: len(rows)}
	if len(rows) == 0 {
		return nil, rep, model.EmptyDataset("sampling")
	}
	src := rand.NewPCG(c.Seed, c.Seed)
	parts := c.Partition(rows)

	var picked []int
	for _, t := range Tiers() {
		pool := parts[t]
		target := int(float64(c.Budget) * c.Proportions[t])
		n := min(target, len(pool))
		tr := TierReport{Tier: t, Available: len(pool), Target: target, Drawn: n}
		rep.Tiers = append(rep.Tiers, tr)
		rep.Shortfall += target - n
		if n == 0 {
			continue
		}
		idx := make([]int, n)
		sampleuv.WithoutReplacement(idx, len(pool), src)
		for _, k := range idx {
			picked = append(picked, pool[k])
		}
	}
	if len(picked) == 0 {
		return nil, rep, model.EmptyDataset("sampling")
	}

	rand.New(src).Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
	out := make([]storage.FeatureRow, len(picked))
	for i, k := range picked {
		out[i] = rows[k]
	}
	rep.Sampled = len(out)
	return out, rep, nil
}
