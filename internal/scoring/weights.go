package scoring

import (
	"fmt"
	"math"
)

// Weights are the coefficients of the four score components. They come from
// configuration and must sum to 1.
type Weights struct {
	Semantic        float64 `mapstructure:"semantic" yaml:"semantic"`
	Recency         float64 `mapstructure:"recency" yaml:"recency"`
	Liveness        float64 `mapstructure:"liveness" yaml:"liveness"`
	Personalization float64 `mapstructure:"personalization" yaml:"personalization"`
}

// DefaultWeights returns 0.45 / 0.25 / 0.20 / 0.10.
func DefaultWeights() Weights {
	return Weights{
		Semantic:        0.45,
		Recency:         0.25,
		Liveness:        0.20,
		Personalization: 0.10,
	}
}

const weightTolerance = 1e-6

// Validate rejects negative weights and weights not summing to 1.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"semantic":        w.Semantic,
		"recency":         w.Recency,
		"liveness":        w.Liveness,
		"personalization": w.Personalization,
	} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("weight %s must be >= 0, got %v", name, v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("weights must sum to 1.0, got %.6f", sum)
	}
	return nil
}

// Sum returns the total of the four weights.
func (w Weights) Sum() float64 {
	return w.Semantic + w.Recency + w.Liveness + w.Personalization
}
