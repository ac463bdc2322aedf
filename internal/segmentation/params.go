package segmentation

import (
	"fmt"

	"github.com/dvloznov/card-segments/internal/domain"
)

// Params configures one fitting run.
type Params struct {
	K         int     // number of segments
	Seed      int64   // random seed; required for reproducible assignments
	NInit     int     // independent initializations, best inertia wins
	MaxIter   int     // Lloyd iterations per initialization
	Tolerance float64 // convergence threshold, relative to mean column variance
}

// DefaultParams returns the reference configuration: k=3, seed=42, 10 initializations.
func DefaultParams() Params {
	return Params{
		K:         3,
		Seed:      42,
		NInit:     10,
		MaxIter:   300,
		Tolerance: 1e-4,
	}
}

func (p Params) validate() error {
	switch {
	case p.K < 1:
		return fmt.Errorf("k must be >= 1, got %d: %w", p.K, domain.ErrInvalidConfig)
	case p.NInit < 1:
		return fmt.Errorf("n_init must be >= 1, got %d: %w", p.NInit, domain.ErrInvalidConfig)
	case p.MaxIter < 1:
		return fmt.Errorf("max_iter must be >= 1, got %d: %w", p.MaxIter, domain.ErrInvalidConfig)
	case p.Tolerance < 0:
		return fmt.Errorf("tolerance must be >= 0, got %g: %w", p.Tolerance, domain.ErrInvalidConfig)
	}
	return nil
}
