package segmentation

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/dvloznov/card-segments/internal/domain"
	"github.com/dvloznov/card-segments/internal/logger"
)

// Model describes the winning clustering of a run. It is reported for logging and
// run metadata only; it is never reused to score another table.
type Model struct {
	Columns    []string    `json:"columns"`
	Means      []float64   `json:"means"`
	Scales     []float64   `json:"scales"`
	Centroids  [][]float64 `json:"centroids"`
	Inertia    float64     `json:"inertia"`
	Iterations int         `json:"iterations"`
	BestInit   int         `json:"best_init"`
}

// Fit standardizes the feature table and assigns every account to one of params.K
// segments. The same table and params always yield the same assignments.
func Fit(ctx context.Context, table domain.FeatureTable, params Params) (domain.AssignmentTable, *Model, error) {
	log := logger.FromContext(ctx)

	if err := params.validate(); err != nil {
		return nil, nil, fmt.Errorf("Fit: %w", err)
	}
	if len(table) < params.K {
		return nil, nil, fmt.Errorf("Fit: %d accounts for k=%d: %w", len(table), params.K, domain.ErrInsufficientData)
	}

	ids, raw, err := buildMatrix(table)
	if err != nil {
		return nil, nil, fmt.Errorf("Fit: %w", err)
	}

	sc := fitScaler(raw)
	x := sc.transform(raw)
	tol := params.Tolerance * meanVariance(x)

	master := rand.New(rand.NewPCG(uint64(params.Seed), uint64(params.Seed)^0x9e3779b97f4a7c15))

	var best run
	bestInit := -1
	for i := 0; i < params.NInit; i++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("Fit: %w", err)
		}
		rng := rand.New(rand.NewPCG(master.Uint64(), uint64(i)))
		r := lloyd(x, seedCentroids(x, params.K, rng), params.MaxIter, tol)

		log.Debug().
			Int("init", i).
			Float64("inertia", r.inertia).
			Int("iterations", r.iterations).
			Msg("k-means initialization finished")

		if bestInit < 0 || r.inertia < best.inertia {
			best, bestInit = r, i
		}
	}

	assignments := make(domain.AssignmentTable, len(ids))
	for i, id := range ids {
		assignments[i] = domain.Assignment{AccountID: id, SegmentID: best.labels[i]}
	}

	model := &Model{
		Columns:    Columns,
		Means:      sc.means,
		Scales:     sc.scales,
		Centroids:  best.centroids,
		Inertia:    best.inertia,
		Iterations: best.iterations,
		BestInit:   bestInit,
	}

	log.Info().
		Int("accounts", len(assignments)).
		Int("k", params.K).
		Int64("seed", params.Seed).
		Float64("inertia", model.Inertia).
		Int("best_init", bestInit).
		Msg("Fitted segmentation model")

	return assignments, model, nil
}
