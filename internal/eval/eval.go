// Package eval implements link-prediction evaluation: each triple is
// ranked against corrupted candidates on both the head and the tail side,
// and ranks are aggregated into MRR and Hits@k.
package eval

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"github.com/kgembed/compounde3d/pkg/kg"
	"github.com/kgembed/compounde3d/pkg/model"
	"github.com/kgembed/compounde3d/pkg/sampler"
)

// Config controls the evaluation protocol.
type Config struct {
	// NegativeSize is the number of sampled negative candidates per
	// triple. Ignored in full-ranking mode.
	NegativeSize int
	// FullRanking ranks against all entities with known true triples
	// filtered out, instead of a random candidate sample.
	FullRanking bool
	Workers     int
	// BatchSize is the number of triples a worker claims from the shared
	// queue at a time.
	BatchSize int
	// TestLogSteps is the progress logging interval, in triples.
	TestLogSteps int
	Seed         int64
}

// Metrics are the aggregated link-prediction metrics. Count is the number
// of (triple, side) rankings that contributed.
type Metrics struct {
	MRR    float64 `json:"mrr"`
	Hits1  float64 `json:"hits@1"`
	Hits3  float64 `json:"hits@3"`
	Hits10 float64 `json:"hits@10"`
	Count  int     `json:"count"`
}

// Evaluate ranks every triple on both sides. The model is read-only here;
// evaluation can run concurrently with nothing else mutating it.
func Evaluate(m *model.Model, g *kg.KnowledgeGraph, triples []kg.Triple, cfg Config) (Metrics, error) {
	if len(triples) == 0 {
		return Metrics{}, fmt.Errorf("no triples to evaluate")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if !cfg.FullRanking && cfg.NegativeSize <= 0 {
		return Metrics{}, fmt.Errorf("sampled evaluation requires a positive negative size")
	}

	if cfg.BatchSize < 1 {
		cfg.BatchSize = 32
	}

	ranks := make([]float64, 2*len(triples))

	var wg sync.WaitGroup
	var next, done atomic.Int64
	block := int64(cfg.BatchSize)

	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(cfg.Seed + int64(w)))
			for {
				start := next.Add(block) - block
				if start >= int64(len(triples)) {
					return
				}
				end := start + block
				if end > int64(len(triples)) {
					end = int64(len(triples))
				}
				for i := start; i < end; i++ {
					triple := triples[i]
					ranks[2*i] = float64(rankOne(m, g, triple, sampler.HeadBatch, cfg, rng))
					ranks[2*i+1] = float64(rankOne(m, g, triple, sampler.TailBatch, cfg, rng))
				}

				n := done.Add(end - start)
				if cfg.TestLogSteps > 0 && n/int64(cfg.TestLogSteps) != (n-(end-start))/int64(cfg.TestLogSteps) {
					log.Info().Int64("done", n).Int("total", len(triples)).Msg("evaluating the model")
				}
			}
		}(w)
	}
	wg.Wait()

	rr := make([]float64, len(ranks))
	h1 := make([]float64, len(ranks))
	h3 := make([]float64, len(ranks))
	h10 := make([]float64, len(ranks))
	for i, rank := range ranks {
		rr[i] = 1.0 / rank
		h1[i] = hit(rank, 1)
		h3[i] = hit(rank, 3)
		h10[i] = hit(rank, 10)
	}

	return Metrics{
		MRR:    stat.Mean(rr, nil),
		Hits1:  stat.Mean(h1, nil),
		Hits3:  stat.Mean(h3, nil),
		Hits10: stat.Mean(h10, nil),
		Count:  len(ranks),
	}, nil
}

func hit(rank float64, k float64) float64 {
	if rank <= k {
		return 1
	}
	return 0
}

// rankOne returns 1 + the number of candidates scoring at least as high as
// the positive triple.
func rankOne(m *model.Model, g *kg.KnowledgeGraph, triple kg.Triple, mode sampler.Mode, cfg Config, rng *rand.Rand) int {
	posScore := m.Score(triple)
	rank := 1

	if cfg.FullRanking {
		for e := int64(0); e < g.NumEntities; e++ {
			corrupted := corrupt(triple, mode, e)
			if corrupted == triple || g.IsKnown(corrupted) {
				continue
			}
			if m.Score(corrupted) >= posScore {
				rank++
			}
		}
		return rank
	}

	for j := 0; j < cfg.NegativeSize; j++ {
		corrupted := corrupt(triple, mode, rng.Int63n(g.NumEntities))
		if m.Score(corrupted) >= posScore {
			rank++
		}
	}
	return rank
}

func corrupt(triple kg.Triple, mode sampler.Mode, e int64) kg.Triple {
	if mode == sampler.HeadBatch {
		triple.Head = e
	} else {
		triple.Tail = e
	}
	return triple
}
