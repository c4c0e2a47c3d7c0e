package sampler

import (
	"math/rand"
	"sync"

	"github.com/kgembed/compounde3d/pkg/kg"
)

// Mode tells which side of the positive triple the negatives corrupt.
type Mode int

const (
	// HeadBatch negatives replace the head entity.
	HeadBatch Mode = iota
	// TailBatch negatives replace the tail entity.
	TailBatch
)

func (m Mode) String() string {
	if m == HeadBatch {
		return "head-batch"
	}
	return "tail-batch"
}

// Batch is one training batch: positive triples, a negative entity matrix
// (one row of NegativeSize entity ids per positive), the per-positive
// subsampling weights, and the corruption mode.
type Batch struct {
	Positives []kg.Triple
	Negatives [][]int64
	Weights   []float64
	Mode      Mode
}

// Config controls batch construction.
type Config struct {
	BatchSize    int
	NegativeSize int
	Workers      int
	// FilterFalseNegatives resamples negatives that would form a known
	// true triple.
	FilterFalseNegatives bool
	// FrequencyWeighted samples negatives from the smoothed (power 0.75)
	// entity frequency distribution instead of uniformly.
	FrequencyWeighted bool
	Seed              int64
}

// TrainIterator produces an endless stream of batches, strictly
// alternating head-batch and tail-batch corruption. Worker goroutines fill
// one bounded channel per mode so batch construction overlaps with the
// optimizer step while Next still interleaves the two modes one for one.
type TrainIterator struct {
	graph *kg.KnowledgeGraph
	cfg   Config

	negTable *AliasTable

	headBatches chan *Batch
	tailBatches chan *Batch
	nextTail    bool
	done        chan struct{}
	wg          sync.WaitGroup
}

// NewTrainIterator starts the sampling workers.
func NewTrainIterator(graph *kg.KnowledgeGraph, cfg Config) *TrainIterator {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	it := &TrainIterator{
		graph:       graph,
		cfg:         cfg,
		headBatches: make(chan *Batch, cfg.Workers),
		tailBatches: make(chan *Batch, cfg.Workers),
		done:        make(chan struct{}),
	}
	if cfg.FrequencyWeighted {
		it.negTable = NewAliasTable(graph.EntityFrequencies(), 0.75)
	}
	for w := 0; w < cfg.Workers; w++ {
		it.wg.Add(1)
		go it.worker(cfg.Seed + int64(w))
	}
	return it
}

// Next blocks until a batch is available, returning a head-batch first and
// then alternating modes. It never returns nil while the iterator is open,
// and must be called from a single goroutine.
func (it *TrainIterator) Next() *Batch {
	defer func() { it.nextTail = !it.nextTail }()
	if it.nextTail {
		return <-it.tailBatches
	}
	return <-it.headBatches
}

// Close stops the workers and drains both channels.
func (it *TrainIterator) Close() {
	close(it.done)
	go func() {
		for range it.headBatches {
		}
	}()
	go func() {
		for range it.tailBatches {
		}
	}()
	it.wg.Wait()
	close(it.headBatches)
	close(it.tailBatches)
}

// Each worker produces one head-batch then one tail-batch so the two
// channels fill at the same rate.
func (it *TrainIterator) worker(seed int64) {
	defer it.wg.Done()
	rng := rand.New(rand.NewSource(seed))
	for {
		select {
		case it.headBatches <- it.buildBatch(rng, HeadBatch):
		case <-it.done:
			return
		}
		select {
		case it.tailBatches <- it.buildBatch(rng, TailBatch):
		case <-it.done:
			return
		}
	}
}

func (it *TrainIterator) buildBatch(rng *rand.Rand, mode Mode) *Batch {
	n := it.cfg.BatchSize
	train := it.graph.Train
	b := &Batch{
		Positives: make([]kg.Triple, n),
		Negatives: make([][]int64, n),
		Weights:   make([]float64, n),
		Mode:      mode,
	}
	for i := 0; i < n; i++ {
		pos := train[rng.Intn(len(train))]
		b.Positives[i] = pos
		b.Weights[i] = it.graph.SubsamplingWeight(pos)
		b.Negatives[i] = it.sampleNegatives(pos, mode, rng)
	}
	return b
}

func (it *TrainIterator) sampleNegatives(pos kg.Triple, mode Mode, rng *rand.Rand) []int64 {
	negs := make([]int64, it.cfg.NegativeSize)
	for j := range negs {
		for {
			e := it.sampleEntity(rng)
			if it.cfg.FilterFalseNegatives && it.isFalseNegative(pos, mode, e) {
				continue
			}
			negs[j] = e
			break
		}
	}
	return negs
}

func (it *TrainIterator) sampleEntity(rng *rand.Rand) int64 {
	if it.negTable != nil {
		return it.negTable.Sample(rng)
	}
	return rng.Int63n(it.graph.NumEntities)
}

func (it *TrainIterator) isFalseNegative(pos kg.Triple, mode Mode, e int64) bool {
	corrupted := pos
	if mode == HeadBatch {
		corrupted.Head = e
	} else {
		corrupted.Tail = e
	}
	return it.graph.IsKnown(corrupted)
}
