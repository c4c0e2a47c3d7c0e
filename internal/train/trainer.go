// Package train implements the optimization loop: self-adversarial
// negative-sampling logsigmoid loss over batches drawn from the sampler,
// optimized with sparse-row Adam.
package train

import (
	"context"
	"math"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/kgembed/compounde3d/pkg/model"
	"github.com/kgembed/compounde3d/pkg/optim"
	"github.com/kgembed/compounde3d/pkg/sampler"
)

// Config holds the training hyperparameters.
type Config struct {
	MaxSteps    int
	WarmUpSteps int
	InitStep    int

	LearningRate                float64
	AdversarialTemperature      float64
	NegativeAdversarialSampling bool
	UniWeight                   bool
	Regularization              float64

	Workers             int
	LogSteps            int
	ValidSteps          int
	SaveCheckpointSteps int
}

// StepLog carries the loss terms of one step.
type StepLog struct {
	PositiveLoss   float64
	NegativeLoss   float64
	Loss           float64
	Regularization float64
}

// Reporter receives periodic training progress (implemented by the status
// HTTP server).
type Reporter interface {
	ReportTraining(step int, lr float64, lg StepLog)
}

// Trainer drives the optimization loop.
type Trainer struct {
	cfg    Config
	model  *model.Model
	iter   *sampler.TrainIterator
	entOpt *optim.Adam
	relOpt *optim.Adam

	// OnValid runs every ValidSteps steps; OnSave every
	// SaveCheckpointSteps, receiving the live learning-rate schedule so
	// checkpoints can resume it.
	OnValid  func(step int)
	OnSave   func(step int, lr float64, warmUpSteps int)
	Reporter Reporter
}

// New builds a trainer around an initialized model and iterator.
func New(cfg Config, m *model.Model, iter *sampler.TrainIterator, entOpt, relOpt *optim.Adam) *Trainer {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Trainer{cfg: cfg, model: m, iter: iter, entOpt: entOpt, relOpt: relOpt}
}

// Run executes steps [InitStep, MaxSteps). The learning rate drops by 10x
// at WarmUpSteps, and the threshold then triples.
func (tr *Trainer) Run(ctx context.Context) error {
	lr := tr.cfg.LearningRate
	warmUp := tr.cfg.WarmUpSteps
	tr.entOpt.SetLR(lr)
	tr.relOpt.SetLR(lr)

	var sums StepLog
	window := 0

	for step := tr.cfg.InitStep; step < tr.cfg.MaxSteps; step++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if step >= warmUp {
			lr /= 10
			tr.entOpt.SetLR(lr)
			tr.relOpt.SetLR(lr)
			log.Info().Int("step", step).Float64("learning_rate", lr).Msg("change learning rate")
			warmUp *= 3
		}

		lg := tr.trainStep(tr.iter.Next())
		sums.PositiveLoss += lg.PositiveLoss
		sums.NegativeLoss += lg.NegativeLoss
		sums.Loss += lg.Loss
		sums.Regularization += lg.Regularization
		window++

		if tr.cfg.LogSteps > 0 && step%tr.cfg.LogSteps == 0 {
			avg := StepLog{
				PositiveLoss:   sums.PositiveLoss / float64(window),
				NegativeLoss:   sums.NegativeLoss / float64(window),
				Loss:           sums.Loss / float64(window),
				Regularization: sums.Regularization / float64(window),
			}
			ev := log.Info().
				Int("step", step).
				Float64("positive_sample_loss", avg.PositiveLoss).
				Float64("negative_sample_loss", avg.NegativeLoss).
				Float64("loss", avg.Loss)
			if tr.cfg.Regularization != 0 {
				ev = ev.Float64("regularization", avg.Regularization)
			}
			ev.Msg("training average")
			if tr.Reporter != nil {
				tr.Reporter.ReportTraining(step, lr, avg)
			}
			sums = StepLog{}
			window = 0
		}

		if tr.OnValid != nil && tr.cfg.ValidSteps > 0 && step%tr.cfg.ValidSteps == 0 && step > tr.cfg.InitStep {
			tr.OnValid(step)
		}
		if tr.OnSave != nil && tr.cfg.SaveCheckpointSteps > 0 && step%tr.cfg.SaveCheckpointSteps == 0 && step > tr.cfg.InitStep {
			tr.OnSave(step, lr, warmUp)
		}
	}

	if tr.OnSave != nil {
		tr.OnSave(tr.cfg.MaxSteps, lr, warmUp)
	}
	return nil
}

// workerGrads are per-goroutine sparse gradient buffers, merged before the
// optimizer step so the update itself is free of data races.
type workerGrads struct {
	ent map[int64][]float64
	rel map[int64][]float64

	posLoss float64
	negLoss float64
}

func getRow(buf map[int64][]float64, id int64, dim int) []float64 {
	row, ok := buf[id]
	if !ok {
		row = make([]float64, dim)
		buf[id] = row
	}
	return row
}

func (tr *Trainer) trainStep(b *sampler.Batch) StepLog {
	nPos := len(b.Positives)

	weights := make([]float64, nPos)
	wsum := 0.0
	for i := range weights {
		if tr.cfg.UniWeight {
			weights[i] = 1
		} else {
			weights[i] = b.Weights[i]
		}
		wsum += weights[i]
	}

	workers := tr.cfg.Workers
	if workers > nPos {
		workers = nPos
	}
	chunk := (nPos + workers - 1) / workers

	bufs := make([]*workerGrads, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > nPos {
			end = nPos
		}
		buf := &workerGrads{
			ent: make(map[int64][]float64),
			rel: make(map[int64][]float64),
		}
		bufs[w] = buf

		wg.Add(1)
		go func(start, end int, buf *workerGrads) {
			defer wg.Done()
			tr.processChunk(b, start, end, weights, wsum, buf)
		}(start, end, buf)
	}
	wg.Wait()

	entGrads := bufs[0].ent
	relGrads := bufs[0].rel
	lg := StepLog{PositiveLoss: bufs[0].posLoss, NegativeLoss: bufs[0].negLoss}
	for _, buf := range bufs[1:] {
		mergeGrads(entGrads, buf.ent)
		mergeGrads(relGrads, buf.rel)
		lg.PositiveLoss += buf.posLoss
		lg.NegativeLoss += buf.negLoss
	}
	lg.PositiveLoss /= wsum
	lg.NegativeLoss /= wsum
	lg.Loss = (lg.PositiveLoss + lg.NegativeLoss) / 2

	if tr.cfg.Regularization != 0 {
		lg.Regularization = tr.applyRegularization(entGrads, relGrads)
		lg.Loss += lg.Regularization
	}

	tr.entOpt.Step(tr.model.Entity, entGrads)
	tr.relOpt.Step(tr.model.Relation, relGrads)
	return lg
}

func (tr *Trainer) processChunk(b *sampler.Batch, start, end int, weights []float64, wsum float64, buf *workerGrads) {
	m := tr.model
	nNeg := len(b.Negatives[0])
	negScores := make([]float64, nNeg)
	advWeights := make([]float64, nNeg)

	for i := start; i < end; i++ {
		pos := b.Positives[i]
		h := m.Entity[pos.Head]
		r := m.Relation[pos.Relation]
		t := m.Entity[pos.Tail]
		w := weights[i]

		posScore := m.ScoreVecs(h, r, t)
		buf.posLoss += -w * logSigmoid(posScore)

		for j, e := range b.Negatives[i] {
			if b.Mode == sampler.HeadBatch {
				negScores[j] = m.ScoreVecs(m.Entity[e], r, t)
			} else {
				negScores[j] = m.ScoreVecs(h, r, m.Entity[e])
			}
		}

		// Self-adversarial weights are treated as constants: no gradient
		// flows through the softmax.
		if tr.cfg.NegativeAdversarialSampling {
			softmax(negScores, tr.cfg.AdversarialTemperature, advWeights)
		} else {
			for j := range advWeights {
				advWeights[j] = 1.0 / float64(nNeg)
			}
		}

		negLoss := 0.0
		for j := range negScores {
			negLoss += advWeights[j] * logSigmoid(-negScores[j])
		}
		buf.negLoss += -w * negLoss

		// d(loss)/d(posScore) = -w * sigma(-s) / (2 * wsum)
		gh := getRow(buf.ent, pos.Head, m.EntityDim)
		gr := getRow(buf.rel, pos.Relation, m.RelationDim)
		gt := getRow(buf.ent, pos.Tail, m.EntityDim)
		posCoeff := -w * sigmoid(-posScore) / (2 * wsum)
		m.GradVecs(h, r, t, posCoeff, gh, gr, gt)

		// d(loss)/d(negScore_j) = +w * aw_j * sigma(s_j) / (2 * wsum)
		for j, e := range b.Negatives[i] {
			negCoeff := w * advWeights[j] * sigmoid(negScores[j]) / (2 * wsum)
			ge := getRow(buf.ent, e, m.EntityDim)
			if b.Mode == sampler.HeadBatch {
				m.GradVecs(m.Entity[e], r, t, negCoeff, ge, gr, gt)
			} else {
				m.GradVecs(h, r, m.Entity[e], negCoeff, gh, gr, ge)
			}
		}
	}
}

// applyRegularization adds the L3 regularization gradient for the rows
// touched this step and returns the loss term. A dense pass over both
// matrices every step would dominate CPU step time, so only touched rows
// are regularized.
func (tr *Trainer) applyRegularization(entGrads, relGrads map[int64][]float64) float64 {
	lambda := tr.cfg.Regularization
	reg := 0.0
	for row, g := range entGrads {
		x := tr.model.Entity[row]
		for d := range g {
			reg += lambda * math.Abs(x[d]) * x[d] * x[d]
			g[d] += 3 * lambda * x[d] * math.Abs(x[d])
		}
	}
	for row, g := range relGrads {
		x := tr.model.Relation[row]
		for d := range g {
			reg += lambda * math.Abs(x[d]) * x[d] * x[d]
			g[d] += 3 * lambda * x[d] * math.Abs(x[d])
		}
	}
	return reg
}

func mergeGrads(dst, src map[int64][]float64) {
	for id, g := range src {
		if acc, ok := dst[id]; ok {
			for d := range acc {
				acc[d] += g[d]
			}
		} else {
			dst[id] = g
		}
	}
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// logSigmoid computes log(sigma(x)) without overflow on large |x|.
func logSigmoid(x float64) float64 {
	if x >= 0 {
		return -math.Log1p(math.Exp(-x))
	}
	return x - math.Log1p(math.Exp(x))
}

// softmax writes softmax(temp * scores) into out.
func softmax(scores []float64, temp float64, out []float64) {
	maxScore := math.Inf(-1)
	for _, s := range scores {
		if s*temp > maxScore {
			maxScore = s * temp
		}
	}
	sum := 0.0
	for j, s := range scores {
		out[j] = math.Exp(s*temp - maxScore)
		sum += out[j]
	}
	for j := range out {
		out[j] /= sum
	}
}
