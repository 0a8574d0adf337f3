// Package train fits a spectral network to a labelled dataset and persists
// the resulting artifacts.
//
// Two validation regimes are supported and never mixed: an external
// validation file, or a seeded hold-out of cv_split of the training file.
// For classification the label reductor is fit on the labels of both
// splits before either is encoded, so every class seen anywhere has a
// slot in the output layer.
package train

import (
	"fmt"
	"log/slog"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"

	"github.com/born-ml/spectra/internal/arch"
	"github.com/born-ml/spectra/internal/config"
	"github.com/born-ml/spectra/internal/dataset"
	"github.com/born-ml/spectra/internal/format"
	"github.com/born-ml/spectra/internal/labels"
	"github.com/born-ml/spectra/internal/logging"
	"github.com/born-ml/spectra/internal/quant"
	"github.com/born-ml/spectra/internal/serialization"
	"github.com/born-ml/spectra/internal/store"
)

// Trainer runs training with a fixed configuration.
type Trainer struct {
	cfg    config.Config
	store  *store.Store
	logger *slog.Logger
}

// New creates a Trainer that saves into st.
func New(cfg config.Config, st *store.Store, logger *slog.Logger) *Trainer {
	return &Trainer{cfg: cfg, store: st, logger: logger}
}

// Classes counts distinct label vectors per split.
type Classes struct {
	Train int
	Valid int
	Total int
}

// ValidationRow compares one external validation sample with its
// prediction. Probability is zero for regression.
type ValidationRow struct {
	Real        []float64
	Predicted   []float64
	Probability float64
}

// Result describes a finished training run.
type Result struct {
	Task         arch.Task
	Network      *arch.Network
	Reductor     *labels.Reductor
	Quantized    *quant.Artifact
	Features     int
	TrainSamples int
	ValidSamples int
	Classes      Classes
	History      History
	Summary      Summary
	Validation   []ValidationRow
}

// prepared holds the tensors of both splits.
type prepared struct {
	learn    *dataset.Dataset
	head     arch.Head
	reductor *labels.Reductor
	xTrain   *tensor.Dense
	yTrain   *tensor.Dense
	xValid   *tensor.Dense
	yValid   *tensor.Dense
	valid    *dataset.Dataset
	classes  Classes
	nTrain   int
	nValid   int
}

// Describe assembles the network the given data would be trained with and
// returns it untrained.
func (t *Trainer) Describe(learnFile, validFile string) (*arch.Network, error) {
	p, err := t.prepare(learnFile, validFile)
	if err != nil {
		return nil, err
	}
	return arch.Assemble(t.cfg.Architecture, p.learn.Width(), p.head, rand.New(rand.NewSource(t.cfg.Seed)))
}

// Train fits a network on learnFile and saves the model, its spectral axis
// and, for classification, the label reductor. validFile may be empty.
func (t *Trainer) Train(learnFile, validFile string) (*Result, error) {
	p, err := t.prepare(learnFile, validFile)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(t.cfg.Seed))
	net, err := arch.Assemble(t.cfg.Architecture, p.learn.Width(), p.head, rng)
	if err != nil {
		return nil, err
	}
	t.logger.Info("training",
		logging.OperationKey, "fit",
		logging.TaskKey, p.head.Task.String(),
		logging.SamplesKey, p.nTrain,
		logging.ValidSamplesKey, p.nValid,
		logging.FeaturesKey, p.learn.Width(),
		logging.ClassesKey, p.classes.Total,
	)

	history, err := t.fit(net, p, rng)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Task:         p.head.Task,
		Network:      net,
		Reductor:     p.reductor,
		Features:     p.learn.Width(),
		TrainSamples: p.nTrain,
		ValidSamples: p.nValid,
		Classes:      p.classes,
		History:      history,
		Summary:      Summarize(history, net.Metric.Name(), p.head.Task == arch.Classification),
	}

	if t.cfg.ShowValidPred && p.valid != nil {
		if res.Validation, err = t.validationRows(net, p); err != nil {
			return nil, err
		}
	}

	if err := t.persist(net, p, history); err != nil {
		return nil, err
	}
	if t.cfg.Quantize {
		if res.Quantized, err = quant.Compress(net, p.xTrain); err != nil {
			return nil, err
		}
		if err := t.store.SaveQuantized(res.Quantized); err != nil {
			return nil, err
		}
		t.logger.Info("quantized model saved", logging.FileKey, t.store.QuantizedPath())
	}
	return res, nil
}

func (t *Trainer) prepare(learnFile, validFile string) (*prepared, error) {
	learn, err := dataset.Load(learnFile, t.cfg.NumLabels)
	if err != nil {
		return nil, err
	}
	p := &prepared{learn: learn}

	if validFile != "" {
		if p.valid, err = dataset.Load(validFile, t.cfg.NumLabels); err != nil {
			return nil, err
		}
		if p.valid.Width() != learn.Width() {
			return nil, fmt.Errorf("train: validation spectra have %d points, training spectra have %d", p.valid.Width(), learn.Width())
		}
	}

	allLabels := learn.Labels
	if p.valid != nil {
		allLabels = append(append([][]float64(nil), learn.Labels...), p.valid.Labels...)
	}

	var targets, validTargets [][]float64
	switch t.cfg.Task() {
	case arch.Regression:
		if t.cfg.NumLabels != 1 {
			return nil, fmt.Errorf("train: regression needs exactly one label column, got %d", t.cfg.NumLabels)
		}
		p.head = arch.Head{Task: arch.Regression, Width: 1}
		targets = learn.Labels
		if p.valid != nil {
			validTargets = p.valid.Labels
		}
	default:
		p.reductor = labels.NewReductor()
		if err := p.reductor.Fit(allLabels); err != nil {
			return nil, err
		}
		p.head = arch.Head{Task: arch.Classification, Width: p.reductor.OneHotWidth()}
		if targets, err = encode(p.reductor, learn.Labels); err != nil {
			return nil, fmt.Errorf("train: %s: %w", learnFile, err)
		}
		if p.valid != nil {
			if validTargets, err = encode(p.reductor, p.valid.Labels); err != nil {
				return nil, fmt.Errorf("train: %s: %w", validFile, err)
			}
		}
		p.classes = Classes{Train: len(dataset.ClassCounts(learn)), Total: p.reductor.VocabularySize()}
		if p.valid != nil {
			p.classes.Valid = len(dataset.ClassCounts(p.valid))
		}
	}

	x, err := format.Spectra(learn.Features)
	if err != nil {
		return nil, err
	}
	y, err := format.FromRows(targets)
	if err != nil {
		return nil, err
	}

	if p.valid != nil {
		p.xTrain, p.yTrain = x, y
		if p.xValid, err = format.Spectra(p.valid.Features); err != nil {
			return nil, err
		}
		if p.yValid, err = format.FromRows(validTargets); err != nil {
			return nil, err
		}
		p.nTrain, p.nValid = learn.Len(), p.valid.Len()
		return p, nil
	}

	trainIdx, validIdx := Split(learn.Len(), t.cfg.CVSplit, t.cfg.Seed)
	if p.xTrain, err = format.Rows(x, trainIdx); err != nil {
		return nil, err
	}
	if p.yTrain, err = format.Rows(y, trainIdx); err != nil {
		return nil, err
	}
	if len(validIdx) > 0 {
		if p.xValid, err = format.Rows(x, validIdx); err != nil {
			return nil, err
		}
		if p.yValid, err = format.Rows(y, validIdx); err != nil {
			return nil, err
		}
	}
	p.nTrain, p.nValid = len(trainIdx), len(validIdx)
	return p, nil
}

func encode(r *labels.Reductor, vectors [][]float64) ([][]float64, error) {
	idx, err := r.TransformAll(vectors)
	if err != nil {
		return nil, err
	}
	return r.OneHot(idx)
}

// fit runs the epoch loop. Each epoch visits the training samples in a
// fresh order drawn from rng.
func (t *Trainer) fit(net *arch.Network, p *prepared, rng *rand.Rand) (History, error) {
	var h History
	batch := t.cfg.BatchSize
	if t.cfg.FullSizeBatch || batch > p.nTrain {
		batch = p.nTrain
	}

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		perm := rng.Perm(p.nTrain)
		var lossSum, metricSum float64
		for start := 0; start < p.nTrain; start += batch {
			end := min(start+batch, p.nTrain)
			idx := perm[start:end]
			xb, err := format.Rows(p.xTrain, idx)
			if err != nil {
				return h, err
			}
			yb, err := format.Rows(p.yTrain, idx)
			if err != nil {
				return h, err
			}
			loss, metric, err := net.TrainBatch(xb, yb)
			if err != nil {
				return h, fmt.Errorf("train: epoch %d: %w", epoch, err)
			}
			n := float64(len(idx))
			lossSum += loss * n
			metricSum += metric * n
		}
		h.Loss = append(h.Loss, lossSum/float64(p.nTrain))
		h.Metric = append(h.Metric, metricSum/float64(p.nTrain))

		attrs := []any{
			logging.EpochKey, epoch,
			logging.LossKey, h.Loss[len(h.Loss)-1],
			logging.MetricKey, h.Metric[len(h.Metric)-1],
		}
		if p.xValid != nil {
			vl, vm, err := net.Evaluate(p.xValid, p.yValid)
			if err != nil {
				return h, fmt.Errorf("train: epoch %d: validate: %w", epoch, err)
			}
			h.ValLoss = append(h.ValLoss, vl)
			h.ValMetric = append(h.ValMetric, vm)
			attrs = append(attrs, logging.ValLossKey, vl, logging.ValMetricKey, vm)
		}
		t.logger.Debug("epoch", attrs...)
	}
	return h, nil
}

func (t *Trainer) validationRows(net *arch.Network, p *prepared) ([]ValidationRow, error) {
	pred, err := net.Predict(p.xValid)
	if err != nil {
		return nil, err
	}
	rows, err := format.Split(pred)
	if err != nil {
		return nil, err
	}
	out := make([]ValidationRow, len(rows))
	for i, row := range rows {
		out[i].Real = p.valid.Labels[i]
		if p.reductor == nil {
			out[i].Predicted = []float64{row[0]}
			continue
		}
		best := floats.MaxIdx(row)
		out[i].Probability = row[best]
		if best < p.reductor.VocabularySize() {
			if out[i].Predicted, err = p.reductor.InverseTransform(best); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (t *Trainer) persist(net *arch.Network, p *prepared, h History) error {
	if err := t.store.SaveAxis(p.learn.Axis); err != nil {
		return err
	}
	if p.reductor != nil {
		if err := t.store.SaveReductor(p.reductor); err != nil {
			return err
		}
		t.logger.Info("label reductor saved", logging.FileKey, t.store.ReductorPath())
	}
	meta := &serialization.TrainingMeta{
		Epochs:       len(h.Loss),
		Steps:        net.Optimizer.Steps(),
		Optimizer:    "adam",
		LearningRate: t.cfg.Architecture.LearningRate,
		Decay:        t.cfg.Architecture.LRDecay,
	}
	if len(h.Loss) > 0 {
		meta.Loss = h.Loss[len(h.Loss)-1]
	}
	if err := t.store.SaveNetwork(net, meta); err != nil {
		return err
	}
	t.logger.Info("model saved", logging.FileKey, t.store.ModelPath())
	return nil
}
