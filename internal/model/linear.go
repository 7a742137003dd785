// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package model

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// featuresPerChannel is mean and standard deviation.
const featuresPerChannel = 2

// LinearSpec is the on-disk form of a Linear model.
//
//	{"name": "...", "channels": 6, "window_size": 200,
//	 "weights": [[w0 .. w11], ...one row per class],
//	 "bias": [b0, ...one per class]}
//
// Feature order is mean(ch0), std(ch0), mean(ch1), std(ch1), ...
type LinearSpec struct {
	Name       string      `json:"name"`
	Channels   int         `json:"channels"`
	WindowSize int         `json:"window_size"`
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
}

// Linear is a softmax classifier over per-channel window statistics.
type Linear struct {
	spec    LinearSpec
	weights *mat.Dense
	bias    *mat.VecDense
	closed  atomic.Bool
}

// LoadLinear reads a model artifact from path.
func LoadLinear(path string) (*Linear, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}
	var spec LinearSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrModelLoad, path, err)
	}
	m, err := NewLinear(spec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// NewLinear validates spec and builds the model.
func NewLinear(spec LinearSpec) (*Linear, error) {
	if spec.Channels <= 0 {
		return nil, fmt.Errorf("%w: channels must be positive, got %d", ErrModelLoad, spec.Channels)
	}
	classes := len(spec.Weights)
	if classes == 0 {
		return nil, fmt.Errorf("%w: no classes", ErrModelLoad)
	}
	if len(spec.Bias) != classes {
		return nil, fmt.Errorf("%w: %d bias terms for %d classes", ErrModelLoad, len(spec.Bias), classes)
	}
	nf := spec.Channels * featuresPerChannel
	flat := make([]float64, 0, classes*nf)
	for i, row := range spec.Weights {
		if len(row) != nf {
			return nil, fmt.Errorf("%w: class %d has %d weights, want %d", ErrModelLoad, i, len(row), nf)
		}
		for _, w := range row {
			if math.IsNaN(w) || math.IsInf(w, 0) {
				return nil, fmt.Errorf("%w: class %d has a non-finite weight", ErrModelLoad, i)
			}
		}
		flat = append(flat, row...)
	}
	return &Linear{
		spec:    spec,
		weights: mat.NewDense(classes, nf, flat),
		bias:    mat.NewVecDense(classes, append([]float64(nil), spec.Bias...)),
	}, nil
}

// Classes returns the number of output classes.
func (m *Linear) Classes() int { return len(m.spec.Bias) }

// Name returns the model name from the artifact.
func (m *Linear) Name() string { return m.spec.Name }

func (m *Linear) Infer(ctx context.Context, x *mat.Dense) (int, float64, error) {
	if m.closed.Load() {
		return 0, 0, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	rows, cols := x.Dims()
	if cols != m.spec.Channels {
		return 0, 0, fmt.Errorf("input has %d channels, model expects %d", cols, m.spec.Channels)
	}
	if m.spec.WindowSize > 0 && rows != m.spec.WindowSize {
		return 0, 0, fmt.Errorf("input has %d rows, model expects %d", rows, m.spec.WindowSize)
	}

	features := mat.NewVecDense(cols*featuresPerChannel, nil)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, x)
		mean, std := stat.MeanStdDev(col, nil)
		if rows < 2 {
			std = 0
		}
		features.SetVec(j*featuresPerChannel, mean)
		features.SetVec(j*featuresPerChannel+1, std)
	}

	logits := mat.NewVecDense(m.Classes(), nil)
	logits.MulVec(m.weights, features)
	logits.AddVec(logits, m.bias)

	class, conf := softmaxArgmax(logits.RawVector().Data)
	return class, conf, nil
}

func (m *Linear) Close() error {
	m.closed.Store(true)
	return nil
}

// softmaxArgmax returns the index of the largest logit and its softmax
// probability. Ties go to the lowest index.
func softmaxArgmax(logits []float64) (int, float64) {
	best := 0
	for i, v := range logits {
		if v > logits[best] {
			best = i
		}
	}
	var sum float64
	for _, v := range logits {
		sum += math.Exp(v - logits[best])
	}
	return best, 1 / sum
}
