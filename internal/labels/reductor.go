// Package labels maps label vectors onto a dense categorical index space.
//
// A Reductor is fit once, at training time, on the label vectors of the
// training and validation sets together. Every distinct vector becomes one
// class; with more than one label column the class stands for the exact
// combination of components, not for each component separately.
//
// The vocabulary is kept in ascending lexicographic order, so fitting on the
// same set of vectors always yields the same indices regardless of the order
// or multiplicity in which they were observed.
//
// Example:
//
//	r := labels.NewReductor()
//	if err := r.Fit([][]float64{{2}, {1}, {2}}); err != nil {
//	    return err
//	}
//	idx, _ := r.Transform([]float64{2})    // 1
//	v, _ := r.InverseTransform(idx)        // [2]
//	width := r.OneHotWidth()               // 3: two classes plus the overflow slot
package labels

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// NotFittedError is returned when a Reductor is used before Fit.
type NotFittedError struct {
	Op string
}

// Error implements the error interface.
func (e *NotFittedError) Error() string {
	return fmt.Sprintf("labels: %s called on a reductor that has not been fit", e.Op)
}

// UnseenLabelError is returned by Transform for a vector outside the vocabulary.
type UnseenLabelError struct {
	Label []float64
}

// Error implements the error interface.
func (e *UnseenLabelError) Error() string {
	return fmt.Sprintf("labels: label vector %v was not seen during fit", e.Label)
}

// Reductor is a bijection between unique label vectors and class indices.
//
// A Reductor is immutable after Fit and safe for concurrent reads.
type Reductor struct {
	vocab  [][]float64
	index  map[string]int
	fitted bool
}

// NewReductor returns an unfit Reductor.
func NewReductor() *Reductor {
	return &Reductor{}
}

// Fit builds the vocabulary from the given label vectors. Duplicates are
// collapsed; -0 and 0 are the same label. All vectors must have the same,
// non-zero length and only finite components.
//
// Fit may be called only once.
func (r *Reductor) Fit(vectors [][]float64) error {
	if r.fitted {
		return fmt.Errorf("labels: reductor is already fit")
	}
	if len(vectors) == 0 {
		return fmt.Errorf("labels: cannot fit on an empty label set")
	}
	width := len(vectors[0])
	if width == 0 {
		return fmt.Errorf("labels: label vectors must not be empty")
	}

	seen := make(map[string]bool, len(vectors))
	vocab := make([][]float64, 0, len(vectors))
	for i, v := range vectors {
		if len(v) != width {
			return fmt.Errorf("labels: vector %d has %d components, expected %d", i, len(v), width)
		}
		for _, x := range v {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return fmt.Errorf("labels: vector %d has non-finite component %v", i, x)
			}
		}
		c := canonical(v)
		k := key(c)
		if seen[k] {
			continue
		}
		seen[k] = true
		vocab = append(vocab, c)
	}
	sort.Slice(vocab, func(i, j int) bool { return less(vocab[i], vocab[j]) })

	r.setVocabulary(vocab)
	return nil
}

func (r *Reductor) setVocabulary(vocab [][]float64) {
	r.vocab = vocab
	r.index = make(map[string]int, len(vocab))
	for i, v := range vocab {
		r.index[key(v)] = i
	}
	r.fitted = true
}

// Fitted reports whether Fit has been called.
func (r *Reductor) Fitted() bool {
	return r.fitted
}

// Transform returns the class index of v.
func (r *Reductor) Transform(v []float64) (int, error) {
	if !r.fitted {
		return 0, &NotFittedError{Op: "Transform"}
	}
	i, ok := r.index[key(canonical(v))]
	if !ok {
		return 0, &UnseenLabelError{Label: append([]float64(nil), v...)}
	}
	return i, nil
}

// TransformAll maps every row of m to its class index.
func (r *Reductor) TransformAll(m [][]float64) ([]int, error) {
	if !r.fitted {
		return nil, &NotFittedError{Op: "TransformAll"}
	}
	out := make([]int, len(m))
	for i, v := range m {
		idx, err := r.Transform(v)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		out[i] = idx
	}
	return out, nil
}

// InverseTransform returns the label vector of class i.
func (r *Reductor) InverseTransform(i int) ([]float64, error) {
	if !r.fitted {
		return nil, &NotFittedError{Op: "InverseTransform"}
	}
	if i < 0 || i >= len(r.vocab) {
		return nil, fmt.Errorf("labels: class index %d outside vocabulary of %d", i, len(r.vocab))
	}
	return append([]float64(nil), r.vocab[i]...), nil
}

// VocabularySize returns the number of distinct label vectors.
func (r *Reductor) VocabularySize() int {
	return len(r.vocab)
}

// OneHotWidth is the classification output width: one slot per class plus
// one overflow slot. It is the only place the width is derived.
func (r *Reductor) OneHotWidth() int {
	return len(r.vocab) + 1
}

// OneHot expands class indices into rows of width OneHotWidth.
func (r *Reductor) OneHot(indices []int) ([][]float64, error) {
	if !r.fitted {
		return nil, &NotFittedError{Op: "OneHot"}
	}
	width := r.OneHotWidth()
	out := make([][]float64, len(indices))
	for n, idx := range indices {
		if idx < 0 || idx >= width {
			return nil, fmt.Errorf("labels: class index %d outside one-hot width %d", idx, width)
		}
		row := make([]float64, width)
		row[idx] = 1
		out[n] = row
	}
	return out, nil
}

type reductorJSON struct {
	Vocabulary [][]float64 `json:"vocabulary"`
}

// MarshalJSON encodes the fitted vocabulary.
func (r *Reductor) MarshalJSON() ([]byte, error) {
	if !r.fitted {
		return nil, &NotFittedError{Op: "MarshalJSON"}
	}
	return json.Marshal(reductorJSON{Vocabulary: r.vocab})
}

// UnmarshalJSON restores a fitted Reductor. The stored order is kept as is.
func (r *Reductor) UnmarshalJSON(data []byte) error {
	var in reductorJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("labels: decode vocabulary: %w", err)
	}
	if len(in.Vocabulary) == 0 {
		return fmt.Errorf("labels: stored vocabulary is empty")
	}
	for i := 1; i < len(in.Vocabulary); i++ {
		if !less(in.Vocabulary[i-1], in.Vocabulary[i]) {
			return fmt.Errorf("labels: stored vocabulary is not strictly ordered at %d", i)
		}
	}
	r.setVocabulary(in.Vocabulary)
	return nil
}

// canonical returns a copy of v with negative zeros replaced by zero.
func canonical(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		if x == 0 {
			x = 0
		}
		out[i] = x
	}
	return out
}

func key(v []float64) string {
	return fmt.Sprint(v)
}

// less orders vectors lexicographically.
func less(a, b []float64) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
