package dataset

import (
	"fmt"
	"sort"
	"strings"
)

// ClassCount is the number of samples carrying one distinct label vector.
type ClassCount struct {
	Label []float64
	Count int
}

// String formats the label vector and its count.
func (c ClassCount) String() string {
	parts := make([]string, len(c.Label))
	for i, v := range c.Label {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return fmt.Sprintf("[%s]: %d", strings.Join(parts, " "), c.Count)
}

// ClassCounts tallies samples per distinct label vector, in ascending
// lexicographic label order.
func ClassCounts(ds *Dataset) []ClassCount {
	index := make(map[string]int)
	var counts []ClassCount
	for _, label := range ds.Labels {
		key := labelKey(label)
		if i, ok := index[key]; ok {
			counts[i].Count++
			continue
		}
		index[key] = len(counts)
		counts = append(counts, ClassCount{Label: append([]float64(nil), label...), Count: 1})
	}
	sort.Slice(counts, func(i, j int) bool {
		return lessLabel(counts[i].Label, counts[j].Label)
	})
	return counts
}

// Prune returns a copy of ds without the classes that have fewer than
// minCount samples, plus the excluded classes.
func (d *Dataset) Prune(minCount int) (*Dataset, []ClassCount, error) {
	if d.Labels == nil {
		return nil, nil, fmt.Errorf("dataset: cannot prune a dataset without labels")
	}
	excluded := make(map[string]bool)
	var dropped []ClassCount
	for _, c := range ClassCounts(d) {
		if c.Count < minCount {
			excluded[labelKey(c.Label)] = true
			dropped = append(dropped, c)
		}
	}

	out := &Dataset{
		Axis:      append([]float64(nil), d.Axis...),
		NumLabels: d.NumLabels,
		Labels:    [][]float64{},
	}
	for i, label := range d.Labels {
		if excluded[labelKey(label)] {
			continue
		}
		out.Labels = append(out.Labels, append([]float64(nil), label...))
		out.Features = append(out.Features, append([]float64(nil), d.Features[i]...))
	}
	return out, dropped, nil
}

func labelKey(v []float64) string {
	return fmt.Sprint(v)
}

func lessLabel(a, b []float64) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
