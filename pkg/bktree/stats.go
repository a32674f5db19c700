package bktree

// This file computes shape diagnostics for a built tree. The depth profile is
// the first thing to look at when range queries start visiting too many nodes:
// a skewed insertion order shows up as a deep, thin tree.

import (
	"gonum.org/v1/gonum/stat"
)

// Stats summarizes the shape of a Tree.
type Stats struct {
	Items       int     `json:"items"`
	MaxDepth    int     `json:"max_depth"`
	MeanDepth   float64 `json:"mean_depth"`
	StdDevDepth float64 `json:"stddev_depth"`
	MeanFanout  float64 `json:"mean_fanout"`
}

// Stats walks the whole tree once and returns its shape summary. Depth is
// counted in edges from the root; fanout is averaged over internal nodes only.
func (t *Tree[T]) Stats() Stats {
	if len(t.nodes) == 0 {
		return Stats{}
	}

	type frame struct {
		id    uint32
		depth int
	}
	depths := make([]float64, len(t.nodes))
	var fanouts []float64
	maxDepth := 0

	stack := make([]frame, 1, 64)
	stack[0] = frame{id: 0}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		depths[f.id] = float64(f.depth)
		if f.depth > maxDepth {
			maxDepth = f.depth
		}
		n := &t.nodes[f.id]
		if len(n.children) == 0 {
			continue
		}
		fanouts = append(fanouts, float64(len(n.children)))
		for _, child := range n.children {
			stack = append(stack, frame{id: child, depth: f.depth + 1})
		}
	}

	s := Stats{
		Items:     len(t.nodes),
		MaxDepth:  maxDepth,
		MeanDepth: stat.Mean(depths, nil),
	}
	// StdDev needs at least two samples; a NaN here would poison the JSON
	// encoding of the admin stats payload.
	if len(depths) > 1 {
		s.StdDevDepth = stat.StdDev(depths, nil)
	}
	if len(fanouts) > 0 {
		s.MeanFanout = stat.Mean(fanouts, nil)
	}
	return s
}
