package facematch

import (
	"sync"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/rollcall/internal/gallery"
)

// HNSW index parameters for face embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100

	// HNSWSearchCandidates is how many neighbors are requested per query before
	// exact re-scoring picks the nearest one.
	HNSWSearchCandidates = 8
)

// Index wraps an HNSW graph over gallery positions.
type Index struct {
	graph *hnsw.Graph[int]
	dim   int
	mu    sync.RWMutex
}

// BuildIndex builds the index from every gallery entry, keyed by gallery position.
func BuildIndex(g *gallery.Gallery, metric Metric) *Index {
	graph := hnsw.NewGraph[int]()
	graph.M = HNSWMaxNeighbors
	graph.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	graph.EfSearch = HNSWEfSearch
	if metric == MetricCosine {
		graph.Distance = hnsw.CosineDistance
	} else {
		graph.Distance = hnsw.EuclideanDistance
	}

	for i := range g.Len() {
		graph.Add(hnsw.MakeNode(i, g.Entry(i).Embedding))
	}

	return &Index{graph: graph, dim: g.Dim()}
}

// Search returns up to k gallery positions near query. A query of the wrong
// dimension returns nothing.
func (x *Index) Search(query []float32, k int) []int {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil || x.graph.Len() == 0 || len(query) != x.dim {
		return nil
	}

	neighbors := x.graph.Search(query, k)
	positions := make([]int, len(neighbors))
	for i, n := range neighbors {
		positions[i] = n.Key
	}
	return positions
}

// Len returns the number of indexed entries.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.graph == nil {
		return 0
	}
	return x.graph.Len()
}
