// Package knn provides nearest-neighbor search over 3-D image locations for
// the spatial matching strategy.
package knn

import (
	"errors"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// Result is one neighbor of a query point: the ordinal of the indexed
// location and the squared Euclidean distance to it, ascending by distance.
type Result struct {
	Ordinal int
	DistSq  float32
}

// Index is a nearest-neighbor index over a fixed set of 3-D locations.
// Build once, search from many goroutines.
type Index struct {
	graph     *hnsw.Graph[int]
	locations [][3]float32
}

// maxNeighborsPerNode bounds the graph degree. Image location sets are small
// enough that the standard value is plenty.
const maxNeighborsPerNode = 16

// Build indexes the given locations. Ordinals in search results refer to
// positions in this slice.
func Build(locations [][3]float32) (*Index, error) {
	if len(locations) == 0 {
		return nil, errors.New("knn: no locations to index")
	}

	g := hnsw.NewGraph[int]()
	g.M = maxNeighborsPerNode
	g.Ml = 1.0 / float64(maxNeighborsPerNode)
	g.Distance = hnsw.EuclideanDistance

	for i, loc := range locations {
		g.Add(hnsw.MakeNode(i, []float32{loc[0], loc[1], loc[2]}))
	}

	return &Index{graph: g, locations: locations}, nil
}

// Len returns the number of indexed locations.
func (idx *Index) Len() int {
	return len(idx.locations)
}

// Search returns up to k nearest neighbors of the query point, sorted by
// squared distance ascending. The query point itself is included when it is
// part of the index.
func (idx *Index) Search(query [3]float32, k int) []Result {
	if k > len(idx.locations) {
		k = len(idx.locations)
	}
	neighbors := idx.graph.Search([]float32{query[0], query[1], query[2]}, k)

	results := make([]Result, len(neighbors))
	for i, n := range neighbors {
		results[i] = Result{
			Ordinal: n.Key,
			DistSq:  squaredDistance(query, idx.locations[n.Key]),
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].DistSq < results[j].DistSq
	})
	return results
}

// SearchAll runs Search for every indexed location, fanning queries out over
// numThreads goroutines. The i-th slice of the result holds the neighbors of
// location i.
func (idx *Index) SearchAll(k, numThreads int) [][]Result {
	if numThreads <= 0 {
		numThreads = 1
	}
	if numThreads > len(idx.locations) {
		numThreads = len(idx.locations)
	}

	results := make([][]Result, len(idx.locations))

	var wg sync.WaitGroup
	next := make(chan int)
	for t := 0; t < numThreads; t++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				results[i] = idx.Search(idx.locations[i], k)
			}
		}()
	}
	for i := range idx.locations {
		next <- i
	}
	close(next)
	wg.Wait()

	return results
}

func squaredDistance(a, b [3]float32) float32 {
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	dz := a[2] - b[2]
	return dx*dx + dy*dy + dz*dz
}
