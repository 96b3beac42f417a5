package matcher

import (
	"github.com/coder/hnsw"

	"github.com/kozaktomas/cover-matcher/internal/constants"
)

// shortlist narrows large pools to the photos whose embeddings are nearest
// the track embedding, preserving pool order. Small pools, and tracks
// without an embedding, are returned unchanged.
func (s *Scorer) shortlist(pool []Candidate, trackEmb []float32) []Candidate {
	size := s.params.ShortlistSize
	if trackEmb == nil || s.params.ShortlistThreshold <= 0 || size <= 0 || len(pool) <= s.params.ShortlistThreshold {
		return pool
	}

	g := hnsw.NewGraph[int]()
	g.M = constants.ShortlistMaxNeighbors
	g.Ml = 1.0 / float64(constants.ShortlistMaxNeighbors)
	g.Distance = hnsw.CosineDistance
	g.EfSearch = constants.ShortlistEfSearch

	indexed := 0
	for i, c := range pool {
		if len(c.Features.Embedding) != len(trackEmb) {
			continue
		}
		g.Add(hnsw.MakeNode(i, c.Features.Embedding))
		indexed++
	}
	if indexed <= size {
		return pool
	}

	keep := make(map[int]bool, size)
	for _, n := range g.Search(trackEmb, size) {
		keep[n.Key] = true
	}

	out := make([]Candidate, 0, len(keep))
	for i, c := range pool {
		if keep[i] {
			out = append(out, c)
		}
	}
	s.logger.Debug("shortlisted candidates", "pool", len(pool), "shortlist", len(out))
	return out
}
