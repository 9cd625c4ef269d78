package retrieval

import (
	"sort"

	"github.com/VerityAI/verity-mvp/engine/semantic"
)

// Hit is a retrieved chunk with its cross-namespace comparable score.
type Hit struct {
	semantic.SearchResult
	// NormScore is the min-max normalized score within the hit's namespace.
	NormScore float64

	priority int // namespace priority, lower wins ties
	rank     int // original rank within the namespace
}

// normalize rescales raw similarity scores to [0,1] within one namespace.
// Scores from different vector spaces are not directly comparable, so each
// branch is normalized against its own min and max before merging. A branch
// where every score is identical maps to 1.0.
func normalize(results []semantic.SearchResult, priority int) []Hit {
	if len(results) == 0 {
		return nil
	}
	lo, hi := results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < lo {
			lo = r.Score
		}
		if r.Score > hi {
			hi = r.Score
		}
	}
	span := hi - lo
	hits := make([]Hit, len(results))
	for i, r := range results {
		norm := 1.0
		if span > 0 {
			norm = float64(r.Score-lo) / float64(span)
		}
		hits[i] = Hit{SearchResult: r, NormScore: norm, priority: priority, rank: i}
	}
	return hits
}

// merge flattens branch results into one list ordered by normalized score.
// Ties break on namespace priority, then on the original in-branch rank, so
// the ordering is deterministic for identical inputs.
func merge(branches [][]Hit) []Hit {
	var all []Hit
	for _, b := range branches {
		all = append(all, b...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].NormScore != all[j].NormScore {
			return all[i].NormScore > all[j].NormScore
		}
		if all[i].priority != all[j].priority {
			return all[i].priority < all[j].priority
		}
		return all[i].rank < all[j].rank
	})
	return all
}

// dedupe removes repeated chunks from a merged, score-ordered list.
// Exact duplicates share (source, chunk index); the first occurrence wins.
// Adjacent chunks of the same source collapse into the higher-scored one
// when their combined content is short enough that keeping both would just
// repeat the same passage.
func dedupe(hits []Hit, adjacentMaxLen int) []Hit {
	kept := make(map[key]Hit, len(hits))
	out := hits[:0:0]
	for _, h := range hits {
		k := key{h.SourceID, h.ChunkIndex}
		if _, ok := kept[k]; ok {
			continue
		}
		if neighbor, ok := adjacentKept(kept, k); ok &&
			len(neighbor.Content)+len(h.Content) < adjacentMaxLen {
			continue
		}
		kept[k] = h
		out = append(out, h)
	}
	return out
}

func adjacentKept(kept map[key]Hit, k key) (Hit, bool) {
	if h, ok := kept[key{k.source, k.chunk - 1}]; ok {
		return h, true
	}
	if h, ok := kept[key{k.source, k.chunk + 1}]; ok {
		return h, true
	}
	return Hit{}, false
}

type key struct {
	source string
	chunk  int
}

// diversify caps how many hits a single source may contribute and
// truncates the result to topK. Input must already be score-ordered.
func diversify(hits []Hit, perSource, topK int) []Hit {
	counts := make(map[string]int)
	out := make([]Hit, 0, topK)
	for _, h := range hits {
		if counts[h.SourceID] >= perSource {
			continue
		}
		counts[h.SourceID]++
		out = append(out, h)
		if len(out) == topK {
			break
		}
	}
	return out
}
