package retrieval

import (
	"sort"
	"strings"
	"unicode"
)

// Merged candidates are reranked by term overlap with the query before
// truncation, so a lexically relevant low-scored source can displace a
// high-scored but off-topic one. Original and overlap scores weigh in
// equally; source scores are normalized first since bleve and web
// scores live on different scales.
const (
	rerankOriginalWeight = 0.5
	rerankOverlapWeight  = 0.5
)

var rerankStopwords = map[string]struct{}{
	"acaba": {}, "ama": {}, "ancak": {}, "bana": {}, "ben": {},
	"bir": {}, "biraz": {}, "bu": {}, "da": {}, "daha": {}, "de": {},
	"değil": {}, "gibi": {}, "için": {}, "ile": {}, "mi": {}, "mı": {},
	"mu": {}, "mü": {}, "nasıl": {}, "ne": {}, "neden": {}, "nedir": {},
	"olan": {}, "olarak": {}, "sen": {}, "şey": {}, "ve": {}, "veya": {},
	"the": {}, "and": {}, "for": {}, "how": {}, "what": {}, "with": {},
}

// rerankSources orders candidates by combined score and returns the top
// maxSources. The sort is stable so ties keep local-before-web order.
func rerankSources(query string, sources []Source, maxSources int) []Source {
	if len(sources) == 0 {
		return sources
	}

	queryTerms := rerankTokenize(query)
	maxScore := 0.0
	for _, s := range sources {
		if s.Score > maxScore {
			maxScore = s.Score
		}
	}

	type candidate struct {
		source   Source
		combined float64
	}

	candidates := make([]candidate, len(sources))
	for i, s := range sources {
		normalized := 0.0
		if maxScore > 0 {
			normalized = s.Score / maxScore
		}
		overlap := termOverlap(queryTerms, rerankTokenize(s.Title+" "+s.Snippet))
		candidates[i] = candidate{
			source:   s,
			combined: rerankOriginalWeight*normalized + rerankOverlapWeight*overlap,
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].combined > candidates[j].combined
	})

	limit := maxSources
	if limit > len(candidates) {
		limit = len(candidates)
	}

	out := make([]Source, limit)
	for i := 0; i < limit; i++ {
		out[i] = candidates[i].source
	}
	return out
}

// termOverlap is the fraction of query terms present in the document.
func termOverlap(queryTerms, docTerms []string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}

	docSet := make(map[string]struct{}, len(docTerms))
	for _, t := range docTerms {
		docSet[t] = struct{}{}
	}

	matched := 0
	for _, t := range queryTerms {
		if _, ok := docSet[t]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTerms))
}

// rerankTokenize lowercases, splits on non-alphanumeric runes and drops
// stopwords and terms shorter than three runes.
func rerankTokenize(text string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	filtered := tokens[:0]
	for _, t := range tokens {
		if len([]rune(t)) < 3 {
			continue
		}
		if _, stop := rerankStopwords[t]; stop {
			continue
		}
		filtered = append(filtered, t)
	}
	return filtered
}
