package usecase

import (
	"sort"

	"github.com/adamstz/organize-mail-sub001/internal/core/domain"
)

const defaultRRFK = 60

type fusedAccumulator struct {
	score   float64
	keyword bool
	vector  bool
}

// fuseRankedLists merges two independently ranked lists with weighted
// reciprocal rank fusion: each source contributes weight/(k+rank) for the
// documents it returned. Output is ordered by fused score descending; ties
// prefer documents present in both sources, then lexicographic id, so the
// ordering is identical across runs for identical inputs.
//
// Entries with a non-positive rank violate the ranked-list contract and are
// dropped rather than poisoning the fused scores.
func fuseRankedLists(
	keyword, vector []domain.RetrievedDocument,
	keywordWeight, vectorWeight float64,
	rrfK int,
) []domain.FusedDocument {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	acc := make(map[string]*fusedAccumulator, len(keyword)+len(vector))
	add := func(docs []domain.RetrievedDocument, weight float64, markKeyword bool) {
		for _, doc := range docs {
			if doc.Rank <= 0 || doc.ID == "" {
				continue
			}
			entry := acc[doc.ID]
			if entry == nil {
				entry = &fusedAccumulator{}
				acc[doc.ID] = entry
			}
			entry.score += weight / float64(rrfK+doc.Rank)
			if markKeyword {
				entry.keyword = true
			} else {
				entry.vector = true
			}
		}
	}

	add(keyword, keywordWeight, true)
	add(vector, vectorWeight, false)

	out := make([]domain.FusedDocument, 0, len(acc))
	for id, entry := range acc {
		sources := make([]domain.RetrievalSource, 0, 2)
		if entry.keyword {
			sources = append(sources, domain.SourceKeyword)
		}
		if entry.vector {
			sources = append(sources, domain.SourceVector)
		}
		out = append(out, domain.FusedDocument{
			ID:      id,
			Score:   entry.score,
			Sources: sources,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].FromBothSources() != out[j].FromBothSources() {
			return out[i].FromBothSources()
		}
		return out[i].ID < out[j].ID
	})

	return out
}

func trimFused(docs []domain.FusedDocument, limit int) []domain.FusedDocument {
	if limit <= 0 || len(docs) <= limit {
		return docs
	}
	return docs[:limit]
}
