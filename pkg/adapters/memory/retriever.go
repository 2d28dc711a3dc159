package memory

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/aretw0/braid/pkg/domain"
)

// Retriever implements ports.Retriever over an in-memory document set.
// Documents are scored by how many distinct query terms they contain; it is
// meant for demos and tests, not for relevance.
type Retriever struct {
	docs []domain.Document
	k    int
}

// NewRetriever creates a Retriever returning at most k documents (k <= 0 means all matches).
func NewRetriever(k int, docs ...domain.Document) *Retriever {
	return &Retriever{docs: append([]domain.Document(nil), docs...), k: k}
}

// Retrieve returns the matching documents, best first. Ties keep insertion order.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := terms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	var hits []domain.Document
	for _, d := range r.docs {
		words := make(map[string]struct{})
		for _, w := range strings.FieldsFunc(strings.ToLower(d.Content), notWord) {
			words[w] = struct{}{}
		}
		score := 0
		for t := range terms {
			if _, ok := words[t]; ok {
				score++
			}
		}
		if score == 0 {
			continue
		}
		hit := d
		hit.Score = float64(score) / float64(len(terms))
		hits = append(hits, hit)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if r.k > 0 && len(hits) > r.k {
		hits = hits[:r.k]
	}
	return hits, nil
}

func terms(query string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(query), notWord) {
		if len(w) > 2 {
			out[w] = struct{}{}
		}
	}
	return out
}

func notWord(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsNumber(r)
}
