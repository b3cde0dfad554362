package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
)

// DefaultThreshold is the minimum cosine similarity a match must reach.
const DefaultThreshold = 0.5

// Match is one retrieval hit, ordered by descending score.
type Match struct {
	SourceType SourceType `json:"source_type"`
	SourceID   string     `json:"source_id"`
	Content    string     `json:"content"`
	Score      float64    `json:"score"`
}

// Retriever embeds a query and searches the tenant's knowledge partitions.
// Business logic never calls it directly; the graph reaches it through the
// knowledge.search tool.
type Retriever struct {
	embedder contractx.Embedder
	index    *Index
}

func NewRetriever(embedder contractx.Embedder, index *Index) (*Retriever, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if index == nil {
		return nil, errors.New("index is required")
	}
	return &Retriever{embedder: embedder, index: index}, nil
}

// Search returns up to topN matches with score >= threshold, descending by
// score; ties break toward the most recently updated source. threshold <= 0
// selects DefaultThreshold.
func (r *Retriever) Search(ctx context.Context, tenantID, query string, topN int, threshold float64) ([]Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", contractx.ErrValidation)
	}
	if topN <= 0 {
		topN = 5
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	type scored struct {
		doc   Document
		score float64
	}
	var candidates []scored
	r.index.scan(tenantID, func(doc Document) {
		score := cosineSimilarity(vector, doc.Vector)
		if score < threshold {
			return
		}
		candidates = append(candidates, scored{doc: doc, score: score})
	})

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].doc.UpdatedAt.After(candidates[j].doc.UpdatedAt)
	})

	if topN > len(candidates) {
		topN = len(candidates)
	}
	matches := make([]Match, 0, topN)
	for _, c := range candidates[:topN] {
		matches = append(matches, Match{
			SourceType: c.doc.SourceType,
			SourceID:   c.doc.SourceID,
			Content:    c.doc.Content,
			Score:      c.score,
		})
	}
	return matches, nil
}
