package rag

import (
	"math"
	"sync"
	"time"
)

// SourceType names the knowledge partition a document belongs to.
type SourceType string

const (
	SourceArticle SourceType = "article"
	SourceFAQ     SourceType = "faq"
	SourcePolicy  SourceType = "policy"
	SourceService SourceType = "service"
)

// Document is one pre-embedded knowledge record. Embeddings are stored
// alongside the source record; the index never embeds documents itself.
type Document struct {
	ID         string
	TenantID   string
	SourceType SourceType
	SourceID   string
	Content    string
	Vector     []float64
	UpdatedAt  time.Time
}

// Index is a tenant-partitioned in-memory vector index using brute-force
// cosine similarity. Suitable for the per-tenant knowledge volumes this
// system carries; swap for pgvector when partitions grow.
type Index struct {
	mu   sync.RWMutex
	docs map[string][]Document // tenant id -> partition
}

func NewIndex() *Index {
	return &Index{docs: make(map[string][]Document)}
}

// Upsert replaces a document by (tenant, source type, source id) or appends
// a new one.
func (ix *Index) Upsert(doc Document) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	partition := ix.docs[doc.TenantID]
	for i, existing := range partition {
		if existing.SourceType == doc.SourceType && existing.SourceID == doc.SourceID {
			partition[i] = doc
			return
		}
	}
	ix.docs[doc.TenantID] = append(partition, doc)
}

func (ix *Index) Count(tenantID string) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs[tenantID])
}

// scan calls fn for every document in the tenant partition.
func (ix *Index) scan(tenantID string, fn func(Document)) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for _, doc := range ix.docs[tenantID] {
		fn(doc)
	}
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
