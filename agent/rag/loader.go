package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
	snapshotx "github.com/fernandofuc/tistis-platform-sub010/agent/snapshot"
	"github.com/rs/zerolog/log"
)

// Loader fills a tenant partition of the index from the business snapshot.
// Articles, FAQs, policies and service descriptions become retrievable
// documents; anything that fails to embed is skipped, not fatal.
type Loader struct {
	snapshots contractx.SnapshotSource
	embedder  contractx.Embedder
	index     *Index
}

func NewLoader(snapshots contractx.SnapshotSource, embedder contractx.Embedder, index *Index) (*Loader, error) {
	if snapshots == nil || embedder == nil || index == nil {
		return nil, errors.New("snapshot source, embedder and index are required")
	}
	return &Loader{snapshots: snapshots, embedder: embedder, index: index}, nil
}

// EnsureTenant loads the partition only when it is still empty.
func (l *Loader) EnsureTenant(ctx context.Context, tenantID string) error {
	if l.index.Count(tenantID) > 0 {
		return nil
	}
	return l.Sync(ctx, tenantID)
}

// Sync re-embeds the tenant's knowledge sources and upserts them into the
// index, replacing documents with matching (source type, source id).
func (l *Loader) Sync(ctx context.Context, tenantID string) error {
	bc, err := l.snapshots.Snapshot(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("load snapshot for indexing: %w", err)
	}

	var docs []Document
	for _, a := range bc.Articles {
		docs = append(docs, Document{
			TenantID:   tenantID,
			SourceType: SourceArticle,
			SourceID:   a.ID,
			Content:    strings.TrimSpace(a.Title + "\n" + a.Body),
			UpdatedAt:  a.UpdatedAt,
		})
	}
	for _, f := range bc.FAQs {
		docs = append(docs, Document{
			TenantID:   tenantID,
			SourceType: SourceFAQ,
			SourceID:   f.ID,
			Content:    strings.TrimSpace(f.Question + "\n" + f.Answer),
			UpdatedAt:  f.UpdatedAt,
		})
	}
	for _, p := range bc.Policies {
		docs = append(docs, Document{
			TenantID:   tenantID,
			SourceType: SourcePolicy,
			SourceID:   p.ID,
			Content:    strings.TrimSpace(p.Topic + "\n" + p.Text),
		})
	}
	for _, s := range bc.Services {
		docs = append(docs, Document{
			TenantID:   tenantID,
			SourceType: SourceService,
			SourceID:   s.ID,
			Content:    serviceContent(s),
		})
	}

	indexed := 0
	for _, doc := range docs {
		if doc.Content == "" {
			continue
		}
		vec, err := l.embedder.Embed(ctx, doc.Content)
		if err != nil {
			log.Warn().Err(err).
				Str("tenant_id", tenantID).
				Str("source_type", string(doc.SourceType)).
				Str("source_id", doc.SourceID).
				Msg("embed knowledge document failed, skipping")
			continue
		}
		doc.ID = string(doc.SourceType) + ":" + doc.SourceID
		doc.Vector = vec
		l.index.Upsert(doc)
		indexed++
	}

	log.Info().Str("tenant_id", tenantID).Int("documents", indexed).Msg("knowledge index synced")
	return nil
}

func serviceContent(s snapshotx.Service) string {
	parts := []string{s.Name}
	if s.Description != "" {
		parts = append(parts, s.Description)
	}
	if s.Price > 0 {
		parts = append(parts, fmt.Sprintf("Price: %.2f", s.Price))
	}
	if s.DurationMin > 0 {
		parts = append(parts, fmt.Sprintf("Duration: %d minutes", s.DurationMin))
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
