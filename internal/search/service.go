package search

import (
	"context"

	"go.uber.org/zap"
)

type entryIndex interface {
	Searcher
	IndexEntry(entry EntryRecord) error
	IndexEntries(entries []EntryRecord) error
	DeleteEntry(id int64) error
}

type entryLoader interface {
	Searcher
	LoadAllEntries(ctx context.Context) ([]EntryRecord, error)
}

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili  entryIndex
	pgfts  entryLoader
	logger *zap.Logger
	urlFor func(id int64) string
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS, logger *zap.Logger) *Service {
	var idx entryIndex
	if meili != nil {
		idx = meili
	}
	var loader entryLoader
	if pgfts != nil {
		loader = pgfts
	}
	return newService(idx, loader, logger)
}

func newService(meili entryIndex, pgfts entryLoader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{meili: meili, pgfts: pgfts, logger: logger.Named("search")}
}

// WithPermalinks makes every result carry the URL returned by fn.
func (s *Service) WithPermalinks(fn func(id int64) string) *Service {
	s.urlFor = fn
	return s
}

func (s *Service) meiliReady() bool {
	return s.meili != nil && s.meili.Healthy()
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meiliReady() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: s.decorate(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("meilisearch error, falling back to pgfts", zap.Error(err))
	}

	if s.pgfts == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.pgfts.Search(q)
	if err != nil {
		s.logger.Error("pgfts search failed", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: s.decorate(results), Total: total, Query: q.Text}
}

// IndexEntry indexes an entry (fire-and-forget to Meilisearch).
func (s *Service) IndexEntry(entry EntryRecord) {
	if !s.meiliReady() {
		return
	}
	go func() {
		if err := s.meili.IndexEntry(entry); err != nil {
			s.logger.Warn("index entry", zap.Int64("entry_id", entry.ID), zap.Error(err))
		}
	}()
}

// DeleteEntry removes an entry from the search index (fire-and-forget).
func (s *Service) DeleteEntry(id int64) {
	if !s.meiliReady() {
		return
	}
	go func() {
		if err := s.meili.DeleteEntry(id); err != nil {
			s.logger.Warn("delete entry", zap.Int64("entry_id", id), zap.Error(err))
		}
	}()
}

// ReindexAllFromPG pushes every published entry from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if !s.meiliReady() || s.pgfts == nil {
		return
	}
	entries, err := s.pgfts.LoadAllEntries(ctx)
	if err != nil {
		s.logger.Error("reindex load failed", zap.Error(err))
		return
	}
	if err := s.meili.IndexEntries(entries); err != nil {
		s.logger.Error("reindex entries", zap.Error(err))
		return
	}
	s.logger.Info("reindexed entries", zap.Int("count", len(entries)))
}

func (s *Service) decorate(results []Result) []Result {
	if results == nil {
		return []Result{}
	}
	if s.urlFor != nil {
		for i := range results {
			results[i].URL = s.urlFor(results[i].ID)
		}
	}
	return results
}
