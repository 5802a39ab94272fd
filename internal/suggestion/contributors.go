package suggestion

import (
	"context"
	"sort"

	"wikidraft/api/internal/store"

	"go.uber.org/zap"
)

// Contributors counts every suggestion on the entry, whatever its status,
// per attribution key. The name and email of a key come from the first
// suggestion seen for it. The result is ordered by count, highest first;
// equal counts end up in reverse order of first sighting.
//
// Nothing is cached, so each call walks all suggestions of the entry.
func (m *Manager) Contributors(ctx context.Context, entryID int64) ([]Contributor, error) {
	ids, err := m.ListSuggestions(ctx, entryID, "")
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]*Contributor, len(ids))
	order := make([]*Contributor, 0, len(ids))
	for _, id := range ids {
		item, err := m.store.GetRecord(ctx, id)
		if err != nil {
			m.logger.Warn("contributor suggestion not loaded",
				zap.Int64("entry_id", entryID),
				zap.Int64("suggestion_id", id),
				zap.Error(err),
			)
			continue
		}

		var key string
		if item.AuthorID > 0 {
			key = Authenticated(item.AuthorID).Key()
		} else {
			email, err := m.store.GetMeta(ctx, item.ID, store.MetaAuthorEmail)
			if err != nil {
				m.logger.Warn("contributor email not loaded", zap.Int64("suggestion_id", item.ID), zap.Error(err))
			}
			key = Anonymous("", email).Key()
		}

		if seen, ok := byKey[key]; ok {
			seen.Count++
			continue
		}
		author := m.authorOf(ctx, item)
		c := &Contributor{Key: key, Name: author.Name, Email: author.Email, Count: 1}
		byKey[key] = c
		order = append(order, c)
	}

	out := make([]Contributor, 0, len(order))
	for _, c := range order {
		out = append(out, *c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count < out[j].Count
	})
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
