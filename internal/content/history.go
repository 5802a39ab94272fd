package content

import (
	"context"
	"fmt"
	"html/template"

	"wikidraft/api/internal/i18n"
)

type HistoryItem struct {
	RevisionID  int64         `json:"revisionId"`
	SourceID    int64         `json:"sourceId"`
	Author      string        `json:"author"`
	Date        string        `json:"date"`
	Attribution template.HTML `json:"-"`
	DiffURL     string        `json:"diffUrl"`
}

// History lists the entry's revisions oldest first. Each item links the
// diff against the revision before it, the first one against nothing.
func (p *Presenter) History(ctx context.Context, entryID int64, locale i18n.Locale) ([]HistoryItem, error) {
	revisions, err := p.store.ListRevisions(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("list revisions for %d: %w", entryID, err)
	}

	items := make([]HistoryItem, 0, len(revisions))
	var previous int64
	for i := len(revisions) - 1; i >= 0; i-- {
		revision := revisions[i]
		author := p.displayName(ctx, revision.AuthorID)
		date := p.formatDate(locale, revision.CreatedAt)
		items = append(items, HistoryItem{
			RevisionID:  revision.ID,
			SourceID:    previous,
			Author:      author,
			Date:        date,
			Attribution: template.HTML(p.messages.T(locale, "history.by", strong(author), template.HTMLEscapeString(date))),
			DiffURL:     p.RevisionDiffURL(entryID, previous, revision.ID),
		})
		previous = revision.ID
	}
	return items, nil
}
