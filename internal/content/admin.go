package content

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/url"

	"wikidraft/api/internal/diff"
	"wikidraft/api/internal/i18n"
	"wikidraft/api/internal/store"
	"wikidraft/api/internal/suggestion"
	"wikidraft/api/internal/util"

	"go.uber.org/zap"
)

type SuggestionRow struct {
	ID           int64         `json:"id"`
	Status       string        `json:"status"`
	Author       string        `json:"author"`
	Anonymous    bool          `json:"anonymous"`
	Date         string        `json:"date"`
	EditCount    int           `json:"editCount"`
	ChangesLabel string        `json:"changesLabel"`
	DiffURL      string        `json:"diffUrl"`
	Attribution  template.HTML `json:"-"`
}

// SuggestionRows lists every suggestion on the entry, newest first, with
// the number of edits it proposes against the live body.
func (p *Presenter) SuggestionRows(ctx context.Context, entryID int64, locale i18n.Locale) ([]SuggestionRow, error) {
	entry, err := p.store.GetRecord(ctx, entryID)
	if err != nil {
		return nil, err
	}
	ids, err := p.suggestions.ListSuggestions(ctx, entryID, store.StatusAny)
	if err != nil {
		return nil, err
	}

	rows := make([]SuggestionRow, 0, len(ids))
	for _, id := range ids {
		item, err := p.suggestions.Get(ctx, id)
		if err != nil {
			p.logger.Warn("suggestion row skipped", zap.Int64("entry_id", entryID), zap.Int64("suggestion_id", id), zap.Error(err))
			continue
		}
		edits := p.diff.Diff(diff.Lines(entry.Body), diff.Lines(item.Body)).EditCount
		date := p.formatDate(locale, item.CreatedAt)
		rows = append(rows, SuggestionRow{
			ID:           item.ID,
			Status:       item.Status,
			Author:       item.Author.Name,
			Anonymous:    item.Author.Anonymous(),
			Date:         date,
			EditCount:    edits,
			ChangesLabel: p.messages.N(locale, "suggestion.change", "suggestion.changes", edits, edits),
			DiffURL:      p.suggestions.DiffViewerURL(entryID, item.ID),
			Attribution:  template.HTML(p.messages.T(locale, "suggestion.by", strong(item.Author.Name), template.HTMLEscapeString(date))),
		})
	}
	return rows, nil
}

type suggestionListView struct {
	Heading  string
	ShowDiff string
	Empty    string
	Rows     []SuggestionRow
}

// RenderSuggestionList renders the editor's suggestion box for an entry.
func (p *Presenter) RenderSuggestionList(ctx context.Context, entryID int64, locale i18n.Locale) (template.HTML, error) {
	rows, err := p.SuggestionRows(ctx, entryID, locale)
	if err != nil {
		return "", err
	}
	return execute("suggestions", suggestionListView{
		Heading:  p.messages.T(locale, "suggestion.heading"),
		ShowDiff: p.messages.T(locale, "history.show_diff"),
		Empty:    p.messages.T(locale, "suggestion.none"),
		Rows:     rows,
	})
}

// RenderSuggestionDiff renders the admin diff viewer: the live entry on the
// left, the suggestion on the right, followed by the suggestion list.
func (p *Presenter) RenderSuggestionDiff(ctx context.Context, query url.Values, locale i18n.Locale) (template.HTML, error) {
	sourceID := util.AbsInt(query.Get("source"))
	suggestionID := util.AbsInt(query.Get("suggestion"))

	entry, err := p.store.GetRecord(ctx, sourceID)
	if err != nil {
		return "", err
	}

	data := diffView{
		ReturnURL:   p.Permalink(entry.ID),
		ReturnLabel: p.messages.T(locale, "entry.return"),
	}
	item, err := p.suggestions.Get(ctx, suggestionID)
	switch {
	case errors.Is(err, store.ErrNotFound), err == nil && item.EntryID != entry.ID:
		data.Notice = p.messages.T(locale, "suggestion.unavailable")
	case err != nil:
		return "", fmt.Errorf("load suggestion %d: %w", suggestionID, err)
	default:
		data.Table = p.diff.Render(
			diffLines(entry),
			diff.Lines(item.Title+"\n"+item.Body),
			p.diffLabels(locale),
		)
	}

	main, err := execute("diff", data)
	if err != nil {
		return "", err
	}
	list, err := p.RenderSuggestionList(ctx, entry.ID, locale)
	if err != nil {
		p.logger.Warn("suggestion list skipped", zap.Int64("entry_id", entry.ID), zap.Error(err))
		list = ""
	}
	return p.layout(entry.Title, locale, main+list)
}

var _ suggestionSource = (*suggestion.Manager)(nil)
