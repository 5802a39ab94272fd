// Package content renders the public wiki entry page, its revision history
// and the editor-facing suggestion views.
package content

import (
	"context"
	"fmt"
	"html/template"
	"net/url"
	"time"

	"wikidraft/api/internal/diff"
	"wikidraft/api/internal/i18n"
	"wikidraft/api/internal/identity"
	"wikidraft/api/internal/store"
	"wikidraft/api/internal/suggestion"
	"wikidraft/api/internal/util"

	"go.uber.org/zap"
)

const avatarSize = 100

type recordStore interface {
	GetRecord(ctx context.Context, id int64) (store.Record, error)
	ListRevisions(ctx context.Context, entryID int64) ([]store.Record, error)
}

type suggestionSource interface {
	Contributors(ctx context.Context, entryID int64) ([]suggestion.Contributor, error)
	ListSuggestions(ctx context.Context, entryID int64, status string) ([]int64, error)
	Get(ctx context.Context, id int64) (suggestion.Suggestion, error)
	DiffViewerURL(source, suggestion int64) string
}

type identityResolver interface {
	Resolve(ctx context.Context, userID int64) (identity.Identity, error)
}

type diffEngine interface {
	Diff(a, b []string) diff.Result
	Render(a, b []string, labels diff.Labels) template.HTML
}

type Presenter struct {
	store       recordStore
	suggestions suggestionSource
	identity    identityResolver
	diff        diffEngine
	messages    *i18n.Bundle
	baseURL     string
	logger      *zap.Logger
}

func NewPresenter(
	s recordStore,
	suggestions suggestionSource,
	resolver identityResolver,
	engine diffEngine,
	messages *i18n.Bundle,
	baseURL string,
	logger *zap.Logger,
) *Presenter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Presenter{
		store:       s,
		suggestions: suggestions,
		identity:    resolver,
		diff:        engine,
		messages:    messages,
		baseURL:     baseURL,
		logger:      logger,
	}
}

// View describes who is looking at the page and with which query.
type View struct {
	Locale    i18n.Locale
	Query     url.Values
	Anonymous bool
}

func (p *Presenter) Permalink(entryID int64) string {
	return fmt.Sprintf("%s/wiki/%d", p.baseURL, entryID)
}

// RevisionDiffURL links the entry page in diff mode for one pair of records.
func (p *Presenter) RevisionDiffURL(entryID, source, revision int64) string {
	return fmt.Sprintf("%s?source=%d&revision=%d", p.Permalink(entryID), source, revision)
}

// RenderEntry renders the full page for a published wiki entry. A query
// carrying both source and revision selects the diff view; anything else
// gets the normal view. Only a missing entry is reported as an error.
func (p *Presenter) RenderEntry(ctx context.Context, entryID int64, view View) (template.HTML, error) {
	entry, err := p.loadEntry(ctx, entryID)
	if err != nil {
		return "", err
	}

	var main template.HTML
	if view.Query.Has("source") && view.Query.Has("revision") {
		main, err = p.renderRevisionDiff(ctx, entry, util.AbsInt(view.Query.Get("source")), util.AbsInt(view.Query.Get("revision")), view.Locale)
	} else {
		main, err = p.renderNormal(ctx, entry, view)
	}
	if err != nil {
		return "", err
	}
	return p.layout(entry.Title, view.Locale, main)
}

func (p *Presenter) loadEntry(ctx context.Context, entryID int64) (store.Record, error) {
	entry, err := p.store.GetRecord(ctx, entryID)
	if err != nil {
		return store.Record{}, err
	}
	if entry.Type != store.TypeEntry || entry.Status != store.StatusPublish {
		return store.Record{}, store.ErrNotFound
	}
	return entry, nil
}

func (p *Presenter) layout(title string, locale i18n.Locale, main template.HTML) (template.HTML, error) {
	return execute("layout", layoutData{
		Lang:     string(locale),
		Title:    title,
		TOCLabel: p.messages.T(locale, "toc.label"),
		Main:     main,
	})
}

type diffView struct {
	Notice      string
	Table       template.HTML
	ReturnURL   string
	ReturnLabel string
}

func (p *Presenter) renderRevisionDiff(ctx context.Context, entry store.Record, sourceID, revisionID int64, locale i18n.Locale) (template.HTML, error) {
	data := diffView{
		ReturnURL:   p.Permalink(entry.ID),
		ReturnLabel: p.messages.T(locale, "entry.return"),
	}

	revision, err := p.store.GetRecord(ctx, revisionID)
	if err == nil && revision.ParentID != entry.ID {
		err = store.ErrNotFound
	}
	if err != nil {
		p.logger.Warn("diff revision not loaded", zap.Int64("entry_id", entry.ID), zap.Int64("revision_id", revisionID), zap.Error(err))
		data.Notice = p.messages.T(locale, "diff.revision_not_found")
		return execute("diff", data)
	}

	sourceLines := []string{}
	if sourceID != 0 {
		source, err := p.store.GetRecord(ctx, sourceID)
		if err == nil && source.ParentID != entry.ID {
			err = store.ErrNotFound
		}
		if err != nil {
			p.logger.Warn("diff source not loaded", zap.Int64("entry_id", entry.ID), zap.Int64("source_id", sourceID), zap.Error(err))
			data.Notice = p.messages.T(locale, "diff.revision_not_found")
			return execute("diff", data)
		}
		sourceLines = diffLines(source)
	}

	data.Table = p.diff.Render(sourceLines, diffLines(revision), p.diffLabels(locale))
	return execute("diff", data)
}

func (p *Presenter) diffLabels(locale i18n.Locale) diff.Labels {
	return diff.Labels{
		Title: p.messages.T(locale, "diff.title"),
		Left:  p.messages.T(locale, "diff.original"),
		Right: p.messages.T(locale, "diff.revised"),
	}
}

// diffLines puts the title on the first line, followed by the body lines.
func diffLines(item store.Record) []string {
	return diff.Lines(item.Title + "\n" + item.Body)
}

type entryLabels struct {
	History             string
	Edit                string
	FormTitle           string
	FormBody            string
	AuthorName          string
	AuthorEmail         string
	Suggest             string
	HistoryHeading      string
	ShowDiff            string
	ContributorsHeading string
}

type contributorView struct {
	Avatar     template.HTML
	Name       string
	CountLabel string
}

type entryView struct {
	Entry        store.Record
	LatestUpdate string
	FormAction   string
	Anonymous    bool
	Labels       entryLabels
	History      []HistoryItem
	Content      template.HTML
	Contributors []contributorView
}

func (p *Presenter) renderNormal(ctx context.Context, entry store.Record, view View) (template.HTML, error) {
	locale := view.Locale
	t := func(key string) string { return p.messages.T(locale, key) }

	history, err := p.History(ctx, entry.ID, locale)
	if err != nil {
		p.logger.Warn("history panel skipped", zap.Int64("entry_id", entry.ID), zap.Error(err))
		history = nil
	}

	return execute("entry", entryView{
		Entry:        entry,
		LatestUpdate: p.messages.T(locale, "header.latest", p.formatDate(locale, entry.ModifiedAt)),
		FormAction:   p.Permalink(entry.ID),
		Anonymous:    view.Anonymous,
		Labels: entryLabels{
			History:             t("header.history"),
			Edit:                t("header.edit"),
			FormTitle:           t("form.title"),
			FormBody:            t("form.body"),
			AuthorName:          t("form.author_name"),
			AuthorEmail:         t("form.author_email"),
			Suggest:             t("form.suggest"),
			HistoryHeading:      t("history.heading"),
			ShowDiff:            t("history.show_diff"),
			ContributorsHeading: t("contributors.heading"),
		},
		History:      history,
		Content:      formatBody(entry.Body),
		Contributors: p.contributorPanel(ctx, entry.ID, locale),
	})
}

func (p *Presenter) contributorPanel(ctx context.Context, entryID int64, locale i18n.Locale) []contributorView {
	contributors, err := p.suggestions.Contributors(ctx, entryID)
	if err != nil {
		p.logger.Warn("contributor panel skipped", zap.Int64("entry_id", entryID), zap.Error(err))
		return nil
	}
	out := make([]contributorView, 0, len(contributors))
	for _, c := range contributors {
		out = append(out, contributorView{
			Avatar:     identity.Avatar(c.Email, avatarSize),
			Name:       c.Name,
			CountLabel: p.messages.N(locale, "contributors.count", "contributors.counts", c.Count, c.Count),
		})
	}
	return out
}

func (p *Presenter) formatDate(locale i18n.Locale, at time.Time) string {
	return at.Format(p.messages.DateLayout(locale))
}

// displayName resolves a user id for attribution lines. Unknown or missing
// authors render as an empty name.
func (p *Presenter) displayName(ctx context.Context, userID int64) string {
	if userID <= 0 {
		return ""
	}
	who, err := p.identity.Resolve(ctx, userID)
	if err != nil {
		p.logger.Warn("author not resolved", zap.Int64("user_id", userID), zap.Error(err))
		return ""
	}
	return who.DisplayName
}
