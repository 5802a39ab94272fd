// Package suggestion turns edits to published wiki entries into moderated
// suggestion records and aggregates who contributed them.
package suggestion

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"

	"wikidraft/api/internal/identity"
	"wikidraft/api/internal/store"

	"go.uber.org/zap"
)

// DiffPage is the admin screen identifier of the diff viewer.
const DiffPage = "wiki-show-diff"

// ErrSuggestionNotCreated means the store rejected the suggestion record.
// The save must not continue and no diff link may be built.
var ErrSuggestionNotCreated = errors.New("suggestion not created")

type contentStore interface {
	GetRecord(ctx context.Context, id int64) (store.Record, error)
	CreateRecord(ctx context.Context, item store.Record) (int64, error)
	ListChildren(ctx context.Context, parentID int64, recordType, status string) ([]int64, error)
	SetMeta(ctx context.Context, recordID int64, key, value string) error
	GetMeta(ctx context.Context, recordID int64, key string) (string, error)
}

type identityResolver interface {
	Resolve(ctx context.Context, userID int64) (identity.Identity, error)
}

type Manager struct {
	store    contentStore
	identity identityResolver
	baseURL  string
	logger   *zap.Logger
}

func NewManager(s contentStore, resolver identityResolver, baseURL string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: s, identity: resolver, baseURL: baseURL, logger: logger}
}

// SaveRequest is the payload of one entry save. Fields carries any other
// submitted values and is passed through untouched.
type SaveRequest struct {
	EntryID        int64
	Title          string
	Body           string
	SuggestChanges bool
	Autosave       bool
	AuthorName     string
	AuthorEmail    string
	Fields         map[string]string
}

// SaveContext carries what the decision step learned to the step that picks
// the response target. It lives for one request.
type SaveContext struct {
	EntryID      int64
	SuggestionID int64
	redirect     string
}

// Redirected reports whether the save was turned into a suggestion.
func (c *SaveContext) Redirected() bool {
	return c != nil && c.SuggestionID > 0 && c.redirect != ""
}

// RedirectTarget returns the diff viewer URL when a suggestion was filed,
// otherwise fallback.
func (c *SaveContext) RedirectTarget(fallback string) string {
	if !c.Redirected() {
		return fallback
	}
	return c.redirect
}

// Eligible reports whether req should become a suggestion. Any failure to
// load the target counts as ineligible.
func (m *Manager) Eligible(ctx context.Context, req SaveRequest) bool {
	_, ok := m.eligibleTarget(ctx, req)
	return ok
}

func (m *Manager) eligibleTarget(ctx context.Context, req SaveRequest) (store.Record, bool) {
	if req.Autosave || !req.SuggestChanges {
		return store.Record{}, false
	}
	current, err := m.store.GetRecord(ctx, req.EntryID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.logger.Warn("suggestion eligibility lookup failed", zap.Int64("entry_id", req.EntryID), zap.Error(err))
		}
		return store.Record{}, false
	}
	if current.Type != store.TypeEntry || current.Status != store.StatusPublish {
		return store.Record{}, false
	}
	return current, true
}

// DecideAndMaybeRedirect is the save pipeline step. For an eligible save
// whose title or body differs from the stored entry it files a suggestion,
// rewrites the payload back to the stored title and body and registers the
// diff viewer as redirect target. Every other request comes back unchanged.
func (m *Manager) DecideAndMaybeRedirect(ctx context.Context, req SaveRequest, actor Author) (SaveRequest, *SaveContext, error) {
	saveCtx := &SaveContext{EntryID: req.EntryID}

	current, ok := m.eligibleTarget(ctx, req)
	if !ok {
		return req, saveCtx, nil
	}
	if req.Title == current.Title && req.Body == current.Body {
		return req, saveCtx, nil
	}

	author := actor
	if req.AuthorName != "" {
		author.Name = req.AuthorName
	}
	if req.AuthorEmail != "" {
		author.Email = req.AuthorEmail
	}

	suggestionID, err := m.CreateSuggestion(ctx, current.ID, req.Title, req.Body, author)
	if err != nil {
		return req, saveCtx, err
	}

	out := req
	out.Title = current.Title
	out.Body = current.Body

	saveCtx.SuggestionID = suggestionID
	saveCtx.redirect = m.DiffViewerURL(current.ID, suggestionID)

	m.logger.Info("suggestion filed",
		zap.Int64("entry_id", current.ID),
		zap.Int64("suggestion_id", suggestionID),
		zap.Bool("anonymous", author.Anonymous()),
	)
	return out, saveCtx, nil
}

// CreateSuggestion stores a pending suggestion under entryID. Identical
// proposals are not deduplicated; the body hash is only a readable slug.
// Anonymous authors keep their name and email as record meta.
func (m *Manager) CreateSuggestion(ctx context.Context, entryID int64, title, body string, author Author) (int64, error) {
	sum := md5.Sum([]byte(body))
	id, err := m.store.CreateRecord(ctx, store.Record{
		Type:     store.TypeSuggestion,
		Title:    title,
		Body:     body,
		Slug:     hex.EncodeToString(sum[:]),
		Status:   store.StatusPending,
		ParentID: entryID,
		AuthorID: author.UserID,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSuggestionNotCreated, err)
	}
	if id <= 0 {
		return 0, ErrSuggestionNotCreated
	}

	if !author.Anonymous() {
		return id, nil
	}
	for _, attr := range [][2]string{
		{store.MetaAuthorEmail, author.Email},
		{store.MetaAuthorName, author.Name},
	} {
		key, value := attr[0], attr[1]
		if value == "" {
			continue
		}
		if err := m.store.SetMeta(ctx, id, key, value); err != nil {
			m.logger.Warn("suggestion meta not stored",
				zap.Int64("suggestion_id", id),
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
	return id, nil
}

// DiffViewerURL builds the admin diff view link for a suggestion. Negative
// ids are replaced by their absolute value.
func (m *Manager) DiffViewerURL(source, suggestion int64) string {
	q := url.Values{}
	q.Set("page", DiffPage)
	q.Set("source", strconv.FormatInt(absID(source), 10))
	q.Set("suggestion", strconv.FormatInt(absID(suggestion), 10))
	return m.baseURL + "/admin/diff?" + q.Encode()
}

// ListSuggestions returns suggestion ids for the entry, newest first.
// An empty status means any status. The result is not paginated.
func (m *Manager) ListSuggestions(ctx context.Context, entryID int64, status string) ([]int64, error) {
	if status == "" {
		status = store.StatusAny
	}
	ids, err := m.store.ListChildren(ctx, entryID, store.TypeSuggestion, status)
	if err != nil {
		return nil, fmt.Errorf("list suggestions for %d: %w", entryID, err)
	}
	return ids, nil
}

// Get loads one suggestion with its author resolved.
func (m *Manager) Get(ctx context.Context, id int64) (Suggestion, error) {
	item, err := m.store.GetRecord(ctx, id)
	if err != nil {
		return Suggestion{}, err
	}
	if item.Type != store.TypeSuggestion {
		return Suggestion{}, store.ErrNotFound
	}
	return Suggestion{
		ID:        item.ID,
		EntryID:   item.ParentID,
		Title:     item.Title,
		Body:      item.Body,
		Status:    item.Status,
		Author:    m.authorOf(ctx, item),
		CreatedAt: item.CreatedAt,
	}, nil
}

// authorOf resolves the author of a stored suggestion. Lookup failures
// leave name and email empty.
func (m *Manager) authorOf(ctx context.Context, item store.Record) Author {
	if item.AuthorID > 0 {
		author := Author{UserID: item.AuthorID}
		who, err := m.identity.Resolve(ctx, item.AuthorID)
		if err != nil {
			m.logger.Warn("suggestion author not resolved",
				zap.Int64("suggestion_id", item.ID),
				zap.Int64("user_id", item.AuthorID),
				zap.Error(err),
			)
			return author
		}
		author.Name = who.DisplayName
		author.Email = who.Email
		return author
	}

	var author Author
	var err error
	if author.Email, err = m.store.GetMeta(ctx, item.ID, store.MetaAuthorEmail); err != nil {
		m.logger.Warn("suggestion author email not loaded", zap.Int64("suggestion_id", item.ID), zap.Error(err))
	}
	if author.Name, err = m.store.GetMeta(ctx, item.ID, store.MetaAuthorName); err != nil {
		m.logger.Warn("suggestion author name not loaded", zap.Int64("suggestion_id", item.ID), zap.Error(err))
	}
	return author
}

func absID(id int64) int64 {
	if id < 0 {
		if id == math.MinInt64 {
			return math.MaxInt64
		}
		return -id
	}
	return id
}
