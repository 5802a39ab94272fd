package app

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"wikidraft/api/internal/auth"
	"wikidraft/api/internal/config"
	"wikidraft/api/internal/content"
	"wikidraft/api/internal/gitrepo"
	"wikidraft/api/internal/i18n"
	"wikidraft/api/internal/metrics"
	"wikidraft/api/internal/rbac"
	"wikidraft/api/internal/search"
	"wikidraft/api/internal/store"
	"wikidraft/api/internal/suggestion"
	"wikidraft/api/internal/util"

	"go.uber.org/zap"
)

const welcomeBody = "This wiki accepts suggestions from every visitor.\nEditors review them before they go live."

type Session struct {
	Token        string
	RefreshToken string
	UserID       int64
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// Anonymous reports whether no user is signed in.
func (s Session) Anonymous() bool {
	return s.UserID <= 0
}

// SaveInput is the save payload as submitted by the edit form or the API.
type SaveInput struct {
	Title          string            `json:"title"`
	Body           string            `json:"body"`
	SuggestChanges bool              `json:"suggestChanges"`
	Autosave       bool              `json:"autosave"`
	AuthorName     string            `json:"authorName"`
	AuthorEmail    string            `json:"authorEmail"`
	Fields         map[string]string `json:"fields,omitempty"`
}

// SaveResult is what one run of the save pipeline produced.
type SaveResult struct {
	Entry        store.Record
	Changed      bool
	SuggestionID int64
	Redirect     string
}

type dataStore interface {
	EnsureUserByName(ctx context.Context, name string) (store.User, error)
	GetUserByID(ctx context.Context, userID int64) (store.User, error)
	SetUserRole(ctx context.Context, userID int64, role string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
	CreateEntry(ctx context.Context, draft store.Record) (store.Record, error)
	GetRecord(ctx context.Context, id int64) (store.Record, error)
	ListEntries(ctx context.Context) ([]store.Record, error)
	SaveEntry(ctx context.Context, update store.EntryUpdate) (store.Record, bool, error)
	Ping(ctx context.Context) error
}

type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, userID int64, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type archiveService interface {
	Commit(entryID int64, snapshot gitrepo.Snapshot, author, message string) (gitrepo.CommitInfo, error)
	History(entryID int64, limit int) ([]gitrepo.CommitInfo, error)
}

type suggestionService interface {
	DecideAndMaybeRedirect(ctx context.Context, req suggestion.SaveRequest, actor suggestion.Author) (suggestion.SaveRequest, *suggestion.SaveContext, error)
	Contributors(ctx context.Context, entryID int64) ([]suggestion.Contributor, error)
}

type pagePresenter interface {
	Permalink(entryID int64) string
	RenderEntry(ctx context.Context, entryID int64, view content.View) (template.HTML, error)
	RenderSuggestionDiff(ctx context.Context, query url.Values, locale i18n.Locale) (template.HTML, error)
	SuggestionRows(ctx context.Context, entryID int64, locale i18n.Locale) ([]content.SuggestionRow, error)
}

type searchService interface {
	Search(q search.Query) search.Response
	IndexEntry(entry search.EntryRecord)
}

// Deps are the collaborators of Service. Sessions, Archive, Search and
// Metrics are optional.
type Deps struct {
	Store       dataStore
	Sessions    sessionStore
	Archive     archiveService
	Suggestions suggestionService
	Presenter   pagePresenter
	Search      searchService
	Messages    *i18n.Bundle
	Metrics     *metrics.Collector
	Logger      *zap.Logger
}

type Service struct {
	cfg         config.Config
	store       dataStore
	sessions    sessionStore
	archive     archiveService
	suggestions suggestionService
	presenter   pagePresenter
	search      searchService
	messages    *i18n.Bundle
	metrics     *metrics.Collector
	logger      *zap.Logger
}

func New(cfg config.Config, deps Deps) *Service {
	s := &Service{
		cfg:         cfg,
		store:       deps.Store,
		sessions:    deps.Sessions,
		archive:     deps.Archive,
		suggestions: deps.Suggestions,
		presenter:   deps.Presenter,
		search:      deps.Search,
		messages:    deps.Messages,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
	}
	if s.sessions == nil {
		if fallback, ok := deps.Store.(sessionStore); ok {
			s.sessions = fallback
		}
	}
	if s.messages == nil {
		s.messages = i18n.NewBundle(i18n.LocaleEn)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Bootstrap seeds an editor account and a welcome entry into an empty wiki.
func (s *Service) Bootstrap(ctx context.Context) error {
	entries, err := s.store.ListEntries(ctx)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return nil
	}

	editor, err := s.store.EnsureUserByName(ctx, "Editor")
	if err != nil {
		return err
	}
	if err := s.store.SetUserRole(ctx, editor.ID, string(rbac.RoleEditor)); err != nil {
		return err
	}

	entry, err := s.store.CreateEntry(ctx, store.Record{
		Title:    "Welcome",
		Body:     welcomeBody,
		Status:   store.StatusPublish,
		AuthorID: editor.ID,
	})
	if err != nil {
		return err
	}
	s.recordRevision(entry, editor.DisplayName, "Create entry")
	s.logger.Info("bootstrapped wiki", zap.Int64("entry_id", entry.ID), zap.Int64("editor_id", editor.ID))
	return nil
}

func (s *Service) Login(ctx context.Context, name string) (Session, error) {
	userName := strings.TrimSpace(name)
	if userName == "" {
		userName = "User"
	}

	user, err := s.store.EnsureUserByName(ctx, userName)
	if err != nil {
		return Session{}, err
	}

	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	ref, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// The Redis store only remembers the id.
	user, err := s.store.GetUserByID(ctx, ref.ID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		UserID: user.ID,
		Name:   user.DisplayName,
		Role:   user.Role,
		JTI:    jti,
		Exp:    expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: claims.ExpiresAt(),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			s.logger.Warn("revoke access token", zap.Error(err))
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			s.logger.Warn("revoke refresh session", zap.Error(err))
		}
	}
	return nil
}

// Can applies the role table. Anonymous visitors count as viewers.
func (s *Service) Can(session Session, action rbac.Action) bool {
	if session.Anonymous() {
		return rbac.Can(rbac.RoleViewer, action)
	}
	return rbac.Can(rbac.Normalize(session.Role), action)
}

// CreateEntry publishes a new entry written by an editor.
func (s *Service) CreateEntry(ctx context.Context, session Session, title, body string) (store.Record, error) {
	if session.Anonymous() || !s.Can(session, rbac.ActionWrite) {
		return store.Record{}, errForbidden
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return store.Record{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}

	entry, err := s.store.CreateEntry(ctx, store.Record{
		Title:    title,
		Body:     body,
		Status:   store.StatusPublish,
		AuthorID: session.UserID,
	})
	if err != nil {
		return store.Record{}, err
	}
	s.recordRevision(entry, session.UserName, "Create entry")
	return entry, nil
}

// SaveEntry runs the save pipeline: the suggestion step first, then the
// ordinary save. A save that became a suggestion never reaches the entry
// row. Visitors without write access only get through when their save
// became a suggestion or changes nothing. Anonymous visitors may leave name
// and email blank; they are attributed with empty identity.
func (s *Service) SaveEntry(ctx context.Context, session Session, entryID int64, input SaveInput) (SaveResult, error) {
	req := suggestion.SaveRequest{
		EntryID:        entryID,
		Title:          input.Title,
		Body:           input.Body,
		SuggestChanges: input.SuggestChanges,
		Autosave:       input.Autosave,
		AuthorName:     strings.TrimSpace(input.AuthorName),
		AuthorEmail:    strings.TrimSpace(input.AuthorEmail),
		Fields:         input.Fields,
	}

	actor := suggestion.Authenticated(session.UserID)
	if session.Anonymous() {
		actor = suggestion.Anonymous(req.AuthorName, req.AuthorEmail)
	}

	out, saveCtx, err := s.suggestions.DecideAndMaybeRedirect(ctx, req, actor)
	if err != nil {
		s.metrics.ObserveSave(metrics.OutcomeFailed)
		s.logger.Error("suggestion step failed", zap.Int64("entry_id", entryID), zap.Error(err))
		return SaveResult{}, err
	}

	redirect := saveCtx.RedirectTarget(s.presenter.Permalink(entryID))
	if saveCtx.Redirected() {
		entry, err := s.store.GetRecord(ctx, entryID)
		if err != nil {
			s.metrics.ObserveSave(metrics.OutcomeFailed)
			return SaveResult{}, err
		}
		s.metrics.ObserveSave(metrics.OutcomeSuggestion)
		return SaveResult{Entry: entry, SuggestionID: saveCtx.SuggestionID, Redirect: redirect}, nil
	}

	if !s.Can(session, rbac.ActionWrite) {
		current, err := s.store.GetRecord(ctx, entryID)
		if err != nil {
			s.metrics.ObserveSave(metrics.OutcomeFailed)
			return SaveResult{}, err
		}
		if current.Title != out.Title || current.Body != out.Body {
			s.metrics.ObserveSave(metrics.OutcomeFailed)
			return SaveResult{}, errForbidden
		}
	}

	entry, changed, err := s.store.SaveEntry(ctx, store.EntryUpdate{
		ID:       entryID,
		Title:    out.Title,
		Body:     out.Body,
		AuthorID: session.UserID,
	})
	if err != nil {
		s.metrics.ObserveSave(metrics.OutcomeFailed)
		return SaveResult{}, err
	}

	if changed {
		s.metrics.ObserveSave(metrics.OutcomeDirect)
		s.recordRevision(entry, session.UserName, "Edit entry")
	} else {
		s.metrics.ObserveSave(metrics.OutcomeNoop)
	}

	return SaveResult{
		Entry:    entry,
		Changed:  changed,
		Redirect: redirect,
	}, nil
}

// recordRevision mirrors a stored revision into the archive and the search
// index. Neither is allowed to fail the request.
func (s *Service) recordRevision(entry store.Record, author, message string) {
	if s.archive != nil {
		commit, err := s.archive.Commit(entry.ID, gitrepo.Snapshot{Title: entry.Title, Body: entry.Body}, author, message)
		if err != nil {
			s.logger.Warn("archive commit failed", zap.Int64("entry_id", entry.ID), zap.Error(err))
		} else {
			s.logger.Debug("archived revision", zap.Int64("entry_id", entry.ID), zap.String("hash", commit.Hash))
		}
	}
	if s.search != nil {
		s.search.IndexEntry(search.EntryRecord{
			ID:     entry.ID,
			Title:  entry.Title,
			Body:   entry.Body,
			Status: entry.Status,
		})
	}
}

func (s *Service) RenderEntryPage(ctx context.Context, session Session, entryID int64, query url.Values, locale i18n.Locale) (template.HTML, error) {
	return s.presenter.RenderEntry(ctx, entryID, content.View{
		Locale:    locale,
		Query:     query,
		Anonymous: session.Anonymous(),
	})
}

func (s *Service) AdminDiff(ctx context.Context, session Session, query url.Values, locale i18n.Locale) (template.HTML, error) {
	if !s.Can(session, rbac.ActionReview) {
		return "", errForbidden
	}
	return s.presenter.RenderSuggestionDiff(ctx, query, locale)
}

func (s *Service) Suggestions(ctx context.Context, session Session, entryID int64, locale i18n.Locale) (map[string]any, error) {
	if !s.Can(session, rbac.ActionReview) {
		return nil, errForbidden
	}
	rows, err := s.presenter.SuggestionRows(ctx, entryID, locale)
	if err != nil {
		return nil, err
	}
	return map[string]any{"entryId": entryID, "suggestions": rows}, nil
}

func (s *Service) Contributors(ctx context.Context, entryID int64) (map[string]any, error) {
	if _, err := s.publishedEntry(ctx, entryID); err != nil {
		return nil, err
	}
	contributors, err := s.suggestions.Contributors(ctx, entryID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"entryId": entryID, "contributors": contributors}, nil
}

func (s *Service) Archive(ctx context.Context, entryID int64, limit int) (map[string]any, error) {
	if _, err := s.publishedEntry(ctx, entryID); err != nil {
		return nil, err
	}
	if s.archive == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "Archive not configured", nil)
	}
	if limit <= 0 {
		limit = 50
	}
	commits, err := s.archive.History(entryID, limit)
	if err != nil {
		return nil, fmt.Errorf("archive history: %w", err)
	}
	return map[string]any{"entryId": entryID, "commits": commits}, nil
}

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil || strings.TrimSpace(q.Text) == "" {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

// Locale picks the page language from an explicit lang parameter, then
// the Accept-Language header.
func (s *Service) Locale(lang, acceptLanguage string) i18n.Locale {
	if strings.TrimSpace(lang) != "" {
		return s.messages.Match(lang)
	}
	return i18n.ParseAcceptLanguage(acceptLanguage, s.messages.Fallback())
}

func (s *Service) Metrics() *metrics.Collector {
	return s.metrics
}

// Ping checks the health of service dependencies.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) publishedEntry(ctx context.Context, entryID int64) (store.Record, error) {
	entry, err := s.store.GetRecord(ctx, entryID)
	if err != nil {
		return store.Record{}, err
	}
	if entry.Type != store.TypeEntry || entry.Status != store.StatusPublish {
		return store.Record{}, store.ErrNotFound
	}
	return entry, nil
}

func entryPayload(entry store.Record) map[string]any {
	return map[string]any{
		"id":         entry.ID,
		"title":      entry.Title,
		"body":       entry.Body,
		"slug":       entry.Slug,
		"status":     entry.Status,
		"authorId":   entry.AuthorID,
		"createdAt":  entry.CreatedAt,
		"modifiedAt": entry.ModifiedAt,
	}
}

func userPayload(user store.User) map[string]any {
	return map[string]any{
		"id":          user.ID,
		"displayName": user.DisplayName,
		"email":       user.Email,
		"role":        user.Role,
		"createdAt":   user.CreatedAt,
	}
}
