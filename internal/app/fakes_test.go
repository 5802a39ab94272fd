package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"wikidraft/api/internal/config"
	"wikidraft/api/internal/content"
	"wikidraft/api/internal/diff"
	"wikidraft/api/internal/gitrepo"
	"wikidraft/api/internal/i18n"
	"wikidraft/api/internal/identity"
	"wikidraft/api/internal/metrics"
	"wikidraft/api/internal/search"
	"wikidraft/api/internal/session"
	"wikidraft/api/internal/store"
	"wikidraft/api/internal/suggestion"
)

const testBaseURL = "https://wiki.example"

// memStore is an in-memory wiki store with the same ordering rules as the
// Postgres one: children and revisions come back newest first.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	clock    time.Time
	records  map[int64]store.Record
	meta     map[int64]map[string]string
	users    map[int64]store.User
	refresh  map[string]int64
	revoked  map[string]bool
	pingErr  error
	createFn func(store.Record) error
}

func newMemStore() *memStore {
	return &memStore{
		nextID:  100,
		clock:   time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		records: make(map[int64]store.Record),
		meta:    make(map[int64]map[string]string),
		users:   make(map[int64]store.User),
		refresh: make(map[string]int64),
		revoked: make(map[string]bool),
	}
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

func (m *memStore) insert(item store.Record) store.Record {
	m.nextID++
	item.ID = m.nextID
	item.CreatedAt = m.tick()
	item.ModifiedAt = item.CreatedAt
	m.records[item.ID] = item
	return item
}

func (m *memStore) addUser(name, role string) store.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	user := store.User{
		ID:          m.nextID,
		DisplayName: name,
		Email:       strings.ToLower(name) + "@local.wiki.dev",
		Role:        role,
		CreatedAt:   m.tick(),
	}
	m.users[user.ID] = user
	return user
}

// seedEntry stores a published entry together with its first revision.
func (m *memStore) seedEntry(title, body string) store.Record {
	entry, _ := m.CreateEntry(context.Background(), store.Record{Title: title, Body: body, Status: store.StatusPublish})
	return entry
}

func (m *memStore) EnsureUserByName(_ context.Context, name string) (store.User, error) {
	m.mu.Lock()
	for _, user := range m.users {
		if user.DisplayName == name {
			m.mu.Unlock()
			return user, nil
		}
	}
	m.mu.Unlock()
	return m.addUser(name, "viewer"), nil
}

func (m *memStore) GetUserByID(_ context.Context, userID int64) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

func (m *memStore) SetUserRole(_ context.Context, userID int64, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	user.Role = role
	m.users[userID] = user
	return nil
}

func (m *memStore) SaveRefreshSession(_ context.Context, tokenHash string, userID int64, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[tokenHash] = userID
	return nil
}

// LookupRefreshSession mimics the Redis store and only knows the id.
func (m *memStore) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	userID, ok := m.refresh[tokenHash]
	if !ok {
		return store.User{}, session.ErrSessionNotFound
	}
	return store.User{ID: userID}, nil
}

func (m *memStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refresh, tokenHash)
	return nil
}

func (m *memStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = true
	return nil
}

func (m *memStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revoked[jti], nil
}

func (m *memStore) CreateRecord(_ context.Context, item store.Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createFn != nil {
		if err := m.createFn(item); err != nil {
			return 0, err
		}
	}
	return m.insert(item).ID, nil
}

func (m *memStore) CreateEntry(_ context.Context, draft store.Record) (store.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	draft.Type = store.TypeEntry
	if draft.Status == "" {
		draft.Status = store.StatusPublish
	}
	entry := m.insert(draft)
	m.insert(store.Record{
		Type:     store.TypeRevision,
		Title:    entry.Title,
		Body:     entry.Body,
		Status:   store.StatusInherit,
		ParentID: entry.ID,
		AuthorID: entry.AuthorID,
	})
	return entry, nil
}

func (m *memStore) GetRecord(_ context.Context, id int64) (store.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.records[id]
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	return item, nil
}

func (m *memStore) ListEntries(context.Context) ([]store.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Record, 0)
	for _, item := range m.records {
		if item.Type == store.TypeEntry {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) children(parentID int64, recordType, status string) []store.Record {
	out := make([]store.Record, 0)
	for _, item := range m.records {
		if item.ParentID != parentID || item.Type != recordType {
			continue
		}
		if status != store.StatusAny && item.Status != status {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (m *memStore) ListChildren(_ context.Context, parentID int64, recordType, status string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if status == "" {
		status = store.StatusAny
	}
	ids := make([]int64, 0)
	for _, item := range m.children(parentID, recordType, status) {
		ids = append(ids, item.ID)
	}
	return ids, nil
}

func (m *memStore) ListRevisions(_ context.Context, entryID int64) ([]store.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.children(entryID, store.TypeRevision, store.StatusAny), nil
}

func (m *memStore) SaveEntry(_ context.Context, update store.EntryUpdate) (store.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.records[update.ID]
	if !ok || current.Type != store.TypeEntry {
		return store.Record{}, false, store.ErrNotFound
	}
	if current.Title == update.Title && current.Body == update.Body {
		return current, false, nil
	}
	current.Title = update.Title
	current.Body = update.Body
	current.ModifiedAt = m.tick()
	m.records[current.ID] = current
	m.insert(store.Record{
		Type:     store.TypeRevision,
		Title:    update.Title,
		Body:     update.Body,
		Status:   store.StatusInherit,
		ParentID: update.ID,
		AuthorID: update.AuthorID,
	})
	return current, true, nil
}

func (m *memStore) SetMeta(_ context.Context, recordID int64, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.meta[recordID] == nil {
		m.meta[recordID] = make(map[string]string)
	}
	m.meta[recordID][key] = value
	return nil
}

func (m *memStore) GetMeta(_ context.Context, recordID int64, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta[recordID][key], nil
}

func (m *memStore) Ping(context.Context) error {
	return m.pingErr
}

func (m *memStore) suggestionsOf(entryID int64) []store.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.children(entryID, store.TypeSuggestion, store.StatusAny)
}

type fakeArchive struct {
	mu      sync.Mutex
	commits []gitrepo.CommitInfo
	authors []string
	err     error
}

func (f *fakeArchive) Commit(entryID int64, snapshot gitrepo.Snapshot, author, message string) (gitrepo.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return gitrepo.CommitInfo{}, f.err
	}
	info := gitrepo.CommitInfo{
		Hash:    fmt.Sprintf("%07d", len(f.commits)+1),
		Message: message,
		Author:  author,
	}
	f.commits = append([]gitrepo.CommitInfo{info}, f.commits...)
	f.authors = append(f.authors, author)
	return info, nil
}

func (f *fakeArchive) History(entryID int64, limit int) ([]gitrepo.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.commits) > limit {
		return f.commits[:limit], nil
	}
	return f.commits, nil
}

type fakeSearch struct {
	mu      sync.Mutex
	indexed []search.EntryRecord
	queries []search.Query
}

func (f *fakeSearch) Search(q search.Query) search.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return search.Response{Results: []search.Result{{ID: 1, Title: "Welcome"}}, Total: 1, Query: q.Text}
}

func (f *fakeSearch) IndexEntry(entry search.EntryRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, entry)
}

type testEnv struct {
	store   *memStore
	archive *fakeArchive
	search  *fakeSearch
	metrics *metrics.Collector
	service *Service
	server  *HTTPServer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ms := newMemStore()
	archive := &fakeArchive{}
	idx := &fakeSearch{}
	collector := metrics.New()
	messages := i18n.NewBundle(i18n.LocaleEn)

	resolver := identity.NewResolver(ms)
	manager := suggestion.NewManager(ms, resolver, testBaseURL, nil)
	presenter := content.NewPresenter(ms, manager, resolver, diff.New(), messages, testBaseURL, nil)

	svc := New(config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
		BaseURL:    testBaseURL,
	}, Deps{
		Store:       ms,
		Archive:     archive,
		Suggestions: manager,
		Presenter:   presenter,
		Search:      idx,
		Messages:    messages,
		Metrics:     collector,
	})
	return &testEnv{
		store:   ms,
		archive: archive,
		search:  idx,
		metrics: collector,
		service: svc,
		server:  NewHTTPServer(svc, "*", nil),
	}
}

// login issues a session for a fresh user holding role.
func (e *testEnv) login(t *testing.T, name, role string) Session {
	t.Helper()
	user := e.store.addUser(name, role)
	session, err := e.service.issueSession(context.Background(), user)
	if err != nil {
		t.Fatalf("issueSession() error = %v", err)
	}
	return session
}

var errStoreDown = errors.New("store down")
