package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"wikidraft/api/internal/store"

	"github.com/stretchr/testify/require"
)

func (e *testEnv) do(t *testing.T, method, target string, body string, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func TestHealthReadyAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/health", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	rr = env.do(t, http.MethodGet, "/api/ready", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ready", decodeJSON(t, rr)["status"])

	env.store.pingErr = errors.New("db down")
	rr = env.do(t, http.MethodGet, "/api/ready", "", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = env.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `http_request_duration_seconds_count{method="GET",route="/api/ready",status="503"} 1`)
}

func TestRequestIDIsEchoed(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rr := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, req)
	require.Equal(t, "req-123", rr.Header().Get("X-Request-ID"))
}

func TestSessionLoginRefreshLogout(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/session/login", `{"name":"  Avery  "}`, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	login := decodeJSON(t, rr)
	require.Equal(t, "Avery", login["userName"])
	token, _ := login["token"].(string)
	refresh, _ := login["refreshToken"].(string)
	require.NotEmpty(t, token)
	require.NotEmpty(t, refresh)

	rr = env.do(t, http.MethodGet, "/api/session", "", token)
	require.Equal(t, true, decodeJSON(t, rr)["authenticated"])

	rr = env.do(t, http.MethodPost, "/api/session/refresh", `{"refreshToken":"`+refresh+`"}`, "")
	require.Equal(t, http.StatusOK, rr.Code)
	refreshed := decodeJSON(t, rr)
	require.NotEqual(t, refresh, refreshed["refreshToken"])

	rr = env.do(t, http.MethodPost, "/api/session/logout", "{}", token)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodGet, "/wiki/1", "", token)
	require.Equal(t, http.StatusUnauthorized, rr.Code, "a revoked token is rejected, not downgraded")
}

func TestSessionLoginRejectsInvalidBody(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodPost, "/api/session/login", `{"name":`, "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "INVALID_BODY", decodeJSON(t, rr)["code"])
}

func TestSuggestChangesFormEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	entry := env.store.seedEntry("Foo", "Hello")
	permalink := "/wiki/" + itoa(entry.ID)

	form := url.Values{}
	form.Set("title", "Foo")
	form.Set("body", "Hello world")
	form.Set("author_name", "Zoe")
	form.Set("author_email", "zoe@example.com")
	form.Set("wiki-suggest-changes", "Suggest changes")
	req := httptest.NewRequest(http.MethodPost, permalink, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusSeeOther, rr.Code, rr.Body.String())
	location, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/admin/diff", location.Path)
	require.Equal(t, "wiki-show-diff", location.Query().Get("page"))
	require.Equal(t, itoa(entry.ID), location.Query().Get("source"))

	suggestions := env.store.suggestionsOf(entry.ID)
	require.Len(t, suggestions, 1)
	require.Equal(t, itoa(suggestions[0].ID), location.Query().Get("suggestion"))
	require.Equal(t, "Hello world", suggestions[0].Body)
	require.Equal(t, entry.ID, suggestions[0].ParentID)
	require.Equal(t, store.StatusPending, suggestions[0].Status)

	stored, err := env.store.GetRecord(req.Context(), entry.ID)
	require.NoError(t, err)
	require.Equal(t, "Hello", stored.Body)

	// The public page still shows the live body; the reviewer sees the proposal.
	rr = env.do(t, http.MethodGet, permalink, "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	require.NotContains(t, rr.Body.String(), "Hello world")

	editor := env.login(t, "Erin", "editor")
	rr = env.do(t, http.MethodGet, location.RequestURI(), "", editor.Token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), "world")

	rr = env.do(t, http.MethodGet, "/api/entries/"+itoa(entry.ID)+"/suggestions", "", editor.Token)
	require.Equal(t, http.StatusOK, rr.Code)
	rows, _ := decodeJSON(t, rr)["suggestions"].([]any)
	require.Len(t, rows, 1)

	rr = env.do(t, http.MethodGet, "/api/entries/"+itoa(entry.ID)+"/contributors", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	contributors, _ := decodeJSON(t, rr)["contributors"].([]any)
	require.Len(t, contributors, 1)
	require.Equal(t, "Zoe", contributors[0].(map[string]any)["name"])

	rr = env.do(t, http.MethodGet, "/metrics", "", "")
	require.Contains(t, rr.Body.String(), `wiki_saves_total{outcome="suggestion"} 1`)
	require.Contains(t, rr.Body.String(), "wiki_suggestions_created_total 1")
}

func TestSaveAPIForEditor(t *testing.T) {
	env := newTestEnv(t)
	entry := env.store.seedEntry("Foo", "Hello")
	editor := env.login(t, "Erin", "editor")

	rr := env.do(t, http.MethodPost, "/api/entries/"+itoa(entry.ID)+"/save", `{"title":"Foo","body":"Hello edited"}`, editor.Token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	payload := decodeJSON(t, rr)
	require.Equal(t, true, payload["changed"])
	require.Equal(t, testBaseURL+"/wiki/"+itoa(entry.ID), payload["redirect"])
	_, hasSuggestion := payload["suggestionId"]
	require.False(t, hasSuggestion)
	require.Equal(t, "Hello edited", payload["entry"].(map[string]any)["body"])
}

func TestSaveAPISuggestionFailureReturns503(t *testing.T) {
	env := newTestEnv(t)
	entry := env.store.seedEntry("Foo", "Hello")
	env.store.createFn = func(store.Record) error { return errStoreDown }

	rr := env.do(t, http.MethodPost, "/api/entries/"+itoa(entry.ID)+"/save",
		`{"title":"Foo","body":"Hello world","suggestChanges":true,"authorName":"Zoe","authorEmail":"zoe@example.com"}`, "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Equal(t, "SUGGESTION_FAILED", decodeJSON(t, rr)["code"])
}

func TestAnonymousDirectSaveIsForbidden(t *testing.T) {
	env := newTestEnv(t)
	entry := env.store.seedEntry("Foo", "Hello")

	rr := env.do(t, http.MethodPost, "/api/entries/"+itoa(entry.ID)+"/save",
		`{"title":"Foo","body":"Vandalism","authorName":"Zoe","authorEmail":"zoe@example.com"}`, "")
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestWikiPageRevisionHistoryLinks(t *testing.T) {
	env := newTestEnv(t)
	entry := env.store.seedEntry("Foo", "Hello")
	editor := env.login(t, "Erin", "editor")
	for _, body := range []string{"Hello\nthere", "Hello\nworld"} {
		_, err := env.service.SaveEntry(t.Context(), editor, entry.ID, SaveInput{Title: "Foo", Body: body})
		require.NoError(t, err)
	}
	revisions, err := env.store.ListRevisions(t.Context(), entry.ID)
	require.NoError(t, err)
	require.Len(t, revisions, 3)
	r1, r2, r3 := revisions[2].ID, revisions[1].ID, revisions[0].ID

	rr := env.do(t, http.MethodGet, "/wiki/"+itoa(entry.ID), "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	page := rr.Body.String()
	first := strings.Index(page, "source=0&amp;revision="+itoa(r1))
	second := strings.Index(page, "source="+itoa(r1)+"&amp;revision="+itoa(r2))
	third := strings.Index(page, "source="+itoa(r2)+"&amp;revision="+itoa(r3))
	require.True(t, first >= 0 && second > first && third > second, "history links out of order:\n%s", page)

	rr = env.do(t, http.MethodGet, "/wiki/"+itoa(entry.ID)+"?source="+itoa(r1)+"&revision="+itoa(r2), "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "there")
}

func TestWikiPageNotFound(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/wiki/404", "", "").Code)
	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/wiki/abc", "", "").Code)
}

func TestAdminDiffRequiresReviewer(t *testing.T) {
	env := newTestEnv(t)
	entry := env.store.seedEntry("Foo", "Hello")
	target := "/admin/diff?page=wiki-show-diff&source=" + itoa(entry.ID) + "&suggestion=1"

	require.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, target, "", "").Code)
	contributor := env.login(t, "Con", "contributor")
	require.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, target, "", contributor.Token).Code)
}

func TestCreateEntryEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/entries", `{"title":"Bar","body":"Text"}`, "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	editor := env.login(t, "Erin", "editor")
	rr = env.do(t, http.MethodPost, "/api/entries", `{"title":"Bar","body":"Text"}`, editor.Token)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decodeJSON(t, rr)["entry"].(map[string]any)
	require.Equal(t, "Bar", created["title"])

	rr = env.do(t, http.MethodGet, "/api/entries/"+itoa(int64(created["id"].(float64)))+"/archive", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	commits, _ := decodeJSON(t, rr)["commits"].([]any)
	require.Len(t, commits, 1)
}

func TestSearchEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/search?q=welcome&limit=5", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, env.search.queries, 1)
	require.Equal(t, 5, env.search.queries[0].Limit)

	rr = env.do(t, http.MethodGet, "/api/search?q=x&limit=many", "", "")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestAdminUserRoleEndpoint(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "Ada", "admin")
	target := env.store.addUser("Tom", "viewer")

	rr := env.do(t, http.MethodPut, "/api/admin/users/"+itoa(target.ID)+"/role", `{"role":"contributor"}`, admin.Token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "contributor", decodeJSON(t, rr)["user"].(map[string]any)["role"])

	rr = env.do(t, http.MethodPost, "/api/admin/users/"+itoa(target.ID)+"/role", `{"role":"editor"}`, admin.Token)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/admin/users/"+itoa(target.ID), "", "")
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRouteLabel(t *testing.T) {
	cases := map[string]string{
		"/":                           "/",
		"/wiki/42":                    "/wiki/{id}",
		"/api/entries/7/contributors": "/api/entries/{id}/contributors",
		"/admin/diff":                 "/admin/diff",
	}
	for path, want := range cases {
		if got := routeLabel(path); got != want {
			t.Fatalf("routeLabel(%q) = %q, want %q", path, got, want)
		}
	}
}
