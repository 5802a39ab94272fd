package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeIndex struct {
	healthy  bool
	results  []Result
	err      error
	indexed  chan EntryRecord
	bulk     []EntryRecord
	searched int
}

func (f *fakeIndex) Healthy() bool { return f.healthy }

func (f *fakeIndex) Search(Query) ([]Result, int, error) {
	f.searched++
	return f.results, len(f.results), f.err
}

func (f *fakeIndex) IndexEntry(entry EntryRecord) error {
	if f.indexed != nil {
		f.indexed <- entry
	}
	return nil
}

func (f *fakeIndex) IndexEntries(entries []EntryRecord) error {
	f.bulk = append(f.bulk, entries...)
	return nil
}

func (f *fakeIndex) DeleteEntry(int64) error { return nil }

type fakeLoader struct {
	results []Result
	err     error
	entries []EntryRecord
}

func (f *fakeLoader) Healthy() bool { return true }

func (f *fakeLoader) Search(Query) ([]Result, int, error) {
	return f.results, len(f.results), f.err
}

func (f *fakeLoader) LoadAllEntries(context.Context) ([]EntryRecord, error) {
	return f.entries, f.err
}

func TestSearchPrefersMeili(t *testing.T) {
	idx := &fakeIndex{healthy: true, results: []Result{{ID: 1, Title: "From meili"}}}
	pg := &fakeLoader{results: []Result{{ID: 2, Title: "From pg"}}}
	svc := newService(idx, pg, nil).WithPermalinks(func(id int64) string { return "/wiki/1" })

	resp := svc.Search(Query{Text: "q"})
	require.Equal(t, "From meili", resp.Results[0].Title)
	require.Equal(t, "/wiki/1", resp.Results[0].URL)
	require.Equal(t, "q", resp.Query)
}

func TestSearchFallsBackWhenMeiliFails(t *testing.T) {
	idx := &fakeIndex{healthy: true, err: errors.New("down")}
	pg := &fakeLoader{results: []Result{{ID: 2, Title: "From pg"}}}
	svc := newService(idx, pg, nil)

	resp := svc.Search(Query{Text: "q"})
	require.Equal(t, 1, idx.searched)
	require.Equal(t, []Result{{ID: 2, Title: "From pg"}}, resp.Results)
}

func TestSearchSkipsUnhealthyMeili(t *testing.T) {
	idx := &fakeIndex{healthy: false}
	svc := newService(idx, &fakeLoader{}, nil)

	resp := svc.Search(Query{Text: "q"})
	require.Zero(t, idx.searched)
	require.NotNil(t, resp.Results)
	require.Empty(t, resp.Results)
}

func TestSearchPgErrorReturnsEmpty(t *testing.T) {
	svc := newService(nil, &fakeLoader{err: errors.New("boom")}, nil)
	resp := svc.Search(Query{Text: "q"})
	require.Equal(t, []Result{}, resp.Results)
	require.Zero(t, resp.Total)
}

func TestIndexEntryIsAsync(t *testing.T) {
	idx := &fakeIndex{healthy: true, indexed: make(chan EntryRecord, 1)}
	svc := newService(idx, nil, nil)

	svc.IndexEntry(EntryRecord{ID: 5, Title: "Foo"})
	select {
	case got := <-idx.indexed:
		require.Equal(t, int64(5), got.ID)
	case <-time.After(time.Second):
		t.Fatal("entry was not indexed")
	}
}

func TestReindexAllFromPG(t *testing.T) {
	idx := &fakeIndex{healthy: true}
	pg := &fakeLoader{entries: []EntryRecord{{ID: 1}, {ID: 2}}}
	newService(idx, pg, nil).ReindexAllFromPG(context.Background())
	require.Len(t, idx.bulk, 2)
}

func TestNewServiceWithoutMeili(t *testing.T) {
	svc := NewService(nil, nil, nil)
	svc.IndexEntry(EntryRecord{ID: 1})
	require.Equal(t, []Result{}, svc.Search(Query{Text: "q"}).Results)
}
