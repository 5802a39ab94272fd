package store

import (
	"errors"
	"time"
)

// Record types. Everything the wiki persists is a row in records,
// distinguished by type and linked to its owner through ParentID.
const (
	TypeEntry      = "wiki_entry"
	TypeSuggestion = "wiki_suggestion"
	TypeRevision   = "revision"
)

const (
	StatusPublish  = "publish"
	StatusDraft    = "draft"
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
	StatusInherit  = "inherit"
	// StatusAny disables the status filter in ListChildren.
	StatusAny = "any"
)

// Side attribute keys stored in record_meta.
const (
	MetaAuthorEmail = "author_email"
	MetaAuthorName  = "author_name"
)

var ErrNotFound = errors.New("record not found")

type Record struct {
	ID         int64
	Type       string
	Title      string
	Body       string
	Slug       string
	Status     string
	ParentID   int64
	AuthorID   int64 // 0 when the record has no authenticated author
	CreatedAt  time.Time
	ModifiedAt time.Time
}

type EntryUpdate struct {
	ID       int64
	Title    string
	Body     string
	AuthorID int64
}

type User struct {
	ID          int64
	DisplayName string
	Email       string
	Role        string
	CreatedAt   time.Time
}
