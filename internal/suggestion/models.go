package suggestion

import (
	"strconv"
	"strings"
	"time"
)

// Author is either an authenticated user (UserID > 0) or an anonymous
// visitor known only by the name and email they typed.
type Author struct {
	UserID int64  `json:"userId,omitempty"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

func Authenticated(userID int64) Author {
	return Author{UserID: userID}
}

func Anonymous(name, email string) Author {
	return Author{Name: strings.TrimSpace(name), Email: strings.TrimSpace(email)}
}

func (a Author) Anonymous() bool {
	return a.UserID <= 0
}

// Key is the contributor attribution key. User ids and anonymous emails
// live in separate keyspaces and never collide.
func (a Author) Key() string {
	if a.Anonymous() {
		return "email:" + a.Email
	}
	return "user:" + strconv.FormatInt(a.UserID, 10)
}

type Suggestion struct {
	ID        int64     `json:"id"`
	EntryID   int64     `json:"entryId"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Status    string    `json:"status"`
	Author    Author    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Contributor struct {
	Key   string `json:"-"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Count int    `json:"count"`
}
