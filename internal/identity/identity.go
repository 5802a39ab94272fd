package identity

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"html/template"
	"strings"

	"wikidraft/api/internal/store"
)

type Identity struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

type userStore interface {
	GetUserByID(ctx context.Context, userID int64) (store.User, error)
}

type Resolver struct {
	store userStore
}

func NewResolver(s userStore) *Resolver {
	return &Resolver{store: s}
}

// Resolve looks up the display name and email of a registered user.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (Identity, error) {
	if userID <= 0 {
		return Identity{}, store.ErrNotFound
	}
	user, err := r.store.GetUserByID(ctx, userID)
	if err != nil {
		return Identity{}, fmt.Errorf("resolve user %d: %w", userID, err)
	}
	return Identity{DisplayName: user.DisplayName, Email: user.Email}, nil
}

const avatarBase = "https://www.gravatar.com/avatar/"

// AvatarURL keys the image on the md5 of the trimmed, lower-cased email.
// An empty email still yields the service's default image.
func AvatarURL(email string, size int) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return fmt.Sprintf("%s%s?s=%d&d=mm", avatarBase, hex.EncodeToString(sum[:]), size)
}

var avatarTemplate = template.Must(template.New("avatar").Parse(
	`<img alt="" src="{{.URL}}" class="avatar avatar-{{.Size}}" height="{{.Size}}" width="{{.Size}}">`))

func Avatar(email string, size int) template.HTML {
	var b strings.Builder
	if err := avatarTemplate.Execute(&b, struct {
		URL  string
		Size int
	}{AvatarURL(email, size), size}); err != nil {
		return ""
	}
	return template.HTML(b.String())
}
