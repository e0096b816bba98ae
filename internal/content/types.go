package content

import (
	"errors"
	"time"

	"github.com/nerrad567/newsdesk/internal/auth"
)

// Item is an owned resource: an article or a profile.
type Item struct {
	ID        int64             `json:"id"`
	Kind      auth.ResourceKind `json:"kind"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	OwnerID   string            `json:"owner_id"`
	IsShared  bool              `json:"is_shared"`
	CreatedAt time.Time         `json:"created_at"`
}

// Sentinel errors for content operations.
var (
	ErrNotFound      = errors.New("item not found")
	ErrUnknownKind   = errors.New("unknown resource kind")
	ErrNotShareable  = errors.New("resource kind cannot be shared")
	ErrTitleRequired = errors.New("title is required")
)

// table maps a resource kind onto its storage columns.
type table struct {
	name      string
	titleCol  string
	bodyCol   string
	sharedCol string // empty for private-only kinds
	emptyBody string
}

var tables = map[auth.ResourceKind]table{
	auth.KindArticle: {name: "articles", titleCol: "title", bodyCol: "body", emptyBody: ""},
	auth.KindProfile: {name: "profiles", titleCol: "name", bodyCol: "settings", sharedCol: "is_shared", emptyBody: "{}"},
}

func tableFor(kind auth.ResourceKind) (table, error) {
	t, ok := tables[kind]
	if !ok {
		return table{}, ErrUnknownKind
	}
	return t, nil
}

func (t table) sharedExpr() string {
	if t.sharedCol == "" {
		return "0"
	}
	return t.sharedCol
}
