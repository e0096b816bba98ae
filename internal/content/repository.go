package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/newsdesk/internal/auth"
)

// Repository stores owned resources and enforces visibility and ownership
// for every call. The owner of an item is set at creation and never changed.
type Repository interface {
	Create(ctx context.Context, uc auth.UserContext, item *Item) error
	List(ctx context.Context, uc auth.UserContext, kind auth.ResourceKind) ([]Item, error)
	Get(ctx context.Context, uc auth.UserContext, kind auth.ResourceKind, id int64) (*Item, error)
	Update(ctx context.Context, uc auth.UserContext, item *Item) error
	SetShared(ctx context.Context, uc auth.UserContext, kind auth.ResourceKind, id int64, shared bool) error
	Delete(ctx context.Context, uc auth.UserContext, kind auth.ResourceKind, id int64) error
}

// SQLiteRepository implements Repository over the articles and profiles tables.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed content repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create stores a new item owned by the caller. Viewers cannot create.
// IsShared is honoured only for shareable kinds.
func (r *SQLiteRepository) Create(ctx context.Context, uc auth.UserContext, item *Item) error {
	if err := auth.Require(uc, auth.RoleUser); err != nil {
		return err
	}
	t, err := tableFor(item.Kind)
	if err != nil {
		return err
	}
	if strings.TrimSpace(item.Title) == "" {
		return ErrTitleRequired
	}
	if item.Body == "" {
		item.Body = t.emptyBody
	}

	item.OwnerID = uc.UserID
	item.IsShared = item.IsShared && item.Kind.Shareable()

	now := time.Now().UTC().Format(time.RFC3339)
	item.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	cols := []string{t.titleCol, t.bodyCol, "owner_id", "created_at"}
	args := []any{item.Title, item.Body, item.OwnerID, now}
	if t.sharedCol != "" {
		cols = append(cols, t.sharedCol)
		args = append(args, boolToInt(item.IsShared))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?%s)",
		t.name, strings.Join(cols, ", "), strings.Repeat(", ?", len(cols)-1))
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("inserting %s: %w", item.Kind, err)
	}

	item.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading %s id: %w", item.Kind, err)
	}
	return nil
}

// List returns the items of kind visible to the caller, oldest first.
func (r *SQLiteRepository) List(ctx context.Context, uc auth.UserContext, kind auth.ResourceKind) ([]Item, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	where, args := auth.BuildVisibilityPredicate(uc, kind).SQL("owner_id", t.sharedCol)
	rows, err := r.db.QueryContext(ctx, selectFrom(t)+" WHERE "+where+" ORDER BY id ASC", args...)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", t.name, err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows, kind)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", t.name, err)
	}
	return items, nil
}

// Get returns one item if it is visible to the caller. Items the caller
// cannot see are reported as ErrNotFound.
func (r *SQLiteRepository) Get(ctx context.Context, uc auth.UserContext, kind auth.ResourceKind, id int64) (*Item, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	where, args := auth.BuildVisibilityPredicate(uc, kind).SQL("owner_id", t.sharedCol)
	args = append([]any{id}, args...)
	row := r.db.QueryRowContext(ctx, selectFrom(t)+" WHERE id = ? AND "+where, args...)
	return scanItem(row, kind)
}

// Update changes an item's title and body. Only the owner or an admin may
// update; ownership and sharing are not touched.
func (r *SQLiteRepository) Update(ctx context.Context, uc auth.UserContext, item *Item) error {
	current, err := r.Get(ctx, uc, item.Kind, item.ID)
	if err != nil {
		return err
	}
	if !auth.CanEdit(uc, current.OwnerID) {
		return auth.ErrPermissionDenied
	}
	if strings.TrimSpace(item.Title) == "" {
		return ErrTitleRequired
	}

	t, _ := tableFor(item.Kind) //nolint:errcheck // validated by Get
	body := item.Body
	if body == "" {
		body = t.emptyBody
	}
	query := fmt.Sprintf("UPDATE %s SET %s = ?, %s = ? WHERE id = ?", t.name, t.titleCol, t.bodyCol)
	if _, err := r.db.ExecContext(ctx, query, item.Title, body, item.ID); err != nil {
		return fmt.Errorf("updating %s %d: %w", item.Kind, item.ID, err)
	}

	item.Body = body
	item.OwnerID = current.OwnerID
	item.IsShared = current.IsShared
	item.CreatedAt = current.CreatedAt
	return nil
}

// SetShared flags a shareable item as visible to all authenticated users.
func (r *SQLiteRepository) SetShared(ctx context.Context, uc auth.UserContext, kind auth.ResourceKind, id int64, shared bool) error {
	if !kind.Shareable() {
		if _, err := tableFor(kind); err != nil {
			return err
		}
		return ErrNotShareable
	}

	current, err := r.Get(ctx, uc, kind, id)
	if err != nil {
		return err
	}
	if !auth.CanEdit(uc, current.OwnerID) {
		return auth.ErrPermissionDenied
	}

	t, _ := tableFor(kind) //nolint:errcheck // validated by Get
	query := fmt.Sprintf("UPDATE %s SET %s = ? WHERE id = ?", t.name, t.sharedCol)
	if _, err := r.db.ExecContext(ctx, query, boolToInt(shared), id); err != nil {
		return fmt.Errorf("sharing %s %d: %w", kind, id, err)
	}
	return nil
}

// Delete removes an item. Only the owner or an admin may delete.
func (r *SQLiteRepository) Delete(ctx context.Context, uc auth.UserContext, kind auth.ResourceKind, id int64) error {
	current, err := r.Get(ctx, uc, kind, id)
	if err != nil {
		return err
	}
	if !auth.CanDelete(uc, current.OwnerID) {
		return auth.ErrPermissionDenied
	}

	t, _ := tableFor(kind) //nolint:errcheck // validated by Get
	if _, err := r.db.ExecContext(ctx, "DELETE FROM "+t.name+" WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting %s %d: %w", kind, id, err)
	}
	return nil
}

func selectFrom(t table) string {
	return fmt.Sprintf("SELECT id, %s, %s, owner_id, %s, created_at FROM %s",
		t.titleCol, t.bodyCol, t.sharedExpr(), t.name)
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner, kind auth.ResourceKind) (*Item, error) {
	var item Item
	var owner sql.NullString
	var shared int
	var createdAt string

	if err := s.Scan(&item.ID, &item.Title, &item.Body, &owner, &shared, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning %s: %w", kind, err)
	}

	item.Kind = kind
	item.OwnerID = owner.String
	item.IsShared = shared != 0
	item.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	return &item, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
