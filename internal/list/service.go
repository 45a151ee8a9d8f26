package list

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ssherman/greatlist/internal/wizard"
)

// ErrNotFound indicates the requested list does not exist.
var ErrNotFound = errors.New("list not found")

// Service provides persistence for lists and their items.
type Service struct {
	db *sql.DB
}

// NewService creates a list service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Create persists a new list. The ID, timestamps, and a fresh wizard state
// are assigned if unset.
func (s *Service) Create(ctx context.Context, l *List) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.Wizard == nil {
		l.Wizard = wizard.NewState()
	}
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now

	stateJSON, err := json.Marshal(l.Wizard)
	if err != nil {
		return fmt.Errorf("marshaling wizard state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO lists (id, name, source_text, wizard_state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, l.ID, l.Name, l.SourceText, string(stateJSON),
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting list: %w", err)
	}
	return nil
}

// GetByID returns a list with its wizard state.
func (s *Service) GetByID(ctx context.Context, id string) (*List, error) {
	var (
		l         List
		stateJSON string
		createdAt string
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, source_text, wizard_state, created_at, updated_at
		FROM lists WHERE id = ?
	`, id).Scan(&l.ID, &l.Name, &l.SourceText, &stateJSON, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading list %q: %w", id, err)
	}

	l.Wizard = wizard.NewState()
	if stateJSON != "" && stateJSON != "{}" {
		if err := json.Unmarshal([]byte(stateJSON), l.Wizard); err != nil {
			return nil, fmt.Errorf("unmarshaling wizard state for list %q: %w", id, err)
		}
	}
	l.CreatedAt = parseTime(createdAt)
	l.UpdatedAt = parseTime(updatedAt)
	return &l, nil
}

// UpdateSource updates the list's name and raw source text.
func (s *Service) UpdateSource(ctx context.Context, id, name, sourceText string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE lists SET name = ?, source_text = ?, updated_at = ? WHERE id = ?
	`, name, sourceText, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating list %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MutateWizardState loads the wizard state inside a transaction, applies fn,
// and writes the result back. The single-writer connection plus the
// transaction serialize competing mutations, so callers can implement
// compare-and-swap semantics inside fn.
func (s *Service) MutateWizardState(ctx context.Context, listID string, fn func(*wizard.State) error) (*wizard.State, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var stateJSON string
	err = tx.QueryRowContext(ctx,
		"SELECT wizard_state FROM lists WHERE id = ?", listID,
	).Scan(&stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading wizard state for list %q: %w", listID, err)
	}

	state := wizard.NewState()
	if stateJSON != "" && stateJSON != "{}" {
		if err := json.Unmarshal([]byte(stateJSON), state); err != nil {
			return nil, fmt.Errorf("unmarshaling wizard state for list %q: %w", listID, err)
		}
	}

	if err := fn(state); err != nil {
		return nil, err
	}

	updated, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshaling wizard state: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE lists SET wizard_state = ?, updated_at = ? WHERE id = ?
	`, string(updated), time.Now().UTC().Format(time.RFC3339), listID)
	if err != nil {
		return nil, fmt.Errorf("saving wizard state for list %q: %w", listID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing wizard state: %w", err)
	}
	return state, nil
}

// ItemsByList returns all items for a list ordered by position.
func (s *Service) ItemsByList(ctx context.Context, listID string) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, list_id, position, metadata, verified, album_id, created_at, updated_at
		FROM list_items WHERE list_id = ? ORDER BY position
	`, listID)
	if err != nil {
		return nil, fmt.Errorf("loading items for list %q: %w", listID, err)
	}
	defer rows.Close() //nolint:errcheck

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetItem returns one item by ID, or ErrNotFound.
func (s *Service) GetItem(ctx context.Context, itemID string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, list_id, position, metadata, verified, album_id, created_at, updated_at
		FROM list_items WHERE id = ?
	`, itemID)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return item, nil
}

// ReplaceUnverified deletes all unverified items for the list and inserts the
// given items in their place, inside one transaction. Verified items linked in
// earlier runs are left untouched.
func (s *Service) ReplaceUnverified(ctx context.Context, listID string, items []*Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM list_items WHERE list_id = ? AND verified = 0", listID,
	); err != nil {
		return fmt.Errorf("deleting unverified items: %w", err)
	}

	now := time.Now().UTC()
	for _, item := range items {
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		item.ListID = listID
		item.CreatedAt = now
		item.UpdatedAt = now

		metaJSON, err := json.Marshal(item.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling item metadata: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO list_items (id, list_id, position, metadata, verified, album_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, item.ID, listID, item.Position, string(metaJSON),
			boolToInt(item.Verified), nullString(item.AlbumID),
			now.Format(time.RFC3339), now.Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("inserting item at position %d: %w", item.Position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing item replacement: %w", err)
	}
	return nil
}

// UpdateItem persists an item's metadata, verified flag, and album link.
func (s *Service) UpdateItem(ctx context.Context, item *Item) error {
	metaJSON, err := json.Marshal(item.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling item metadata: %w", err)
	}
	item.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		UPDATE list_items SET metadata = ?, verified = ?, album_id = ?, updated_at = ?
		WHERE id = ?
	`, string(metaJSON), boolToInt(item.Verified), nullString(item.AlbumID),
		item.UpdatedAt.Format(time.RFC3339), item.ID)
	if err != nil {
		return fmt.Errorf("updating item %q: %w", item.ID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var (
		item      Item
		metaJSON  string
		verified  int
		albumID   sql.NullString
		createdAt string
		updatedAt string
	)
	err := row.Scan(&item.ID, &item.ListID, &item.Position, &metaJSON,
		&verified, &albumID, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("scanning item row: %w", err)
	}
	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &item.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata for item %q: %w", item.ID, err)
		}
	}
	item.Verified = verified != 0
	item.AlbumID = albumID.String
	item.CreatedAt = parseTime(createdAt)
	item.UpdatedAt = parseTime(updatedAt)
	return &item, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
