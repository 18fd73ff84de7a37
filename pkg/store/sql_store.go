package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cardworks/appraisal/pkg/contracts"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// sortableTimeFormat is fixed-width so the TEXT column's byte order equals
// time order; RFC3339Nano trims trailing zeros and breaks both ORDER BY and
// the cursor predicate.
const sortableTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func sortableTime(t time.Time) string {
	return t.UTC().Format(sortableTimeFormat)
}

// SQLStore implements CardStore over database/sql. The same statements serve
// SQLite (dev default) and Postgres; only the placeholder style differs.
type SQLStore struct {
	db       *sql.DB
	postgres bool
}

// NewSQLiteStore creates and migrates a SQLite-backed store.
func NewSQLiteStore(db *sql.DB) (*SQLStore, error) {
	s := &SQLStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewPostgresStore creates and migrates a Postgres-backed store.
func NewPostgresStore(db *sql.DB) (*SQLStore, error) {
	s := &SQLStore{db: db, postgres: true}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS cards (
        pk TEXT NOT NULL,
        sk TEXT NOT NULL,
        owner_id TEXT NOT NULL,
        card_id TEXT NOT NULL,
        created_at TEXT NOT NULL,
        updated_at TEXT NOT NULL,
        deleted_at TEXT,
        payload TEXT NOT NULL,
        PRIMARY KEY (pk, sk)
    );
    CREATE INDEX IF NOT EXISTS cards_by_card_id ON cards (card_id);
    CREATE INDEX IF NOT EXISTS cards_by_owner_created ON cards (owner_id, created_at DESC);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Create(ctx context.Context, rec *contracts.CardRecord) error {
	if rec.OwnerID == "" || rec.CardID == "" {
		return contracts.Faultf(contracts.KindInvalidInput, "record missing identity")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	query := s.rebind(`INSERT INTO cards (pk, sk, owner_id, card_id, created_at, updated_at, payload)
        VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, query,
		UserKey(rec.OwnerID), CardKey(rec.CardID), rec.OwnerID, rec.CardID,
		sortableTime(rec.CreatedAt),
		sortableTime(rec.UpdatedAt),
		string(payload),
	)
	if err != nil {
		return contracts.NewFault(contracts.KindInvalidInput, fmt.Errorf("insert card %s: %w", rec.CardID, err))
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, ownerID, cardID string) (*contracts.CardRecord, error) {
	query := s.rebind(`SELECT owner_id, payload FROM cards WHERE pk = ? AND sk = ? AND deleted_at IS NULL`)
	return s.queryOne(ctx, ownerID, query, UserKey(ownerID), CardKey(cardID))
}

func (s *SQLStore) GetByCardID(ctx context.Context, cardID string) (*contracts.CardRecord, error) {
	query := s.rebind(`SELECT owner_id, payload FROM cards WHERE card_id = ? AND deleted_at IS NULL`)
	return s.queryOne(ctx, "", query, cardID)
}

func (s *SQLStore) queryOne(ctx context.Context, expectOwner, query string, args ...any) (*contracts.CardRecord, error) {
	var ownerID, payload string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&ownerID, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contracts.Faultf(contracts.KindNotFound, "card not found")
	}
	if err != nil {
		return nil, contracts.NewFault(contracts.KindTransient, fmt.Errorf("query card: %w", err))
	}
	// Defense in depth: the key already scopes the read, but a record whose
	// stored owner disagrees with the caller is a cross-tenant access.
	if expectOwner != "" && ownerID != expectOwner {
		return nil, contracts.Faultf(contracts.KindPermissionDenied, "owner mismatch on read")
	}

	var rec contracts.CardRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("corrupt card payload: %w", err)
	}
	return &rec, nil
}

func (s *SQLStore) List(ctx context.Context, ownerID string, limit int, cursor string) (*Page, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	args := []any{ownerID}
	query := `SELECT owner_id, payload FROM cards WHERE owner_id = ? AND deleted_at IS NULL`
	if cursor != "" {
		createdAt, cardID, err := decodeCursor(cursor)
		if err != nil {
			return nil, contracts.NewFault(contracts.KindInvalidInput, err)
		}
		query += ` AND (created_at < ? OR (created_at = ? AND card_id < ?))`
		args = append(args, createdAt, createdAt, cardID)
	}
	query += ` ORDER BY created_at DESC, card_id DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, contracts.NewFault(contracts.KindTransient, fmt.Errorf("list cards: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var items []*contracts.CardRecord
	for rows.Next() {
		var owner, payload string
		if err := rows.Scan(&owner, &payload); err != nil {
			return nil, err
		}
		var rec contracts.CardRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("corrupt card payload: %w", err)
		}
		items = append(items, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page := &Page{}
	if len(items) > limit {
		items = items[:limit]
		last := items[len(items)-1]
		page.NextCursor = encodeCursor(last.CreatedAt, last.CardID)
	}
	page.Items = items
	return page, nil
}

func (s *SQLStore) Update(ctx context.Context, rec *contracts.CardRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	// Conditional write: the row must still belong to the caller and must
	// not have been deleted concurrently.
	query := s.rebind(`UPDATE cards SET payload = ?, updated_at = ?
        WHERE pk = ? AND sk = ? AND owner_id = ? AND deleted_at IS NULL`)
	res, err := s.db.ExecContext(ctx, query,
		string(payload), sortableTime(rec.UpdatedAt),
		UserKey(rec.OwnerID), CardKey(rec.CardID), rec.OwnerID,
	)
	if err != nil {
		return contracts.NewFault(contracts.KindTransient, fmt.Errorf("update card %s: %w", rec.CardID, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return contracts.Faultf(contracts.KindNotFound, "conditional update matched no live record")
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, ownerID, cardID string, mode contracts.DeleteMode) error {
	switch mode {
	case contracts.DeleteSoft:
		query := s.rebind(`UPDATE cards SET deleted_at = ? WHERE pk = ? AND sk = ? AND owner_id = ? AND deleted_at IS NULL`)
		res, err := s.db.ExecContext(ctx, query,
			sortableTime(time.Now()), UserKey(ownerID), CardKey(cardID), ownerID)
		if err != nil {
			return contracts.NewFault(contracts.KindTransient, fmt.Errorf("soft delete card %s: %w", cardID, err))
		}
		return requireAffected(res)
	case contracts.DeleteHard:
		query := s.rebind(`DELETE FROM cards WHERE pk = ? AND sk = ? AND owner_id = ?`)
		res, err := s.db.ExecContext(ctx, query, UserKey(ownerID), CardKey(cardID), ownerID)
		if err != nil {
			return contracts.NewFault(contracts.KindTransient, fmt.Errorf("hard delete card %s: %w", cardID, err))
		}
		return requireAffected(res)
	default:
		return contracts.Faultf(contracts.KindInvalidInput, "unknown delete mode %q", mode)
	}
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return contracts.Faultf(contracts.KindNotFound, "delete matched no record")
	}
	return nil
}

func encodeCursor(createdAt time.Time, cardID string) string {
	raw := sortableTime(createdAt) + "|" + cardID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (string, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", "", fmt.Errorf("malformed cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed cursor")
	}
	return parts[0], parts[1], nil
}
