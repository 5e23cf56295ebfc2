package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/solatis/schemamap/internal/document"
	"github.com/solatis/schemamap/internal/types"
)

// MaxListMappingSets caps a single listing.
const MaxListMappingSets = 10000

// MappingSetRecord is a stored mapping set with its compiled document.
type MappingSetRecord struct {
	ID        types.MappingSetID
	Name      string
	Rules     types.MappingSet
	Document  *document.Object
	ETag      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type mappingSetRow struct {
	ID        string    `db:"mapping_set_id"`
	Name      string    `db:"name"`
	Rules     string    `db:"rules"`
	Document  string    `db:"document"`
	ETag      string    `db:"etag"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Store persists mapping sets and API keys through named queries.
// Every read decodes a fresh document, so callers own what they get back.
type Store struct {
	queries *Queries
}

// NewStore loads the named queries for db.
func NewStore(db *sqlx.DB) (*Store, error) {
	q, err := LoadQueries(db)
	if err != nil {
		return nil, err
	}
	return &Store{queries: q}, nil
}

// Queries exposes the named queries, e.g. for the authenticator.
func (s *Store) Queries() *Queries {
	return s.queries
}

// ETag returns the strong entity tag of an encoded document.
func ETag(encoded []byte) string {
	return fmt.Sprintf(`"%016x"`, xxhash.Sum64(encoded))
}

// SaveMappingSet inserts or replaces rec and returns the stored record.
// An empty ID is assigned a fresh UUIDv7; CreatedAt survives updates.
func (s *Store) SaveMappingSet(ctx context.Context, rec MappingSetRecord) (*MappingSetRecord, error) {
	id := rec.ID
	if id == "" {
		id = types.NewMappingSetID()
	} else {
		parsed, err := types.ParseMappingSetID(string(id))
		if err != nil {
			return nil, fmt.Errorf("invalid mapping set id %q: %w", id, err)
		}
		id = parsed
	}

	doc := rec.Document
	if doc == nil {
		doc = document.NewObject()
	}
	encoded, err := document.Encode(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	if len(encoded) > types.MaxDocumentSize {
		return nil, types.ErrDocumentTooLarge
	}

	rules := rec.Rules
	if rules == nil {
		rules = types.MappingSet{}
	}
	encodedRules, err := json.Marshal(rules)
	if err != nil {
		return nil, fmt.Errorf("encode rules: %w", err)
	}

	// Microsecond precision matches PostgreSQL TIMESTAMPTZ
	now := time.Now().UTC().Truncate(time.Microsecond)
	_, err = s.queries.ExecContext(ctx, "upsert-mapping-set",
		string(id), rec.Name, string(encodedRules), string(encoded), ETag(encoded), now, now)
	if err != nil {
		return nil, fmt.Errorf("save mapping set %s: %w", id, err)
	}

	return s.GetMappingSet(ctx, id)
}

// GetMappingSet returns types.ErrMappingSetNotFound when id is unknown.
func (s *Store) GetMappingSet(ctx context.Context, id types.MappingSetID) (*MappingSetRecord, error) {
	var row mappingSetRow
	err := s.queries.GetContext(ctx, "get-mapping-set", &row, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", types.ErrMappingSetNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get mapping set %s: %w", id, err)
	}
	return row.record()
}

// ListMappingSets returns stored mapping sets, most recently updated first.
func (s *Store) ListMappingSets(ctx context.Context) ([]MappingSetRecord, error) {
	var rows []mappingSetRow
	if err := s.queries.SelectContext(ctx, "list-mapping-sets", &rows, MaxListMappingSets); err != nil {
		return nil, fmt.Errorf("list mapping sets: %w", err)
	}

	out := make([]MappingSetRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// DeleteMappingSet returns types.ErrMappingSetNotFound when nothing was deleted.
func (s *Store) DeleteMappingSet(ctx context.Context, id types.MappingSetID) error {
	res, err := s.queries.ExecContext(ctx, "delete-mapping-set", string(id))
	if err != nil {
		return fmt.Errorf("delete mapping set %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", types.ErrMappingSetNotFound, id)
	}
	return nil
}

func (r mappingSetRow) record() (*MappingSetRecord, error) {
	doc, err := document.Decode([]byte(r.Document))
	if err != nil {
		return nil, fmt.Errorf("decode stored document %s: %w", r.ID, err)
	}
	var rules types.MappingSet
	if err := json.Unmarshal([]byte(r.Rules), &rules); err != nil {
		return nil, fmt.Errorf("decode stored rules %s: %w", r.ID, err)
	}
	return &MappingSetRecord{
		ID:        types.MappingSetID(r.ID),
		Name:      r.Name,
		Rules:     rules,
		Document:  doc,
		ETag:      r.ETag,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}, nil
}

// CreateAPIKey stores the HMAC hash of a new API key and returns its id.
func (s *Store) CreateAPIKey(ctx context.Context, name string, keyHash []byte) (string, error) {
	id := uuid.Must(uuid.NewV7()).String()
	now := time.Now().UTC().Truncate(time.Microsecond)
	if _, err := s.queries.ExecContext(ctx, "insert-api-key", id, name, keyHash, now); err != nil {
		return "", fmt.Errorf("create api key: %w", err)
	}
	return id, nil
}

// RevokeAPIKey marks a key revoked. Revoking twice is an error.
func (s *Store) RevokeAPIKey(ctx context.Context, id string) error {
	res, err := s.queries.ExecContext(ctx, "revoke-api-key", time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("revoke api key %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("api key %s not found or already revoked", id)
	}
	return nil
}
