package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/yourorg/apiask/pkg/types"
)

// SQLiteStore is the default store. Embeddings live in a BLOB column as
// JSON arrays and nearest-neighbor search is brute-force cosine over the
// Api's endpoints, which is plenty for single-spec corpora.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, persistErr("open", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	if _, err := s.db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return persistErr("init", err)
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS apis (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL,
			source_location TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS endpoints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			api_id TEXT NOT NULL,
			path TEXT NOT NULL,
			method TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			embedding BLOB,
			UNIQUE(api_id, path, method)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_endpoints_api ON endpoints(api_id);`,
		`CREATE TABLE IF NOT EXISTS fields (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			endpoint_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			required INTEGER NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			example TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_fields_endpoint ON fields(endpoint_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return persistErr("init", err)
		}
	}
	return nil
}

func (s *SQLiteStore) CreateApi(ctx context.Context, name, description, apiType, sourceLocation string) (*types.Api, error) {
	now := time.Now().UTC()
	api := &types.Api{
		ID:             uuid.NewString(),
		Name:           name,
		Description:    description,
		Type:           apiType,
		SourceLocation: sourceLocation,
		Status:         types.StatusPersisted,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO apis(id,name,description,type,source_location,status,created_at,updated_at) VALUES(?,?,?,?,?,?,?,?)`,
		api.ID, api.Name, api.Description, api.Type, api.SourceLocation, api.Status, api.CreatedAt, api.UpdatedAt)
	if err != nil {
		return nil, persistErr("create api", err)
	}
	return api, nil
}

func (s *SQLiteStore) GetApi(ctx context.Context, id string) (*types.Api, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,name,description,type,source_location,status,created_at,updated_at FROM apis WHERE id=?`, id)
	var out types.Api
	err := row.Scan(&out.ID, &out.Name, &out.Description, &out.Type, &out.SourceLocation, &out.Status, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: api %s", types.ErrNotFound, id)
	}
	if err != nil {
		return nil, persistErr("get api", err)
	}
	return &out, nil
}

func (s *SQLiteStore) ListApis(ctx context.Context) ([]types.Api, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,name,description,type,source_location,status,created_at,updated_at FROM apis ORDER BY created_at DESC`)
	if err != nil {
		return nil, persistErr("list apis", err)
	}
	defer rows.Close()
	var out []types.Api
	for rows.Next() {
		var a types.Api
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &a.Type, &a.SourceLocation, &a.Status, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, persistErr("list apis", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateApiStatus(ctx context.Context, id, status string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE apis SET status=?, updated_at=? WHERE id=?`, status, time.Now().UTC(), id)
	if err != nil {
		return persistErr("update api status", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteApi(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("delete api", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM fields WHERE endpoint_id IN (SELECT id FROM endpoints WHERE api_id=?)`, id); err != nil {
		return persistErr("delete api", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM endpoints WHERE api_id=?`, id); err != nil {
		return persistErr("delete api", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM apis WHERE id=?`, id); err != nil {
		return persistErr("delete api", err)
	}
	if err := tx.Commit(); err != nil {
		return persistErr("delete api", err)
	}
	return nil
}

func (s *SQLiteStore) CreateEndpoints(ctx context.Context, apiID string, endpoints []types.EndpointDescriptor) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, persistErr("create endpoints", err)
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO endpoints(api_id,path,method,description) VALUES(?,?,?,?) ON CONFLICT(api_id,path,method) DO NOTHING`)
	if err != nil {
		return 0, persistErr("create endpoints", err)
	}
	defer stmt.Close()
	inserted := 0
	for _, ep := range endpoints {
		res, err := stmt.ExecContext(ctx, apiID, ep.Path, ep.Method, ep.Description)
		if err != nil {
			return 0, persistErr("create endpoints", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, persistErr("create endpoints", err)
	}
	return inserted, nil
}

func (s *SQLiteStore) CreateFields(ctx context.Context, endpointID int64, fields []types.FieldDescriptor) error {
	if len(fields) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("create fields", err)
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO fields(endpoint_id,name,type,required,description,example) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		return persistErr("create fields", err)
	}
	defer stmt.Close()
	for _, f := range fields {
		if _, err := stmt.ExecContext(ctx, endpointID, f.Name, f.Type, boolToInt(f.Required), f.Description, f.Example); err != nil {
			return persistErr("create fields", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return persistErr("create fields", err)
	}
	return nil
}

func (s *SQLiteStore) ListEndpoints(ctx context.Context, apiID string) ([]types.Endpoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,api_id,path,method,description,embedding FROM endpoints WHERE api_id=? ORDER BY id ASC`, apiID)
	if err != nil {
		return nil, persistErr("list endpoints", err)
	}
	defer rows.Close()
	out := make([]types.Endpoint, 0)
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListFields(ctx context.Context, endpointID int64) ([]types.Field, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,endpoint_id,name,type,required,description,example FROM fields WHERE endpoint_id=? ORDER BY id ASC`, endpointID)
	if err != nil {
		return nil, persistErr("list fields", err)
	}
	defer rows.Close()
	out := make([]types.Field, 0)
	for rows.Next() {
		var f types.Field
		var required int
		if err := rows.Scan(&f.ID, &f.EndpointID, &f.Name, &f.Type, &required, &f.Description, &f.Example); err != nil {
			return nil, persistErr("list fields", err)
		}
		f.Required = required != 0
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SetEmbedding(ctx context.Context, endpointID int64, vector []float32) error {
	blob, err := json.Marshal(vector)
	if err != nil {
		return persistErr("set embedding", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE endpoints SET embedding=? WHERE id=?`, blob, endpointID)
	if err != nil {
		return persistErr("set embedding", err)
	}
	return nil
}

func (s *SQLiteStore) FindNearest(ctx context.Context, apiID string, query []float32, k int) ([]types.RetrievedEndpoint, error) {
	if k <= 0 {
		return []types.RetrievedEndpoint{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id,api_id,path,method,description,embedding FROM endpoints WHERE api_id=? AND embedding IS NOT NULL`, apiID)
	if err != nil {
		return nil, persistErr("find nearest", err)
	}
	defer rows.Close()
	var candidates []types.RetrievedEndpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, types.RetrievedEndpoint{
			Endpoint: ep,
			Distance: cosineDistance(ep.Embedding, query),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("find nearest", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Distance < candidates[j].Distance })
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	for i := range candidates {
		fields, err := s.ListFields(ctx, candidates[i].Endpoint.ID)
		if err != nil {
			return nil, err
		}
		candidates[i].Endpoint.Fields = fields
	}
	if candidates == nil {
		candidates = []types.RetrievedEndpoint{}
	}
	return candidates, nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return errors.New("store is nil")
	}
	return s.db.Close()
}

func scanEndpoint(rows *sql.Rows) (types.Endpoint, error) {
	var ep types.Endpoint
	var blob []byte
	if err := rows.Scan(&ep.ID, &ep.ApiID, &ep.Path, &ep.Method, &ep.Description, &blob); err != nil {
		return ep, persistErr("scan endpoint", err)
	}
	if len(blob) > 0 {
		_ = json.Unmarshal(blob, &ep.Embedding)
	}
	return ep, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", types.ErrPersistence, op, err)
}
