package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/yourorg/apiask/pkg/types"
)

// PostgresStore backs the same interface with Postgres and the pgvector
// extension, so nearest-neighbor ordering runs inside the database via
// the <=> cosine-distance operator.
type PostgresStore struct {
	db         *sqlx.DB
	dimensions int
}

func NewPostgresStore(dsn string, dimensions int) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, persistErr("connect", err)
	}
	if dimensions <= 0 {
		dimensions = 1536
	}
	s := &PostgresStore{db: db, dimensions: dimensions}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) init() error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		`CREATE TABLE IF NOT EXISTS apis (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL,
			source_location TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS endpoints (
			id BIGSERIAL PRIMARY KEY,
			api_id UUID NOT NULL REFERENCES apis(id) ON DELETE CASCADE,
			path TEXT NOT NULL,
			method TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			embedding vector(%d),
			UNIQUE(api_id, path, method)
		);`, s.dimensions),
		`CREATE INDEX IF NOT EXISTS idx_endpoints_api ON endpoints(api_id);`,
		`CREATE TABLE IF NOT EXISTS fields (
			id BIGSERIAL PRIMARY KEY,
			endpoint_id BIGINT NOT NULL REFERENCES endpoints(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			required BOOLEAN NOT NULL,
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

func (s *PostgresStore) CreateApi(ctx context.Context, name, description, apiType, sourceLocation string) (*types.Api, error) {
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
	_, err := s.db.ExecContext(ctx, `INSERT INTO apis(id,name,description,type,source_location,status,created_at,updated_at) VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
		api.ID, api.Name, api.Description, api.Type, api.SourceLocation, api.Status, api.CreatedAt, api.UpdatedAt)
	if err != nil {
		return nil, persistErr("create api", err)
	}
	return api, nil
}

func (s *PostgresStore) GetApi(ctx context.Context, id string) (*types.Api, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,name,description,type,source_location,status,created_at,updated_at FROM apis WHERE id=$1`, id)
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

func (s *PostgresStore) ListApis(ctx context.Context) ([]types.Api, error) {
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

func (s *PostgresStore) UpdateApiStatus(ctx context.Context, id, status string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE apis SET status=$1, updated_at=$2 WHERE id=$3`, status, time.Now().UTC(), id)
	if err != nil {
		return persistErr("update api status", err)
	}
	return nil
}

func (s *PostgresStore) DeleteApi(ctx context.Context, id string) error {
	// endpoints and fields cascade via foreign keys
	if _, err := s.db.ExecContext(ctx, `DELETE FROM apis WHERE id=$1`, id); err != nil {
		return persistErr("delete api", err)
	}
	return nil
}

func (s *PostgresStore) CreateEndpoints(ctx context.Context, apiID string, endpoints []types.EndpointDescriptor) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, persistErr("create endpoints", err)
	}
	defer tx.Rollback()
	stmt, err := tx.PreparexContext(ctx, `INSERT INTO endpoints(api_id,path,method,description) VALUES($1,$2,$3,$4) ON CONFLICT (api_id,path,method) DO NOTHING`)
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

func (s *PostgresStore) CreateFields(ctx context.Context, endpointID int64, fields []types.FieldDescriptor) error {
	if len(fields) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return persistErr("create fields", err)
	}
	defer tx.Rollback()
	stmt, err := tx.PreparexContext(ctx, `INSERT INTO fields(endpoint_id,name,type,required,description,example) VALUES($1,$2,$3,$4,$5,$6)`)
	if err != nil {
		return persistErr("create fields", err)
	}
	defer stmt.Close()
	for _, f := range fields {
		if _, err := stmt.ExecContext(ctx, endpointID, f.Name, f.Type, f.Required, f.Description, f.Example); err != nil {
			return persistErr("create fields", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return persistErr("create fields", err)
	}
	return nil
}

func (s *PostgresStore) ListEndpoints(ctx context.Context, apiID string) ([]types.Endpoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,api_id,path,method,description FROM endpoints WHERE api_id=$1 ORDER BY id ASC`, apiID)
	if err != nil {
		return nil, persistErr("list endpoints", err)
	}
	defer rows.Close()
	out := make([]types.Endpoint, 0)
	for rows.Next() {
		var ep types.Endpoint
		if err := rows.Scan(&ep.ID, &ep.ApiID, &ep.Path, &ep.Method, &ep.Description); err != nil {
			return nil, persistErr("list endpoints", err)
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListFields(ctx context.Context, endpointID int64) ([]types.Field, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,endpoint_id,name,type,required,description,example FROM fields WHERE endpoint_id=$1 ORDER BY id ASC`, endpointID)
	if err != nil {
		return nil, persistErr("list fields", err)
	}
	defer rows.Close()
	out := make([]types.Field, 0)
	for rows.Next() {
		var f types.Field
		if err := rows.Scan(&f.ID, &f.EndpointID, &f.Name, &f.Type, &f.Required, &f.Description, &f.Example); err != nil {
			return nil, persistErr("list fields", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetEmbedding(ctx context.Context, endpointID int64, vector []float32) error {
	_, err := s.db.ExecContext(ctx, `UPDATE endpoints SET embedding=$1::vector WHERE id=$2`, vectorLiteral(vector), endpointID)
	if err != nil {
		return persistErr("set embedding", err)
	}
	return nil
}

func (s *PostgresStore) FindNearest(ctx context.Context, apiID string, query []float32, k int) ([]types.RetrievedEndpoint, error) {
	if k <= 0 {
		return []types.RetrievedEndpoint{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id,api_id,path,method,description,embedding <=> $2::vector AS distance
		FROM endpoints
		WHERE api_id=$1 AND embedding IS NOT NULL
		ORDER BY distance ASC
		LIMIT $3`, apiID, vectorLiteral(query), k)
	if err != nil {
		return nil, persistErr("find nearest", err)
	}
	defer rows.Close()
	out := make([]types.RetrievedEndpoint, 0, k)
	for rows.Next() {
		var r types.RetrievedEndpoint
		if err := rows.Scan(&r.Endpoint.ID, &r.Endpoint.ApiID, &r.Endpoint.Path, &r.Endpoint.Method, &r.Endpoint.Description, &r.Distance); err != nil {
			return nil, persistErr("find nearest", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("find nearest", err)
	}
	for i := range out {
		fields, err := s.ListFields(ctx, out[i].Endpoint.ID)
		if err != nil {
			return nil, err
		}
		out[i].Endpoint.Fields = fields
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	if s.db == nil {
		return errors.New("store is nil")
	}
	return s.db.Close()
}

// vectorLiteral renders a vector in pgvector's input format: [1,2,3].
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
