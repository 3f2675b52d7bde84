package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stakeport/stakeport/pkg/types"
)

// Schema creates the allow-list tables when they do not exist yet. It
// mirrors the tables served by the REST store.
const Schema = `
CREATE TABLE IF NOT EXISTS user_types (
	id          BIGSERIAL PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	is_admin    BOOLEAN NOT NULL DEFAULT FALSE,
	permissions TEXT[] NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS users_authorized (
	id             BIGSERIAL PRIMARY KEY,
	wallet_address TEXT NOT NULL UNIQUE CHECK (wallet_address = lower(wallet_address)),
	first_name     TEXT NOT NULL DEFAULT '',
	last_name      TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'Active' CHECK (status IN ('Active', 'Suspended', 'Inactive')),
	user_type_id   BIGINT REFERENCES user_types(id),
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const pgErrUniqueViolation = "23505"

const selectUsers = `
SELECT u.id, u.wallet_address, u.first_name, u.last_name, u.status,
       u.user_type_id, u.created_at,
       t.id, t.name, t.is_admin, t.permissions
FROM users_authorized u
LEFT JOIN user_types t ON t.id = u.user_type_id`

// PostgresStore reads and writes the allow-list tables directly.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresPool opens and pings a connection pool.
func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// NewPostgresStore creates a store over pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema applies Schema.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("%w: apply schema: %v", types.ErrStore, err)
	}
	return nil
}

// Close closes the pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// FindByAddress implements Store.
func (s *PostgresStore) FindByAddress(ctx context.Context, address string) (*types.AuthorizationRecord, error) {
	row := s.pool.QueryRow(ctx, selectUsers+` WHERE u.wallet_address = $1`, address)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find %s: %v", types.ErrStore, address, err)
	}
	return rec, nil
}

// Insert implements Store.
func (s *PostgresStore) Insert(ctx context.Context, rec types.AuthorizationRecord) (*types.AuthorizationRecord, error) {
	var typeID *int64
	if rec.UserTypeID != 0 {
		typeID = &rec.UserTypeID
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users_authorized (wallet_address, first_name, last_name, status, user_type_id)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.WalletAddress, rec.FirstName, rec.LastName, string(rec.Status), typeID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
			return nil, &types.ValidationError{Field: "wallet_address", Reason: "already on the allow-list"}
		}
		return nil, fmt.Errorf("%w: insert %s: %v", types.ErrStore, rec.WalletAddress, err)
	}
	return s.FindByAddress(ctx, rec.WalletAddress)
}

// UpdateStatus implements Store.
func (s *PostgresStore) UpdateStatus(ctx context.Context, address string, status types.UserStatus) (*types.AuthorizationRecord, error) {
	return s.update(ctx, address, `UPDATE users_authorized SET status = $2 WHERE wallet_address = $1`, string(status))
}

// UpdateUserType implements Store.
func (s *PostgresStore) UpdateUserType(ctx context.Context, address string, userTypeID int64) (*types.AuthorizationRecord, error) {
	return s.update(ctx, address, `UPDATE users_authorized SET user_type_id = $2 WHERE wallet_address = $1`, userTypeID)
}

func (s *PostgresStore) update(ctx context.Context, address, query string, value any) (*types.AuthorizationRecord, error) {
	tag, err := s.pool.Exec(ctx, query, address, value)
	if err != nil {
		return nil, fmt.Errorf("%w: update %s: %v", types.ErrStore, address, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, types.ErrNotFound
	}
	return s.FindByAddress(ctx, address)
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context) ([]types.AuthorizationRecord, error) {
	rows, err := s.pool.Query(ctx, selectUsers+` ORDER BY u.created_at DESC, u.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: list users: %v", types.ErrStore, err)
	}
	defer rows.Close()

	var out []types.AuthorizationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan user: %v", types.ErrStore, err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list users: %v", types.ErrStore, err)
	}
	return out, nil
}

// UserTypes implements Store.
func (s *PostgresStore) UserTypes(ctx context.Context) ([]types.UserType, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, is_admin, permissions FROM user_types ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list user types: %v", types.ErrStore, err)
	}
	defer rows.Close()

	var out []types.UserType
	for rows.Next() {
		var ut types.UserType
		if err := rows.Scan(&ut.ID, &ut.Name, &ut.IsAdmin, &ut.Permissions); err != nil {
			return nil, fmt.Errorf("%w: scan user type: %v", types.ErrStore, err)
		}
		out = append(out, ut)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list user types: %v", types.ErrStore, err)
	}
	return out, nil
}

// CreateUserType inserts a user type and returns its id.
func (s *PostgresStore) CreateUserType(ctx context.Context, ut types.UserType) (int64, error) {
	perms := ut.Permissions
	if perms == nil {
		perms = []string{}
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO user_types (name, is_admin, permissions) VALUES ($1, $2, $3) RETURNING id`,
		ut.Name, ut.IsAdmin, perms).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: create user type: %v", types.ErrStore, err)
	}
	return id, nil
}

func scanRecord(row pgx.Row) (*types.AuthorizationRecord, error) {
	var (
		rec       types.AuthorizationRecord
		status    string
		typeRef   *int64
		createdAt time.Time
		tID       *int64
		tName     *string
		tAdmin    *bool
		tPerms    []string
	)
	err := row.Scan(&rec.ID, &rec.WalletAddress, &rec.FirstName, &rec.LastName, &status,
		&typeRef, &createdAt, &tID, &tName, &tAdmin, &tPerms)
	if err != nil {
		return nil, err
	}
	rec.Status = types.UserStatus(status)
	rec.CreatedAt = createdAt
	if typeRef != nil {
		rec.UserTypeID = *typeRef
	}
	if tID != nil {
		rec.UserType = &types.UserType{ID: *tID, Permissions: tPerms}
		if tName != nil {
			rec.UserType.Name = *tName
		}
		if tAdmin != nil {
			rec.UserType.IsAdmin = *tAdmin
		}
	}
	return &rec, nil
}
