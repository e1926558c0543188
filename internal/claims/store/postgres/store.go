// Package postgres persists claims, projections, confirmations,
// registrations and chain values in PostgreSQL through database/sql.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"endorser/internal/claims/models"
	"endorser/pkg/platform/sentinel"
	txcontext "endorser/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

// InsertChannel is notified with the new row id after every claim insert.
const InsertChannel = "claims_inserted"

const uniqueViolation = "23505"

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore implements the claim store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func New(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// execer returns the transaction carried by ctx, or the pool.
func (s *PostgresStore) execer(ctx context.Context) dbtx {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// RunInTx runs fn in a transaction; nested calls join the outer one.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// =============================================================================
// Claims
// =============================================================================

const claimColumns = `seq, id, handle, issuer, issued_at, context, type, claim, content_hash, token,
	hash_nonce, agent, created_at, chain_global, chain_issuer, nonced_hash, nonced_chain_global, nonced_chain_issuer, chain_position`

type scanner interface {
	Scan(dest ...any) error
}

func scanClaim(sc scanner) (*models.ClaimRow, error) {
	var (
		row                                     models.ClaimRow
		claim                                   []byte
		global, issuer, nHash, nGlobal, nIssuer sql.NullString
		position                                sql.NullInt64
	)
	err := sc.Scan(&row.Seq, &row.ID, &row.Handle, &row.Issuer, &row.IssuedAt, &row.Context, &row.Type,
		&claim, &row.ContentHash, &row.Token, &row.HashNonce, &row.Agent, &row.CreatedAt,
		&global, &issuer, &nHash, &nGlobal, &nIssuer, &position)
	if err != nil {
		return nil, err
	}
	row.Claim = json.RawMessage(claim)
	if global.Valid {
		row.Chain = &models.ChainValues{
			Position:     position.Int64,
			Global:       global.String,
			Issuer:       issuer.String,
			NoncedHash:   nHash.String,
			NoncedGlobal: nGlobal.String,
			NoncedIssuer: nIssuer.String,
		}
	}
	return &row, nil
}

func (s *PostgresStore) InsertClaim(ctx context.Context, row *models.ClaimRow) error {
	err := s.execer(ctx).QueryRowContext(ctx, `
		INSERT INTO claims (id, handle, issuer, issued_at, context, type, claim, content_hash, token, hash_nonce, agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING seq`,
		row.ID, row.Handle, row.Issuer, row.IssuedAt, row.Context, row.Type, []byte(row.Claim),
		row.ContentHash, row.Token, row.HashNonce, row.Agent, row.CreatedAt,
	).Scan(&row.Seq)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert claim %s: %w", row.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert claim: %w", err)
	}
	if _, err := s.execer(ctx).ExecContext(ctx, `SELECT pg_notify($1, $2)`, InsertChannel, row.ID); err != nil {
		return fmt.Errorf("notify claim insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) getClaim(ctx context.Context, what, query string, arg any) (*models.ClaimRow, error) {
	row, err := scanClaim(s.execer(ctx).QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return row, nil
}

func (s *PostgresStore) GetClaim(ctx context.Context, id string) (*models.ClaimRow, error) {
	return s.getClaim(ctx, "get claim", `SELECT `+claimColumns+` FROM claims WHERE id = $1`, id)
}

func (s *PostgresStore) GetLatestByHandle(ctx context.Context, handle string) (*models.ClaimRow, error) {
	return s.getClaim(ctx, "get claim by handle",
		`SELECT `+claimColumns+` FROM claims WHERE handle = $1 ORDER BY seq DESC LIMIT 1`, handle)
}

func (s *PostgresStore) FindClaimByContentHash(ctx context.Context, hash string) (*models.ClaimRow, error) {
	return s.getClaim(ctx, "find claim by content hash",
		`SELECT `+claimColumns+` FROM claims WHERE content_hash = $1 ORDER BY seq DESC LIMIT 1`, hash)
}

func (s *PostgresStore) CountClaimsByIssuerSince(ctx context.Context, issuer string, since time.Time) (int, error) {
	var n int
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM claims WHERE issuer = $1 AND created_at >= $2`, issuer, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count claims: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) listClaims(ctx context.Context, what, query string, args ...any) ([]*models.ClaimRow, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	defer rows.Close()
	var out []*models.ClaimRow
	for rows.Next() {
		row, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", what, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return out, nil
}

// =============================================================================
// Projections
// =============================================================================

func (s *PostgresStore) UpsertProjection(ctx context.Context, p models.Projection) error {
	h := p.Head()
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode %s projection: %w", h.Kind, err)
	}
	matchKey := sql.NullString{String: h.MatchKey, Valid: h.MatchKey != ""}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO projections (kind, handle, claim_row_id, issuer, match_key, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (kind, handle) DO UPDATE SET
			claim_row_id = EXCLUDED.claim_row_id,
			issuer = EXCLUDED.issuer,
			match_key = EXCLUDED.match_key,
			data = EXCLUDED.data`,
		string(h.Kind), h.Handle, h.ClaimRowID, h.Issuer, matchKey, data)
	if err != nil {
		return fmt.Errorf("upsert %s projection: %w", h.Kind, err)
	}
	return nil
}

func (s *PostgresStore) findProjection(ctx context.Context, kind models.ProjectionKind, query string, arg string) (models.Projection, error) {
	var data []byte
	if err := s.execer(ctx).QueryRowContext(ctx, query, string(kind), arg).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find %s projection: %w", kind, err)
	}
	return models.DecodeProjection(kind, data)
}

func (s *PostgresStore) FindProjectionByHandle(ctx context.Context, kind models.ProjectionKind, handle string) (models.Projection, error) {
	return s.findProjection(ctx, kind, `SELECT data FROM projections WHERE kind = $1 AND handle = $2`, handle)
}

func (s *PostgresStore) FindProjectionByMatchKey(ctx context.Context, kind models.ProjectionKind, key string) (models.Projection, error) {
	return s.findProjection(ctx, kind, `SELECT data FROM projections WHERE kind = $1 AND match_key = $2 LIMIT 1`, key)
}

func (s *PostgresStore) ReplaceProviders(ctx context.Context, kind models.ProjectionKind, handle string, providers []models.Provider) error {
	return s.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.execer(ctx).ExecContext(ctx,
			`DELETE FROM providers WHERE kind = $1 AND handle = $2`, string(kind), handle); err != nil {
			return fmt.Errorf("clear providers: %w", err)
		}
		for _, p := range providers {
			if _, err := s.execer(ctx).ExecContext(ctx, `
				INSERT INTO providers (kind, handle, provider_handle, provider_row_id)
				VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
				string(kind), handle, p.ProviderHandle, p.ProviderRowID); err != nil {
				return fmt.Errorf("insert provider: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) ListProviders(ctx context.Context, kind models.ProjectionKind, handle string) ([]models.Provider, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT provider_handle, provider_row_id FROM providers
		WHERE kind = $1 AND handle = $2 ORDER BY provider_handle`, string(kind), handle)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	defer rows.Close()
	var out []models.Provider
	for rows.Next() {
		p := models.Provider{Kind: kind, Handle: handle}
		if err := rows.Scan(&p.ProviderHandle, &p.ProviderRowID); err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// Confirmations
// =============================================================================

const confirmationColumns = `id, claim_row_id, issuer, confirmed_row_id, confirmed_content_hash,
	confirmed_handle, projection_kind, created_at`

func scanConfirmation(sc scanner) (*models.Confirmation, error) {
	var c models.Confirmation
	var kind string
	if err := sc.Scan(&c.ID, &c.ClaimRowID, &c.Issuer, &c.ConfirmedRowID, &c.ConfirmedContentHash,
		&c.ConfirmedHandle, &kind, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.ProjectionKind = models.ProjectionKind(kind)
	return &c, nil
}

func (s *PostgresStore) InsertConfirmation(ctx context.Context, c *models.Confirmation) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO confirmations (id, claim_row_id, issuer, target_key, confirmed_row_id,
			confirmed_content_hash, confirmed_handle, projection_kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.ClaimRowID, c.Issuer, c.TargetKey(), c.ConfirmedRowID,
		c.ConfirmedContentHash, c.ConfirmedHandle, string(c.ProjectionKind), c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert confirmation: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert confirmation: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindConfirmation(ctx context.Context, issuer, targetKey string) (*models.Confirmation, error) {
	c, err := scanConfirmation(s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+confirmationColumns+` FROM confirmations WHERE issuer = $1 AND target_key = $2`, issuer, targetKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find confirmation: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListConfirmations(ctx context.Context, confirmedRowID string) ([]*models.Confirmation, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT `+confirmationColumns+` FROM confirmations WHERE confirmed_row_id = $1 ORDER BY created_at, id`, confirmedRowID)
	if err != nil {
		return nil, fmt.Errorf("list confirmations: %w", err)
	}
	defer rows.Close()
	var out []*models.Confirmation
	for rows.Next() {
		c, err := scanConfirmation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan confirmation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// =============================================================================
// Registrations
// =============================================================================

func (s *PostgresStore) GetRegistration(ctx context.Context, did string) (*models.Registration, error) {
	var r models.Registration
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT did, registered_by, registered_at, claim_row_id, max_claims_per_week, max_registrations_per_month
		FROM registrations WHERE did = $1`, did).
		Scan(&r.DID, &r.RegisteredBy, &r.RegisteredAt, &r.ClaimRowID, &r.MaxClaimsPerWeek, &r.MaxRegistrationsPerMonth)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) InsertRegistration(ctx context.Context, r *models.Registration) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO registrations (did, registered_by, registered_at, claim_row_id, max_claims_per_week, max_registrations_per_month)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		r.DID, r.RegisteredBy, r.RegisteredAt, r.ClaimRowID, r.MaxClaimsPerWeek, r.MaxRegistrationsPerMonth)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert registration %s: %w", r.DID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountRegistrationsByIssuerSince(ctx context.Context, issuer string, since time.Time) (int, error) {
	var n int
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM registrations WHERE registered_by = $1 AND registered_at >= $2`, issuer, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return n, nil
}

// =============================================================================
// Hash chain
// =============================================================================

func (s *PostgresStore) ListUnchainedClaims(ctx context.Context, limit int) ([]*models.ClaimRow, error) {
	return s.listClaims(ctx, "list unchained claims",
		`SELECT `+claimColumns+` FROM claims WHERE chain_global IS NULL ORDER BY seq LIMIT $1`, limit)
}

func (s *PostgresStore) ListChainedClaims(ctx context.Context, afterPosition int64, limit int) ([]*models.ClaimRow, error) {
	return s.listClaims(ctx, "list chained claims",
		`SELECT `+claimColumns+` FROM claims WHERE chain_position > $1 ORDER BY chain_position LIMIT $2`, afterPosition, limit)
}

func (s *PostgresStore) lastChain(ctx context.Context, what, query string, args ...any) (*models.ChainValues, error) {
	var v models.ChainValues
	err := s.execer(ctx).QueryRowContext(ctx, query, args...).
		Scan(&v.Position, &v.Global, &v.Issuer, &v.NoncedHash, &v.NoncedGlobal, &v.NoncedIssuer)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return &v, nil
}

const chainColumns = `chain_position, chain_global, chain_issuer, nonced_hash, nonced_chain_global, nonced_chain_issuer`

func (s *PostgresStore) LastChain(ctx context.Context) (*models.ChainValues, error) {
	return s.lastChain(ctx, "last chain",
		`SELECT `+chainColumns+` FROM claims WHERE chain_position IS NOT NULL ORDER BY chain_position DESC LIMIT 1`)
}

func (s *PostgresStore) LastIssuerChain(ctx context.Context, issuer string) (*models.ChainValues, error) {
	return s.lastChain(ctx, "last issuer chain",
		`SELECT `+chainColumns+` FROM claims WHERE issuer = $1 AND chain_position IS NOT NULL ORDER BY chain_position DESC LIMIT 1`, issuer)
}

func (s *PostgresStore) SetChainValues(ctx context.Context, rowID string, v models.ChainValues) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE claims SET chain_global = $2, chain_issuer = $3, nonced_hash = $4,
			nonced_chain_global = $5, nonced_chain_issuer = $6, chain_position = $7
		WHERE id = $1 AND chain_global IS NULL`,
		rowID, v.Global, v.Issuer, v.NoncedHash, v.NoncedGlobal, v.NoncedIssuer, v.Position)
	if err != nil {
		// another writer already took this position
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyChained
		}
		return fmt.Errorf("set chain values: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set chain values: %w", err)
	}
	if n == 0 {
		return sentinel.ErrAlreadyChained
	}
	return nil
}
