package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/target/lessonhub/internal/data/cryptoutil"
	"github.com/target/lessonhub/internal/data/pgxutil"
	domainauth "github.com/target/lessonhub/internal/domain/auth"
	"github.com/target/lessonhub/internal/ports"
)

// PrincipalRepo stores principals and their linked provider identities in Postgres.
// OAuth tokens are encrypted at rest with Enc.
type PrincipalRepo struct {
	DB    *sql.DB
	Enc   cryptoutil.Encryptor
	Clock TimeProvider
}

// NewPrincipalRepo creates a new PrincipalRepo.
func NewPrincipalRepo(db *sql.DB, enc cryptoutil.Encryptor) *PrincipalRepo {
	if enc == nil {
		enc = cryptoutil.NoopEncryptor{}
	}
	return &PrincipalRepo{DB: db, Enc: enc, Clock: RealTimeProvider{}}
}

type principalRow struct {
	ID           string    `db:"id"`
	Email        *string   `db:"email"`
	Name         string    `db:"name"`
	PasswordHash *string   `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

type identityRow struct {
	Provider     string     `db:"provider"`
	Subject      string     `db:"subject"`
	Email        string     `db:"email"`
	DisplayName  string     `db:"display_name"`
	AccessToken  string     `db:"access_token"`
	RefreshToken string     `db:"refresh_token"`
	TokenExpiry  *time.Time `db:"token_expiry"`
	Scopes       []string   `db:"scopes"`
	LinkedAt     time.Time  `db:"linked_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

const principalColumns = `p.id, p.email, p.name, p.password_hash, p.created_at, p.updated_at`

const identityColumns = `provider, subject, email, display_name, access_token, refresh_token,
	token_expiry, scopes, linked_at, updated_at`

// Get returns the principal with id and its identities.
func (r *PrincipalRepo) Get(ctx context.Context, id string) (*domainauth.Principal, error) {
	return r.getOne(ctx, `SELECT `+principalColumns+` FROM principals p WHERE p.id = $1`, id)
}

// GetByEmail looks up a principal by normalized email.
func (r *PrincipalRepo) GetByEmail(ctx context.Context, email string) (*domainauth.Principal, error) {
	email = domainauth.NormalizeEmail(email)
	if email == "" {
		return nil, ports.ErrPrincipalNotFound
	}
	return r.getOne(ctx, `SELECT `+principalColumns+` FROM principals p WHERE p.email = $1`, email)
}

// GetByIdentity returns the principal owning (provider, subject).
func (r *PrincipalRepo) GetByIdentity(
	ctx context.Context,
	provider domainauth.Provider,
	subject string,
) (*domainauth.Principal, error) {
	return r.getOne(ctx, `
		SELECT `+principalColumns+`
		FROM principals p
		JOIN external_identities ei ON ei.principal_id = p.id
		WHERE ei.provider = $1 AND ei.subject = $2`, string(provider), subject)
}

func (r *PrincipalRepo) getOne(ctx context.Context, query string, args ...any) (*domainauth.Principal, error) {
	var (
		row    principalRow
		idRows []identityRow
	)
	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		row, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[principalRow])
		if err != nil {
			return err
		}

		rows, err = conn.Query(ctx, `SELECT `+identityColumns+`
			FROM external_identities WHERE principal_id = $1 ORDER BY linked_at, provider`, row.ID)
		if err != nil {
			return err
		}
		idRows, err = pgx.CollectRows(rows, pgx.RowToStructByName[identityRow])
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get principal: %w", err)
	}

	p := &domainauth.Principal{
		ID:        row.ID,
		Name:      row.Name,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.Email != nil {
		p.Email = *row.Email
	}
	if row.PasswordHash != nil {
		p.PasswordHash = *row.PasswordHash
	}
	for _, ir := range idRows {
		ident, decErr := r.toIdentity(ir)
		if decErr != nil {
			return nil, decErr
		}
		p.Identities = append(p.Identities, ident)
	}
	return p, nil
}

// Create inserts a principal. Email is stored as NULL when empty so that
// several provider-only principals without an address can coexist.
func (r *PrincipalRepo) Create(ctx context.Context, p domainauth.Principal) (*domainauth.Principal, error) {
	if p.ID == "" {
		return nil, ErrPrincipalIDRequired
	}
	p.Email = domainauth.NormalizeEmail(p.Email)
	now := r.Clock.Now()

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO principals (id, email, name, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`,
		p.ID, nullIfEmpty(p.Email), p.Name, nullIfEmpty(p.PasswordHash), now)
	if isUniqueViolation(err, constraintPrincipalEmail) {
		return nil, ports.ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("insert principal: %w", err)
	}

	p.Identities = nil
	p.CreatedAt, p.UpdatedAt = now, now
	return &p, nil
}

// Update applies the set fields of req and returns the reloaded principal.
func (r *PrincipalRepo) Update(
	ctx context.Context,
	id string,
	req domainauth.UpdatePrincipalRequest,
) (*domainauth.Principal, error) {
	if id == "" {
		return nil, ErrPrincipalIDRequired
	}
	if !req.HasUpdates() {
		return r.Get(ctx, id)
	}

	setClause, args := buildPrincipalUpdate(req, r.Clock.Now())
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx,
		"UPDATE principals SET "+setClause+" WHERE id = $"+strconv.Itoa(len(args)), args...)
	if isUniqueViolation(err, constraintPrincipalEmail) {
		return nil, ports.ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("update principal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ports.ErrPrincipalNotFound
	}
	return r.Get(ctx, id)
}

func buildPrincipalUpdate(req domainauth.UpdatePrincipalRequest, now time.Time) (string, []any) {
	args := []any{now}
	setParts := []string{"updated_at = $1"}
	add := func(column string, v any) {
		args = append(args, v)
		setParts = append(setParts, column+" = $"+strconv.Itoa(len(args)))
	}
	if req.Name != nil {
		add("name", *req.Name)
	}
	if req.Email != nil {
		add("email", nullIfEmpty(domainauth.NormalizeEmail(*req.Email)))
	}
	if req.PasswordHash != nil {
		add("password_hash", nullIfEmpty(*req.PasswordHash))
	}
	return strings.Join(setParts, ", "), args
}

// Delete removes the principal; its identities go with it through ON DELETE CASCADE.
func (r *PrincipalRepo) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrPrincipalIDRequired
	}
	res, err := r.DB.ExecContext(ctx, `DELETE FROM principals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete principal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ports.ErrPrincipalNotFound
	}
	return nil
}

// LinkIdentity upserts the identity on (provider, subject). A principal holds at most
// one identity per provider, so a different account for the same provider replaces it.
func (r *PrincipalRepo) LinkIdentity(ctx context.Context, principalID string, ident domainauth.ExternalIdentity) error {
	if principalID == "" {
		return ErrPrincipalIDRequired
	}
	if ident.Provider == "" || ident.Subject == "" {
		return ErrIdentityKeyRequired
	}

	access, err := r.encrypt(ident.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := r.encrypt(ident.RefreshToken)
	if err != nil {
		return err
	}
	scopes := ident.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	var expiry *time.Time
	if !ident.TokenExpiry.IsZero() {
		expiry = &ident.TokenExpiry
	}
	now := r.Clock.Now()

	err = pgxutil.WithTx(ctx, r.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, delErr := tx.Exec(ctx, `
			DELETE FROM external_identities
			WHERE principal_id = $1 AND provider = $2 AND subject <> $3`,
			principalID, string(ident.Provider), ident.Subject); delErr != nil {
			return delErr
		}

		// The WHERE on DO UPDATE leaves rows owned by another principal untouched,
		// in which case nothing is returned.
		var owner string
		scanErr := tx.QueryRow(ctx, `
			INSERT INTO external_identities (
				provider, subject, principal_id, email, display_name,
				access_token, refresh_token, token_expiry, scopes, linked_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
			ON CONFLICT (provider, subject) DO UPDATE SET
				email         = EXCLUDED.email,
				display_name  = EXCLUDED.display_name,
				access_token  = EXCLUDED.access_token,
				refresh_token = CASE WHEN EXCLUDED.refresh_token = '' THEN external_identities.refresh_token
				                     ELSE EXCLUDED.refresh_token END,
				token_expiry  = EXCLUDED.token_expiry,
				scopes        = EXCLUDED.scopes,
				updated_at    = EXCLUDED.updated_at
			WHERE external_identities.principal_id = EXCLUDED.principal_id
			RETURNING principal_id`,
			string(ident.Provider), ident.Subject, principalID, ident.Email, ident.DisplayName,
			access, refresh, expiry, scopes, now,
		).Scan(&owner)
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return ports.ErrIdentityLinkedElsewhere
		}
		if scanErr != nil {
			return scanErr
		}

		_, updErr := tx.Exec(ctx, `UPDATE principals SET updated_at = $2 WHERE id = $1`, principalID, now)
		return updErr
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ports.ErrIdentityLinkedElsewhere):
		return err
	case isForeignKeyViolation(err, constraintIdentityOwner):
		return ports.ErrPrincipalNotFound
	default:
		return fmt.Errorf("link identity: %w", err)
	}
}

// UnlinkIdentity removes the principal's identity for provider, if any.
func (r *PrincipalRepo) UnlinkIdentity(ctx context.Context, principalID string, provider domainauth.Provider) error {
	if principalID == "" {
		return ErrPrincipalIDRequired
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE principals SET updated_at = $2 WHERE id = $1`, principalID, r.Clock.Now())
	if err != nil {
		return fmt.Errorf("touch principal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ports.ErrPrincipalNotFound
	}
	if _, err = r.DB.ExecContext(ctx, `
		DELETE FROM external_identities WHERE principal_id = $1 AND provider = $2`,
		principalID, string(provider)); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	return nil
}

func (r *PrincipalRepo) encrypt(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	c, err := r.Enc.Encrypt([]byte(token))
	if err != nil {
		return "", fmt.Errorf("encrypt token: %w", err)
	}
	return c, nil
}

func (r *PrincipalRepo) decrypt(cipher string) (string, error) {
	if cipher == "" {
		return "", nil
	}
	pt, err := r.Enc.Decrypt(cipher)
	if err != nil {
		return "", fmt.Errorf("decrypt token: %w", err)
	}
	return string(pt), nil
}

func (r *PrincipalRepo) toIdentity(ir identityRow) (domainauth.ExternalIdentity, error) {
	access, err := r.decrypt(ir.AccessToken)
	if err != nil {
		return domainauth.ExternalIdentity{}, err
	}
	refresh, err := r.decrypt(ir.RefreshToken)
	if err != nil {
		return domainauth.ExternalIdentity{}, err
	}
	ident := domainauth.ExternalIdentity{
		Provider:     domainauth.Provider(ir.Provider),
		Subject:      ir.Subject,
		Email:        ir.Email,
		DisplayName:  ir.DisplayName,
		AccessToken:  access,
		RefreshToken: refresh,
		Scopes:       ir.Scopes,
		LinkedAt:     ir.LinkedAt,
		UpdatedAt:    ir.UpdatedAt,
	}
	if ir.TokenExpiry != nil {
		ident.TokenExpiry = *ir.TokenExpiry
	}
	return ident, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ ports.PrincipalRepository = (*PrincipalRepo)(nil)
