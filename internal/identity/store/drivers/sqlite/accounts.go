package sqlite

import (
	"context"
	"time"

	"github.com/opencouncil/cityreport/internal/identity/domain"
	"github.com/opencouncil/cityreport/internal/identity/store"
)

type accountsRepo struct {
	db dbtx
}

const accountColumns = `id, email, full_name, password_hash, role, active, mfa_enabled, mfa_secret, created_at, updated_at, last_login_at`

func (r *accountsRepo) GetByID(ctx context.Context, id string) (domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

func (r *accountsRepo) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email)
	return scanAccount(row)
}

func (r *accountsRepo) Create(ctx context.Context, a domain.Account) error {
	var mfaSecret any
	if a.MFASecret != nil {
		mfaSecret = *a.MFASecret
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, full_name, password_hash, role, active, mfa_enabled, mfa_secret, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Email, a.FullName, a.PasswordHash, string(a.Role),
		a.Active, a.MFAEnabled, mfaSecret, a.CreatedAt, a.UpdatedAt,
	)
	return mapConstraint(err)
}

func (r *accountsRepo) UpdatePasswordHash(ctx context.Context, accountID, newHash string) error {
	return r.exec(ctx,
		`UPDATE accounts SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		newHash, accountID)
}

func (r *accountsRepo) UpdateLastLogin(ctx context.Context, accountID string, at time.Time) error {
	return r.exec(ctx,
		`UPDATE accounts SET last_login_at = ? WHERE id = ?`,
		at, accountID)
}

func (r *accountsRepo) UpdateMFASecret(ctx context.Context, accountID, secret string) error {
	return r.exec(ctx,
		`UPDATE accounts SET mfa_secret = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		secret, accountID)
}

func (r *accountsRepo) EnableMFA(ctx context.Context, accountID string) error {
	return r.exec(ctx,
		`UPDATE accounts SET mfa_enabled = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		accountID)
}

func (r *accountsRepo) DisableMFA(ctx context.Context, accountID string) error {
	return r.exec(ctx,
		`UPDATE accounts SET mfa_enabled = 0, mfa_secret = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		accountID)
}

func (r *accountsRepo) SetRole(ctx context.Context, accountID string, role domain.Role) error {
	return r.exec(ctx,
		`UPDATE accounts SET role = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(role), accountID)
}

func (r *accountsRepo) SetActive(ctx context.Context, accountID string, active bool) error {
	return r.exec(ctx,
		`UPDATE accounts SET active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		active, accountID)
}

// exec runs an UPDATE that must touch exactly one account and maps a zero
// row count to ErrNotFound.
func (r *accountsRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
