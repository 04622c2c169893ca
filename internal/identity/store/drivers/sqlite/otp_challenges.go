package sqlite

import (
	"context"
	"time"

	"github.com/opencouncil/cityreport/internal/identity/domain"
	"github.com/opencouncil/cityreport/internal/identity/store"
)

type otpChallengesRepo struct {
	db dbtx
}

func (r *otpChallengesRepo) Create(ctx context.Context, c domain.OTPChallenge) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO otp_challenges (id, account_id, code, purpose, channel, attempts, used, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.AccountID, c.Code, string(c.Purpose), string(c.Channel),
		c.Attempts, c.Used, c.CreatedAt, c.ExpiresAt,
	)
	return err
}

func (r *otpChallengesRepo) GetLatestActive(ctx context.Context, accountID string, purpose domain.OTPPurpose, now time.Time, maxAttempts int) (domain.OTPChallenge, error) {
	// IDs are monotonic ULIDs, so ordering by id gives creation order even
	// for challenges minted in the same millisecond.
	row := r.db.QueryRowContext(ctx, `
		SELECT id, account_id, code, purpose, channel, attempts, used, created_at, expires_at
		FROM otp_challenges
		WHERE account_id = ? AND purpose = ? AND used = 0 AND expires_at > ? AND attempts < ?
		ORDER BY id DESC
		LIMIT 1`,
		accountID, string(purpose), now, maxAttempts,
	)

	var (
		c       domain.OTPChallenge
		purp    string
		channel string
	)
	err := row.Scan(&c.ID, &c.AccountID, &c.Code, &purp, &channel,
		&c.Attempts, &c.Used, &c.CreatedAt, &c.ExpiresAt)
	if err != nil {
		return domain.OTPChallenge{}, mapNotFound(err)
	}

	c.Purpose = domain.OTPPurpose(purp)
	c.Channel = domain.OTPChannel(channel)
	return c, nil
}

func (r *otpChallengesRepo) MarkUsed(ctx context.Context, challengeID string) error {
	// The used = 0 guard makes consumption single-shot under races.
	res, err := r.db.ExecContext(ctx,
		`UPDATE otp_challenges SET used = 1 WHERE id = ? AND used = 0`,
		challengeID)
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

func (r *otpChallengesRepo) IncrementAttempts(ctx context.Context, challengeID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE otp_challenges SET attempts = attempts + 1 WHERE id = ?`,
		challengeID)
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

func (r *otpChallengesRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM otp_challenges WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
