package credits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ravigill3969/examly/backend/database"
	"github.com/ravigill3969/examly/backend/models"
)

// Store persists profiles and the payment ledger. Every mutation is a single
// conditional write or a single transaction.
type Store interface {
	GetOrCreate(ctx context.Context, userID string) (*models.Profile, error)
	CompareAndSetCredits(ctx context.Context, userID string, expected, next int) (bool, error)
	CompareAndSetFreeUsed(ctx context.Context, userID string, expected, next int, now time.Time) (bool, error)
	StartFreeWindow(ctx context.Context, userID, fullName, phone string, start, expires time.Time) (bool, error)
	SetStripeCustomer(ctx context.Context, userID, customerID string) error
	SavePaymentMethod(ctx context.Context, userID, paymentMethodID string) error
	SetAutoRecharge(ctx context.Context, userID string, enabled bool) error
	CreditOnce(ctx context.Context, event models.PaymentEvent) (bool, *models.Profile, error)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore implements Store with portable SQL that runs on both Postgres
// and SQLite. Timestamps come from the Go clock, not the database.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

func (s *SQLStore) timestamp() time.Time {
	return s.now().UTC()
}

const selectProfile = `
	SELECT user_id,
		COALESCE(full_name, ''),
		COALESCE(phone, ''),
		COALESCE(credits, 0),
		free_window_start,
		free_expires_at,
		COALESCE(free_used, 0),
		COALESCE(stripe_customer_id, ''),
		COALESCE(stripe_payment_method_id, ''),
		auto_recharge,
		created_at,
		updated_at
	FROM profiles
	WHERE user_id = $1`

func getProfile(ctx context.Context, q queryer, userID string) (*models.Profile, error) {
	var (
		p           models.Profile
		windowStart sql.NullTime
		expiresAt   sql.NullTime
	)

	err := q.QueryRowContext(ctx, selectProfile, userID).Scan(
		&p.UserID,
		&p.FullName,
		&p.Phone,
		&p.Credits,
		&windowStart,
		&expiresAt,
		&p.FreeUsed,
		&p.StripeCustomerID,
		&p.StripePaymentMethodID,
		&p.AutoRecharge,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if windowStart.Valid {
		t := windowStart.Time
		p.FreeWindowStart = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		p.FreeExpiresAt = &t
	}
	return &p, nil
}

func (s *SQLStore) GetOrCreate(ctx context.Context, userID string) (*models.Profile, error) {
	if userID == "" {
		return nil, invalidInput("user id is required")
	}

	p, err := getProfile(ctx, s.db, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read profile %s: %w", userID, err)
	}

	now := s.timestamp()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, credits, free_used, auto_recharge, created_at, updated_at)
		VALUES ($1, 0, 0, $2, $3, $4)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, false, now, now)
	if err != nil {
		return nil, fmt.Errorf("create profile %s: %w", userID, err)
	}

	p, err = getProfile(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("read profile %s after create: %w", userID, err)
	}
	return p, nil
}

func (s *SQLStore) CompareAndSetCredits(ctx context.Context, userID string, expected, next int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET credits = $1, updated_at = $2
		WHERE user_id = $3 AND credits = $4
	`, next, s.timestamp(), userID, expected)
	if err != nil {
		return false, fmt.Errorf("update credits for %s: %w", userID, err)
	}
	return oneRow(res)
}

// CompareAndSetFreeUsed only matches rows whose free window is still open at
// now, so a consume read just before expiry cannot land after it.
func (s *SQLStore) CompareAndSetFreeUsed(ctx context.Context, userID string, expected, next int, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET free_used = $1, updated_at = $2
		WHERE user_id = $3 AND free_used = $4 AND free_expires_at > $5
	`, next, s.timestamp(), userID, expected, now.UTC())
	if err != nil {
		return false, fmt.Errorf("update free usage for %s: %w", userID, err)
	}
	return oneRow(res)
}

func (s *SQLStore) StartFreeWindow(ctx context.Context, userID, fullName, phone string, start, expires time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET full_name = $1,
			phone = $2,
			free_window_start = $3,
			free_expires_at = $4,
			free_used = 0,
			updated_at = $5
		WHERE user_id = $6 AND free_window_start IS NULL
	`, fullName, phone, start.UTC(), expires.UTC(), s.timestamp(), userID)
	if err != nil {
		return false, fmt.Errorf("start free window for %s: %w", userID, err)
	}
	return oneRow(res)
}

func (s *SQLStore) SetStripeCustomer(ctx context.Context, userID, customerID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET stripe_customer_id = $1, updated_at = $2 WHERE user_id = $3
	`, customerID, s.timestamp(), userID)
	if err != nil {
		return fmt.Errorf("save stripe customer for %s: %w", userID, err)
	}
	return nil
}

func (s *SQLStore) SavePaymentMethod(ctx context.Context, userID, paymentMethodID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET stripe_payment_method_id = $1, auto_recharge = $2, updated_at = $3
		WHERE user_id = $4
	`, paymentMethodID, true, s.timestamp(), userID)
	if err != nil {
		return fmt.Errorf("save payment method for %s: %w", userID, err)
	}
	return nil
}

func (s *SQLStore) SetAutoRecharge(ctx context.Context, userID string, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET auto_recharge = $1, updated_at = $2 WHERE user_id = $3
	`, enabled, s.timestamp(), userID)
	if err != nil {
		return fmt.Errorf("set auto recharge for %s: %w", userID, err)
	}
	return nil
}

// CreditOnce records event in the ledger and adds its credits in one
// transaction. A repeated event id leaves everything untouched and reports
// applied=false.
func (s *SQLStore) CreditOnce(ctx context.Context, event models.PaymentEvent) (applied bool, p *models.Profile, err error) {
	if event.EventID == "" {
		return false, nil, invalidInput("payment event id is required")
	}
	if event.Credits <= 0 {
		return false, nil, invalidInput("payment event must add credits")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, nil, fmt.Errorf("begin credit transaction: %w", err)
	}
	defer func() {
		if err != nil || !applied {
			_ = tx.Rollback()
		}
	}()

	now := s.timestamp()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO payment_events (event_id, kind, user_id, credits, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, event.EventID, event.Kind, event.UserID, event.Credits, now)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return false, nil, nil
		}
		return false, nil, fmt.Errorf("record payment event %s: %w", event.EventID, err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE profiles SET credits = credits + $1, updated_at = $2 WHERE user_id = $3
	`, event.Credits, now, event.UserID)
	if err != nil {
		return false, nil, fmt.Errorf("add credits for %s: %w", event.UserID, err)
	}
	ok, err := oneRow(res)
	if err != nil {
		return false, nil, err
	}
	if !ok {
		return false, nil, fmt.Errorf("add credits: profile %s not found", event.UserID)
	}

	p, err = getProfile(ctx, tx, event.UserID)
	if err != nil {
		return false, nil, fmt.Errorf("read profile %s after credit: %w", event.UserID, err)
	}

	if err = tx.Commit(); err != nil {
		return false, nil, fmt.Errorf("commit credit transaction: %w", err)
	}
	return true, p, nil
}

func oneRow(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
