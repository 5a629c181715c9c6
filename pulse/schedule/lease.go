package schedule

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/attrmigrate/errors"
)

// PassLeaseName is the lease guarding conversion passes across processes
const PassLeaseName = "conversion-pass"

// Fixed-width UTC layout so stored timestamps compare correctly as text
const leaseTimeLayout = "2006-01-02T15:04:05.000Z"

// Lease is a held "pass in progress" marker
type Lease struct {
	Name       string    `json:"name"`
	Holder     string    `json:"holder"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// LeaseStore hands out expiring named leases backed by the pass_leases table
type LeaseStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewLeaseStore creates a new lease store
func NewLeaseStore(db *sql.DB) *LeaseStore {
	return &LeaseStore{db: db, now: time.Now}
}

// Acquire takes the lease for holder unless another holder has an unexpired one.
// An expired lease is taken over.
func (s *LeaseStore) Acquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, errors.NewInvalidRequestError("lease ttl must be positive, got %s", ttl)
	}
	now := s.now().UTC()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO pass_leases (name, holder, acquired_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			holder = excluded.holder,
			acquired_at = excluded.acquired_at,
			expires_at = excluded.expires_at
		WHERE pass_leases.expires_at <= ? OR pass_leases.holder = excluded.holder
	`, name, holder, now.Format(leaseTimeLayout), now.Add(ttl).Format(leaseTimeLayout), now.Format(leaseTimeLayout))
	if err != nil {
		return false, errors.Wrapf(err, "failed to acquire lease %s", name)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to check rows affected")
	}
	return n > 0, nil
}

// Release drops the lease if holder still owns it
func (s *LeaseStore) Release(ctx context.Context, name, holder string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM pass_leases WHERE name = ? AND holder = ?", name, holder); err != nil {
		return errors.Wrapf(err, "failed to release lease %s", name)
	}
	return nil
}

// Current returns the unexpired lease on name, or nil when it is free
func (s *LeaseStore) Current(ctx context.Context, name string) (*Lease, error) {
	var l Lease
	var acquiredAt, expiresAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT name, holder, acquired_at, expires_at FROM pass_leases WHERE name = ? AND expires_at > ?",
		name, s.now().UTC().Format(leaseTimeLayout),
	).Scan(&l.Name, &l.Holder, &acquiredAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read lease %s", name)
	}
	l.AcquiredAt, _ = time.Parse(leaseTimeLayout, acquiredAt)
	l.ExpiresAt, _ = time.Parse(leaseTimeLayout, expiresAt)
	return &l, nil
}
