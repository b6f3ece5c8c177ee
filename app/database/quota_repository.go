package database

import (
	"database/sql"
	"fmt"
	"time"
)

type quotaRepository struct {
	db *DB
}

func NewQuotaRepository(db *DB) QuotaRepository {
	return &quotaRepository{db: db}
}

func (r *quotaRepository) GetPolicy(service Service) (*QuotaPolicy, error) {
	var policy QuotaPolicy
	err := r.db.QueryRow(`
		SELECT id, service, daily_limit
		FROM quota_policies
		WHERE service = ?
	`, string(service)).Scan(&policy.ID, &policy.Service, &policy.DailyLimit)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quota policy: %w", err)
	}

	return &policy, nil
}

func (r *quotaRepository) InsertPolicy(service Service, dailyLimit int) (*QuotaPolicy, error) {
	res, err := r.db.Exec(`
		INSERT INTO quota_policies (service, daily_limit)
		VALUES (?, ?)
	`, string(service), dailyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to insert quota policy: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get inserted policy id: %w", err)
	}

	return &QuotaPolicy{ID: id, Service: service, DailyLimit: dailyLimit}, nil
}

func (r *quotaRepository) GetUsage(policyID int64, windowStart time.Time) (*QuotaUsage, error) {
	var usage QuotaUsage
	err := r.db.QueryRow(`
		SELECT id, policy_id, snapshot_at, window_start, window_end,
		       usage_count, quota_remaining, reset_at
		FROM quota_usages
		WHERE policy_id = ? AND window_start = ?
	`, policyID, windowStart.UTC()).Scan(
		&usage.ID, &usage.PolicyID, &usage.SnapshotAt, &usage.WindowStart,
		&usage.WindowEnd, &usage.UsageCount, &usage.QuotaRemaining, &usage.ResetAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quota usage: %w", err)
	}

	return &usage, nil
}

func (r *quotaRepository) InsertUsage(usage QuotaUsage) (*QuotaUsage, error) {
	res, err := r.db.Exec(`
		INSERT INTO quota_usages (policy_id, snapshot_at, window_start, window_end,
		                          usage_count, quota_remaining, reset_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, usage.PolicyID, usage.SnapshotAt.UTC(), usage.WindowStart.UTC(),
		usage.WindowEnd.UTC(), usage.UsageCount, usage.QuotaRemaining, usage.ResetAt.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to insert quota usage: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get inserted usage id: %w", err)
	}

	usage.ID = id
	return &usage, nil
}

// ApplyUsage is a single guarded UPDATE so concurrent processes sharing
// the store cannot overrun the budget between read and write.
func (r *quotaRepository) ApplyUsage(usageID int64, units int) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE quota_usages
		SET usage_count = usage_count + ?,
		    quota_remaining = quota_remaining - ?,
		    snapshot_at = ?
		WHERE id = ? AND quota_remaining >= ?
	`, units, units, time.Now().UTC(), usageID, units)
	if err != nil {
		return false, fmt.Errorf("failed to apply quota usage: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return affected == 1, nil
}
