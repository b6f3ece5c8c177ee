package quota

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/sub-comb/app/database"
)

// DefaultDailyLimit is the unit budget the YouTube Data API grants per
// project per day.
const DefaultDailyLimit = 10000

// ErrNotInitialized indicates a quota operation ran before
// InitializePolicy/InitializeUsage. This is a caller ordering bug, not a
// runtime condition to recover from.
var ErrNotInitialized = errors.New("quota not initialized for service")

// ErrInsufficientQuota indicates an increment larger than the remaining
// budget. Callers that gate via CheckAvailable first should never see it.
var ErrInsufficientQuota = errors.New("increment exceeds remaining quota")

// Ledger tracks daily request-unit budgets per service and gates outgoing
// API calls against the remaining budget of the current reset window.
type Ledger struct {
	repo  database.QuotaRepository
	reset ResetConfig
	now   func() time.Time
}

func NewLedger(repo database.QuotaRepository, reset ResetConfig) *Ledger {
	return &Ledger{
		repo:  repo,
		reset: reset,
		now:   time.Now,
	}
}

// InitializePolicy returns the stored policy for the service, creating
// one with the default daily limit when absent. Idempotent.
func (l *Ledger) InitializePolicy(service database.Service) (*database.QuotaPolicy, error) {
	policy, err := l.repo.GetPolicy(service)
	if err != nil {
		return nil, err
	}
	if policy != nil {
		return policy, nil
	}

	slog.Debug("No quota policy found, creating one", "service", service, "limit", DefaultDailyLimit)

	policy, err = l.repo.InsertPolicy(service, DefaultDailyLimit)
	if err != nil {
		return nil, err
	}

	return policy, nil
}

// InitializeUsage returns the usage row for the current reset window,
// creating a fresh one when the window has rolled over. Past windows are
// left untouched as an audit trail. Idempotent per window.
func (l *Ledger) InitializeUsage(service database.Service) (*database.QuotaUsage, error) {
	policy, err := l.repo.GetPolicy(service)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, fmt.Errorf("%w: no policy for %q, call InitializePolicy first", ErrNotInitialized, service)
	}

	now := l.now()
	windowStart, windowEnd, err := CurrentWindowUTC(l.reset, now)
	if err != nil {
		return nil, err
	}

	usage, err := l.repo.GetUsage(policy.ID, windowStart)
	if err != nil {
		return nil, err
	}
	if usage != nil {
		slog.Debug("Quota usage for current window already initialized",
			"service", service, "window_start", windowStart, "used", usage.UsageCount)
		return usage, nil
	}

	usage, err = l.repo.InsertUsage(database.QuotaUsage{
		PolicyID:       policy.ID,
		SnapshotAt:     now.UTC(),
		WindowStart:    windowStart,
		WindowEnd:      windowEnd,
		UsageCount:     0,
		QuotaRemaining: policy.DailyLimit,
		ResetAt:        windowEnd,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Started new quota window",
		"service", service, "window_start", windowStart, "window_end", windowEnd,
		"limit", policy.DailyLimit)

	return usage, nil
}

// CheckAvailable reports whether any budget remains in the current
// window. Returns ErrNotInitialized when the policy or usage row is
// missing.
func (l *Ledger) CheckAvailable(service database.Service) (bool, error) {
	usage, err := l.currentUsage(service)
	if err != nil {
		return false, err
	}
	return usage.QuotaRemaining > 0, nil
}

// Increment consumes units from the current window. Exceeding the
// remaining budget returns ErrInsufficientQuota and writes nothing.
func (l *Ledger) Increment(service database.Service, units int) error {
	usage, err := l.currentUsage(service)
	if err != nil {
		return err
	}

	applied, err := l.repo.ApplyUsage(usage.ID, units)
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("%w: requested %d units with %d remaining",
			ErrInsufficientQuota, units, usage.QuotaRemaining)
	}

	return nil
}

// Usage returns the current window's usage row for reporting.
func (l *Ledger) Usage(service database.Service) (*database.QuotaUsage, error) {
	return l.currentUsage(service)
}

func (l *Ledger) currentUsage(service database.Service) (*database.QuotaUsage, error) {
	policy, err := l.repo.GetPolicy(service)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, fmt.Errorf("%w: no policy for %q", ErrNotInitialized, service)
	}

	windowStart, _, err := CurrentWindowUTC(l.reset, l.now())
	if err != nil {
		return nil, err
	}

	usage, err := l.repo.GetUsage(policy.ID, windowStart)
	if err != nil {
		return nil, err
	}
	if usage == nil {
		return nil, fmt.Errorf("%w: no usage row for %q in current window", ErrNotInitialized, service)
	}

	return usage, nil
}
