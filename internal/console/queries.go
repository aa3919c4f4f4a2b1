package console

import (
	"context"
	"time"

	"github.com/roach88/qsync/internal/cache"
	"github.com/roach88/qsync/internal/ir"
)

// RetryBase is the first backoff between retried fetches.
const RetryBase = 500 * time.Millisecond

// Tuning overrides a query's freshness settings. Nil fields keep the
// query's default, which for StaleAfter is the store's default.
type Tuning struct {
	StaleAfter      *time.Duration
	RefetchInterval *time.Duration
	Retries         *int
}

func (t Tuning) merge(over Tuning) Tuning {
	if over.StaleAfter != nil {
		t.StaleAfter = over.StaleAfter
	}
	if over.RefetchInterval != nil {
		t.RefetchInterval = over.RefetchInterval
	}
	if over.Retries != nil {
		t.Retries = over.Retries
	}
	return t
}

// Query is one named page read.
type Query struct {
	Name string
	Key  ir.Key
	Tuning

	fetch func(ctx context.Context, b Backend) (any, error)
}

func (q Query) options() []cache.QueryOption {
	var opts []cache.QueryOption
	if q.StaleAfter != nil {
		opts = append(opts, cache.StaleAfter(*q.StaleAfter))
	}
	if q.RefetchInterval != nil {
		opts = append(opts, cache.RefetchInterval(*q.RefetchInterval))
	}
	if q.Retries != nil && *q.Retries > 0 {
		opts = append(opts, cache.Retry(*q.Retries, RetryBase))
	}
	return opts
}

func durationPtr(d time.Duration) *time.Duration { return &d }

func read[T any](fn func(Backend, context.Context) (T, error)) func(context.Context, Backend) (any, error) {
	return func(ctx context.Context, b Backend) (any, error) {
		v, err := fn(b, ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

func named(key ir.Key, fetch func(context.Context, Backend) (any, error)) Query {
	return Query{Name: key.String(), Key: key, fetch: fetch}
}

func defaultQueries() []Query {
	dashboard := named(KeyDashboard, read(Backend.DashboardSummary))
	dashboard.StaleAfter = durationPtr(5 * time.Minute)
	dashboard.RefetchInterval = durationPtr(time.Minute)

	return []Query{
		dashboard,
		named(KeyPendingDoctors, read(Backend.PendingDoctors)),
		named(KeyApprovedDoctors, read(Backend.ApprovedDoctors)),
		named(KeyAllDoctors, read(Backend.Doctors)),
		named(KeyPatients, read(Backend.Patients)),
		named(KeySpecialities, read(Backend.Specialities)),
		named(KeyBanners, read(Backend.Banners)),
		named(KeyAdmins, read(Backend.Admins)),
		named(KeyFeedbacks, read(Backend.Feedbacks)),
		named(KeyPendingPayouts, read(Backend.PendingPayouts)),
	}
}
