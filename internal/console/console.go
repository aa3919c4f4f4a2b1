package console

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/qsync/internal/api"
	"github.com/roach88/qsync/internal/cache"
	"github.com/roach88/qsync/internal/clock"
	"github.com/roach88/qsync/internal/fault"
	"github.com/roach88/qsync/internal/mutation"
	"github.com/roach88/qsync/internal/session"
)

// Backend is the remote admin API. *api.Client implements it.
type Backend interface {
	Login(ctx context.Context, in api.Credentials) (api.LoginResult, error)

	PendingDoctors(ctx context.Context) ([]api.Doctor, error)
	ApprovedDoctors(ctx context.Context) ([]api.Doctor, error)
	Doctors(ctx context.Context) ([]api.Doctor, error)
	ApproveDoctor(ctx context.Context, id string) (api.Doctor, error)
	DeleteDoctor(ctx context.Context, id string) error

	Patients(ctx context.Context) ([]api.Patient, error)
	DeletePatient(ctx context.Context, id string) error

	Specialities(ctx context.Context) ([]api.Speciality, error)
	CreateSpeciality(ctx context.Context, title string) (api.Speciality, error)
	DeleteSpeciality(ctx context.Context, id string) error

	Banners(ctx context.Context) ([]api.Banner, error)
	CreateBanner(ctx context.Context, img string) (api.Banner, error)
	DeleteBanner(ctx context.Context, id string) error
	Upload(ctx context.Context, filename string, content io.Reader) (string, error)

	PendingPayouts(ctx context.Context) ([]api.Consultation, error)
	MarkPayoutPaid(ctx context.Context, id string) error

	Admins(ctx context.Context) ([]api.Admin, error)
	CreateAdmin(ctx context.Context, in api.NewAdmin) (api.Admin, error)
	DeleteAdmin(ctx context.Context, id string) error

	Feedbacks(ctx context.Context) ([]api.Feedback, error)
	DashboardSummary(ctx context.Context) (api.DashboardSummary, error)

	RequestOTP(ctx context.Context, in api.OTPRequest) (api.OTPResponse, error)
	RegisterDoctor(ctx context.Context, in api.DoctorRegistration) (api.Doctor, error)
}

var _ Backend = (*api.Client)(nil)

// Console binds the page reads and actions to one store, one executor and
// one backend.
type Console struct {
	store   *cache.Store
	exec    *mutation.Executor
	backend Backend
	session session.Store
	wall    clock.Wall
	logger  *slog.Logger

	tuning    map[string]Tuning
	queries   map[string]Query
	mutations Mutations
}

// Option configures a Console.
type Option func(*Console)

// WithSession sets where the signed-in admin is kept. Defaults to an
// in-memory session.
func WithSession(s session.Store) Option {
	return func(c *Console) { c.session = s }
}

// WithWall sets the clock used for session expiry and age calculation.
func WithWall(w clock.Wall) Option {
	return func(c *Console) { c.wall = w }
}

// WithLogger sets the console logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Console) { c.logger = l }
}

// WithTuning overrides the defaults of the named queries.
func WithTuning(t map[string]Tuning) Option {
	return func(c *Console) {
		for name, tu := range t {
			c.tuning[name] = tu
		}
	}
}

// New creates a console. It fails if a tuning names an unknown query.
func New(store *cache.Store, exec *mutation.Executor, backend Backend, opts ...Option) (*Console, error) {
	c := &Console{
		store:   store,
		exec:    exec,
		backend: backend,
		wall:    clock.System{},
		logger:  slog.Default(),
		tuning:  make(map[string]Tuning),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.session == nil {
		c.session = session.NewMemory(session.WithWall(c.wall))
	}

	c.queries = make(map[string]Query)
	for _, q := range defaultQueries() {
		c.queries[q.Name] = q
	}
	for name, tu := range c.tuning {
		q, ok := c.queries[name]
		if !ok {
			return nil, fmt.Errorf("tuning for unknown query %q", name)
		}
		q.Tuning = q.Tuning.merge(tu)
		c.queries[name] = q
	}
	c.mutations = c.declare()
	return c, nil
}

// Store returns the query store.
func (c *Console) Store() *cache.Store { return c.store }

// Executor returns the mutation executor.
func (c *Console) Executor() *mutation.Executor { return c.exec }

// Session returns the session store.
func (c *Console) Session() session.Store { return c.session }

// Mutations returns the declared page actions.
func (c *Console) Mutations() Mutations { return c.mutations }

// Queries returns every query sorted by name.
func (c *Console) Queries() []Query {
	out := make([]Query, 0, len(c.queries))
	for _, q := range c.queries {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the query registered under name.
func (c *Console) Lookup(name string) (Query, bool) {
	q, ok := c.queries[name]
	return q, ok
}

func (c *Console) query(name string) (Query, error) {
	q, ok := c.queries[name]
	if !ok {
		return Query{}, fault.Validation("unknown query %q", name)
	}
	return q, nil
}

func (c *Console) fetcher(q Query) cache.Fetcher {
	return func(ctx context.Context) (any, error) {
		return q.fetch(ctx, c.backend)
	}
}

// Get returns the current snapshot of the named query, starting a
// background fetch when it is missing or stale.
func (c *Console) Get(name string) (cache.Snapshot, error) {
	q, err := c.query(name)
	if err != nil {
		return cache.Snapshot{}, err
	}
	return c.store.Get(q.Key, c.fetcher(q), q.options()...), nil
}

// Fetch is Get followed by a wait for the fetch to settle.
func (c *Console) Fetch(ctx context.Context, name string) (cache.Snapshot, error) {
	q, err := c.query(name)
	if err != nil {
		return cache.Snapshot{}, err
	}
	return c.store.Fetch(ctx, q.Key, c.fetcher(q), q.options()...)
}

// Refresh fetches the named query even when it is fresh.
func (c *Console) Refresh(ctx context.Context, name string) (cache.Snapshot, error) {
	q, err := c.query(name)
	if err != nil {
		return cache.Snapshot{}, err
	}
	opts := append(q.options(), cache.Force())
	return c.store.Fetch(ctx, q.Key, c.fetcher(q), opts...)
}

// Subscribe registers fn for the named query's state changes.
func (c *Console) Subscribe(name string, fn cache.Listener) (func(), error) {
	q, err := c.query(name)
	if err != nil {
		return nil, err
	}
	return c.store.Subscribe(q.Key, fn), nil
}

// Load fetches the named query and returns its data as T. A failed fetch
// with no earlier data returns the failure.
func Load[T any](ctx context.Context, c *Console, name string) (T, error) {
	var zero T
	snap, err := c.Fetch(ctx, name)
	if err != nil {
		return zero, err
	}
	if !snap.HasData {
		if snap.Err != nil {
			return zero, snap.Err
		}
		return zero, fault.New(fault.KindInternal, fmt.Sprintf("query %q has no data", name))
	}
	v, ok := snap.Data.(T)
	if !ok {
		return zero, fault.New(fault.KindInternal, fmt.Sprintf("query %q holds %T, not %T", name, snap.Data, zero))
	}
	return v, nil
}

// SignIn exchanges credentials for a token and saves the session.
func (c *Console) SignIn(ctx context.Context, email, password string) (session.Session, error) {
	if email == "" || password == "" {
		return session.Session{}, fault.Validation("email and password are required")
	}
	res, err := c.backend.Login(ctx, api.Credentials{Email: email, Password: password})
	if err != nil {
		return session.Session{}, fault.Classify(err)
	}
	s := session.Session{
		Token: res.Token,
		Admin: session.Admin{ID: res.Admin.ID, Username: res.Admin.Username, Email: res.Admin.Email},
	}
	if err := c.session.Save(ctx, s); err != nil {
		return session.Session{}, fmt.Errorf("save session: %w", err)
	}
	c.logger.Info("signed in", "admin", res.Admin.Username)
	s, _, err = c.session.Load(ctx)
	return s, err
}

// SignOut clears the session and drops every cached read.
func (c *Console) SignOut(ctx context.Context) error {
	if err := c.session.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	for _, k := range c.store.Keys() {
		c.store.Remove(k)
	}
	return nil
}

// RowStatus reports the state of the latest run of mutation for one row.
func (c *Console) RowStatus(mutationName, rowID string) mutation.Status {
	return c.exec.Status(mutationName, rowID)
}

func (c *Console) now() time.Time { return c.wall.Now() }
