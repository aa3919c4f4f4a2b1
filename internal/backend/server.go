// Package backend is an in-memory implementation of the consultation
// platform's admin API, for local runs and tests.
//
// It serves the same routes the api client calls, checks bearer tokens on
// every admin route, counts requests per route, and can be told to fail
// the next request to a path with a given status.
package backend

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"

	"github.com/roach88/qsync/internal/api"
	"github.com/roach88/qsync/internal/clock"
)

// OTPCode is the code every OTP request "sends".
const OTPCode = 123456

// Server is the mock backend. It implements http.Handler.
type Server struct {
	router chi.Router
	logger *slog.Logger
	wall   clock.Wall
	newID  func() string

	mu            sync.Mutex
	admins        []AdminAccount
	tokens        map[string]string // bearer token -> admin id
	specialities  []api.Speciality
	doctors       []api.Doctor
	patients      []api.Patient
	banners       []api.Banner
	feedbacks     []api.Feedback
	consultations []api.Consultation
	paid          []api.Consultation
	otps          map[string]string // otp token -> email
	uploads       map[string][]byte
	created       map[string]time.Time

	faults map[string][]int // path -> statuses to return, FIFO
	counts map[string]int   // "METHOD /pattern" -> requests
}

// Option configures a Server.
type Option func(*Server)

// WithFixture seeds the server. Defaults to DefaultFixture().
func WithFixture(f Fixture) Option {
	return func(s *Server) { s.load(f) }
}

// WithIDs overrides UUID record ids.
func WithIDs(gen func() string) Option {
	return func(s *Server) { s.newID = gen }
}

// WithWall sets the clock used for dashboard periods.
func WithWall(w clock.Wall) Option {
	return func(s *Server) { s.wall = w }
}

// WithLogger sets the server logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a server seeded with DefaultFixture unless WithFixture is
// given.
func New(opts ...Option) *Server {
	s := &Server{
		logger:  slog.Default(),
		wall:    clock.System{},
		newID:   uuid.NewString,
		faults:  make(map[string][]int),
		counts:  make(map[string]int),
		otps:    make(map[string]string),
		uploads: make(map[string][]byte),
	}
	s.load(DefaultFixture())
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) load(f Fixture) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins = append([]AdminAccount(nil), f.Admins...)
	s.specialities = append([]api.Speciality(nil), f.Specialities...)
	s.doctors = append([]api.Doctor(nil), f.Doctors...)
	s.patients = append([]api.Patient(nil), f.Patients...)
	s.banners = append([]api.Banner(nil), f.Banners...)
	s.feedbacks = append([]api.Feedback(nil), f.Feedbacks...)
	s.consultations = append([]api.Consultation(nil), f.Consultations...)
	s.paid = nil
	s.created = make(map[string]time.Time)
	s.tokens = make(map[string]string)
	for _, a := range s.admins {
		if a.Token != "" {
			s.tokens[a.Token] = a.ID
		}
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// FailNext makes the next request to path answer status with a JSON error
// body. Calls queue: FailNext twice fails the next two requests.
func (s *Server) FailNext(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[path] = append(s.faults[path], status)
}

// Count returns how many requests reached method and route pattern, e.g.
// Count("GET", "/api/speciality"). Patterns use chi syntax for parameters:
// "/api/speciality/{id}". A request answered by an injected fault is counted
// under its literal path.
func (s *Server) Count(method, pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[method+" "+pattern]
}

// Counts returns a copy of every route counter, keyed "METHOD /pattern".
func (s *Server) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

// Routes lists the counter keys seen so far, sorted.
func (s *Server) Routes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.counts))
	for k := range s.counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IssueToken creates a bearer token for an admin.
func (s *Server) IssueToken(adminID string) string {
	tok := s.newID()
	s.mu.Lock()
	s.tokens[tok] = adminID
	s.mu.Unlock()
	return tok
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.count, s.injectFaults)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/uploads/{name}", s.serveUpload)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/admin/login", s.login)
		r.Post("/auth/request-otp", s.requestOTP)
		r.Post("/auth/doctor/register", s.registerDoctor)
		r.Post("/upload", s.upload)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)

			r.Get("/doctor", s.listDoctors(func(api.Doctor) bool { return true }))
			r.Get("/doctor/pending", s.listDoctors(func(d api.Doctor) bool { return !d.IsApproved }))
			r.Get("/doctor/approved", s.listDoctors(func(d api.Doctor) bool { return d.IsApproved }))
			r.Put("/doctors/approve/{id}", s.approveDoctor)
			r.Delete("/doctor/{id}", s.deleteDoctor)

			r.Get("/patient", s.listPatients)
			r.Delete("/patient/{id}", s.deletePatient)

			r.Get("/speciality", s.listSpecialities)
			r.Post("/speciality", s.createSpeciality)
			r.Delete("/speciality/{id}", s.deleteSpeciality)

			r.Get("/banner", s.listBanners)
			r.Post("/banner", s.createBanner)
			r.Delete("/banner/{id}", s.deleteBanner)

			r.Get("/consultation/payouts/pending", s.pendingPayouts)
			r.Put("/consultation/payout/{id}", s.markPayoutPaid)

			r.Get("/admin", s.listAdmins)
			r.Post("/admin", s.createAdmin)
			r.Delete("/admin/{id}", s.deleteAdmin)

			r.Get("/feedback", s.listFeedbacks)
			r.Get("/dashboard/summary", s.dashboard)
		})
	})
	return r
}

// count tallies requests by the route pattern chi matched.
func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		pattern := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			pattern = rc.RoutePattern()
		}
		s.mu.Lock()
		s.counts[r.Method+" "+pattern]++
		s.mu.Unlock()
	})
}

func (s *Server) injectFaults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		queue := s.faults[r.URL.Path]
		status := 0
		if len(queue) > 0 {
			status = queue[0]
			s.faults[r.URL.Path] = queue[1:]
		}
		s.mu.Unlock()

		if status != 0 {
			s.logger.Debug("injected fault", "path", r.URL.Path, "status", status)
			writeError(w, status, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type ctxKey struct{}

// requireAdmin rejects requests without a known bearer token.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		adminID, known := s.tokens[tok]
		s.mu.Unlock()
		if !ok || tok == "" || !known {
			writeError(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withAdmin(r.Context(), adminID)))
	})
}

// pathID binds the {id} path parameter.
func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var id string
	err := runtime.BindStyledParameterWithLocation("simple", false, "id", runtime.ParamLocationPath, chi.URLParam(r, "id"), &id)
	if err != nil || id == "" {
		writeError(w, http.StatusBadRequest, "invalid id")
		return "", false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
