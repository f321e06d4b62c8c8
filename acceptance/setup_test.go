package acceptance

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/citydrive/carshare-backend/account"
	"github.com/citydrive/carshare-backend/api"
	"github.com/citydrive/carshare-backend/internal/auth0"
	"github.com/citydrive/carshare-backend/internal/middleware"
	"github.com/citydrive/carshare-backend/internal/o11y"
	"github.com/citydrive/carshare-backend/reservation"
	"github.com/citydrive/carshare-backend/ride"
	"github.com/citydrive/carshare-backend/vehicle"
)

// fakeClock lets tests move time forward without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 17, 14, 30, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

type TestServer struct {
	Router *gin.Engine
	Store  account.Store
	Clock  *fakeClock
	Auth0  *auth0.FakeClient
}

func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	return newTestServerWith(t, account.NewMemStore())
}

func newTestServerWith(t *testing.T, store account.Store) *TestServer {
	t.Helper()

	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.DiscardHandler)
	clock := newFakeClock()
	locks := account.NewLocks()

	rides := ride.NewManager(store, locks, logger, ride.WithClock(clock.Now))
	t.Cleanup(rides.Stop)
	reservations := reservation.NewRegistry(store, rides, locks, logger,
		reservation.WithClock(clock.Now), reservation.WithLocation(time.UTC))
	t.Cleanup(reservations.Stop)

	idp := auth0.NewFakeClient()

	a, err := api.New(api.Config{
		Vehicles:     vehicle.NewFleet(vehicle.DemoFleet()),
		Store:        store,
		Locks:        locks,
		Rides:        rides,
		Reservations: reservations,
		Auth0:        idp,
		Obs: &o11y.Observability{
			Logger:   logger,
			Registry: prometheus.NewRegistry(),
		},
		AuthMiddleware: fakeAuthMiddleware(),
	})
	if err != nil {
		t.Fatalf("failed to build api: %v", err)
	}

	return &TestServer{
		Router: a.Router(),
		Store:  store,
		Clock:  clock,
		Auth0:  idp,
	}
}

// fakeAuthMiddleware trusts the X-User-ID header instead of validating a JWT.
func fakeAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "Authentication required"})
			return
		}
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	}
}

// authHeaders signs a request as the given user. The bearer token matches
// what the fake identity provider is keyed by.
func authHeaders(userID string) map[string]string {
	return map[string]string{
		"X-User-ID":     userID,
		"Authorization": "Bearer token-" + userID,
	}
}

func (ts *TestServer) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

func (ts *TestServer) GET(path string, headers map[string]string) *httptest.ResponseRecorder {
	return ts.do(http.MethodGet, path, nil, headers)
}

func (ts *TestServer) POST(path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	return ts.do(http.MethodPost, path, body, headers)
}

func (ts *TestServer) PUT(path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	return ts.do(http.MethodPut, path, body, headers)
}

func (ts *TestServer) DELETE(path string, headers map[string]string) *httptest.ResponseRecorder {
	return ts.do(http.MethodDelete, path, nil, headers)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return resp
}

func decodeList(t *testing.T, w *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var resp []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return resp
}

// gatedStore parks the next Put until released, so a test can hold one
// handler inside its write while another request races it.
type gatedStore struct {
	inner account.Store

	mu      sync.Mutex
	hold    chan struct{}
	entered chan struct{}
}

func (s *gatedStore) Get(ctx context.Context, userID string) (account.Account, error) {
	return s.inner.Get(ctx, userID)
}

func (s *gatedStore) Put(ctx context.Context, a account.Account) error {
	s.mu.Lock()
	hold, entered := s.hold, s.entered
	s.hold, s.entered = nil, nil
	s.mu.Unlock()

	if hold != nil {
		close(entered)
		<-hold
	}
	return s.inner.Put(ctx, a)
}

func (s *gatedStore) parkNextPut() (release func(), entered chan struct{}) {
	hold := make(chan struct{})
	entered = make(chan struct{})
	s.mu.Lock()
	s.hold, s.entered = hold, entered
	s.mu.Unlock()
	return func() { close(hold) }, entered
}
