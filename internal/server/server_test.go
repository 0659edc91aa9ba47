package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"city-raid/internal/config"
	"city-raid/internal/game/raid"
	"city-raid/internal/model"
	"city-raid/internal/service"
)

type stubRaids struct {
	caller string
	panics bool
}

func (s *stubRaids) Preview(_ context.Context, caller, target string) (*service.Preview, error) {
	if s.panics {
		panic("boom")
	}
	s.caller = caller
	return &service.Preview{
		RaidsMax: 3,
		Attacker: &model.Profile{Login: caller},
		Defender: &model.Profile{Login: target},
		Attack:   raid.AttackScore(raid.AttackInput{}),
		Defense:  raid.DefenseScore(raid.DefenseInput{}),
		Vehicles: []string{"airplane"},
		Vehicle:  "airplane",
	}, nil
}

func (s *stubRaids) Execute(context.Context, string, service.ExecuteInput) (*service.Outcome, error) {
	return nil, service.ErrWeeklyCooldownActive
}

func (s *stubRaids) SaveLoadout(context.Context, string, service.LoadoutInput) (*service.Loadout, error) {
	return nil, service.ErrProfileNotClaimed
}

func (s *stubRaids) History(_ context.Context, caller string, _ int) ([]service.HistoryEntry, error) {
	s.caller = caller
	return nil, nil
}

type okPinger struct{}

func (okPinger) HealthCheck(context.Context) error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Addr: ":0", MaxBodyBytes: 1024},
		RateLimit: config.RateLimitConfig{IPRPS: 100, IPBurst: 100},
		Identity:  config.IdentityConfig{Header: "X-Profile-Login"},
	}
}

func newTestServer(t *testing.T, stub *stubRaids, ip *IPLimiter) *httptest.Server {
	t.Helper()
	s := New(&Dependencies{Config: testConfig(), Raids: stub, DB: okPinger{}, IPLimiter: ip})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, login, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	if login != "" {
		req.Header.Set("X-Profile-Login", login)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestIdentityHeader(t *testing.T) {
	stub := &stubRaids{}
	ts := newTestServer(t, stub, nil)

	resp := post(t, ts.URL+"/raid/preview", "  Alice ", `{"target_login":"bob"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice", stub.caller)

	resp = post(t, ts.URL+"/raid/preview", "", `{"target_login":"bob"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
}

func TestRoutes(t *testing.T) {
	ts := newTestServer(t, &stubRaids{}, nil)

	resp := post(t, ts.URL+"/raid/execute", "alice", `{"target_login":"bob"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp = post(t, ts.URL+"/raid/loadout", "alice", `{"vehicle_id":"ufo"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err := http.Get(ts.URL + "/raid/preview")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestRequestID(t *testing.T) {
	ts := newTestServer(t, &stubRaids{}, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	_, err = uuid.Parse(resp.Header.Get(RequestIDHeader))
	assert.NoError(t, err)

	id := uuid.NewString()
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	req.Header.Set(RequestIDHeader, id)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, id, resp.Header.Get(RequestIDHeader))
}

func TestRecovery(t *testing.T) {
	ts := newTestServer(t, &stubRaids{panics: true}, nil)

	resp := post(t, ts.URL+"/raid/preview", "alice", `{"target_login":"bob"}`)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var p struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	assert.Equal(t, string(service.CodeStorageFailure), p.Code)
}

func TestBodyLimit(t *testing.T) {
	ts := newTestServer(t, &stubRaids{}, nil)

	body := `{"target_login":"` + strings.Repeat("a", 2048) + `"}`
	resp := post(t, ts.URL+"/raid/preview", "alice", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_, _ = io.Copy(io.Discard, resp.Body)
}

func TestIPLimiter(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ip := NewIPLimiter(1, 2, clock)
	ts := newTestServer(t, &stubRaids{}, ip)

	for i := 0; i < 2; i++ {
		resp := post(t, ts.URL+"/raid/preview", "alice", `{"target_login":"bob"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := post(t, ts.URL+"/raid/preview", "alice", `{"target_login":"bob"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Probes are not limited.
	hr, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	hr.Body.Close()
	assert.Equal(t, http.StatusOK, hr.StatusCode)

	clock.Advance(time.Second)
	resp = post(t, ts.URL+"/raid/preview", "alice", `{"target_login":"bob"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIPLimiterSweep(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewIPLimiter(1, 1, clock)

	assert.True(t, l.Allow("10.0.0.1"))
	clock.Advance(2 * time.Minute)
	assert.True(t, l.Allow("10.0.0.2"))

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 0, l.Sweep())
}

func TestIPLimiterDisabled(t *testing.T) {
	l := NewIPLimiter(0, 0, nil)
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("10.0.0.1"))
	}
}
