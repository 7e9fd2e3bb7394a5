package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagen/primecast/internal/auth"
	"github.com/voyagen/primecast/internal/browse"
	"github.com/voyagen/primecast/internal/cache"
	"github.com/voyagen/primecast/internal/catalog"
	"github.com/voyagen/primecast/internal/config"
	"github.com/voyagen/primecast/internal/models"
	"github.com/voyagen/primecast/internal/probe"
	"github.com/voyagen/primecast/internal/service"
	"github.com/voyagen/primecast/internal/store"
)

type stubCatalog struct {
	mu        sync.Mutex
	snap      *catalog.Snapshot
	err       error
	refreshes int
}

func (c *stubCatalog) Snapshot(context.Context) (*catalog.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap, c.err
}

func (c *stubCatalog) Refresh(context.Context) (*catalog.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshes++
	return c.snap, c.err
}

func (c *stubCatalog) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *stubCatalog) refreshCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshes
}

func ptr(s string) *string { return &s }

func testSnapshot() *catalog.Snapshot {
	return catalog.NewSnapshot(
		[]models.Country{{Name: "United States", Code: "US"}, {Name: "France", Code: "FR"}},
		[]models.Channel{
			{ID: "alpha.us", Name: "Alpha", Country: "US"},
			{ID: "bravo.us", Name: "Bravo", Country: "US"},
		},
		[]models.Stream{
			{Channel: ptr("alpha.us"), URL: "http://up/alpha"},
			{Channel: ptr("alpha.us"), URL: "http://up/alpha-backup"},
			{Channel: ptr("bravo.us"), URL: "http://down/bravo"},
		},
		nil, time.Now())
}

type harness struct {
	gate    chan struct{} // probes block until closed
	srv     *httptest.Server
	client  *http.Client
	catalog *stubCatalog
	store   *store.Memory
}

func newHarness(t *testing.T, rds *cache.Redis) *harness {
	t.Helper()
	cfg := &config.Config{ServerPort: "0", BrowseIdleTTL: time.Minute}
	cat := &stubCatalog{snap: testSnapshot()}
	gate := make(chan struct{})
	checker := probe.CheckerFunc(func(ctx context.Context, s models.Stream) bool {
		select {
		case <-gate:
		case <-ctx.Done():
			return false
		}
		return strings.HasPrefix(s.URL, "http://up/")
	})
	mgr := browse.NewManager(cat, probe.New(checker, probe.Options{}), time.Minute)
	mem := store.NewMemory()
	s := New(cfg, Deps{
		Accounts: service.NewAccounts(mem),
		Browse:   mgr,
		Catalog:  cat,
		Redis:    rds,
		Tokens:   auth.NewIssuer("test-secret", 0),
		Admin:    auth.AdminCredentials{Email: "admin@example.com", Password: "admin-pw"},
	})
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		mgr.Run(ctx)
	})

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &harness{gate: gate, srv: ts, client: &http.Client{Jar: jar}, catalog: cat, store: mem}
}

func (h *harness) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := h.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestHealthAndDocs(t *testing.T) {
	h := newHarness(t, nil)
	code, body := h.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, _ = h.do(t, http.MethodGet, "/api/docs/openapi.yaml", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = h.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestBrowseFlow(t *testing.T) {
	h := newHarness(t, nil)

	code, body := h.do(t, http.MethodGet, "/api/browse", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "home", body["view"])

	code, body = h.do(t, http.MethodPost, "/api/browse/countries", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["countries"], 2)

	_, body = h.do(t, http.MethodGet, "/api/browse/countries?search=fra", nil)
	assert.Len(t, body["countries"], 1)

	code, _ = h.do(t, http.MethodPost, "/api/browse/countries/ZZ", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = h.do(t, http.MethodPost, "/api/browse/countries/US", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["checking"])
	assert.Len(t, body["channels"], 2)

	close(h.gate)
	require.Eventually(t, func() bool {
		_, b := h.do(t, http.MethodGet, "/api/browse", nil)
		return b["checking"] == false
	}, 2*time.Second, 10*time.Millisecond)

	_, body = h.do(t, http.MethodGet, "/api/browse/channels", nil)
	channels := body["channels"].([]any)
	require.Len(t, channels, 1)
	assert.Equal(t, "alpha.us", channels[0].(map[string]any)["id"])
	assert.EqualValues(t, 1, body["hidden"])

	code, _ = h.do(t, http.MethodPost, "/api/browse/channels/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = h.do(t, http.MethodPost, "/api/browse/channels/alpha.us", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "player", body["view"])

	code, _ = h.do(t, http.MethodPost, "/api/browse/playback", map[string]string{"event": "exploded"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = h.do(t, http.MethodPost, "/api/browse/playback", map[string]string{"event": "network_error"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "retry", body["decision"].(map[string]any)["action"])

	_, body = h.do(t, http.MethodPost, "/api/browse/playback", map[string]string{"event": "timeout"})
	assert.Equal(t, "advance", body["decision"].(map[string]any)["action"])
	_, body = h.do(t, http.MethodPost, "/api/browse/playback", map[string]string{"event": "fatal_error"})
	decision := body["decision"].(map[string]any)
	assert.Equal(t, "exhausted", decision["action"])
	assert.Equal(t, "All streams failed. Try another channel.", decision["message"])

	code, body = h.do(t, http.MethodPost, "/api/browse/streams/0", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, body["playback"].(map[string]any)["index"])
	code, _ = h.do(t, http.MethodPost, "/api/browse/streams/7", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	_, body = h.do(t, http.MethodPost, "/api/browse/back", nil)
	assert.Equal(t, "channels", body["view"])
	code, _ = h.do(t, http.MethodPost, "/api/browse/streams/0", nil)
	assert.Equal(t, http.StatusConflict, code)

	_, body = h.do(t, http.MethodPost, "/api/browse/back", nil)
	assert.Equal(t, "countries", body["view"])
}

func TestBrowseCatalogFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.catalog.fail(errors.New("upstream down"))

	code, body := h.do(t, http.MethodPost, "/api/browse/countries", nil)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, browse.MsgLoadCountries, body["detail"])

	code, body = h.do(t, http.MethodPost, "/api/browse/countries/US", nil)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, browse.MsgLoadChannels, body["detail"])

	_, body = h.do(t, http.MethodGet, "/api/browse", nil)
	assert.Equal(t, "home", body["view"])
	assert.Equal(t, browse.MsgLoadChannels, body["error"])
}

func TestAccounts(t *testing.T) {
	h := newHarness(t, nil)
	reg := map[string]string{"name": "Ann", "email": "ann@example.com", "password": "secret1", "country": "US"}

	code, body := h.do(t, http.MethodPost, "/api/auth/register", reg)
	require.Equal(t, http.StatusCreated, code)
	user := body["user"].(map[string]any)
	assert.Equal(t, "ann@example.com", user["email"])
	assert.NotContains(t, user, "PasswordHash")

	code, _ = h.do(t, http.MethodPost, "/api/auth/register", reg)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = h.do(t, http.MethodPost, "/api/auth/register", map[string]string{"email": "x@example.com", "password": "1"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = h.do(t, http.MethodGet, "/api/auth/session", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = h.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "nobody@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "No user found with this email", body["detail"])

	code, body = h.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "ann@example.com", "password": "wrong!!"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid password", body["detail"])

	code, body = h.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "ann@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["hasAccess"])

	code, body = h.do(t, http.MethodGet, "/api/auth/session", nil)
	require.Equal(t, http.StatusOK, code)
	userID := body["user"].(map[string]any)["id"].(string)

	// Suspension applies to the live session on the next request.
	reason := "chargeback"
	yes := true
	_, err := h.store.UpdateUser(context.Background(), userID, store.UserUpdate{IsSuspended: &yes, SuspendReason: &reason})
	require.NoError(t, err)
	_, body = h.do(t, http.MethodGet, "/api/auth/session", nil)
	assert.Equal(t, false, body["hasAccess"])

	code, _ = h.do(t, http.MethodPost, "/api/auth/logout", nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = h.do(t, http.MethodGet, "/api/auth/session", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = h.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "ann@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Account suspended: chargeback", body["detail"])
}

func TestLoginRateLimited(t *testing.T) {
	h := newHarness(t, nil)
	creds := map[string]string{"email": "nobody@example.com", "password": "secret1"}
	for range 10 {
		code, _ := h.do(t, http.MethodPost, "/api/auth/login", creds)
		require.Equal(t, http.StatusUnauthorized, code)
	}
	code, _ := h.do(t, http.MethodPost, "/api/auth/login", creds)
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func adminLogin(t *testing.T, h *harness) {
	t.Helper()
	code, _ := h.do(t, http.MethodPost, "/api/admin/auth/login", map[string]string{"email": "admin@example.com", "password": "admin-pw"})
	require.Equal(t, http.StatusOK, code)
}

func TestAdmin(t *testing.T) {
	h := newHarness(t, nil)

	code, _ := h.do(t, http.MethodGet, "/api/admin/users", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, body := h.do(t, http.MethodGet, "/api/admin/auth/check", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, false, body["authenticated"])

	code, _ = h.do(t, http.MethodPost, "/api/admin/auth/login", map[string]string{"email": "admin@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, code)

	adminLogin(t, h)
	_, body = h.do(t, http.MethodGet, "/api/admin/auth/check", nil)
	assert.Equal(t, true, body["authenticated"])

	code, _ = h.do(t, http.MethodPost, "/api/auth/register", map[string]string{"name": "Ann", "email": "ann@example.com", "password": "secret1", "country": "US"})
	require.Equal(t, http.StatusCreated, code)

	code, body = h.do(t, http.MethodGet, "/api/admin/users", nil)
	require.Equal(t, http.StatusOK, code)
	users := body["users"].([]any)
	require.Len(t, users, 1)
	userID := users[0].(map[string]any)["id"].(string)
	stats := body["stats"].(map[string]any)
	assert.EqualValues(t, 1, stats["totalUsers"])
	assert.EqualValues(t, 1, stats["trialUsers"])

	code, body = h.do(t, http.MethodPatch, "/api/admin/users", map[string]any{"userId": userID, "action": "suspend"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Violation of terms", body["user"].(map[string]any)["suspendReason"])

	code, _ = h.do(t, http.MethodPatch, "/api/admin/users", map[string]any{"userId": userID, "action": "promote"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = h.do(t, http.MethodPatch, "/api/admin/users", map[string]any{"action": "suspend"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = h.do(t, http.MethodPatch, "/api/admin/users", map[string]any{
		"userId": userID, "action": "extendTrial", "data": map[string]any{"days": 3},
	})
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 3, body["user"].(map[string]any)["trialDays"])

	code, _ = h.do(t, http.MethodDelete, "/api/admin/users", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = h.do(t, http.MethodDelete, "/api/admin/users?userId="+userID, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = h.do(t, http.MethodDelete, "/api/admin/users?userId="+userID, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = h.do(t, http.MethodPost, "/api/admin/catalog/refresh", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["channels"])
	assert.Equal(t, 1, h.catalog.refreshCount())

	h.do(t, http.MethodPost, "/api/admin/auth/logout", nil)
	code, _ = h.do(t, http.MethodGet, "/api/admin/users", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestAdminCatalogRefreshQueued(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	h := newHarness(t, cache.NewFromClient(client))

	adminLogin(t, h)
	code, body := h.do(t, http.MethodPost, "/api/admin/catalog/refresh", nil)
	require.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, true, body["queued"])
	assert.Zero(t, h.catalog.refreshCount())

	items, err := mr.List(cache.CatalogQueue)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, items[0], "admin@example.com")
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t, nil)
	req, err := http.NewRequest(http.MethodOptions, h.srv.URL+"/api/browse", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://primecast.example")
	resp, err := h.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://primecast.example", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}
