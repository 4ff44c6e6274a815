package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Seednode/clicker/internal/ledger"
	"github.com/Seednode/clicker/internal/scores"
	"github.com/Seednode/clicker/internal/wallet"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	*httptest.Server

	cfg     *Config
	backend *backend
	game    *Game
	metrics *metrics
}

func newTestConfig() *Config {
	cfg := validConfig()
	cfg.metrics = true
	cfg.serveLedger = true
	cfg.logger = zap.NewNop()

	return cfg
}

// startServer serves a fresh in-memory game. wrap, if set, replaces the
// score source the game uses.
func startServer(t *testing.T, cfg *Config, wrap func(scores.Source) scores.Source) *testServer {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	b, err := openBackend(ctx, cfg)
	require.NoError(t, err)

	keyring, err := wallet.NewKeyring(ctx, cfg.playerTimeout)
	require.NoError(t, err)

	m := newMetrics()

	var source scores.Source = scores.NewLedgerSource(b.client, cfg.log(), m)
	if wrap != nil {
		source = wrap(source)
	}

	g := newGame(cfg, source, keyring, m, pollInterval(cfg))

	unsubscribe := b.subscribe(g.changed)

	go g.run(ctx)

	errs := make(chan error, 64)
	srv := httptest.NewServer(withRequestID(newRouter(cfg, b, g, m, errs)))

	t.Cleanup(func() {
		cancel()
		<-g.done
		srv.Close()
		unsubscribe()
		_ = keyring.Close()
		_ = b.Close()
	})

	return &testServer{Server: srv, cfg: cfg, backend: b, game: g, metrics: m}
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(body)
}

func TestStaticRoutes(t *testing.T) {
	srv := startServer(t, newTestConfig(), nil)

	resp, body := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Ok\n", body)

	resp, body = get(t, srv.URL+"/version")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "clicker v"+releaseVersion+"\n", body)

	resp, body = get(t, srv.URL+"/robots.txt")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "User-agent: GPTBot")

	resp, body = get(t, srv.URL+"/assets/clicker/app.js")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/javascript; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "WebSocket")

	resp, _ = get(t, srv.URL+"/assets/clicker/missing.js")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = get(t, srv.URL+"/favicons/favicon.svg")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))
}

func TestHomePageSetsPlayerCookie(t *testing.T) {
	srv := startServer(t, newTestConfig(), nil)

	resp, body := get(t, srv.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `id="leaderboard"`)
	assert.Equal(t, "default-src 'self'", resp.Header.Get("Content-Security-Policy"))

	var found bool
	for _, c := range resp.Cookies() {
		if c.Name == playerCookieName {
			found = true
			assert.True(t, c.HttpOnly)
			assert.NotEmpty(t, c.Value)
		}
	}
	assert.True(t, found)
}

func TestRequestID(t *testing.T) {
	srv := startServer(t, newTestConfig(), nil)

	resp, _ := get(t, srv.URL+"/healthz")
	_, err := uuid.Parse(resp.Header.Get("X-Request-ID"))
	assert.NoError(t, err)

	id := uuid.NewString()
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", id)

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, id, resp.Header.Get("X-Request-ID"))

	req.Header.Set("X-Request-ID", "not-a-uuid")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEqual(t, "not-a-uuid", resp.Header.Get("X-Request-ID"))
}

func TestPrefix(t *testing.T) {
	cfg := newTestConfig()
	cfg.prefix = "/game"
	srv := startServer(t, cfg, nil)

	resp, _ := get(t, srv.URL+"/game/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestQRCode(t *testing.T) {
	srv := startServer(t, newTestConfig(), nil)

	resp, body := get(t, srv.URL+"/qr")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.True(t, strings.HasPrefix(body, "\x89PNG"))
}

func TestMetricsRoute(t *testing.T) {
	srv := startServer(t, newTestConfig(), nil)

	resp, body := get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "clicker_sessions_active")

	cfg := newTestConfig()
	cfg.metrics = false
	srv = startServer(t, cfg, nil)

	resp, _ = get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLedgerRoutesServeRemoteClients(t *testing.T) {
	srv := startServer(t, newTestConfig(), nil)
	ctx := context.Background()

	source := scores.NewLedgerSource(ledger.NewRemoteClient(srv.URL, 5*time.Second), zap.NewNop(), nil)

	player, err := ledger.NewKeypair()
	require.NoError(t, err)

	record, err := source.EnsurePlayerRecord(ctx, player)
	require.NoError(t, err)
	assert.Zero(t, record.Clicks)

	for range 3 {
		_, err = source.IncrementScore(ctx, player)
		require.NoError(t, err)
	}

	records, err := source.FetchAllScores(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, uint64(3), records[0].Clicks)

	head, err := ledger.NewRemoteClient(srv.URL, 5*time.Second).Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), head.Index)

	// the ledger's own errors survive the round trip
	_, err = source.IncrementScore(ctx, mustKeypair(t))
	assert.ErrorIs(t, err, scores.ErrRecordNotFound)

	resp, err := http.Post(srv.URL+ledger.TransactionsPath, "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLedgerRoutesDisabled(t *testing.T) {
	cfg := newTestConfig()
	cfg.serveLedger = false
	srv := startServer(t, cfg, nil)

	resp, _ := get(t, srv.URL+ledger.HeadPath)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLeaderboardAPI(t *testing.T) {
	srv := startServer(t, newTestConfig(), nil)
	ctx := context.Background()

	source := scores.NewLedgerSource(srv.backend.client, zap.NewNop(), nil)

	players := make([]*ledger.Keypair, 3)
	for i := range players {
		players[i] = mustKeypair(t)

		_, err := source.EnsurePlayerRecord(ctx, players[i])
		require.NoError(t, err)

		for range i + 1 {
			_, err := source.IncrementScore(ctx, players[i])
			require.NoError(t, err)
		}
	}

	resp, body := get(t, srv.URL+"/api/leaderboard?player="+players[0].Address().String())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var leaders []LeaderView
	require.NoError(t, json.Unmarshal([]byte(body), &leaders))
	require.Len(t, leaders, 3)

	assert.Equal(t, players[2].Address().String(), leaders[0].Player)
	assert.Equal(t, uint64(3), leaders[0].Clicks)
	assert.Equal(t, 1, leaders[0].Rank)
	assert.False(t, leaders[0].You)

	assert.Equal(t, players[0].Address().String(), leaders[2].Player)
	assert.Equal(t, "You", leaders[2].Label)
	assert.True(t, leaders[2].You)
}

func TestLeaderboardAPIUnavailable(t *testing.T) {
	srv := startServer(t, newTestConfig(), func(s scores.Source) scores.Source {
		return &failingSource{Source: s, failFetch: true}
	})

	resp, _ := get(t, srv.URL+"/api/leaderboard")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHumanReadableSize(t *testing.T) {
	assert.Equal(t, "999 B", humanReadableSize(999))
	assert.Equal(t, "1.0 kB", humanReadableSize(1000))
	assert.Equal(t, "1.5 MB", humanReadableSize(1_500_000))
}

func TestRealIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1:1234", realIP(r))

	r.Header.Set("X-Real-IP", "192.0.2.7")
	assert.Equal(t, "192.0.2.7:1234", realIP(r))

	r.Header.Set("CF-Connecting-IP", "2001:db8::1")
	assert.Equal(t, "[2001:db8::1]:1234", realIP(r))
}
