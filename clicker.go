/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Clicker game
//
// Each browser tab holds a websocket to its own session. The session owns
// the tab's wallet, its click counter and the last leaderboard snapshot it
// fetched; every ledger call runs off the session loop and posts its result
// back, so the loop never blocks on the ledger.
//
// Features:
// - Wallets offered per session by capability: a burner key per browser
//   cookie, plus a keyfile wallet when --wallet-keyfile is set
// - Game account created on first connect
// - Optimistic click counter, rolled back when a submission fails
// - Leaderboard refreshed on connect, on every block committed to a local
//   ledger, or every --refresh-interval against a remote one
// - Idle sessions closed after --session-timeout
// - QR code of the page URL, backed by go-qrcode

package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Seednode/clicker/internal/leaderboard"
	"github.com/Seednode/clicker/internal/scores"
	"github.com/Seednode/clicker/internal/wallet"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// ClientMessage is anything a browser sends over its websocket.
type ClientMessage struct {
	Type   string `json:"type"`             // "connect", "disconnect", "click", "refresh"
	Wallet string `json:"wallet,omitempty"` // connect
}

// WalletInfo describes one wallet a session may connect with.
type WalletInfo struct {
	Name  string `json:"name"`
	Ready string `json:"ready"`
}

// WalletsMessage lists the wallets this session may connect with.
type WalletsMessage struct {
	Type    string       `json:"type"` // "wallets"
	Wallets []WalletInfo `json:"wallets"`
}

// SessionMessage is sent whenever the connected wallet changes.
type SessionMessage struct {
	Type      string `json:"type"` // "session"
	Connected bool   `json:"connected"`
	Wallet    string `json:"wallet,omitempty"`
	Identity  string `json:"identity,omitempty"`
	Short     string `json:"short,omitempty"`
}

// LeaderView is one leaderboard row as the page renders it. Player is the
// full identity; Label is "You" or its abbreviation.
type LeaderView struct {
	Rank   int    `json:"rank"`
	Player string `json:"player"`
	Label  string `json:"label"`
	Clicks uint64 `json:"clicks"`
	You    bool   `json:"you"`
}

// StateMessage carries everything the score panel and leaderboard render.
type StateMessage struct {
	Type    string       `json:"type"` // "state"
	Ready   bool         `json:"ready"`
	Clicks  uint64       `json:"clicks"`
	Error   string       `json:"error"`
	Leaders []LeaderView `json:"leaders"`
}

func leaderViews(entries []leaderboard.Entry) []LeaderView {
	views := make([]LeaderView, 0, len(entries))
	for _, e := range entries {
		views = append(views, LeaderView{
			Rank:   e.Rank,
			Player: e.PlayerID,
			Label:  e.Label(),
			Clicks: e.Clicks,
			You:    e.IsCurrentPlayer,
		})
	}
	return views
}

// rankScores ranks records as seen by player, whose own count is taken from
// the records themselves.
func rankScores(records []leaderboard.ScoreRecord, player string) []leaderboard.Entry {
	var clicks uint64
	for _, r := range records {
		if r.PlayerID == player {
			clicks = max(clicks, r.Clicks)
		}
	}

	return leaderboard.Reconcile(records, player, clicks)
}

func describe(action string, err error) string {
	switch {
	case errors.Is(err, scores.ErrSourceUnavailable):
		return action + ": the ledger is unavailable, please try again."
	case errors.Is(err, scores.ErrRecordNotFound):
		return action + ": your game account does not exist yet."
	case errors.Is(err, wallet.ErrNotConnected):
		return action + ": connect a wallet first."
	case errors.Is(err, wallet.ErrNotInstalled), errors.Is(err, wallet.ErrUnknown):
		return action + ": that wallet is not available."
	default:
		return action + ": " + err.Error()
	}
}

// Game tracks every open session and tells them when scores change.
type Game struct {
	cfg     *Config
	source  scores.Source
	keyring *wallet.Keyring
	metrics *metrics

	// poll is how often sessions refresh without being told to; zero
	// means only on notify.
	poll time.Duration

	register chan *Session
	unreg    chan *Session
	notify   chan struct{}
	done     chan struct{}

	sessions map[*Session]bool
}

func newGame(cfg *Config, source scores.Source, keyring *wallet.Keyring, m *metrics, poll time.Duration) *Game {
	return &Game{
		cfg:      cfg,
		source:   source,
		keyring:  keyring,
		metrics:  m,
		poll:     poll,
		register: make(chan *Session),
		unreg:    make(chan *Session),
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		sessions: make(map[*Session]bool),
	}
}

func (g *Game) run(ctx context.Context) {
	defer close(g.done)

	var tick <-chan time.Time
	if g.poll > 0 {
		ticker := time.NewTicker(g.poll)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			for s := range g.sessions {
				s.cancel()
			}
			return

		case s := <-g.register:
			g.sessions[s] = true
			g.metrics.sessions.Inc()

		case s := <-g.unreg:
			if g.sessions[s] {
				delete(g.sessions, s)
				g.metrics.sessions.Dec()
			}

		case <-g.notify:
			g.broadcast()

		case <-tick:
			g.broadcast()
		}
	}
}

func (g *Game) broadcast() {
	for s := range g.sessions {
		s.poke()
	}
}

// changed asks every session to refresh its leaderboard. It never blocks.
func (g *Game) changed() {
	select {
	case g.notify <- struct{}{}:
	default:
	}
}

func (g *Game) wallets(playerID string) []wallet.Wallet {
	wallets := []wallet.Wallet{wallet.NewBurner(g.keyring, playerID)}

	if g.cfg.walletKeyfile != "" {
		wallets = append(wallets, wallet.NewKeyfile(g.cfg.walletKeyfile))
	}

	return wallets
}

// Session is one browser tab. The fields from wallets down belong to run.
type Session struct {
	id     string
	tag    string
	game   *Game
	conn   *websocket.Conn
	send   chan any
	inbox  chan ClientMessage
	result chan func()
	pokes  chan struct{}
	cancel context.CancelFunc

	wallets    []wallet.Wallet
	active     wallet.Wallet
	ready      bool
	generation uint64
	clicks     scores.ClickState
	snapshot   scores.Snapshot
	fetching   bool
	refetch    bool
	errMsg     string
	fetchErr   string
}

func newSession(g *Game, playerID string, conn *websocket.Conn, cancel context.CancelFunc) *Session {
	return &Session{
		id:      playerID,
		tag:     uuid.NewString()[:8],
		game:    g,
		conn:    conn,
		send:    make(chan any, 16),
		inbox:   make(chan ClientMessage),
		result:  make(chan func()),
		pokes:   make(chan struct{}, 1),
		cancel:  cancel,
		wallets: g.wallets(playerID),
	}
}

func (s *Session) poke() {
	select {
	case s.pokes <- struct{}{}:
	default:
	}
}

func (s *Session) run(ctx context.Context) {
	cfg := s.game.cfg

	idle := time.NewTimer(cfg.sessionTimeout)
	defer idle.Stop()

	defer close(s.send)

	defer func() {
		if s.active != nil {
			_ = s.active.Disconnect()
		}
	}()

	s.sendWallets()
	s.sendSession()
	s.sendState()
	s.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return

		case <-idle.C:
			logf(cfg, "GAME: Closing idle session %s", s.tag)
			return

		case msg := <-s.inbox:
			idle.Reset(cfg.sessionTimeout)

			s.handle(ctx, msg)

		case fn := <-s.result:
			fn()

		case <-s.pokes:
			s.refresh(ctx)
		}
	}
}

func (s *Session) handle(ctx context.Context, msg ClientMessage) {
	switch msg.Type {
	case "connect":
		s.connect(ctx, msg.Wallet)
	case "disconnect":
		s.disconnect()
		s.sendSession()
		s.sendState()
	case "click":
		s.click(ctx)
	case "refresh":
		s.refresh(ctx)
	default:
		// ignore unknown types
	}
}

// async runs work off the loop and hands the closure it returns back to the
// loop, unless the session has ended by then.
func (s *Session) async(ctx context.Context, work func(ctx context.Context) func()) {
	go func() {
		done := work(ctx)

		select {
		case s.result <- done:
		case <-ctx.Done():
		}
	}()
}

func (s *Session) identity() string {
	if s.active == nil {
		return ""
	}
	return s.active.PublicIdentity()
}

func (s *Session) connect(ctx context.Context, name string) {
	cfg := s.game.cfg

	if s.active != nil {
		s.disconnect()
	}

	w, err := wallet.Find(s.wallets, name)
	if err == nil {
		err = w.Connect(ctx)
	}
	if err != nil {
		s.errMsg = describe("Unable to connect", err)
		s.sendSession()
		s.sendState()

		return
	}

	s.active = w
	s.generation++
	s.clicks = scores.ClickState{}
	s.ready = false
	s.errMsg = ""

	gen := s.generation

	logf(cfg, "GAME: Session %s connected %s wallet %s", s.tag, w.Name(), w.PublicIdentity())

	s.sendSession()
	s.sendState()

	s.async(ctx, func(ctx context.Context) func() {
		record, err := s.game.source.EnsurePlayerRecord(ctx, w)

		return func() {
			if gen != s.generation {
				return
			}

			if err != nil {
				errorf(cfg, "GAME: Failed to load game account for %s: %v", w.PublicIdentity(), err)
				s.errMsg = describe("Unable to load your game", err)
				s.sendState()

				return
			}

			s.clicks.Seed(record.Clicks)
			s.ready = true
			s.sendState()
			s.refresh(ctx)
		}
	})
}

func (s *Session) disconnect() {
	if s.active == nil {
		return
	}

	logf(s.game.cfg, "GAME: Session %s disconnected wallet %s", s.tag, s.active.PublicIdentity())

	_ = s.active.Disconnect()

	s.active = nil
	s.generation++
	s.clicks = scores.ClickState{}
	s.ready = false
	s.errMsg = ""
}

func (s *Session) click(ctx context.Context) {
	if s.active == nil {
		s.errMsg = describe("Unable to click", wallet.ErrNotConnected)
		s.sendState()

		return
	}

	// still creating the game account
	if !s.ready {
		return
	}

	s.clicks.Click()
	s.sendState()

	w, gen := s.active, s.generation

	s.async(ctx, func(ctx context.Context) func() {
		total, err := s.game.source.IncrementScore(ctx, w)

		return func() {
			s.game.metrics.observeClick(err)

			if gen != s.generation {
				return
			}

			if err != nil {
				logf(s.game.cfg, "GAME: Click by %s failed: %v", w.PublicIdentity(), err)
				s.clicks.Fail()
				s.errMsg = describe("Click not saved", err)
			} else {
				s.clicks.Confirm(total)
				s.errMsg = ""
			}

			s.sendState()
		}
	})
}

// refresh fetches every score, folding overlapping requests into one
// follow-up fetch.
func (s *Session) refresh(ctx context.Context) {
	if s.fetching {
		s.refetch = true

		return
	}
	s.fetching = true

	gen := s.generation

	s.async(ctx, func(ctx context.Context) func() {
		records, err := s.game.source.FetchAllScores(ctx)
		fetchedAt := time.Now()

		return func() {
			s.fetching = false

			if err != nil {
				s.fetchErr = describe("Unable to load the leaderboard", err)
			} else {
				s.fetchErr = ""
				s.snapshot = scores.Snapshot{Records: records, FetchedAt: fetchedAt}

				if s.ready && gen == s.generation {
					if record, ok := s.snapshot.Find(s.identity()); ok {
						s.clicks.Observe(record.Clicks)
					}
				}
			}

			s.sendState()

			if s.refetch {
				s.refetch = false
				s.refresh(ctx)
			}
		}
	})
}

// push queues msg for the writer. A session whose writer has fallen this
// far behind is ended.
func (s *Session) push(msg any) {
	select {
	case s.send <- msg:
	default:
		logf(s.game.cfg, "GAME: Dropping slow session %s", s.tag)
		s.cancel()
	}
}

func (s *Session) sendWallets() {
	available := wallet.Available(s.wallets)

	infos := make([]WalletInfo, 0, len(available))
	for _, w := range available {
		infos = append(infos, WalletInfo{Name: w.Name(), Ready: w.ReadyState().String()})
	}

	s.push(WalletsMessage{Type: "wallets", Wallets: infos})
}

func (s *Session) sendSession() {
	msg := SessionMessage{Type: "session"}

	if s.active != nil {
		msg.Connected = true
		msg.Wallet = s.active.Name()
		msg.Identity = s.active.PublicIdentity()
		msg.Short = wallet.Short(msg.Identity)
	}

	s.push(msg)
}

func (s *Session) sendState() {
	msg := StateMessage{
		Type:   "state",
		Ready:  s.ready,
		Clicks: s.clicks.Display(),
		Error:  s.errMsg,
	}
	if msg.Error == "" {
		msg.Error = s.fetchErr
	}

	msg.Leaders = leaderViews(leaderboard.Reconcile(s.snapshot.Records, s.identity(), s.clicks.Display()))

	s.push(msg)
}

func (s *Session) readPump(ctx context.Context) {
	for {
		var msg ClientMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			return
		}

		select {
		case s.inbox <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) writePump() {
	defer s.conn.Close()

	for msg := range s.send {
		if err := s.conn.WriteJSON(msg); err != nil {
			return
		}
	}

	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
		time.Now().Add(time.Second))
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

const playerCookieName = "clicker_id"

func getOrSetPlayerID(cfg *Config, w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.scheme() == "https",
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

func serveWS(cfg *Config, g *Game) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		playerID := getOrSetPlayerID(cfg, w, r)
		securityHeaders(cfg, w)

		// Headers set so far, the player cookie included, go out with the
		// handshake.
		conn, err := upgrader.Upgrade(w, r, w.Header())
		if err != nil {
			logf(cfg, "GAME: Upgrade failed for %s: %v", realIP(r), err)
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s := newSession(g, playerID, conn, cancel)

		select {
		case g.register <- s:
		case <-g.done:
			_ = conn.Close()
			return
		}

		logf(cfg, "GAME: Session %s opened from %s", s.tag, realIP(r))

		go s.writePump()

		go func() {
			s.readPump(ctx)
			cancel()
		}()

		s.run(ctx)
		cancel()

		select {
		case g.unreg <- s:
		case <-g.done:
		}

		logf(cfg, "GAME: Session %s closed", s.tag)
	}
}

func serveLeaderboard(cfg *Config, source scores.Source, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		records, err := source.FetchAllScores(r.Context())
		if err != nil {
			errorf(cfg, "GAME: Failed to fetch scores for %s [%s]: %v", realIP(r), requestID(r), err)

			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			securityHeaders(cfg, w)
			w.WriteHeader(http.StatusServiceUnavailable)

			_, _ = io.WriteString(w, "Leaderboard unavailable\n")

			return
		}

		leaders := leaderViews(rankScores(records, r.URL.Query().Get("player")))

		written, err := writeJSON(cfg, w, leaders)
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Leaderboard (%s) to %s in %s [%s]",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
			requestID(r),
		)
	}
}

// qrHandler generates a PNG QR code for the game page.
func qrHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + cfg.prefix + "/"

		const qrSize = 320
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(png)))
		securityHeaders(cfg, w)

		_, _ = w.Write(png)
	}
}

func registerGame(cfg *Config, g *Game, mux *httprouter.Router, errs chan<- error) {
	mux.GET(cfg.prefix+"/ws", serveWS(cfg, g))
	mux.GET(cfg.prefix+"/qr", qrHandler(cfg))
	mux.GET(cfg.prefix+"/api/leaderboard", serveLeaderboard(cfg, g.source, errs))
}
