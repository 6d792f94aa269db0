package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/spooky-finn/go-kalshi-bridge/domain"
	promclient "github.com/spooky-finn/go-kalshi-bridge/infrastructure/prometheus"
	"github.com/spooky-finn/go-kalshi-bridge/logger"
	"github.com/spooky-finn/go-kalshi-bridge/provider/kalshi"
)

var ErrNoActiveMarket = errors.New("no market selected")

// MarketStream is the outbound side of the feed: one-way intents, replies
// arrive as ordinary envelopes through the router.
type MarketStream interface {
	Subscribe(ticker string) error
	Unsubscribe(ticker string) error
	RequestOrderBook(ticker string) error
}

// MarketWatchUseCase tracks the single active market and keeps its local
// book mirror consistent with the feed. It is both the subscription manager
// and the synchronizer: every inbound book update is fenced against the
// current active ticker before it is applied, which is what resolves the
// race where the operator switches markets while updates for the old one
// are still in flight.
type MarketWatchUseCase struct {
	stream MarketStream

	mu           sync.Mutex
	activeTicker string
	fence        uint64 // bumped on every switch, for log correlation only
	book         *domain.OrderBook
	lastSeq      int64

	log *logrus.Entry
}

func NewMarketWatchUseCase(stream MarketStream) *MarketWatchUseCase {
	return &MarketWatchUseCase{
		stream: stream,
		log:    logger.Component("market-watch"),
	}
}

// Bind registers the book update handlers on the router.
func (u *MarketWatchUseCase) Bind(r *kalshi.Router) {
	r.Handle("orderbook_snapshot", u.onSnapshotEnvelope)
	r.Handle("orderbook_delta", u.onDeltaEnvelope)
	r.Handle("ticker", u.onTickerEnvelope)
}

// SwitchTo makes ticker the active market: the previous market is
// unsubscribed, the local book is reset to empty, and subscribe plus
// get_orderbook intents are emitted for the new one. Delayed updates for
// the previous market keep arriving for a while; the fencing in the
// handlers discards them.
func (u *MarketWatchUseCase) SwitchTo(ticker string) error {
	if ticker == "" {
		return fmt.Errorf("ticker must not be empty")
	}

	u.mu.Lock()
	prev := u.activeTicker
	u.activeTicker = ticker
	u.fence++
	fence := u.fence
	u.book = domain.NewOrderBook(ticker)
	u.lastSeq = 0
	u.mu.Unlock()

	u.log.Infof("switching active market %q -> %q (fence=%d)", prev, ticker, fence)

	if prev != "" && prev != ticker {
		if err := u.stream.Unsubscribe(prev); err != nil {
			u.log.Warnf("unsubscribe %s failed: %s", prev, err)
		}
	}

	if err := u.stream.Subscribe(ticker); err != nil {
		return fmt.Errorf("subscribe %s: %w", ticker, err)
	}
	if err := u.stream.RequestOrderBook(ticker); err != nil {
		return fmt.Errorf("request orderbook %s: %w", ticker, err)
	}
	return nil
}

// Clear deactivates the current market, if any.
func (u *MarketWatchUseCase) Clear() {
	u.mu.Lock()
	prev := u.activeTicker
	u.activeTicker = ""
	u.fence++
	u.book = nil
	u.lastSeq = 0
	u.mu.Unlock()

	if prev == "" {
		return
	}
	if err := u.stream.Unsubscribe(prev); err != nil {
		u.log.Warnf("unsubscribe %s failed: %s", prev, err)
	}
}

// Resync re-establishes the consistency baseline after a reconnect.
// Deltas that arrived just before the disconnect and deltas queued
// server-side during the gap cannot be assumed contiguous, so the book is
// always re-requested from scratch.
func (u *MarketWatchUseCase) Resync() {
	u.mu.Lock()
	ticker := u.activeTicker
	u.lastSeq = 0
	u.mu.Unlock()

	if ticker == "" {
		return
	}

	u.log.Infof("resubscribing to %s after reconnect", ticker)
	if err := u.stream.Subscribe(ticker); err != nil {
		u.log.Warnf("resubscribe %s failed: %s", ticker, err)
	}
	if err := u.stream.RequestOrderBook(ticker); err != nil {
		u.log.Warnf("request orderbook %s failed: %s", ticker, err)
	}
}

// Current returns an immutable copy of the active market's book.
func (u *MarketWatchUseCase) Current() (*domain.BookSnapshot, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.activeTicker == "" || u.book == nil {
		return nil, ErrNoActiveMarket
	}
	return u.book.TakeSnapshot(), nil
}

// ActiveTicker returns the currently watched market, or "".
func (u *MarketWatchUseCase) ActiveTicker() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.activeTicker
}

// OnSnapshot unconditionally replaces the book, provided the snapshot is
// for the active market.
func (u *MarketWatchUseCase) OnSnapshot(msg *kalshi.OrderbookSnapshotMsg) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if msg.Ticker != u.activeTicker || u.book == nil {
		// Expected and benign: a snapshot for a market we already left.
		promclient.StaleUpdatesTotal.Inc()
		u.log.Debugf("discarding stale snapshot for %s", msg.Ticker)
		return
	}

	u.book.ReplaceFromSnapshot(
		domain.LevelsFromPairs(msg.Yes),
		domain.LevelsFromPairs(msg.No),
		msg.Title,
	)
	if msg.Seq > 0 {
		u.lastSeq = msg.Seq
	}
	u.publishDepthLocked()
}

// OnDelta merges one increment into the active book. A sequence gap means
// deltas were lost; the delta is still applied, and a fresh snapshot is
// requested rather than attempting partial repair.
func (u *MarketWatchUseCase) OnDelta(msg *kalshi.OrderbookDeltaMsg) {
	side, ok := parseSide(msg.Side)
	if !ok {
		u.log.Warnf("dropping delta with unknown side %q for %s", msg.Side, msg.Ticker)
		return
	}

	u.mu.Lock()

	if msg.Ticker != u.activeTicker || u.book == nil {
		promclient.StaleUpdatesTotal.Inc()
		u.log.Debugf("discarding stale delta for %s", msg.Ticker)
		u.mu.Unlock()
		return
	}

	gap := msg.Seq > 0 && u.lastSeq > 0 && msg.Seq != u.lastSeq+1
	if msg.Seq > 0 {
		u.lastSeq = msg.Seq
	}

	u.book.ApplyDelta(side, msg.Price, msg.Delta)
	u.publishDepthLocked()
	ticker := u.activeTicker
	u.mu.Unlock()

	if gap {
		promclient.SequenceGapsTotal.Inc()
		u.log.Warnf("orderbook sequence gap for %s, requesting fresh snapshot", ticker)
		if err := u.stream.RequestOrderBook(ticker); err != nil {
			u.log.Warnf("request orderbook %s failed: %s", ticker, err)
		}
	}
}

// OnTicker applies a top-of-book update. When the feed quotes only the YES
// side, the NO top is its complement to 100.
func (u *MarketWatchUseCase) OnTicker(msg *kalshi.TickerMsg) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if msg.Ticker != u.activeTicker || u.book == nil {
		promclient.StaleUpdatesTotal.Inc()
		u.log.Debugf("discarding stale ticker update for %s", msg.Ticker)
		return
	}

	yesBid, noBid := msg.YesBid, msg.NoBid
	if noBid == 0 && yesBid > 0 {
		noBid = 100 - yesBid
	}
	u.book.ApplyTop(yesBid, noBid)
}

func (u *MarketWatchUseCase) onSnapshotEnvelope(env *kalshi.Envelope) {
	var msg kalshi.OrderbookSnapshotMsg
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		promclient.MalformedFramesTotal.Inc()
		u.log.Warnf("dropping malformed snapshot: %s", err)
		return
	}
	u.OnSnapshot(&msg)
}

func (u *MarketWatchUseCase) onDeltaEnvelope(env *kalshi.Envelope) {
	var msg kalshi.OrderbookDeltaMsg
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		promclient.MalformedFramesTotal.Inc()
		u.log.Warnf("dropping malformed delta: %s", err)
		return
	}
	u.OnDelta(&msg)
}

func (u *MarketWatchUseCase) onTickerEnvelope(env *kalshi.Envelope) {
	var msg kalshi.TickerMsg
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		promclient.MalformedFramesTotal.Inc()
		u.log.Warnf("dropping malformed ticker update: %s", err)
		return
	}
	u.OnTicker(&msg)
}

func (u *MarketWatchUseCase) publishDepthLocked() {
	snap := u.book.TakeSnapshot()
	promclient.BookLevelsGauge.WithLabelValues(string(domain.SideYes)).Set(float64(len(snap.YesBids)))
	promclient.BookLevelsGauge.WithLabelValues(string(domain.SideNo)).Set(float64(len(snap.NoBids)))
}

func parseSide(s string) (domain.Side, bool) {
	switch s {
	case string(domain.SideYes):
		return domain.SideYes, true
	case string(domain.SideNo):
		return domain.SideNo, true
	}
	return "", false
}
