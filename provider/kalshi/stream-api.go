package kalshi

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/spooky-finn/go-kalshi-bridge/logger"
)

// Channels subscribed per market. The feed delivers the initial book as an
// orderbook_snapshot followed by orderbook_delta increments; the ticker
// channel carries cheap top-of-book updates.
var marketChannels = []string{"ticker", "orderbook_delta"}

// Inbound message models, matching the trade feed wire shapes.

type OrderbookSnapshotMsg struct {
	Type   string  `json:"type"`
	Ticker string  `json:"ticker"`
	Seq    int64   `json:"seq"`
	Yes    [][]int `json:"yes"`
	No     [][]int `json:"no"`
	Title  string  `json:"title"`
}

type OrderbookDeltaMsg struct {
	Type   string `json:"type"`
	Ticker string `json:"ticker"`
	Seq    int64  `json:"seq"`
	Side   string `json:"side"`
	Price  int    `json:"price"`
	Delta  int    `json:"delta"`
}

type TickerMsg struct {
	Type   string `json:"type"`
	Ticker string `json:"ticker"`
	YesBid int    `json:"yes_bid"`
	NoBid  int    `json:"no_bid"`
}

type SubscribedMsg struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
	Msg  struct {
		Channel string `json:"channel"`
		Sid     int64  `json:"sid"`
	} `json:"msg"`
}

type ErrorMsg struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
	Msg  struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"msg"`
}

// Outbound command models.

type command struct {
	ID     int64         `json:"id"`
	Cmd    string        `json:"cmd"`
	Params commandParams `json:"params"`
}

type commandParams struct {
	Channels      []string `json:"channels,omitempty"`
	MarketTickers []string `json:"market_tickers,omitempty"`
	Sids          []int64  `json:"sids,omitempty"`
}

// StreamAPI issues the typed intents of the trade feed over the stream
// client: subscribe, unsubscribe and get_orderbook. All three are one-way
// fire requests; replies come back as ordinary envelopes through the router.
//
// Outbound commands carry a monotonically increasing request id. Subscribe
// acks are correlated back to the requesting ticker by that id, which is what
// lets a delayed ack for an already-abandoned market be recorded against the
// right ticker instead of the currently active one.
type StreamAPI struct {
	client *StreamClient

	mu          sync.Mutex
	nextID      int64
	pendingSubs map[int64]string   // request id -> ticker awaiting its ack
	tickerSids  map[string][]int64 // server-assigned subscription ids

	log *logrus.Entry
}

func NewStreamAPI(client *StreamClient) *StreamAPI {
	return &StreamAPI{
		client:      client,
		pendingSubs: make(map[int64]string),
		tickerSids:  make(map[string][]int64),
		log:         logger.Component("stream-api"),
	}
}

// Bind registers the subscription lifecycle handlers.
func (s *StreamAPI) Bind(r *Router) {
	r.Handle("subscribed", s.onSubscribed)
	r.Handle("error", s.onError)
}

// Subscribe asks the feed for ticker and orderbook_delta updates of one
// market.
func (s *StreamAPI) Subscribe(ticker string) error {
	s.mu.Lock()
	id := s.nextRequestIDLocked()
	s.pendingSubs[id] = ticker
	// A fresh subscription supersedes whatever server-side state the old
	// one had; stale sids must not be reused for unsubscribe.
	delete(s.tickerSids, ticker)
	s.mu.Unlock()

	s.log.Infof("subscribing to %s (id=%d)", ticker, id)
	return s.client.Send(command{
		ID:  id,
		Cmd: "subscribe",
		Params: commandParams{
			Channels:      marketChannels,
			MarketTickers: []string{ticker},
		},
	})
}

// Unsubscribe cancels the market's subscriptions. The request is sent with
// priority so a drop during a market switch still reaches the server after
// the reconnect, exactly once.
func (s *StreamAPI) Unsubscribe(ticker string) error {
	s.mu.Lock()
	id := s.nextRequestIDLocked()
	sids := s.tickerSids[ticker]
	delete(s.tickerSids, ticker)
	for reqID, pending := range s.pendingSubs {
		if pending == ticker {
			delete(s.pendingSubs, reqID)
		}
	}
	s.mu.Unlock()

	params := commandParams{Sids: sids}
	if len(sids) == 0 {
		// Ack never arrived; fall back to unsubscribing by ticker.
		params = commandParams{MarketTickers: []string{ticker}}
	}

	s.log.Infof("unsubscribing from %s (sids=%v, id=%d)", ticker, sids, id)
	return s.client.Send(command{
		ID:     id,
		Cmd:    "unsubscribe",
		Params: params,
	}, WithPriority("unsubscribe:"+ticker))
}

// RequestOrderBook asks for a fresh full snapshot of the market's book.
// This is the sole resync mechanism after a reconnect or a sequence gap.
func (s *StreamAPI) RequestOrderBook(ticker string) error {
	s.mu.Lock()
	id := s.nextRequestIDLocked()
	s.mu.Unlock()

	return s.client.Send(command{
		ID:  id,
		Cmd: "get_orderbook",
		Params: commandParams{
			MarketTickers: []string{ticker},
		},
	})
}

func (s *StreamAPI) onSubscribed(env *Envelope) {
	var msg SubscribedMsg
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		s.log.Warnf("dropping malformed subscribed ack: %s", err)
		return
	}

	s.mu.Lock()
	ticker, ok := s.pendingSubs[msg.ID]
	if ok {
		delete(s.pendingSubs, msg.ID)
		s.tickerSids[ticker] = append(s.tickerSids[ticker], msg.Msg.Sid)
	}
	s.mu.Unlock()

	if ok {
		s.log.Infof("subscribed to %q for %s (sid=%d)", msg.Msg.Channel, ticker, msg.Msg.Sid)
	} else {
		s.log.Infof("subscribed to %q (sid=%d)", msg.Msg.Channel, msg.Msg.Sid)
	}
}

func (s *StreamAPI) onError(env *Envelope) {
	var msg ErrorMsg
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		s.log.Warnf("dropping malformed error message: %s", err)
		return
	}
	s.log.Errorf("feed error: code=%d msg=%q (id=%d)", msg.Msg.Code, msg.Msg.Msg, msg.ID)
}

func (s *StreamAPI) nextRequestIDLocked() int64 {
	s.nextID++
	return s.nextID
}
