package domain

import (
	"sort"
	"sync"
	"time"
)

type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// PriceLevel is one quoted level of a Kalshi market book.
// Price is in cents (1..99), Size is the number of contracts resting there.
// A size of zero is never stored: it means the level is absent.
type PriceLevel struct {
	Price int `json:"price"`
	Size  int `json:"size"`
}

// BookSide holds the bid levels of one side (YES or NO),
// sorted descending by price so the best bid is first.
type BookSide []PriceLevel

// OrderBook is the local mirror of a single market's two-sided book.
// It is owned by the market watch usecase; concurrent readers only ever
// see copies taken with TakeSnapshot.
type OrderBook struct {
	Ticker string
	Title  string

	yesBids BookSide
	noBids  BookSide

	// Best bids from top-of-book updates. 0 = not quoted.
	yesTop int
	noTop  int

	lastUpdateTime int64
	updateMx       sync.Mutex
}

// BookSnapshot is an immutable copy of the book handed to readers.
type BookSnapshot struct {
	Ticker         string   `json:"ticker"`
	Title          string   `json:"title"`
	YesBids        BookSide `json:"yes_bids"`
	NoBids         BookSide `json:"no_bids"`
	YesTop         int      `json:"yes_top"`
	NoTop          int      `json:"no_top"`
	LastUpdateTime int64    `json:"last_update_time"`
}

func NewOrderBook(ticker string) *OrderBook {
	return &OrderBook{
		Ticker: ticker,
		Title:  ticker,
	}
}

// ReplaceFromSnapshot discards all depth on both sides and installs the
// snapshot levels. This is the sole resync mechanism: after a reconnect or a
// sequence gap the caller requests a fresh snapshot instead of patching.
func (ob *OrderBook) ReplaceFromSnapshot(yes, no []PriceLevel, title string) {
	ob.updateMx.Lock()
	defer ob.updateMx.Unlock()

	ob.yesBids = sortedSide(yes)
	ob.noBids = sortedSide(no)
	if title != "" {
		ob.Title = title
	}
	if len(ob.yesBids) > 0 {
		ob.yesTop = ob.yesBids[0].Price
	} else {
		ob.yesTop = 0
	}
	if len(ob.noBids) > 0 {
		ob.noTop = ob.noBids[0].Price
	} else {
		ob.noTop = 0
	}
	ob.lastUpdateTime = time.Now().UnixMilli()
}

// ApplyDelta merges one incremental change into the given side.
// A delta of exactly 0, or one that drives the level to zero or below,
// is a tombstone and removes the level. A positive delta for an unknown
// price creates the level; the feed may legally start streaming a price
// the snapshot never contained.
func (ob *OrderBook) ApplyDelta(side Side, price, delta int) {
	ob.updateMx.Lock()
	defer ob.updateMx.Unlock()

	if side == SideYes {
		ob.yesBids = mergeDelta(ob.yesBids, price, delta)
	} else {
		ob.noBids = mergeDelta(ob.noBids, price, delta)
	}
	ob.lastUpdateTime = time.Now().UnixMilli()
}

// ApplyTop updates only the best-bid fields, leaving depth untouched.
// A zero price leaves the corresponding side's top as it was.
func (ob *OrderBook) ApplyTop(yesBid, noBid int) {
	ob.updateMx.Lock()
	defer ob.updateMx.Unlock()

	if yesBid > 0 {
		ob.yesTop = yesBid
	}
	if noBid > 0 {
		ob.noTop = noBid
	}
	ob.lastUpdateTime = time.Now().UnixMilli()
}

// TakeSnapshot returns a deep copy safe to hand to renderers.
func (ob *OrderBook) TakeSnapshot() *BookSnapshot {
	ob.updateMx.Lock()
	defer ob.updateMx.Unlock()

	yes := make(BookSide, len(ob.yesBids))
	no := make(BookSide, len(ob.noBids))
	copy(yes, ob.yesBids)
	copy(no, ob.noBids)

	return &BookSnapshot{
		Ticker:         ob.Ticker,
		Title:          ob.Title,
		YesBids:        yes,
		NoBids:         no,
		YesTop:         ob.yesTop,
		NoTop:          ob.noTop,
		LastUpdateTime: ob.lastUpdateTime,
	}
}

func mergeDelta(side BookSide, price, delta int) BookSide {
	for i := range side {
		if side[i].Price != price {
			continue
		}

		newSize := side[i].Size + delta
		if delta == 0 || newSize <= 0 {
			return append(side[:i], side[i+1:]...)
		}

		// Price is the sort key, so an in-place size update
		// cannot break the ordering.
		side[i].Size = newSize
		return side
	}

	// Tombstone for a level we never had: nothing to do.
	if delta <= 0 {
		return side
	}

	side = append(side, PriceLevel{Price: price, Size: delta})
	sort.Slice(side, func(i, j int) bool {
		return side[i].Price > side[j].Price
	})
	return side
}

func sortedSide(levels []PriceLevel) BookSide {
	side := make(BookSide, 0, len(levels))
	for _, lvl := range levels {
		if lvl.Size <= 0 {
			continue
		}
		side = append(side, lvl)
	}
	sort.Slice(side, func(i, j int) bool {
		return side[i].Price > side[j].Price
	})
	return side
}

// LevelsFromPairs converts the wire format [[price, size], ...] into levels.
// Malformed or empty entries are skipped, not treated as errors.
func LevelsFromPairs(pairs [][]int) []PriceLevel {
	levels := make([]PriceLevel, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) < 2 || pair[1] <= 0 {
			continue
		}
		levels = append(levels, PriceLevel{Price: pair[0], Size: pair[1]})
	}
	return levels
}
