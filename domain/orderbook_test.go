package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceFromSnapshot(t *testing.T) {
	ob := NewOrderBook("INXD-24AUG23")

	ob.ReplaceFromSnapshot(
		[]PriceLevel{{Price: 40, Size: 10}, {Price: 63, Size: 5}},
		[]PriceLevel{{Price: 55, Size: 5}},
		"S&P close above target",
	)

	snap := ob.TakeSnapshot()
	assert.Equal(t, "S&P close above target", snap.Title)
	assert.Equal(t, BookSide{{Price: 63, Size: 5}, {Price: 40, Size: 10}}, snap.YesBids, "yes bids should be sorted best first")
	assert.Equal(t, BookSide{{Price: 55, Size: 5}}, snap.NoBids)
	assert.Equal(t, 63, snap.YesTop, "top should track the best yes bid")
	assert.Equal(t, 55, snap.NoTop)
}

func TestSnapshotSupersedesDeltas(t *testing.T) {
	ob := NewOrderBook("X")
	ob.ApplyDelta(SideYes, 30, 7)
	ob.ApplyDelta(SideNo, 80, 3)

	ob.ReplaceFromSnapshot(
		[]PriceLevel{{Price: 40, Size: 10}},
		[]PriceLevel{{Price: 55, Size: 5}},
		"",
	)

	snap := ob.TakeSnapshot()
	assert.Equal(t, BookSide{{Price: 40, Size: 10}}, snap.YesBids, "snapshot must fully replace delta-built state")
	assert.Equal(t, BookSide{{Price: 55, Size: 5}}, snap.NoBids)
}

func TestSnapshotDropsEmptyLevels(t *testing.T) {
	ob := NewOrderBook("X")
	ob.ReplaceFromSnapshot(
		[]PriceLevel{{Price: 40, Size: 10}, {Price: 41, Size: 0}},
		nil,
		"",
	)

	snap := ob.TakeSnapshot()
	assert.Equal(t, BookSide{{Price: 40, Size: 10}}, snap.YesBids, "zero-size snapshot entries must not persist")
	assert.Empty(t, snap.NoBids)
	assert.Equal(t, 0, snap.NoTop)
}

func TestDeltaCreatesLevel(t *testing.T) {
	ob := NewOrderBook("X")

	// Starting from an empty book: creation via delta, not an error.
	ob.ApplyDelta(SideYes, 63, 12)

	snap := ob.TakeSnapshot()
	assert.Equal(t, BookSide{{Price: 63, Size: 12}}, snap.YesBids)
}

func TestDeltaExhaustionRemovesLevel(t *testing.T) {
	ob := NewOrderBook("X")
	ob.ApplyDelta(SideYes, 63, 12)

	ob.ApplyDelta(SideYes, 63, -12)

	snap := ob.TakeSnapshot()
	assert.Empty(t, snap.YesBids, "a delta that exhausts the level removes it")
}

func TestDeltaUnderflowRemovesLevel(t *testing.T) {
	ob := NewOrderBook("X")
	ob.ApplyDelta(SideYes, 63, 12)

	ob.ApplyDelta(SideYes, 63, -20)

	snap := ob.TakeSnapshot()
	assert.Empty(t, snap.YesBids)
}

func TestZeroDeltaTombstone(t *testing.T) {
	ob := NewOrderBook("X")
	ob.ApplyDelta(SideYes, 63, 12)

	ob.ApplyDelta(SideYes, 63, 0)

	snap := ob.TakeSnapshot()
	assert.Empty(t, snap.YesBids, "delta of exactly 0 is a tombstone")
}

func TestIdempotentTombstone(t *testing.T) {
	ob := NewOrderBook("X")
	ob.ApplyDelta(SideYes, 63, 12)

	ob.ApplyDelta(SideYes, 50, 0)
	ob.ApplyDelta(SideYes, 50, -5)

	snap := ob.TakeSnapshot()
	assert.Equal(t, BookSide{{Price: 63, Size: 12}}, snap.YesBids, "tombstone for an absent level leaves the book unchanged")
}

func TestDeltaUpdatesInPlace(t *testing.T) {
	ob := NewOrderBook("X")
	ob.ApplyDelta(SideNo, 20, 4)
	ob.ApplyDelta(SideNo, 20, 6)

	snap := ob.TakeSnapshot()
	assert.Equal(t, BookSide{{Price: 20, Size: 10}}, snap.NoBids)
}

func TestSortInvariantUnderCreationDeltas(t *testing.T) {
	ob := NewOrderBook("X")
	prices := []int{41, 7, 99, 23, 60, 1, 84}

	for _, p := range prices {
		ob.ApplyDelta(SideYes, p, 1)

		snap := ob.TakeSnapshot()
		for i := 1; i < len(snap.YesBids); i++ {
			require.Greater(t, snap.YesBids[i-1].Price, snap.YesBids[i].Price,
				"yes bids must stay strictly descending after every delta")
		}
	}
}

func TestSnapshotThenDeltaScenario(t *testing.T) {
	ob := NewOrderBook("X")
	ob.ReplaceFromSnapshot(
		[]PriceLevel{{Price: 40, Size: 10}},
		[]PriceLevel{{Price: 55, Size: 5}},
		"",
	)

	ob.ApplyDelta(SideYes, 40, -10)
	ob.ApplyDelta(SideYes, 41, 7)

	snap := ob.TakeSnapshot()
	assert.Equal(t, BookSide{{Price: 41, Size: 7}}, snap.YesBids)
	assert.Equal(t, BookSide{{Price: 55, Size: 5}}, snap.NoBids)
}

func TestApplyTopLeavesDepthUntouched(t *testing.T) {
	ob := NewOrderBook("X")
	ob.ReplaceFromSnapshot(
		[]PriceLevel{{Price: 40, Size: 10}},
		[]PriceLevel{{Price: 55, Size: 5}},
		"",
	)

	ob.ApplyTop(42, 0)

	snap := ob.TakeSnapshot()
	assert.Equal(t, 42, snap.YesTop)
	assert.Equal(t, 55, snap.NoTop, "zero top update must not clear the other side")
	assert.Equal(t, BookSide{{Price: 40, Size: 10}}, snap.YesBids, "top-of-book update must not touch depth")
}

func TestTakeSnapshotIsACopy(t *testing.T) {
	ob := NewOrderBook("X")
	ob.ApplyDelta(SideYes, 40, 10)

	snap := ob.TakeSnapshot()
	snap.YesBids[0].Size = 999

	assert.Equal(t, BookSide{{Price: 40, Size: 10}}, ob.TakeSnapshot().YesBids, "readers must not be able to mutate the live book")
}

func TestLevelsFromPairs(t *testing.T) {
	levels := LevelsFromPairs([][]int{{40, 10}, {55}, {63, 0}, {12, 3}})

	assert.Equal(t, []PriceLevel{{Price: 40, Size: 10}, {Price: 12, Size: 3}}, levels)
}
