package kalshi

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subscribedEnvelope(t *testing.T, reqID, sid int64, channel string) *Envelope {
	t.Helper()

	raw := fmt.Sprintf(`{"type":"subscribed","id":%d,"msg":{"channel":%q,"sid":%d}}`, reqID, channel, sid)
	env, err := DecodeFrame([]byte(raw))
	require.NoError(t, err)
	return env
}

func TestSubscribeTracksPendingRequest(t *testing.T) {
	api := NewStreamAPI(NewStreamClient(testConfig()))

	require.NoError(t, api.Subscribe("INXD-24AUG23"))

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, map[int64]string{1: "INXD-24AUG23"}, api.pendingSubs)
}

func TestSubscribedAckCorrelatedByRequestID(t *testing.T) {
	api := NewStreamAPI(NewStreamClient(testConfig()))
	require.NoError(t, api.Subscribe("AAA"))
	require.NoError(t, api.Subscribe("BBB"))

	// The ack for the first (already pending) request must land on AAA even
	// though BBB was requested later.
	api.onSubscribed(subscribedEnvelope(t, 1, 77, "orderbook_delta"))

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, []int64{77}, api.tickerSids["AAA"])
	assert.Empty(t, api.tickerSids["BBB"])
	assert.NotContains(t, api.pendingSubs, int64(1))
	assert.Contains(t, api.pendingSubs, int64(2))
}

func TestResubscribeDropsStaleSids(t *testing.T) {
	api := NewStreamAPI(NewStreamClient(testConfig()))
	require.NoError(t, api.Subscribe("AAA"))
	api.onSubscribed(subscribedEnvelope(t, 1, 77, "ticker"))

	require.NoError(t, api.Subscribe("AAA"))

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Empty(t, api.tickerSids["AAA"], "a fresh subscription must not reuse old sids")
}

func TestUnsubscribeForgetsSubscriptionState(t *testing.T) {
	api := NewStreamAPI(NewStreamClient(testConfig()))
	require.NoError(t, api.Subscribe("AAA"))
	api.onSubscribed(subscribedEnvelope(t, 1, 77, "ticker"))

	require.NoError(t, api.Unsubscribe("AAA"))

	api.mu.Lock()
	assert.Empty(t, api.tickerSids)
	assert.Empty(t, api.pendingSubs)
	api.mu.Unlock()

	// The unsubscribe was queued as a priority request while disconnected.
	assert.Equal(t, 1, api.client.pending.Len())
}

func TestUnsubscribeWithoutAckFallsBackToTicker(t *testing.T) {
	api := NewStreamAPI(NewStreamClient(testConfig()))
	require.NoError(t, api.Subscribe("AAA"))

	require.NoError(t, api.Unsubscribe("AAA"))

	api.client.mu.Lock()
	replay := api.client.drainPendingLocked()
	api.client.mu.Unlock()
	require.Len(t, replay, 1)

	var cmd command
	require.NoError(t, json.Unmarshal(replay[0].payload, &cmd))
	assert.Equal(t, "unsubscribe", cmd.Cmd)
	assert.Empty(t, cmd.Params.Sids)
	assert.Equal(t, []string{"AAA"}, cmd.Params.MarketTickers)
}

func TestUnknownAckIsHarmless(t *testing.T) {
	api := NewStreamAPI(NewStreamClient(testConfig()))

	assert.NotPanics(t, func() {
		api.onSubscribed(subscribedEnvelope(t, 99, 12, "ticker"))
	})

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Empty(t, api.tickerSids)
}
