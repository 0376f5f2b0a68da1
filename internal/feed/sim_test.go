package feed

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterhq/arbiter/internal/domain"
	"github.com/arbiterhq/arbiter/internal/snapshot"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestSimFeedPopulatesStore(t *testing.T) {
	store := snapshot.NewStore(time.Minute, testLogger)
	f := NewSimFeed([]SimVenue{
		{VenueID: "binance", Kind: domain.VenueKindCEX, Instruments: []string{"BTC/USDT", "ETH/USDT"}},
		{VenueID: "uniswap", Kind: domain.VenueKindDEX, Chain: "ethereum", Instruments: []string{"ETH/USDT"}},
	}, time.Second, store, testLogger)

	f.tick()

	view := store.View()
	q, ok := view.Quote("binance", "BTC/USDT")
	require.True(t, ok)
	assert.Greater(t, q.Bid, 0.0)
	assert.Greater(t, q.Ask, q.Bid)
	assert.Equal(t, "BTC", q.Base)
	assert.Equal(t, "USDT", q.Quote)

	dq, ok := view.Quote("uniswap", "ETH/USDT")
	require.True(t, ok)
	assert.Equal(t, domain.VenueKindDEX, dq.VenueKind)
	assert.Equal(t, "ethereum", dq.Chain)
	assert.Greater(t, dq.ReserveBase, 0.0)
	assert.Len(t, dq.TokenAddress, 42)
}

func TestSimFeedMidDrifts(t *testing.T) {
	store := snapshot.NewStore(time.Minute, testLogger)
	f := NewSimFeed([]SimVenue{
		{VenueID: "binance", Kind: domain.VenueKindCEX, Instruments: []string{"BTC/USDT"}},
	}, time.Second, store, testLogger)

	f.tick()
	first, _ := store.View().Quote("binance", "BTC/USDT")
	for range 20 {
		f.tick()
	}
	last, _ := store.View().Quote("binance", "BTC/USDT")

	// The walk starts near the seed price and keeps moving.
	assert.InEpsilon(t, 50_000, first.Mid(), 0.05)
	assert.NotEqual(t, first.Mid(), last.Mid())
}

func TestSplitInstrument(t *testing.T) {
	base, quote := splitInstrument("ETH/BTC")
	assert.Equal(t, "ETH", base)
	assert.Equal(t, "BTC", quote)

	base, quote = splitInstrument("0xdeadbeef")
	assert.Empty(t, base)
	assert.Empty(t, quote)
}

func TestSimTokenAddressDeterministic(t *testing.T) {
	a := simTokenAddress("ETH/USDT")
	b := simTokenAddress("ETH/USDT")
	c := simTokenAddress("SOL/USDT")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 42)
}
