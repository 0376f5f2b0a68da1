package strategy

import (
	"context"
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

func newView(t *testing.T, quotes ...domain.Quote) *snapshot.View {
	t.Helper()
	store := snapshot.NewStore(time.Minute, testLogger)
	for _, q := range quotes {
		store.Upsert(q)
	}
	return store.View()
}

func cexQuote(venue, instrument string, bid, ask float64) domain.Quote {
	return domain.Quote{
		VenueID:      venue,
		VenueKind:    domain.VenueKindCEX,
		InstrumentID: instrument,
		Bid:          bid,
		Ask:          ask,
		BidSize:      100,
		AskSize:      100,
		Timestamp:    time.Now(),
	}
}

func dexQuote(pool, chain, base, quote string, bid, ask float64) domain.Quote {
	return domain.Quote{
		VenueID:      pool,
		VenueKind:    domain.VenueKindDEX,
		InstrumentID: "0xpool-" + pool,
		Base:         base,
		Quote:        quote,
		Bid:          bid,
		Ask:          ask,
		BidSize:      1000,
		AskSize:      1000,
		ReserveBase:  1_000_000,
		ReserveQuote: 1_000_000,
		TokenAddress: "0x0000000000000000000000000000000000001234",
		Chain:        chain,
		Timestamp:    time.Now(),
	}
}

func testFees() StaticFees {
	return StaticFees{DefaultBps: 10}
}

func testCalibrator() *Calibrator {
	return NewCalibrator(0.80, 20)
}

// --- calibrator ---

func TestCalibratorReturnsPriorBelowMinSample(t *testing.T) {
	cal := NewCalibrator(0.75, 5)
	assert.Equal(t, 0.75, cal.WinProbability(domain.StrategyCexCex, "a->b"))

	for i := 0; i < 4; i++ {
		cal.RecordOutcome(domain.StrategyCexCex, "a->b", true)
	}
	assert.Equal(t, 0.75, cal.WinProbability(domain.StrategyCexCex, "a->b"),
		"below min sample the prior must hold")

	cal.RecordOutcome(domain.StrategyCexCex, "a->b", false)
	assert.InDelta(t, 0.80, cal.WinProbability(domain.StrategyCexCex, "a->b"), 1e-9)
}

func TestCalibratorBucketsAreIndependent(t *testing.T) {
	cal := NewCalibrator(0.70, 1)
	cal.RecordOutcome(domain.StrategyCexCex, "a->b", true)
	cal.RecordOutcome(domain.StrategyDexDex, "a->b", false)

	assert.Equal(t, 1.0, cal.WinProbability(domain.StrategyCexCex, "a->b"))
	assert.Equal(t, 0.0, cal.WinProbability(domain.StrategyDexDex, "a->b"))
	assert.Equal(t, 0.70, cal.WinProbability(domain.StrategyCexCex, "c->d"))
}

// --- cex-cex ---

func TestCexCexFindsCrossedBooks(t *testing.T) {
	e := NewCexCex(20, 5000, 30*time.Second, testFees(), testCalibrator(), testLogger)
	view := newView(t,
		cexQuote("binance", "BTC/USDT", 50000, 50010),
		cexQuote("kraken", "BTC/USDT", 50400, 50410),
	)

	cands, err := e.Evaluate(context.Background(), view)
	require.NoError(t, err)
	require.Len(t, cands, 1)

	c := cands[0]
	assert.Equal(t, domain.StrategyCexCex, c.Strategy)
	require.Len(t, c.Legs, 2)
	assert.Equal(t, "binance", c.Legs[0].VenueID)
	assert.Equal(t, domain.SideBuy, c.Legs[0].Side)
	assert.Equal(t, "kraken", c.Legs[1].VenueID)
	assert.Equal(t, domain.SideSell, c.Legs[1].Side)
	assert.Greater(t, c.NetProfitUSD(), 0.0)
	assert.Equal(t, 0.80, c.WinProbability, "cold calibrator answers the prior")
	assert.False(t, c.Expired(time.Now()))
}

func TestCexCexIgnoresUncrossedBooks(t *testing.T) {
	e := NewCexCex(20, 5000, 30*time.Second, testFees(), testCalibrator(), testLogger)
	view := newView(t,
		cexQuote("binance", "BTC/USDT", 50000, 50010),
		cexQuote("kraken", "BTC/USDT", 50005, 50015),
	)

	cands, err := e.Evaluate(context.Background(), view)
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestCexCexRejectsEdgeBelowThreshold(t *testing.T) {
	// 8 bps raw edge, below the 20 bps floor once fees are counted.
	e := NewCexCex(20, 5000, 30*time.Second, testFees(), testCalibrator(), testLogger)
	view := newView(t,
		cexQuote("binance", "BTC/USDT", 50000, 50010),
		cexQuote("kraken", "BTC/USDT", 50050, 50060),
	)

	cands, err := e.Evaluate(context.Background(), view)
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestCexCexSkipsStaleQuotes(t *testing.T) {
	store := snapshot.NewStore(time.Minute, testLogger)
	stale := cexQuote("kraken", "BTC/USDT", 50400, 50410)
	stale.Timestamp = time.Now().Add(-2 * time.Minute)
	store.Upsert(stale)
	store.Upsert(cexQuote("binance", "BTC/USDT", 50000, 50010))

	e := NewCexCex(20, 5000, 30*time.Second, testFees(), testCalibrator(), testLogger)
	cands, err := e.Evaluate(context.Background(), store.View())
	require.NoError(t, err)
	assert.Empty(t, cands, "stale side must suppress the candidate")
}

// --- dex-dex ---

func TestDexDexFindsPoolSpread(t *testing.T) {
	e := NewDexDex(35, 5000, 30*time.Second, testFees(), testCalibrator(), testLogger)
	view := newView(t,
		dexQuote("uni-weth", "arbitrum", "WETH", "USDC", 2999, 3000),
		dexQuote("sushi-weth", "arbitrum", "WETH", "USDC", 3040, 3041),
	)

	cands, err := e.Evaluate(context.Background(), view)
	require.NoError(t, err)
	require.Len(t, cands, 1)

	c := cands[0]
	assert.Equal(t, domain.StrategyDexDex, c.Strategy)
	assert.Equal(t, "uni-weth", c.Legs[0].VenueID)
	assert.Equal(t, "sushi-weth", c.Legs[1].VenueID)
	assert.NotEmpty(t, c.Legs[0].TokenAddress)
	assert.Greater(t, c.Cost.GasUSD, 0.0)
	require.Len(t, c.DexLegs(), 2)
}

func TestDexDexSkipsCrossChainPools(t *testing.T) {
	e := NewDexDex(35, 5000, 30*time.Second, testFees(), testCalibrator(), testLogger)
	view := newView(t,
		dexQuote("uni-weth", "arbitrum", "WETH", "USDC", 2999, 3000),
		dexQuote("base-weth", "base", "WETH", "USDC", 3040, 3041),
	)

	cands, err := e.Evaluate(context.Background(), view)
	require.NoError(t, err)
	assert.Empty(t, cands, "different chains belong to the cross-chain family")
}

// --- cex-dex ---

func TestCexDexCrossesBookAgainstPool(t *testing.T) {
	e := NewCexDex(30, 5000, 30*time.Second, testFees(), testCalibrator(), testLogger)
	view := newView(t,
		cexQuote("binance", "WETH/USDC", 3040, 3041),
		dexQuote("uni-weth", "arbitrum", "WETH", "USDC", 2999, 3000),
	)

	cands, err := e.Evaluate(context.Background(), view)
	require.NoError(t, err)
	require.Len(t, cands, 1)

	c := cands[0]
	assert.Equal(t, domain.StrategyCexDex, c.Strategy)
	assert.Equal(t, domain.SideBuy, c.Legs[0].Side)
	assert.Equal(t, domain.VenueKindDEX, c.Legs[0].VenueKind)
	assert.Equal(t, domain.VenueKindCEX, c.Legs[1].VenueKind)
	assert.Len(t, c.DexLegs(), 1)
}

// --- triangular ---

func TestTriangularForwardCycle(t *testing.T) {
	cycles := [][]string{{"BTC/USDT", "ETH/BTC", "ETH/USDT"}}
	e := NewTriangular(15, 10000, 30*time.Second, cycles, testFees(), testCalibrator(), testLogger)

	// Forward multiplier: 3030 / (50000 * 0.0600) = 1.0100, 100 bps gross.
	view := newView(t,
		cexQuote("binance", "BTC/USDT", 49990, 50000),
		cexQuote("binance", "ETH/BTC", 0.0599, 0.0600),
		cexQuote("binance", "ETH/USDT", 3030, 3031),
	)

	cands, err := e.Evaluate(context.Background(), view)
	require.NoError(t, err)
	require.Len(t, cands, 1)

	c := cands[0]
	assert.Equal(t, domain.StrategyTriangular, c.Strategy)
	require.Len(t, c.Legs, 3)
	for _, l := range c.Legs {
		assert.Equal(t, "binance", l.VenueID, "all cycle legs stay on one venue")
	}
	assert.Equal(t, domain.SideBuy, c.Legs[0].Side)
	assert.Equal(t, domain.SideBuy, c.Legs[1].Side)
	assert.Equal(t, domain.SideSell, c.Legs[2].Side)
	assert.InDelta(t, 100.0, c.GrossProfitUSD, 5.0)
}

func TestTriangularNoCandidateWhenCycleIsFlat(t *testing.T) {
	cycles := [][]string{{"BTC/USDT", "ETH/BTC", "ETH/USDT"}}
	e := NewTriangular(15, 10000, 30*time.Second, cycles, testFees(), testCalibrator(), testLogger)

	// Consistent prices: multiplier ~= 1 before fees.
	view := newView(t,
		cexQuote("binance", "BTC/USDT", 49990, 50000),
		cexQuote("binance", "ETH/BTC", 0.0599, 0.0600),
		cexQuote("binance", "ETH/USDT", 2999, 3000),
	)

	cands, err := e.Evaluate(context.Background(), view)
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestTriangularRequiresAllLegsFresh(t *testing.T) {
	cycles := [][]string{{"BTC/USDT", "ETH/BTC", "ETH/USDT"}}
	e := NewTriangular(15, 10000, 30*time.Second, cycles, testFees(), testCalibrator(), testLogger)

	view := newView(t,
		cexQuote("binance", "BTC/USDT", 49990, 50000),
		cexQuote("binance", "ETH/USDT", 3030, 3031),
	)

	cands, err := e.Evaluate(context.Background(), view)
	require.NoError(t, err)
	assert.Empty(t, cands, "missing middle leg must suppress the cycle")
}

// --- funding ---

func TestFundingPositiveRateLongSpotShortPerp(t *testing.T) {
	pairs := map[string]string{"binance": "binance-perp"}
	e := NewFunding(8, 5000, 30*time.Second, pairs, testFees(), testCalibrator(), testLogger)

	perp := cexQuote("binance-perp", "BTC/USDT", 50010, 50020)
	perp.FundingRateBps = 12

	view := newView(t,
		cexQuote("binance", "BTC/USDT", 49995, 50005),
		perp,
	)

	cands, err := e.Evaluate(context.Background(), view)
	require.NoError(t, err)
	require.Len(t, cands, 1)

	c := cands[0]
	assert.Equal(t, domain.StrategyFunding, c.Strategy)
	assert.Equal(t, domain.SideBuy, c.Legs[0].Side)
	assert.Equal(t, "binance", c.Legs[0].VenueID)
	assert.Equal(t, domain.SideSell, c.Legs[1].Side)
	assert.Equal(t, "binance-perp", c.Legs[1].VenueID)
}

func TestFundingBelowMinRateIgnored(t *testing.T) {
	pairs := map[string]string{"binance": "binance-perp"}
	e := NewFunding(8, 5000, 30*time.Second, pairs, testFees(), testCalibrator(), testLogger)

	perp := cexQuote("binance-perp", "BTC/USDT", 50010, 50020)
	perp.FundingRateBps = 3

	view := newView(t,
		cexQuote("binance", "BTC/USDT", 49995, 50005),
		perp,
	)

	cands, err := e.Evaluate(context.Background(), view)
	require.NoError(t, err)
	assert.Empty(t, cands)
}

// --- statistical ---

func TestStatisticalEntersOnZScoreBreach(t *testing.T) {
	ratio := map[string]float64{"ETH/USDT|BTC/USDT": 0.060}
	stddev := map[string]float64{"ETH/USDT|BTC/USDT": 0.001}
	e := NewStatistical(25, 2.0, 5000, 30*time.Second, ratio, stddev, testFees(), testCalibrator(), testLogger)

	// Live ratio 0.064: z = +4, ETH rich vs BTC.
	view := newView(t,
		cexQuote("binance", "ETH/USDT", 3199, 3201),
		cexQuote("binance", "BTC/USDT", 49990, 50010),
	)

	cands, err := e.Evaluate(context.Background(), view)
	require.NoError(t, err)
	require.Len(t, cands, 1)

	c := cands[0]
	assert.Equal(t, domain.StrategyStatistical, c.Strategy)
	assert.Equal(t, domain.SideSell, c.Legs[0].Side, "rich instrument is sold")
	assert.Equal(t, "ETH/USDT", c.Legs[0].InstrumentID)
	assert.Equal(t, domain.SideBuy, c.Legs[1].Side)
	assert.Equal(t, "BTC/USDT", c.Legs[1].InstrumentID)
}

func TestStatisticalHoldsInsideEntryBand(t *testing.T) {
	ratio := map[string]float64{"ETH/USDT|BTC/USDT": 0.064}
	stddev := map[string]float64{"ETH/USDT|BTC/USDT": 0.001}
	e := NewStatistical(25, 2.0, 5000, 30*time.Second, ratio, stddev, testFees(), testCalibrator(), testLogger)

	view := newView(t,
		cexQuote("binance", "ETH/USDT", 3199, 3201),
		cexQuote("binance", "BTC/USDT", 49990, 50010),
	)

	cands, err := e.Evaluate(context.Background(), view)
	require.NoError(t, err)
	assert.Empty(t, cands, "z inside the band must not trade")
}

// --- cross-chain ---

func TestCrossChainRequiresBridgeRoute(t *testing.T) {
	bridges := map[string]float64{"arbitrum->base": 15}
	e := NewCrossChain(50, 5000, 30*time.Second, bridges, testFees(), testCalibrator(), testLogger)

	view := newView(t,
		dexQuote("uni-arb", "arbitrum", "WETH", "USDC", 2999, 3000),
		dexQuote("aero-base", "base", "WETH", "USDC", 3090, 3091),
	)

	cands, err := e.Evaluate(context.Background(), view)
	require.NoError(t, err)
	require.Len(t, cands, 1)

	c := cands[0]
	assert.Equal(t, domain.StrategyCrossChain, c.Strategy)
	assert.Equal(t, "arbitrum", c.Legs[0].Chain)
	assert.Equal(t, "base", c.Legs[1].Chain)
	assert.Equal(t, 15.0, c.Cost.BridgeUSD)

	// Reverse dislocation has no configured route, so nothing fires.
	view = newView(t,
		dexQuote("uni-arb", "arbitrum", "WETH", "USDC", 3090, 3091),
		dexQuote("aero-base", "base", "WETH", "USDC", 2999, 3000),
	)
	cands, err = e.Evaluate(context.Background(), view)
	require.NoError(t, err)
	assert.Empty(t, cands)
}

// --- registry ---

func TestRegistryRegisterGetList(t *testing.T) {
	r := NewRegistry()
	e := NewCexCex(20, 5000, 30*time.Second, testFees(), testCalibrator(), testLogger)
	r.Register(e)

	got, err := r.Get(e.Name())
	require.NoError(t, err)
	assert.Equal(t, e, got)

	_, err = r.Get("nope")
	assert.Error(t, err)

	all := r.All()
	require.Len(t, all, 1)
	assert.Equal(t, e.Name(), all[0].Name())
}

func TestRegistryRecordsRuntimeInfo(t *testing.T) {
	r := NewRegistry()
	e := NewCexCex(20, 5000, 30*time.Second, testFees(), testCalibrator(), testLogger)
	r.Register(e)

	r.RecordResult(e.Name(), 3, nil)
	r.RecordResult(e.Name(), 0, context.DeadlineExceeded)

	infos := r.ListInfo()
	require.Len(t, infos, 1)
	assert.Equal(t, int64(3), infos[0].CandidatesFound)
	assert.Equal(t, int64(1), infos[0].ErrorCount)
	assert.NotNil(t, infos[0].LastCandidate)
}
