package rugpull

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterhq/arbiter/internal/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

const (
	safeAddr  = "0x1111111111111111111111111111111111111111"
	shadyAddr = "0x2222222222222222222222222222222222222222"
)

// mockInspector returns canned reports per address.
type mockInspector struct {
	reports map[string]domain.TokenReport
	err     error
	calls   int
}

func (m *mockInspector) TokenReport(_ context.Context, _, address string) (domain.TokenReport, error) {
	m.calls++
	if m.err != nil {
		return domain.TokenReport{}, m.err
	}
	return m.reports[address], nil
}

func safeReport(addr string) domain.TokenReport {
	return domain.TokenReport{
		Address:            addr,
		OwnershipRenounced: true,
		LiquidityLockedUSD: 500_000,
		TopHolderPct:       0.05,
		AgeDays:            120,
		HolderCount:        4_000,
	}
}

func testConfig() Config {
	return Config{
		MinLiquidityLockUSD: 100_000,
		MaxTopHolderPct:     0.20,
		MinTokenAgeDays:     7,
		MinHolderCount:      100,
		CacheTTL:            10 * time.Minute,
	}
}

func dexCandidate(tokenAddr string) domain.Candidate {
	return domain.Candidate{
		ID:       "c1",
		Strategy: domain.StrategyDexDex,
		Legs: []domain.Leg{
			{VenueID: "uni", VenueKind: domain.VenueKindDEX, Side: domain.SideBuy, Price: 1, Qty: 100, TokenAddress: tokenAddr, Chain: "arbitrum"},
			{VenueID: "sushi", VenueKind: domain.VenueKindDEX, Side: domain.SideSell, Price: 1.01, Qty: 100, TokenAddress: tokenAddr, Chain: "arbitrum"},
		},
	}
}

func TestCheckPassesSafeToken(t *testing.T) {
	canonical := "0x1111111111111111111111111111111111111111"
	insp := &mockInspector{reports: map[string]domain.TokenReport{canonical: safeReport(canonical)}}
	d := NewDetector(testConfig(), insp, testLogger)

	err := d.Check(context.Background(), dexCandidate(safeAddr))
	assert.NoError(t, err)
}

func TestCheckVetoesWholeCandidateOnUnsafeToken(t *testing.T) {
	unsafe := domain.TokenReport{
		OwnershipRenounced: false,
		LiquidityLockedUSD: 5_000, // below floor
		MintableUncapped:   true,
		TopHolderPct:       0.60,
		AgeDays:            2,
		HolderCount:        30,
	}
	insp := &mockInspector{reports: map[string]domain.TokenReport{
		"0x2222222222222222222222222222222222222222": unsafe,
	}}
	d := NewDetector(testConfig(), insp, testLogger)

	err := d.Check(context.Background(), dexCandidate(shadyAddr))
	assert.ErrorIs(t, err, domain.ErrSafetyRejected)
}

func TestCheckHoneypotIsCritical(t *testing.T) {
	report := safeReport(safeAddr)
	report.HoneypotSuspected = true
	insp := &mockInspector{reports: map[string]domain.TokenReport{
		"0x1111111111111111111111111111111111111111": report,
	}}
	d := NewDetector(testConfig(), insp, testLogger)

	v, err := d.CheckToken(context.Background(), "arbitrum", safeAddr)
	require.NoError(t, err)
	assert.Equal(t, severityCritical, v.Severity)
	assert.True(t, v.Blocked)
}

func TestCheckSkipsCexOnlyCandidates(t *testing.T) {
	insp := &mockInspector{}
	d := NewDetector(testConfig(), insp, testLogger)

	c := domain.Candidate{
		ID:       "c1",
		Strategy: domain.StrategyCexCex,
		Legs: []domain.Leg{
			{VenueID: "binance", VenueKind: domain.VenueKindCEX, Side: domain.SideBuy, Price: 100, Qty: 1},
			{VenueID: "kraken", VenueKind: domain.VenueKindCEX, Side: domain.SideSell, Price: 101, Qty: 1},
		},
	}
	assert.NoError(t, d.Check(context.Background(), c))
	assert.Zero(t, insp.calls)
}

func TestMalformedAddressBlockedWithoutInspector(t *testing.T) {
	insp := &mockInspector{}
	d := NewDetector(testConfig(), insp, testLogger)

	v, err := d.CheckToken(context.Background(), "arbitrum", "not-an-address")
	require.NoError(t, err)
	assert.True(t, v.Blocked)
	assert.Equal(t, severityCritical, v.Severity)
	assert.Zero(t, insp.calls)
}

func TestBlacklistBeatsCache(t *testing.T) {
	canonical := "0x1111111111111111111111111111111111111111"
	insp := &mockInspector{reports: map[string]domain.TokenReport{canonical: safeReport(canonical)}}
	d := NewDetector(testConfig(), insp, testLogger)

	v, err := d.CheckToken(context.Background(), "arbitrum", safeAddr)
	require.NoError(t, err)
	require.False(t, v.Blocked)

	d.Blacklist("arbitrum", safeAddr)

	v, err = d.CheckToken(context.Background(), "arbitrum", safeAddr)
	require.NoError(t, err)
	assert.True(t, v.Blocked)
	assert.Contains(t, v.Reasons, "blacklisted")
}

func TestVerdictCachedInsideTTL(t *testing.T) {
	canonical := "0x1111111111111111111111111111111111111111"
	insp := &mockInspector{reports: map[string]domain.TokenReport{canonical: safeReport(canonical)}}
	d := NewDetector(testConfig(), insp, testLogger)

	_, err := d.CheckToken(context.Background(), "arbitrum", safeAddr)
	require.NoError(t, err)
	_, err = d.CheckToken(context.Background(), "arbitrum", safeAddr)
	require.NoError(t, err)
	assert.Equal(t, 1, insp.calls, "second lookup must hit the cache")

	// Expire the cache and confirm a re-fetch.
	d.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = d.CheckToken(context.Background(), "arbitrum", safeAddr)
	require.NoError(t, err)
	assert.Equal(t, 2, insp.calls)
}

func TestInspectorErrorBlocksCandidate(t *testing.T) {
	insp := &mockInspector{err: errors.New("rpc down")}
	d := NewDetector(testConfig(), insp, testLogger)

	err := d.Check(context.Background(), dexCandidate(safeAddr))
	assert.Error(t, err, "unknown safety must not pass")
}
