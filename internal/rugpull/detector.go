// Package rugpull screens the on-chain legs of a candidate against token
// safety heuristics before execution. A veto blocks the whole candidate;
// partial execution of a multi-leg trade is worse than no execution.
package rugpull

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/arbiterhq/arbiter/internal/domain"
)

// Severity buckets for a scored token.
const (
	severityLow      = "low"
	severityMedium   = "medium"
	severityHigh     = "high"
	severityCritical = "critical"
)

// Scoring weights per signal group. Liquidity dominates because a pulled
// pool is the one failure mode with no exit.
const (
	weightLiquidity = 0.35
	weightHolders   = 0.30
	weightContract  = 0.20
	weightTrading   = 0.15
)

// Config holds the screen thresholds.
type Config struct {
	MinLiquidityLockUSD float64
	MaxTopHolderPct     float64
	MinTokenAgeDays     int
	MinHolderCount      int
	Blacklist           []string
	CacheTTL            time.Duration
}

// Detector caches per-token verdicts and vetoes candidates whose DEX legs
// touch an unsafe token.
type Detector struct {
	cfg       Config
	inspector domain.TokenInspector
	logger    *slog.Logger

	mu        sync.Mutex
	cache     map[string]cachedVerdict
	blacklist map[string]bool

	now func() time.Time
}

type cachedVerdict struct {
	verdict  Verdict
	cachedAt time.Time
}

// Verdict is the scored safety assessment of one token.
type Verdict struct {
	Address  string
	Chain    string
	Score    float64 // 0 safe .. 1 certain rug
	Severity string
	Reasons  []string
	Blocked  bool
}

// NewDetector creates a Detector. Blacklist entries are normalized to
// checksummed form so lookups are case-insensitive.
func NewDetector(cfg Config, inspector domain.TokenInspector, logger *slog.Logger) *Detector {
	bl := make(map[string]bool, len(cfg.Blacklist))
	for _, addr := range cfg.Blacklist {
		if common.IsHexAddress(addr) {
			bl[common.HexToAddress(addr).Hex()] = true
		}
	}
	return &Detector{
		cfg:       cfg,
		inspector: inspector,
		logger:    logger.With(slog.String("component", "rugpull")),
		cache:     make(map[string]cachedVerdict),
		blacklist: bl,
		now:       time.Now,
	}
}

// Check screens every DEX leg of the candidate. The first blocked token
// vetoes the candidate with ErrSafetyRejected; CEX-only candidates pass
// untouched. Inspector failures block rather than pass: unknown is unsafe.
func (d *Detector) Check(ctx context.Context, c domain.Candidate) error {
	for _, leg := range c.DexLegs() {
		v, err := d.CheckToken(ctx, leg.Chain, leg.TokenAddress)
		if err != nil {
			return fmt.Errorf("screening %s on %s: %w", leg.TokenAddress, leg.Chain, err)
		}
		if v.Blocked {
			d.logger.Warn("candidate vetoed",
				slog.String("candidate_id", c.ID),
				slog.String("token", v.Address),
				slog.String("chain", v.Chain),
				slog.String("severity", v.Severity),
				slog.String("reasons", strings.Join(v.Reasons, ",")),
			)
			return fmt.Errorf("token %s: %s: %w", v.Address, strings.Join(v.Reasons, ", "), domain.ErrSafetyRejected)
		}
	}
	return nil
}

// CheckToken scores a single token, serving cached verdicts inside the TTL.
func (d *Detector) CheckToken(ctx context.Context, chain, address string) (Verdict, error) {
	if !common.IsHexAddress(address) {
		return Verdict{
			Address:  address,
			Chain:    chain,
			Score:    1,
			Severity: severityCritical,
			Reasons:  []string{"malformed token address"},
			Blocked:  true,
		}, nil
	}
	canonical := common.HexToAddress(address).Hex()

	d.mu.Lock()
	if d.blacklist[canonical] {
		d.mu.Unlock()
		return Verdict{
			Address:  canonical,
			Chain:    chain,
			Score:    1,
			Severity: severityCritical,
			Reasons:  []string{"blacklisted"},
			Blocked:  true,
		}, nil
	}
	if entry, ok := d.cache[chain+":"+canonical]; ok && d.now().Sub(entry.cachedAt) < d.cfg.CacheTTL {
		d.mu.Unlock()
		return entry.verdict, nil
	}
	d.mu.Unlock()

	report, err := d.inspector.TokenReport(ctx, chain, canonical)
	if err != nil {
		return Verdict{}, err
	}

	v := d.score(chain, canonical, report)

	d.mu.Lock()
	d.cache[chain+":"+canonical] = cachedVerdict{verdict: v, cachedAt: d.now()}
	d.mu.Unlock()
	return v, nil
}

// Blacklist adds a token address to the permanent block list and drops its
// cached verdict.
func (d *Detector) Blacklist(chain, address string) {
	if !common.IsHexAddress(address) {
		return
	}
	canonical := common.HexToAddress(address).Hex()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blacklist[canonical] = true
	delete(d.cache, chain+":"+canonical)
}

func (d *Detector) score(chain, address string, r domain.TokenReport) Verdict {
	var score float64
	var reasons []string

	// Liquidity.
	if r.LiquidityLockedUSD < d.cfg.MinLiquidityLockUSD {
		score += weightLiquidity
		reasons = append(reasons, "liquidity lock below floor")
	}

	// Holder distribution.
	var holderScore float64
	if r.TopHolderPct > d.cfg.MaxTopHolderPct {
		holderScore += 0.6
		reasons = append(reasons, "top holder concentration")
	}
	if r.HolderCount < d.cfg.MinHolderCount {
		holderScore += 0.4
		reasons = append(reasons, "holder count below floor")
	}
	score += weightHolders * holderScore

	// Contract shape.
	var contractScore float64
	if !r.OwnershipRenounced {
		contractScore += 0.5
		reasons = append(reasons, "ownership not renounced")
	}
	if r.MintableUncapped {
		contractScore += 0.5
		reasons = append(reasons, "uncapped mint authority")
	}
	score += weightContract * contractScore

	// Trading behavior.
	var tradingScore float64
	if r.HoneypotSuspected {
		tradingScore += 0.7
		reasons = append(reasons, "honeypot suspected")
	}
	if r.AgeDays < d.cfg.MinTokenAgeDays {
		tradingScore += 0.3
		reasons = append(reasons, "token too young")
	}
	score += weightTrading * tradingScore

	severity := severityLow
	switch {
	case score >= 0.70 || r.HoneypotSuspected:
		severity = severityCritical
	case score >= 0.50:
		severity = severityHigh
	case score >= 0.30:
		severity = severityMedium
	}

	return Verdict{
		Address:  address,
		Chain:    chain,
		Score:    score,
		Severity: severity,
		Reasons:  reasons,
		Blocked:  severity == severityCritical || severity == severityHigh,
	}
}
