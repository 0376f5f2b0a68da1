package feed

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/arbiterhq/arbiter/internal/domain"
	"github.com/arbiterhq/arbiter/internal/snapshot"
)

// simBasePrices seeds the random walk for common instruments. Unknown
// instruments start at 100.
var simBasePrices = map[string]float64{
	"BTC/USDT": 50_000,
	"ETH/USDT": 3_000,
	"ETH/BTC":  0.06,
	"SOL/USDT": 150,
}

// SimVenue describes one simulated venue the feed quotes for.
type SimVenue struct {
	VenueID     string
	Kind        domain.VenueKind
	Chain       string
	Instruments []string
}

// SimFeed drives the snapshot store with a correlated random walk across the
// configured venues. Per-venue offsets drift independently so cross-venue
// spreads open and close over time, giving the paper pipeline something to
// detect.
type SimFeed struct {
	venues   []SimVenue
	interval time.Duration
	store    *snapshot.Store
	rng      *rand.Rand
	logger   *slog.Logger

	mids    map[string]float64 // shared mid per instrument
	offsets map[string]float64 // per venue+instrument offset, fraction of mid
}

// NewSimFeed creates a SimFeed quoting every (venue, instrument) pair at the
// given interval.
func NewSimFeed(venues []SimVenue, interval time.Duration, store *snapshot.Store, logger *slog.Logger) *SimFeed {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &SimFeed{
		venues:   venues,
		interval: interval,
		store:    store,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:   logger.With(slog.String("component", "sim_feed")),
		mids:     make(map[string]float64),
		offsets:  make(map[string]float64),
	}
}

// Run publishes quotes until ctx is cancelled.
func (f *SimFeed) Run(ctx context.Context) error {
	f.logger.Info("sim feed started", slog.Int("venues", len(f.venues)))

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.tick()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			f.tick()
		}
	}
}

func (f *SimFeed) tick() {
	now := time.Now()
	for _, v := range f.venues {
		for _, inst := range v.Instruments {
			f.store.Upsert(f.quoteFor(v, inst, now))
		}
	}
}

func (f *SimFeed) quoteFor(v SimVenue, inst string, now time.Time) domain.Quote {
	mid := f.mids[inst]
	if mid == 0 {
		mid = simBasePrices[inst]
		if mid == 0 {
			mid = 100
		}
	}
	// Shared random walk, ±5 bps per tick.
	mid *= 1 + (f.rng.Float64()-0.5)*0.001
	f.mids[inst] = mid

	// Venue-local drift, mean-reverting, up to tens of bps. This is what
	// opens cross-venue spreads.
	key := v.VenueID + "|" + inst
	off := f.offsets[key]*0.95 + (f.rng.Float64()-0.5)*0.0008
	f.offsets[key] = off

	venueMid := mid * (1 + off)
	halfSpread := venueMid * 0.0003

	q := domain.Quote{
		VenueID:      v.VenueID,
		VenueKind:    v.Kind,
		InstrumentID: inst,
		Bid:          venueMid - halfSpread,
		Ask:          venueMid + halfSpread,
		BidSize:      5 + f.rng.Float64()*95,
		AskSize:      5 + f.rng.Float64()*95,
		Chain:        v.Chain,
		Timestamp:    now,
	}
	q.Base, q.Quote = splitInstrument(inst)

	if v.Kind == domain.VenueKindDEX {
		// Pool depth implied from quoted size.
		q.ReserveBase = 10_000 / venueMid * 100
		q.ReserveQuote = q.ReserveBase * venueMid
		q.TokenAddress = simTokenAddress(inst)
	}
	return q
}

// simTokenAddress derives a deterministic, well-formed address per
// instrument so the token screen has something to inspect.
func simTokenAddress(inst string) string {
	const hexDigits = "0123456789abcdef"
	sum := 0
	for _, r := range strings.ToLower(inst) {
		sum = sum*31 + int(r)
	}
	buf := make([]byte, 40)
	for i := range buf {
		sum = sum*1103515245 + 12345
		buf[i] = hexDigits[(sum>>16)&0xf]
	}
	return "0x" + string(buf)
}
