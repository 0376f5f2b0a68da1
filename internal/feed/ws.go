// Package feed keeps the snapshot store supplied with venue quotes. Live
// mode streams quotes over WebSocket from per-venue collectors; paper mode
// synthesizes a random-walk market instead.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arbiterhq/arbiter/internal/domain"
	"github.com/arbiterhq/arbiter/internal/snapshot"
)

// reconnectDelay is the pause before re-dialing a dropped feed.
const reconnectDelay = 2 * time.Second

// quoteMsg is the wire shape a venue collector streams for each top-of-book
// (or pool-implied) update.
type quoteMsg struct {
	Instrument     string  `json:"instrument"`
	Base           string  `json:"base"`
	Quote          string  `json:"quote"`
	Bid            float64 `json:"bid"`
	Ask            float64 `json:"ask"`
	BidSize        float64 `json:"bid_size"`
	AskSize        float64 `json:"ask_size"`
	ReserveBase    float64 `json:"reserve_base,omitempty"`
	ReserveQuote   float64 `json:"reserve_quote,omitempty"`
	TokenAddress   string  `json:"token_address,omitempty"`
	FundingRateBps float64 `json:"funding_rate_bps,omitempty"`
	Timestamp      string  `json:"ts"`
}

// WSFeed connects to one venue's quote stream and upserts every received
// quote into the snapshot store. It reconnects with a fixed delay on
// disconnect and runs until its context is cancelled.
type WSFeed struct {
	url       string
	venueID   string
	venueKind domain.VenueKind
	chain     string
	store     *snapshot.Store
	logger    *slog.Logger
}

// NewWSFeed creates a feed for one venue.
func NewWSFeed(url, venueID string, kind domain.VenueKind, chain string, store *snapshot.Store, logger *slog.Logger) *WSFeed {
	return &WSFeed{
		url:       url,
		venueID:   venueID,
		venueKind: kind,
		chain:     chain,
		store:     store,
		logger: logger.With(
			slog.String("component", "ws_feed"),
			slog.String("venue", venueID),
		),
	}
}

// Run connects and pumps quotes until ctx is cancelled.
func (f *WSFeed) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("feed disconnected, reconnecting", slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (f *WSFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Unblock ReadMessage when the context is cancelled.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	f.logger.Info("feed connected", slog.String("url", f.url))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.handleMessage(data)
	}
}

func (f *WSFeed) handleMessage(data []byte) {
	var msg quoteMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		f.logger.Debug("malformed quote message", slog.String("error", err.Error()))
		return
	}
	if strings.TrimSpace(msg.Instrument) == "" {
		return
	}

	ts := time.Now()
	if msg.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, msg.Timestamp); err == nil {
			ts = t
		}
	}

	base, quote := msg.Base, msg.Quote
	if base == "" || quote == "" {
		base, quote = splitInstrument(msg.Instrument)
	}

	f.store.Upsert(domain.Quote{
		VenueID:        f.venueID,
		VenueKind:      f.venueKind,
		InstrumentID:   msg.Instrument,
		Base:           base,
		Quote:          quote,
		Bid:            msg.Bid,
		Ask:            msg.Ask,
		BidSize:        msg.BidSize,
		AskSize:        msg.AskSize,
		ReserveBase:    msg.ReserveBase,
		ReserveQuote:   msg.ReserveQuote,
		TokenAddress:   msg.TokenAddress,
		Chain:          f.chain,
		FundingRateBps: msg.FundingRateBps,
		Timestamp:      ts,
	})
}

// splitInstrument derives base/quote symbols from a "BASE/QUOTE" instrument
// ID. DEX pool addresses have no separator and yield empty symbols; those
// feeds must carry explicit base/quote fields.
func splitInstrument(id string) (base, quote string) {
	parts := strings.SplitN(id, "/", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return parts[0], parts[1]
}
