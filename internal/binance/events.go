package binance

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"binance-recorder/internal/domain"
)

// Stream kinds and event type tags.
const (
	KindTrade = "trade"
	KindKline = "kline"
)

var (
	// ErrSchemaMismatch is returned when an event lacks a required field.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrUnknownEvent is returned for payloads that are not trade or kline events.
	ErrUnknownEvent = errors.New("unknown event")
)

// SchemaError names the event type and field that failed to decode.
type SchemaError struct {
	Event string
	Field string
	Err   error
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s event: %v", e.Event, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s event field %q: %v", e.Event, e.Field, e.Err)
	}
	return fmt.Sprintf("%s event missing field %q", e.Event, e.Field)
}

// Is matches ErrSchemaMismatch.
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// Event is one decoded live event. Exactly one of Trade and Candle is set.
type Event struct {
	Kind      string
	Symbol    string
	EventTime int64
	Trade     *domain.Trade
	Candle    *domain.Candle
}

// StreamName returns the subscription name for symbol and kind.
// Kline streams take an interval, e.g. StreamName("ETHUSDT", "kline", "1s").
func StreamName(symbol, kind string, interval ...string) string {
	name := strings.ToLower(symbol) + "@" + kind
	if kind == KindKline && len(interval) > 0 {
		name += "_" + interval[0]
	}
	return name
}

// encoding/json falls back to case-insensitive key matching, so every struct
// below declares both keys of each e/E, m/M, t/T pair present on the wire.

// envelope covers both raw and combined ("stream"/"data") payloads.
type envelope struct {
	Stream    string          `json:"stream"`
	Data      json.RawMessage `json:"data"`
	Type      string          `json:"e"`
	EventTime json.RawMessage `json:"E"`
}

type wsTrade struct {
	Type          string  `json:"e"`
	EventTime     *int64  `json:"E"`
	Symbol        string  `json:"s"`
	TradeID       *int64  `json:"t"`
	Price         *string `json:"p"`
	Quantity      *string `json:"q"`
	BuyerOrderID  *int64  `json:"b"`
	SellerOrderID *int64  `json:"a"`
	TradeTime     *int64  `json:"T"`
	IsBuyerMaker  *bool   `json:"m"`
	Ignore        *bool   `json:"M"`
}

type wsKlineEvent struct {
	Type      string   `json:"e"`
	EventTime *int64   `json:"E"`
	Symbol    string   `json:"s"`
	Kline     *wsKline `json:"k"`
}

type wsKline struct {
	OpenTime            *int64  `json:"t"`
	CloseTime           *int64  `json:"T"`
	Symbol              string  `json:"s"`
	Interval            string  `json:"i"`
	FirstTradeID        *int64  `json:"f"`
	LastTradeID         *int64  `json:"L"`
	Open                *string `json:"o"`
	Close               *string `json:"c"`
	High                *string `json:"h"`
	Low                 *string `json:"l"`
	BaseVolume          *string `json:"v"`
	NumTrades           *int64  `json:"n"`
	Closed              *bool   `json:"x"`
	QuoteVolume         *string `json:"q"`
	TakerBuyBaseVolume  *string `json:"V"`
	TakerBuyQuoteVolume *string `json:"Q"`
	Ignore              *string `json:"B"`
}

// DecodeEvent classifies a raw payload by its "e" tag and decodes it.
// Subscription acknowledgements and other payloads yield ErrUnknownEvent.
func DecodeEvent(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, &SchemaError{Event: "payload", Err: err}
	}
	if env.Stream != "" && len(env.Data) > 0 {
		raw = env.Data
		env = envelope{}
		if err := json.Unmarshal(raw, &env); err != nil {
			return Event{}, &SchemaError{Event: "payload", Field: "data", Err: err}
		}
	}

	switch env.Type {
	case KindTrade:
		return decodeTrade(raw)
	case KindKline:
		return decodeKline(raw)
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

func decodeTrade(raw []byte) (Event, error) {
	var w wsTrade
	if err := json.Unmarshal(raw, &w); err != nil {
		return Event{}, &SchemaError{Event: KindTrade, Err: err}
	}

	switch {
	case w.TradeID == nil:
		return Event{}, &SchemaError{Event: KindTrade, Field: "t"}
	case w.TradeTime == nil:
		return Event{}, &SchemaError{Event: KindTrade, Field: "T"}
	case w.Price == nil:
		return Event{}, &SchemaError{Event: KindTrade, Field: "p"}
	case w.Quantity == nil:
		return Event{}, &SchemaError{Event: KindTrade, Field: "q"}
	case w.IsBuyerMaker == nil:
		return Event{}, &SchemaError{Event: KindTrade, Field: "m"}
	}

	price, err := parseDecimal(*w.Price)
	if err != nil {
		return Event{}, &SchemaError{Event: KindTrade, Field: "p", Err: err}
	}
	qty, err := parseDecimal(*w.Quantity)
	if err != nil {
		return Event{}, &SchemaError{Event: KindTrade, Field: "q", Err: err}
	}

	ev := Event{
		Kind:   KindTrade,
		Symbol: w.Symbol,
		Trade: &domain.Trade{
			TradeTime:     *w.TradeTime,
			TradeID:       *w.TradeID,
			Price:         price,
			Quantity:      qty,
			BuyerOrderID:  w.BuyerOrderID,
			SellerOrderID: w.SellerOrderID,
			IsBuyerMaker:  *w.IsBuyerMaker,
		},
	}
	if w.EventTime != nil {
		ev.EventTime = *w.EventTime
	}
	return ev, nil
}

func decodeKline(raw []byte) (Event, error) {
	var w wsKlineEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return Event{}, &SchemaError{Event: KindKline, Err: err}
	}
	if w.Kline == nil {
		return Event{}, &SchemaError{Event: KindKline, Field: "k"}
	}
	k := w.Kline

	ints := []struct {
		field string
		v     *int64
	}{
		{"k.t", k.OpenTime},
		{"k.T", k.CloseTime},
		{"k.n", k.NumTrades},
	}
	for _, f := range ints {
		if f.v == nil {
			return Event{}, &SchemaError{Event: KindKline, Field: f.field}
		}
	}
	if k.Closed == nil {
		return Event{}, &SchemaError{Event: KindKline, Field: "k.x"}
	}

	c := &domain.Candle{
		OpenTime:     *k.OpenTime,
		CloseTime:    *k.CloseTime,
		FirstTradeID: k.FirstTradeID,
		LastTradeID:  k.LastTradeID,
		NumTrades:    *k.NumTrades,
		Closed:       *k.Closed,
	}

	decimals := []struct {
		field string
		src   *string
		dst   *decimal.Decimal
	}{
		{"k.o", k.Open, &c.OpenPrice},
		{"k.c", k.Close, &c.ClosePrice},
		{"k.h", k.High, &c.HighPrice},
		{"k.l", k.Low, &c.LowPrice},
		{"k.v", k.BaseVolume, &c.BaseAssetVolume},
		{"k.q", k.QuoteVolume, &c.QuoteAssetVolume},
		{"k.V", k.TakerBuyBaseVolume, &c.TakerBuyBaseVolume},
		{"k.Q", k.TakerBuyQuoteVolume, &c.TakerBuyQuoteVolume},
	}
	for _, d := range decimals {
		if d.src == nil {
			return Event{}, &SchemaError{Event: KindKline, Field: d.field}
		}
		v, err := parseDecimal(*d.src)
		if err != nil {
			return Event{}, &SchemaError{Event: KindKline, Field: d.field, Err: err}
		}
		*d.dst = v
	}

	ev := Event{Kind: KindKline, Symbol: w.Symbol, Candle: c}
	if w.EventTime != nil {
		ev.EventTime = *w.EventTime
	}
	return ev, nil
}
