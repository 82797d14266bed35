package stub

import (
	"encoding/json"
	"strconv"
)

// TradeEvent builds a raw live trade payload.
func TradeEvent(symbol string, tradeID, tradeTime int64, price, qty string) []byte {
	return mustJSON(map[string]interface{}{
		"e": "trade",
		"E": tradeTime + 1,
		"s": symbol,
		"t": tradeID,
		"p": price,
		"q": qty,
		"b": tradeID*10 + 1,
		"a": tradeID*10 + 2,
		"T": tradeTime,
		"m": tradeID%2 == 0,
		"M": true,
	})
}

// KlineEvent builds a raw live 1s kline payload.
func KlineEvent(symbol string, openTime, firstTradeID, lastTradeID int64, closePrice string, closed bool) []byte {
	return mustJSON(map[string]interface{}{
		"e": "kline",
		"E": openTime + 500,
		"s": symbol,
		"k": map[string]interface{}{
			"t": openTime,
			"T": openTime + 999,
			"s": symbol,
			"i": "1s",
			"f": firstTradeID,
			"L": lastTradeID,
			"o": closePrice,
			"c": closePrice,
			"h": closePrice,
			"l": closePrice,
			"v": "1.00000000",
			"n": lastTradeID - firstTradeID + 1,
			"x": closed,
			"q": closePrice,
			"V": "0.50000000",
			"Q": "0.00000000",
			"B": "0",
		},
	})
}

// Raw builds an arbitrary payload, e.g. one with a field removed.
func Raw(fields map[string]interface{}) []byte {
	return mustJSON(fields)
}

// ParsePrice is a convenience for tests that build prices from ints.
func ParsePrice(n int64) string {
	return strconv.FormatInt(n, 10) + ".00"
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
