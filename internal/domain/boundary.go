package domain

// Boundary holds the cutover markers produced by backfill.
// Live records are persisted only when strictly beyond them.
type Boundary struct {
	LastTradeID       int64 // highest trade id persisted by backfill
	LastKlineOpenTime int64 // open time of the last candle persisted by backfill (ms)
}

// FloorToSecond truncates a Unix millisecond timestamp to the start of its second.
func FloorToSecond(ms int64) int64 {
	if ms < 0 {
		return ms - (1000+ms%1000)%1000
	}
	return ms - ms%1000
}
