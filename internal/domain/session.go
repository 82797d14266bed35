package domain

// Session represents one ingestion run for one symbol.
// Corresponds to sessions table. BeginTime/EndTime stay nil until the run
// is finalized from the trades actually persisted under it.
type Session struct {
	ID        int64  // assigned by the store on creation
	Symbol    string // upper-case trading pair, e.g. ETHUSDT
	BeginTime *int64 // min trade_time (ms), nullable
	EndTime   *int64 // max trade_time (ms), nullable
}

// Finalized reports whether the session bounds have been written.
func (s *Session) Finalized() bool {
	return s.BeginTime != nil && s.EndTime != nil
}
