package domain

import "testing"

func TestFloorToSecond(t *testing.T) {
	tests := []struct {
		in, want int64
	}{
		{0, 0},
		{999, 0},
		{1000, 1000},
		{1700000000123, 1700000000000},
		{-1, -1000},
		{-1000, -1000},
	}
	for _, tt := range tests {
		if got := FloorToSecond(tt.in); got != tt.want {
			t.Errorf("FloorToSecond(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCandleVersion_After(t *testing.T) {
	id := func(v int64) *int64 { return &v }

	base := (&Candle{OpenTime: 1000, LastTradeID: id(10)}).Version()

	tests := []struct {
		name string
		c    Candle
		want bool
	}{
		{"later bucket", Candle{OpenTime: 2000, LastTradeID: id(5)}, true},
		{"earlier bucket", Candle{OpenTime: 0, LastTradeID: id(50)}, false},
		{"same bucket more trades", Candle{OpenTime: 1000, LastTradeID: id(11)}, true},
		{"exact replay", Candle{OpenTime: 1000, LastTradeID: id(10)}, false},
		{"same bucket now closed", Candle{OpenTime: 1000, LastTradeID: id(10), Closed: true}, true},
		{"same bucket fewer trades", Candle{OpenTime: 1000, LastTradeID: id(9), Closed: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.Version().After(base); got != tt.want {
				t.Errorf("After() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSession_Finalized(t *testing.T) {
	s := &Session{ID: 1, Symbol: "ETHUSDT"}
	if s.Finalized() {
		t.Error("new session should not be finalized")
	}
	begin, end := int64(1), int64(2)
	s.BeginTime, s.EndTime = &begin, &end
	if !s.Finalized() {
		t.Error("session with bounds should be finalized")
	}
}
