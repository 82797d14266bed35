package ingestion

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRecentTrades is returned when the exchange returns an empty trade window.
	// Candle backfill has no time anchor without it.
	ErrNoRecentTrades = errors.New("no recent trades")

	// ErrStopped is returned by a live ingestor after DrainAndStop.
	ErrStopped = errors.New("ingestor stopped")

	// ErrNotActive is returned when records arrive before the boundary is set.
	ErrNotActive = errors.New("ingestor not active")

	// ErrStreamClosed is returned when the live stream ends while the pipeline is running.
	ErrStreamClosed = errors.New("live stream closed")
)

// GatewayError is a failure talking to the exchange.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// StorageError is a failure writing to or reading from the store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// SchemaMismatchError is a live event missing an expected field.
type SchemaMismatchError struct {
	Event string
	Field string
	Err   error
}

func (e *SchemaMismatchError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema mismatch in %s event: %v", e.Event, e.Err)
	}
	return fmt.Sprintf("schema mismatch in %s event: field %q", e.Event, e.Field)
}

func (e *SchemaMismatchError) Unwrap() error { return e.Err }

// BackfillStalledError is returned when candle pagination fails to advance.
type BackfillStalledError struct {
	Start        int64 // start time of the offending query
	LastOpenTime int64 // last open time the page returned
	PrevOpenTime int64 // last open time of the previous page
}

func (e *BackfillStalledError) Error() string {
	return fmt.Sprintf("candle backfill stalled: page from %d ended at %d, previous page ended at %d",
		e.Start, e.LastOpenTime, e.PrevOpenTime)
}

// BackfillError wraps any failure that aborts backfill.
type BackfillError struct {
	Stage string // "trades" or "candles"
	Err   error
}

func (e *BackfillError) Error() string {
	return fmt.Sprintf("backfill %s: %v", e.Stage, e.Err)
}

func (e *BackfillError) Unwrap() error { return e.Err }
