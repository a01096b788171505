// Package oracle maintains a rolling ring of price observations and serves
// time-weighted average prices over trailing windows. Prices are fixed-point,
// scaled by amm.PriceScale; timestamps are unix seconds from a monotonic clock.
package oracle

import (
	"fmt"

	"github.com/holiman/uint256"

	"ammCore/internal/amm"
	"ammCore/internal/numeric"
)

// DefaultCapacity matches the observation account size of the source ledger.
const DefaultCapacity = 100

// Observation is one recorded sample plus the cumulative price×time value as of
// its timestamp. The cumulative form lets Query interpolate linearly between two
// bracketing samples instead of walking every sample in the window.
type Observation struct {
	Timestamp  uint64
	Price      uint64
	Cumulative *uint256.Int
}

// Snapshot is the immutable view the quote engine consumes: a time-weighted
// fair price and the timestamp of the newest sample behind it.
type Snapshot struct {
	Price      uint64
	ObservedAt uint64
}

// Aggregator records swap prices into a fixed-capacity ring. It performs no
// locking: the execution environment serializes writers, and reads take a value
// snapshot.
type Aggregator struct {
	capacity int
	maxAge   uint64
	samples  []Observation
}

// New builds an aggregator. capacity <= 0 selects DefaultCapacity; maxAge is the
// staleness bound in seconds and must be positive.
func New(capacity int, maxAge uint64) (*Aggregator, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if maxAge == 0 {
		return nil, fmt.Errorf("%w: max age must be positive", amm.ErrValidation)
	}
	return &Aggregator{
		capacity: capacity,
		maxAge:   maxAge,
		samples:  make([]Observation, 0, capacity),
	}, nil
}

// MaxAge returns the configured staleness bound in seconds.
func (a *Aggregator) MaxAge() uint64 {
	return a.maxAge
}

// Len reports the number of retained samples.
func (a *Aggregator) Len() int {
	return len(a.samples)
}

// CanRecord reports whether Record would accept the sample, without mutating
// the ring. Callers that must stay atomic check first and commit after.
func (a *Aggregator) CanRecord(timestamp, price uint64) error {
	if price == 0 {
		return fmt.Errorf("%w: zero price observation", amm.ErrValidation)
	}
	if len(a.samples) > 0 {
		if newest := a.samples[len(a.samples)-1].Timestamp; timestamp < newest {
			return fmt.Errorf("%w: observation at %d older than newest %d",
				amm.ErrValidation, timestamp, newest)
		}
	}
	return nil
}

// Record appends a sample. Timestamps must be non-decreasing: an older timestamp
// is rejected, an equal timestamp overwrites the newest sample in place (zero
// elapsed time contributes nothing to the accumulator either way). When the ring
// is full the oldest sample is dropped.
func (a *Aggregator) Record(timestamp, price uint64) error {
	if err := a.CanRecord(timestamp, price); err != nil {
		return err
	}
	if len(a.samples) == 0 {
		a.samples = append(a.samples, Observation{
			Timestamp:  timestamp,
			Price:      price,
			Cumulative: uint256.NewInt(0),
		})
		return nil
	}

	last := a.samples[len(a.samples)-1]
	if timestamp == last.Timestamp {
		a.samples[len(a.samples)-1].Price = price
		return nil
	}

	elapsed := timestamp - last.Timestamp
	cumulative := new(uint256.Int).Mul(numeric.U256(last.Price), numeric.U256(elapsed))
	cumulative.Add(cumulative, last.Cumulative)

	a.samples = append(a.samples, Observation{
		Timestamp:  timestamp,
		Price:      price,
		Cumulative: cumulative,
	})
	if len(a.samples) > a.capacity {
		a.samples = a.samples[1:]
	}
	return nil
}

// Query returns the time-weighted average price over the trailing window ending
// at now. The newest price is extended flat from its timestamp to now. It fails
// with ErrStaleOracle when the newest sample is older than the max age, and with
// ErrInsufficientHistory when the retained span does not cover the window.
func (a *Aggregator) Query(now, window uint64) (uint64, error) {
	if window == 0 {
		return 0, fmt.Errorf("%w: zero query window", amm.ErrValidation)
	}
	if len(a.samples) == 0 {
		return 0, amm.ErrInsufficientHistory
	}
	newest := a.samples[len(a.samples)-1]
	if now < newest.Timestamp {
		return 0, fmt.Errorf("%w: query time %d precedes newest sample %d",
			amm.ErrValidation, now, newest.Timestamp)
	}
	if now-newest.Timestamp > a.maxAge {
		return 0, amm.ErrStaleOracle
	}
	oldest := a.samples[0]
	if now-oldest.Timestamp < window {
		return 0, amm.ErrInsufficientHistory
	}

	windowStart := now - window
	cumEnd := a.cumulativeAt(now)
	cumStart := a.cumulativeAt(windowStart)
	diff := new(uint256.Int).Sub(cumEnd, cumStart)
	twap, err := numeric.FloorDiv256(diff, numeric.U256(window))
	if err != nil {
		return 0, err
	}
	return numeric.ToUint64(twap)
}

// Snapshot packages the TWAP and the newest observation time for the quote
// engine.
func (a *Aggregator) Snapshot(now, window uint64) (Snapshot, error) {
	price, err := a.Query(now, window)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Price:      price,
		ObservedAt: a.samples[len(a.samples)-1].Timestamp,
	}, nil
}

// PriceRange reports the lowest and highest held prices among samples inside
// the trailing window ending at now, together with the time-weighted average
// over the covered span. ok is false when fewer than two samples fall inside
// the window, or when now precedes the newest sample; callers fall back to a
// static rate in that case.
func (a *Aggregator) PriceRange(now, window uint64) (minPrice, maxPrice, twap uint64, ok bool) {
	if window == 0 || len(a.samples) < 2 {
		return 0, 0, 0, false
	}
	if now < a.samples[len(a.samples)-1].Timestamp {
		return 0, 0, 0, false
	}

	var cutoff uint64
	if now > window {
		cutoff = now - window
	}
	first := -1
	for i, s := range a.samples {
		if s.Timestamp >= cutoff {
			first = i
			break
		}
	}
	if first < 0 || len(a.samples)-first < 2 {
		return 0, 0, 0, false
	}

	minPrice, maxPrice = a.samples[first].Price, a.samples[first].Price
	for _, s := range a.samples[first+1:] {
		if s.Price < minPrice {
			minPrice = s.Price
		}
		if s.Price > maxPrice {
			maxPrice = s.Price
		}
	}

	span := now - a.samples[first].Timestamp
	if span == 0 {
		return 0, 0, 0, false
	}
	diff := new(uint256.Int).Sub(a.cumulativeAt(now), a.samples[first].Cumulative)
	avg, err := numeric.FloorDiv256(diff, numeric.U256(span))
	if err != nil {
		return 0, 0, 0, false
	}
	twap, err = numeric.ToUint64(avg)
	if err != nil || twap == 0 {
		return 0, 0, 0, false
	}
	return minPrice, maxPrice, twap, true
}

// cumulativeAt interpolates the accumulator at time t, which must be at or after
// the oldest retained sample. Between two samples the price is constant, so the
// accumulator is linear in t.
func (a *Aggregator) cumulativeAt(t uint64) *uint256.Int {
	// Binary search for the newest sample at or before t.
	lo, hi := 0, len(a.samples)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if a.samples[mid].Timestamp <= t {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	bracket := a.samples[lo]
	elapsed := t - bracket.Timestamp
	out := new(uint256.Int).Mul(numeric.U256(bracket.Price), numeric.U256(elapsed))
	return out.Add(out, bracket.Cumulative)
}
