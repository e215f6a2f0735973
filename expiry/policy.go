// Package expiry implements sliding expiration: every successful read or
// write pushes a key's deadline to now plus the configured TTL.
//
// Deadlines are stored in the same blob as the value (see Envelope), so a
// deadline can never outlive the entry it belongs to.
package expiry

import (
	"errors"
	"math"
	"time"
)

var (
	ErrInvalidTTL = errors.New("expiry: ttl must be positive")
	ErrTTLRange   = errors.New("expiry: ttl out of range")
)

// MaxDeadline is the latest deadline an Envelope can hold. Deadlines past
// it are clamped.
var MaxDeadline = time.Unix(0, math.MaxInt64)

// Policy computes deadlines. A nil *Policy is valid and disables expiry.
type Policy struct {
	ttl time.Duration
}

// New returns a policy with the given TTL. Non-positive TTLs are rejected
// rather than silently treated as "no expiry".
func New(ttl time.Duration) (*Policy, error) {
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	return &Policy{ttl: ttl}, nil
}

// FromSeconds builds a policy from a fractional number of seconds.
func FromSeconds(seconds float64) (*Policy, error) {
	ns := seconds * float64(time.Second)
	switch {
	case math.IsNaN(ns) || ns <= 0:
		return nil, ErrInvalidTTL
	case ns < 1 || ns >= math.MaxInt64:
		return nil, ErrTTLRange
	}
	return New(time.Duration(ns))
}

func (p *Policy) Enabled() bool { return p != nil }

func (p *Policy) TTL() time.Duration {
	if p == nil {
		return 0
	}
	return p.ttl
}

// Record is the expiry bookkeeping kept with an entry. The zero Record has
// no deadline.
type Record struct {
	Deadline time.Time
}

func (r Record) HasDeadline() bool { return !r.Deadline.IsZero() }

// Live reports whether the entry is still visible at now. It never changes
// the record.
func (r Record) Live(now time.Time) bool {
	return !r.HasDeadline() || now.Before(r.Deadline)
}

// OnWrite returns the record to store with a freshly written value.
func (p *Policy) OnWrite(now time.Time) Record {
	if p == nil {
		return Record{}
	}
	return Record{Deadline: deadline(now, p.ttl)}
}

// OnRead checks rec at now. A dead entry reports false and the caller must
// purge it. A live entry reports true together with the refreshed record.
// Records without a deadline are returned unchanged, and a disabled policy
// still honors a deadline written by another store but never extends it.
func (p *Policy) OnRead(rec Record, now time.Time) (Record, bool) {
	if !rec.Live(now) {
		return Record{}, false
	}
	if p == nil || !rec.HasDeadline() {
		return rec, true
	}
	return Record{Deadline: deadline(now, p.ttl)}, true
}

func deadline(now time.Time, ttl time.Duration) time.Time {
	d := now.Add(ttl)
	if d.After(MaxDeadline) {
		return MaxDeadline
	}
	return d
}
