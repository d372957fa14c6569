// Package lifespan computes how long uploaded content may live. All
// values are epoch milliseconds or millisecond durations; the policy is
// pure and carries no clock of its own.
package lifespan

import "time"

// timestampThreshold disambiguates the requested-expiration field: values
// below it are durations in hours, values at or above it are absolute
// epoch-millisecond timestamps. The constant is the epoch value of a
// fixed reference date and must not change, or clients relying on the
// duration form would see their requests reinterpreted.
const timestampThreshold = 1650460320000

const (
	DefaultMinDays = 30
	DefaultMaxDays = 365

	millisPerHour = 60 * 60 * 1000
	millisPerDay  = 24 * millisPerHour
)

// Policy holds the lifespan curve parameters.
type Policy struct {
	// MinLifespan applies to content of exactly MaxContentLength bytes.
	MinLifespan int64
	// MaxLifespan applies to empty content.
	MaxLifespan int64
	// MaxContentLength is the size at which MinLifespan is reached.
	MaxContentLength int64
}

// NewPolicy builds a policy from day counts and the configured maximum
// content size.
func NewPolicy(minDays, maxDays int, maxContentLength int64) Policy {
	return Policy{
		MinLifespan:      int64(minDays) * millisPerDay,
		MaxLifespan:      int64(maxDays) * millisPerDay,
		MaxContentLength: maxContentLength,
	}
}

// MaxLifespanMillis returns the largest allowed lifespan for content of
// the given size: a cubic interpolation that equals MaxLifespan at size
// zero and MinLifespan at MaxContentLength. Sizes beyond
// MaxContentLength keep decreasing below MinLifespan; callers reject
// oversized payloads before this is ever evaluated there.
func (p Policy) MaxLifespanMillis(sizeBytes int64) int64 {
	t := float64(sizeBytes)/float64(p.MaxContentLength) - 1
	return p.MinLifespan + int64(float64(p.MinLifespan-p.MaxLifespan)*t*t*t)
}

// EffectiveExpiration resolves a user-requested expiration against the
// size-dependent maximum.
//
// requested may be:
//   - nil, for the longest allowed lifespan
//   - a duration in hours the content should live for
//   - an absolute epoch-millisecond timestamp
//
// Values past the maximum are rounded down to it.
func (p Policy) EffectiveExpiration(requested *int64, sizeBytes int64, now time.Time) int64 {
	nowMillis := now.UnixMilli()
	maxAllowed := nowMillis + p.MaxLifespanMillis(sizeBytes)

	switch {
	case requested == nil:
		return maxAllowed
	case *requested < timestampThreshold:
		return min(maxAllowed, nowMillis+*requested*millisPerHour)
	default:
		return min(maxAllowed, *requested)
	}
}
