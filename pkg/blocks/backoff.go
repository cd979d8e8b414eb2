package blocks

import "time"

// DefaultMaxBackoff caps the retry delay for persistently failing blocks.
const DefaultMaxBackoff = time.Minute

// minBackoffBase is used when a block has no poll interval of its own.
const minBackoffBase = time.Second

// Backoff computes the delay before retrying a block after failures
// consecutive failed refreshes: base doubled per failure, capped at max.
// It never returns less than base.
func Backoff(base, max time.Duration, failures int) time.Duration {
	if base <= 0 {
		base = minBackoffBase
	}
	if max <= 0 {
		max = DefaultMaxBackoff
	}
	if base >= max {
		return max
	}
	if failures <= 1 {
		return base
	}

	d := base
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	return d
}
