package plans

import (
	"encoding/json"
	"fmt"
)

// Limit is a resource cap that is either a concrete count or unlimited.
//
// Unlimited is a distinct state, not a numeric sentinel: Reached is
// categorically false for an unlimited Limit, so no arithmetic comparison
// can accidentally treat "unlimited" as a very small or very large number.
type Limit struct {
	n         int64
	unlimited bool
}

// Unlimited returns a Limit that no count ever reaches.
func Unlimited() Limit {
	return Limit{unlimited: true}
}

// LimitOf returns a concrete Limit of n. Negative values clamp to zero.
func LimitOf(n int64) Limit {
	if n < 0 {
		n = 0
	}
	return Limit{n: n}
}

// IsUnlimited reports whether the limit places no cap at all.
func (l Limit) IsUnlimited() bool {
	return l.unlimited
}

// Value returns the concrete cap and true, or (0, false) when unlimited.
func (l Limit) Value() (int64, bool) {
	if l.unlimited {
		return 0, false
	}
	return l.n, true
}

// Reached reports whether count has consumed the limit. Always false for
// an unlimited Limit, including at count 0 and arbitrarily large counts.
func (l Limit) Reached(count int64) bool {
	if l.unlimited {
		return false
	}
	return count >= l.n
}

// Remaining returns how many more of the resource fit under the limit,
// floored at zero. Unlimited limits report (0, false).
func (l Limit) Remaining(count int64) (int64, bool) {
	if l.unlimited {
		return 0, false
	}
	if count >= l.n {
		return 0, true
	}
	return l.n - count, true
}

func (l Limit) String() string {
	if l.unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", l.n)
}

// MarshalJSON encodes a concrete limit as a number and an unlimited limit
// as the string "unlimited", keeping numeric sentinels out of the wire
// format as well.
func (l Limit) MarshalJSON() ([]byte, error) {
	if l.unlimited {
		return json.Marshal("unlimited")
	}
	return json.Marshal(l.n)
}

// UnmarshalJSON accepts a number, the string "unlimited", or null
// (treated as unlimited).
func (l *Limit) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = Unlimited()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "unlimited" {
			return fmt.Errorf("invalid limit %q", s)
		}
		*l = Unlimited()
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid limit: %w", err)
	}
	*l = LimitOf(n)
	return nil
}
