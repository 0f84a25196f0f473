package scheduler

// Tier is the priority class a submitted task is routed into.
type Tier int

const (
	High Tier = iota
	Normal
	Low
	Backlog
)

// Tiers lists every tier in dequeue precedence order.
var Tiers = []Tier{High, Normal, Low, Backlog}

func (t Tier) String() string {
	switch t {
	case High:
		return "HIGH"
	case Normal:
		return "NORMAL"
	case Low:
		return "LOW"
	case Backlog:
		return "BACKLOG"
	default:
		return "UNKNOWN"
	}
}

// Bounded reports whether the tier has a fixed capacity.
func (t Tier) Bounded() bool {
	return t >= High && t <= Low
}

// below returns the next lower bounded tier, or Backlog for LOW.
func (t Tier) below() Tier {
	switch t {
	case High:
		return Normal
	case Normal:
		return Low
	default:
		return Backlog
	}
}
