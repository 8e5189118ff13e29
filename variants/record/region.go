package record

import (
	"fmt"
	"strings"
)

// Bounds selects how Region.End is compared.
type Bounds int

const (
	// Closed matches Start <= Pos <= End.
	Closed Bounds = iota
	// HalfOpen matches Start <= Pos < End.
	HalfOpen
)

func (b Bounds) String() string {
	switch b {
	case Closed:
		return "closed"
	case HalfOpen:
		return "half-open"
	default:
		return fmt.Sprintf("Bounds(%d)", int(b))
	}
}

// ParseBounds is the inverse of Bounds.String.
func ParseBounds(s string) (Bounds, error) {
	switch strings.ToLower(s) {
	case "", "closed":
		return Closed, nil
	case "half-open", "halfopen":
		return HalfOpen, nil
	default:
		return 0, fmt.Errorf("unknown bounds %q", s)
	}
}

// Region is a (contig, start, end) window. The contig is compared first; an empty Contig matches
// every contig.
type Region struct {
	Contig string
	Start  uint64
	End    uint64
	Bounds Bounds
}

// Empty reports whether no position can ever match.
func (r Region) Empty() bool {
	if r.Start > r.End {
		return true
	}
	return r.Bounds == HalfOpen && r.Start == r.End
}

func (r Region) Contains(rec Record) bool {
	if r.Contig != "" && r.Contig != rec.Contig {
		return false
	}
	if rec.Pos < r.Start {
		return false
	}
	if r.Bounds == HalfOpen {
		return rec.Pos < r.End
	}
	return rec.Pos <= r.End
}

// Past reports whether pos lies beyond the end of the region.
func (r Region) Past(pos uint64) bool {
	if r.Bounds == HalfOpen {
		return pos >= r.End
	}
	return pos > r.End
}

func (r Region) String() string {
	closing := "]"
	if r.Bounds == HalfOpen {
		closing = ")"
	}
	contig := r.Contig
	if contig == "" {
		contig = "*"
	}
	return fmt.Sprintf("%s:[%d, %d%s", contig, r.Start, r.End, closing)
}
