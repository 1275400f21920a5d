package pipeline

// Interval is an inclusive block range.
type Interval struct {
	Start uint64
	End   uint64
}

// SplitIntervals cuts [start, end] into consecutive inclusive intervals of at
// most length blocks. It returns nil when start > end.
func SplitIntervals(start, end, length uint64) []Interval {
	if start > end {
		return nil
	}
	if length == 0 {
		return []Interval{{Start: start, End: end}}
	}
	var out []Interval
	for s := start; s <= end; s += length {
		e := s + length - 1
		if e > end || e < s {
			e = end
		}
		out = append(out, Interval{Start: s, End: e})
		if e == end {
			break
		}
	}
	return out
}
