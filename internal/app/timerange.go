package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/platform/chain"
)

var errNeedsNode = errors.New("start/end times need node.url to map them to blocks")

// blockRange is the range requested on the command line. Missing ends are
// filled in by each mode.
type blockRange struct {
	from, to       uint64
	hasFrom, hasTo bool
}

func (r blockRange) explicit() bool { return r.hasFrom || r.hasTo }

// bounds fills missing ends with the given defaults.
func (r blockRange) bounds(defFrom, defTo uint64) (uint64, uint64) {
	from, to := defFrom, defTo
	if r.hasFrom {
		from = r.from
	}
	if r.hasTo {
		to = r.to
	}
	return from, to
}

// resolveRange turns block or time options into a block range. Times are
// mapped to the first block at or after the start and the last block at or
// before the end. headers may be nil when no times are given.
func resolveRange(ctx context.Context, opts Options, headers chain.HeaderReader) (blockRange, error) {
	var r blockRange

	switch {
	case opts.StartBlock > 0:
		r.from, r.hasFrom = opts.StartBlock, true
	case !opts.StartTime.IsZero():
		if headers == nil {
			return r, errNeedsNode
		}
		b, err := chain.BlockAtOrAfter(ctx, headers, opts.StartTime)
		if err != nil {
			return r, fmt.Errorf("start time: %w", err)
		}
		r.from, r.hasFrom = b, true
	}

	switch {
	case opts.EndBlock > 0:
		r.to, r.hasTo = opts.EndBlock, true
	case !opts.EndTime.IsZero():
		if headers == nil {
			return r, errNeedsNode
		}
		b, err := chain.BlockAtOrBefore(ctx, headers, opts.EndTime)
		if err != nil {
			return r, fmt.Errorf("end time: %w", err)
		}
		r.to, r.hasTo = b, true
	}

	if r.hasFrom && r.hasTo && r.from > r.to {
		return r, fmt.Errorf("start block %d is after end block %d", r.from, r.to)
	}
	return r, nil
}
