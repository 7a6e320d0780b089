package bpe

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// EncodeOptions shape one Tokenize call.
type EncodeOptions struct {
	// Window is the exact id count every encoded line is truncated or
	// right-padded to. Must be at least 1.
	Window int

	// Segmented marks lines as already segmented: whitespace-delimited
	// tokens are looked up as finished symbols instead of being run
	// through Segment first.
	Segmented bool

	// Parallel caps how many lines encode concurrently. Zero or less
	// uses GOMAXPROCS. Output order is positional either way.
	Parallel int
}

// Tokenize encodes each line into exactly opts.Window ids: the line splits
// on whitespace, each token segments into symbols, and each symbol maps
// through the index, unknown ids standing in for anything unindexed. Rows
// longer than the window truncate; shorter rows pad with the pad id, so an
// empty line comes back as pure padding.
func (t *Tokenizer) Tokenize(ctx context.Context, lines []string, opts EncodeOptions) ([][]int, error) {
	if opts.Window < 1 {
		return nil, fmt.Errorf("window must be at least 1, got %d", opts.Window)
	}
	if t.index == nil {
		return nil, ErrNoIndex
	}

	limit := opts.Parallel
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	out := make([][]int, len(lines))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, line := range lines {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = t.encodeLine(line, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Debug("tokenized", "lines", len(lines), "window", opts.Window)
	return out, nil
}

func (t *Tokenizer) encodeLine(line string, opts EncodeOptions) []int {
	ids := make([]int, 0, opts.Window)
	for _, token := range strings.Fields(line) {
		symbols := []string{token}
		if !opts.Segmented {
			symbols = t.segment(token)
		}

		for _, symbol := range symbols {
			id, ok := t.index.ID(symbol)
			if !ok {
				id = t.index.UnknownID()
			}
			ids = append(ids, id)
		}
	}

	if len(ids) > opts.Window {
		ids = ids[:opts.Window]
	}
	for len(ids) < opts.Window {
		ids = append(ids, t.index.PadID())
	}

	return ids
}

// Decode maps each id row back to its symbols. Pad and unknown ids decode
// to their marker symbols, ids outside the index to the unknown marker. No
// merge reversal is attempted.
func (t *Tokenizer) Decode(batches [][]int) ([][]string, error) {
	if t.index == nil {
		return nil, ErrNoIndex
	}

	out := make([][]string, len(batches))
	for i, ids := range batches {
		symbols := make([]string, len(ids))
		for j, id := range ids {
			s, ok := t.index.Symbol(id)
			if !ok {
				s = Unknown
			}
			symbols[j] = s
		}
		out[i] = symbols
	}

	return out, nil
}
