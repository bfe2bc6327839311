package repository

import (
	"iter"
	"sync/atomic"

	"github.com/okian/trust/internal/domain/model"
)

// once makes seq single-use. Ranging over it a second time yields
// ErrSequenceConsumed and nothing else.
func once(seq iter.Seq2[model.Event, error]) iter.Seq2[model.Event, error] {
	var used atomic.Bool
	return func(yield func(model.Event, error) bool) {
		if used.Swap(true) {
			yield(model.Event{}, ErrSequenceConsumed)
			return
		}
		seq(yield)
	}
}

func fromSlice(events []model.Event) iter.Seq2[model.Event, error] {
	return func(yield func(model.Event, error) bool) {
		for _, ev := range events {
			if !yield(ev, nil) {
				return
			}
		}
	}
}

func failed(err error) iter.Seq2[model.Event, error] {
	return func(yield func(model.Event, error) bool) {
		yield(model.Event{}, err)
	}
}
