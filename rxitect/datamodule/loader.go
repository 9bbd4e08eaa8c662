package datamodule

import (
	"context"
	"fmt"
	"iter"
	"math/rand/v2"
	"sync"

	"github.com/ZanzyTHEbar/rxitect/rxitect/dataset"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/stream"
)

// shuffleStream keeps the epoch orders of a seed apart from the sampling
// and splitting sequences of the same seed.
const shuffleStream uint64 = 3

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	Name      string
	BatchSize int
	// Shuffle draws a fresh order for every epoch from a generator seeded
	// by Seed.
	Shuffle bool
	// NumWorkers collates that many batches concurrently; 0 collates on
	// the iterating goroutine.
	NumWorkers int
	PinMemory  bool
	Pad        int
	Seed       int64
	Logger     zerolog.Logger
}

// Loader groups the examples of a source into padded batches.
type Loader struct {
	src  dataset.Source[[]int]
	opts LoaderOptions

	mu     sync.Mutex
	rng    *rand.Rand
	epochs int
}

type collated struct {
	batch *dataset.Batch
	err   error
}

// NewLoader returns a loader over src. A non-positive batch size puts every
// example in one batch.
func NewLoader(src dataset.Source[[]int], opts LoaderOptions) *Loader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = max(src.Len(), 1)
	}
	opts.NumWorkers = max(opts.NumWorkers, 0)
	return &Loader{
		src:  src,
		opts: opts,
		rng:  rand.New(rand.NewPCG(uint64(opts.Seed), shuffleStream)),
	}
}

// Name returns the split name.
func (l *Loader) Name() string { return l.opts.Name }

// Size returns the number of examples.
func (l *Loader) Size() int { return l.src.Len() }

// Len returns the number of batches per epoch.
func (l *Loader) Len() int {
	return (l.src.Len() + l.opts.BatchSize - 1) / l.opts.BatchSize
}

// PinMemory reports the pin-memory setting carried by every batch.
func (l *Loader) PinMemory() bool { return l.opts.PinMemory }

// Epoch iterates one pass over the source. The example order is fixed when
// Epoch is called: shuffling loaders take the next draw of their generator,
// the others keep source order. Iteration stops at the first error.
func (l *Loader) Epoch(ctx context.Context) iter.Seq2[*dataset.Batch, error] {
	chunks := lo.Chunk(l.order(), l.opts.BatchSize)
	return func(yield func(*dataset.Batch, error) bool) {
		if l.opts.NumWorkers == 0 {
			for _, chunk := range chunks {
				if err := ctx.Err(); err != nil {
					yield(nil, err)
					return
				}
				b, err := l.collate(chunk)
				if err != nil {
					yield(nil, err)
					return
				}
				if !yield(b, nil) {
					return
				}
			}
			return
		}
		l.concurrent(ctx, chunks, yield)
	}
}

func (l *Loader) order() []int {
	idxs := lo.Range(l.src.Len())
	if !l.opts.Shuffle {
		return idxs
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rng.Shuffle(len(idxs), func(i, j int) {
		idxs[i], idxs[j] = idxs[j], idxs[i]
	})
	l.epochs++
	l.opts.Logger.Debug().Str("split", l.opts.Name).Int("epoch", l.epochs).Msg("shuffled")
	return idxs
}

// concurrent collates on a stream of workers. Callbacks run in submission
// order and hand batches to the iterating goroutine, which alone calls
// yield.
func (l *Loader) concurrent(ctx context.Context, chunks [][]int, yield func(*dataset.Batch, error) bool) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan collated)
	go func() {
		defer close(results)
		s := stream.New().WithMaxGoroutines(l.opts.NumWorkers)
		for _, chunk := range chunks {
			if ctx.Err() != nil {
				break
			}
			s.Go(func() stream.Callback {
				b, err := l.collate(chunk)
				return func() {
					select {
					case results <- collated{batch: b, err: err}:
					case <-ctx.Done():
					}
				}
			})
		}
		s.Wait()
	}()

	for r := range results {
		if r.err != nil {
			yield(nil, r.err)
			return
		}
		if !yield(r.batch, nil) {
			return
		}
	}
	if err := ctx.Err(); err != nil {
		yield(nil, err)
	}
}

func (l *Loader) collate(chunk []int) (*dataset.Batch, error) {
	examples := make([]dataset.Example[[]int], len(chunk))
	for i, idx := range chunk {
		e, err := l.src.Get(idx)
		if err != nil {
			return nil, fmt.Errorf("%s batch: %w", l.opts.Name, err)
		}
		examples[i] = e
	}
	b := dataset.CollateExamples(examples, l.opts.Pad)
	b.PinMemory = l.opts.PinMemory
	return b, nil
}
