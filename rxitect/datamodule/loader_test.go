package datamodule

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/rxitect/rxitect/dataset"
)

func collect(t *testing.T, l *Loader, ctx context.Context) []*dataset.Batch {
	t.Helper()
	var batches []*dataset.Batch
	for b, err := range l.Epoch(ctx) {
		require.NoError(t, err)
		batches = append(batches, b)
	}
	return batches
}

func rowOrder(batches []*dataset.Batch) []int {
	var idxs []int
	for _, b := range batches {
		idxs = append(idxs, b.Indices...)
	}
	return idxs
}

func TestLoaderBatches(t *testing.T) {
	m := newReady(t, testConfig(fixturePath(t, 100)))
	splits, err := m.Splits()
	require.NoError(t, err)
	tok, err := m.Tokenizer()
	require.NoError(t, err)

	val, err := m.ValLoader()
	require.NoError(t, err)
	assert.Equal(t, "val", val.Name())
	assert.Equal(t, 20, val.Size())
	assert.Equal(t, 3, val.Len())

	batches := collect(t, val, context.Background())
	require.Len(t, batches, 3)
	assert.Equal(t, []int{8, 8, 4}, []int{batches[0].Size(), batches[1].Size(), batches[2].Size()})
	assert.Equal(t, splits[1].Indices, rowOrder(batches))
	assert.Equal(t, splits[1].Indices, rowOrder(collect(t, val, context.Background())))

	for _, b := range batches {
		assert.Equal(t, tok.PadIndex(), b.Pad)
		assert.False(t, b.PinMemory)
		for i, row := range b.IDs {
			assert.Equal(t, tok.StartIndex(), row[0])
			assert.Equal(t, tok.EndIndex(), row[b.Lengths[i]-1])
			for _, id := range row[b.Lengths[i]:] {
				assert.Equal(t, tok.PadIndex(), id)
			}
		}
	}
}

func TestLoaderShuffle(t *testing.T) {
	cfg := testConfig(fixturePath(t, 100))
	m := newReady(t, cfg)
	splits, err := m.Splits()
	require.NoError(t, err)
	train, err := m.TrainLoader()
	require.NoError(t, err)

	first := rowOrder(collect(t, train, context.Background()))
	second := rowOrder(collect(t, train, context.Background()))
	assert.ElementsMatch(t, splits[0].Indices, first)
	assert.ElementsMatch(t, splits[0].Indices, second)
	assert.NotEqual(t, first, second)

	replay, err := newReady(t, cfg).TrainLoader()
	require.NoError(t, err)
	assert.Equal(t, first, rowOrder(collect(t, replay, context.Background())))
	assert.Equal(t, second, rowOrder(collect(t, replay, context.Background())))
}

func TestLoaderWorkers(t *testing.T) {
	path := fixturePath(t, 100)
	sequential := newReady(t, testConfig(path))

	cfg := testConfig(path)
	cfg.NumWorkers = 3
	cfg.PinMemory = true
	concurrent := newReady(t, cfg)

	for _, name := range []string{"train", "val", "test"} {
		t.Run(name, func(t *testing.T) {
			a, b := loaderByName(t, sequential, name), loaderByName(t, concurrent, name)
			want := collect(t, a, context.Background())
			got := collect(t, b, context.Background())
			require.Len(t, got, len(want))
			for i := range want {
				assert.Equal(t, want[i].IDs, got[i].IDs)
				assert.Equal(t, want[i].Indices, got[i].Indices)
				assert.True(t, got[i].PinMemory)
			}
		})
	}
}

func loaderByName(t *testing.T, m *Module, name string) *Loader {
	t.Helper()
	var (
		l   *Loader
		err error
	)
	switch name {
	case "train":
		l, err = m.TrainLoader()
	case "val":
		l, err = m.ValLoader()
	default:
		l, err = m.TestLoader()
	}
	require.NoError(t, err)
	return l
}

func TestLoaderEarlyStop(t *testing.T) {
	for _, workers := range []int{0, 2} {
		l := NewLoader(newNumberSource(50), LoaderOptions{Name: "train", BatchSize: 4, NumWorkers: workers, Logger: zerolog.Nop()})
		seen := 0
		for b, err := range l.Epoch(context.Background()) {
			require.NoError(t, err)
			assert.Equal(t, 4, b.Size())
			seen++
			if seen == 2 {
				break
			}
		}
		assert.Equal(t, 2, seen, "workers %d", workers)
	}
}

func TestLoaderCancelled(t *testing.T) {
	for _, workers := range []int{0, 2} {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		l := NewLoader(newNumberSource(10), LoaderOptions{BatchSize: 3, NumWorkers: workers})
		var errs []error
		for _, err := range l.Epoch(ctx) {
			if err != nil {
				errs = append(errs, err)
			}
		}
		require.Len(t, errs, 1, "workers %d", workers)
		assert.ErrorIs(t, errs[0], context.Canceled)
	}
}

func TestLoaderItemError(t *testing.T) {
	for _, workers := range []int{0, 3} {
		src := newNumberSource(20)
		src.fail = 9
		l := NewLoader(src, LoaderOptions{Name: "test", BatchSize: 4, NumWorkers: workers})

		var good, failures, afterFailure int
		var failure error
		for b, err := range l.Epoch(context.Background()) {
			if err != nil {
				failure = err
				failures++
				continue
			}
			if failure != nil {
				afterFailure++
			}
			good += b.Size()
		}
		assert.Equal(t, 8, good, "workers %d", workers)
		assert.Equal(t, 1, failures, "workers %d", workers)
		assert.Zero(t, afterFailure, "workers %d", workers)
		require.ErrorIs(t, failure, errBrokenRow)
		assert.Contains(t, failure.Error(), "test batch")
	}
}

func TestLoaderDefaults(t *testing.T) {
	l := NewLoader(newNumberSource(5), LoaderOptions{})
	assert.Equal(t, 1, l.Len())
	batches := collect(t, l, context.Background())
	require.Len(t, batches, 1)
	assert.Equal(t, 5, batches[0].Size())

	empty := NewLoader(newNumberSource(0), LoaderOptions{BatchSize: 4})
	assert.Equal(t, 0, empty.Len())
	assert.Empty(t, collect(t, empty, context.Background()))
}

var errBrokenRow = errors.New("broken row")

// numberSource serves row i as the sequence [i+1]; row fail, when set,
// fails.
type numberSource struct {
	n    int
	fail int
}

func newNumberSource(n int) *numberSource { return &numberSource{n: n, fail: -1} }

func (s *numberSource) Len() int { return s.n }

func (s *numberSource) Get(i int) (dataset.Example[[]int], error) {
	if i == s.fail {
		return dataset.Example[[]int]{}, errBrokenRow
	}
	return dataset.Example[[]int]{Index: i, Input: []int{i + 1}}, nil
}
