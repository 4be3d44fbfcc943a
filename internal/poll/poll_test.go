package poll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tick = time.Millisecond

// sequence answers successive queries from a script, repeating the last
// answer once the script is exhausted.
type sequence struct {
	mu      sync.Mutex
	answers []answer
	calls   int
}

type answer struct {
	ok  bool
	err error
}

func (s *sequence) next() answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.answers) {
		i = len(s.answers) - 1
	}
	s.calls++
	return s.answers[i]
}

func (s *sequence) predicate() Predicate {
	return func(context.Context) (bool, error) {
		a := s.next()
		return a.ok, a.err
	}
}

func TestAwaitState_ToleratesErrors(t *testing.T) {
	seq := &sequence{answers: []answer{
		{err: errors.New("qube not found")},
		{ok: false},
		{err: errors.New("not visible yet")},
		{ok: true},
	}}

	err := New(tick, nil).AwaitState(context.Background(), "test", seq.predicate())
	require.NoError(t, err)
	assert.Equal(t, 4, seq.calls)
}

func TestAwaitState_Immediate(t *testing.T) {
	seq := &sequence{answers: []answer{{ok: true}}}

	err := New(time.Hour, nil).AwaitState(context.Background(), "test", seq.predicate())
	require.NoError(t, err)
	assert.Equal(t, 1, seq.calls)
}

func TestAwaitState_Cancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	seq := &sequence{answers: []answer{{ok: false}}}
	err := New(tick, nil).AwaitState(ctx, "forever", seq.predicate())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "stopped waiting for forever")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestWaitForEdge_WaitsForLeadingEdge(t *testing.T) {
	// The down predicate already holds before the event starts. The wait
	// must not complete until up has been observed.
	up := &sequence{answers: []answer{{ok: false}, {ok: false}, {ok: true}}}
	down := &sequence{answers: []answer{{ok: true}}}

	err := New(tick, nil).WaitForEdge(context.Background(), "edge", up.predicate(), down.predicate())
	require.NoError(t, err)
	assert.Equal(t, 3, up.calls)
	assert.Equal(t, 1, down.calls)
}

func TestNot(t *testing.T) {
	ok, err := Not(func(context.Context) (bool, error) { return true, nil })(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = Not(func(context.Context) (bool, error) { return false, errors.New("boom") })(context.Background())
	assert.Error(t, err)
}

func TestAny(t *testing.T) {
	yes := func(context.Context) (bool, error) { return true, nil }
	no := func(context.Context) (bool, error) { return false, nil }
	broken := func(context.Context) (bool, error) { return false, errors.New("boom") }

	tests := []struct {
		name    string
		preds   []Predicate
		want    bool
		wantErr bool
	}{
		{name: "none hold", preds: []Predicate{no, no}, want: false},
		{name: "second holds", preds: []Predicate{no, yes}, want: true},
		{name: "error then holds", preds: []Predicate{broken, yes}, want: true},
		{name: "error and none hold", preds: []Predicate{broken, no}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Any(tt.preds...)(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
