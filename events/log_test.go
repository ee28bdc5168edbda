package events

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAssignsSequence(t *testing.T) {
	l := NewLog(0)

	first := l.Append(TypePairCreated, PairCreated{})
	second := l.Append(TypeSwap, Swap{})

	assert.Equal(t, uint64(1), first.Sequence)
	assert.Equal(t, uint64(2), second.Sequence)
	assert.Equal(t, uint64(2), l.Len())
	assert.NotZero(t, first.EmittedAt)
}

func TestSnapshotFrom(t *testing.T) {
	l := NewLog(0)
	for i := 0; i < 5; i++ {
		l.Append(TypeSwap, Swap{})
	}

	all := l.Snapshot()
	require.Len(t, all, 5)
	assert.Equal(t, uint64(1), all[0].Sequence)

	tail := l.SnapshotFrom(3)
	require.Len(t, tail, 2)
	assert.Equal(t, uint64(4), tail[0].Sequence)

	assert.Nil(t, l.SnapshotFrom(5))
	assert.Nil(t, l.SnapshotFrom(99))

	// The snapshot is a copy, not a live view.
	all[0].Sequence = 42
	assert.Equal(t, uint64(1), l.Snapshot()[0].Sequence)
}

func TestSubscribeReceivesSubsequentEvents(t *testing.T) {
	l := NewLog(4)
	l.Append(TypePairCreated, PairCreated{})

	ch, cancel := l.Subscribe()
	defer cancel()

	pool := common.HexToAddress("0x01")
	l.Append(TypeSwap, Swap{Pool: pool})

	evt := <-ch
	assert.Equal(t, uint64(2), evt.Sequence)
	assert.Equal(t, TypeSwap, evt.Type)
	assert.Equal(t, pool, evt.Data.(Swap).Pool)
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	l := NewLog(1)
	_, cancel := l.Subscribe()
	defer cancel()

	l.Append(TypeSwap, Swap{})
	l.Append(TypeSwap, Swap{}) // buffer full, must not block

	assert.Equal(t, uint64(1), l.Dropped())
	// The log itself misses nothing.
	assert.Len(t, l.Snapshot(), 2)
}

func TestCancelClosesChannel(t *testing.T) {
	l := NewLog(0)
	ch, cancel := l.Subscribe()
	cancel()
	cancel() // idempotent

	_, open := <-ch
	assert.False(t, open)

	// Appends after cancel do not panic on the closed channel.
	l.Append(TypeSwap, Swap{})
}
