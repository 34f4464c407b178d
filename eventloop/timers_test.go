package eventloop

import (
	"container/heap"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_TimerHeapOrdersByDeadline(t *testing.T) {
	base := time.Now()

	h := &timerHeap{}
	heap.Push(h, &timer{at: base.Add(3 * time.Second), seq: 1})
	heap.Push(h, &timer{at: base.Add(1 * time.Second), seq: 2})
	heap.Push(h, &timer{at: base.Add(2 * time.Second), seq: 3})

	var seqs []uint64
	for h.Len() > 0 {
		seqs = append(seqs, heap.Pop(h).(*timer).seq)
	}

	require.Equal(t, []uint64{2, 3, 1}, seqs)
}

func Test_TimerHeapStableForEqualDeadlines(t *testing.T) {
	at := time.Now()

	h := &timerHeap{}
	for seq := uint64(1); seq <= 10; seq++ {
		heap.Push(h, &timer{at: at, seq: seq})
	}

	var seqs []uint64
	for h.Len() > 0 {
		seqs = append(seqs, heap.Pop(h).(*timer).seq)
	}

	require.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, seqs)
}
