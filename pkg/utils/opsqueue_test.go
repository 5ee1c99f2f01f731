package utils

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpsQueue(t *testing.T) {
	t.Run("runs operations in order", func(t *testing.T) {
		oq := NewOpsQueue(OpsQueueParams{Name: "test", Size: 16})
		oq.Start()
		defer oq.Stop()

		var mu sync.Mutex
		var got []int
		for i := 0; i < 10; i++ {
			i := i
			require.True(t, oq.Enqueue(func() {
				mu.Lock()
				got = append(got, i)
				mu.Unlock()
			}))
		}

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(got) == 10
		}, time.Second, 5*time.Millisecond)
		require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
	})

	t.Run("drops after stop", func(t *testing.T) {
		oq := NewOpsQueue(OpsQueueParams{Name: "test", Size: 1})
		oq.Start()
		done := oq.Stop()
		require.False(t, oq.Enqueue(func() {}))

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("queue did not stop")
		}
	})

	t.Run("drops when full", func(t *testing.T) {
		oq := NewOpsQueue(OpsQueueParams{Name: "test", Size: 1})
		// not started, nothing drains the queue
		require.True(t, oq.Enqueue(func() {}))
		require.False(t, oq.Enqueue(func() {}))
		<-oq.Stop()
	})

	t.Run("flush on stop", func(t *testing.T) {
		oq := NewOpsQueue(OpsQueueParams{Name: "test", Size: 4, FlushOnStop: true})
		block := make(chan struct{})
		var ran sync.WaitGroup
		ran.Add(2)
		oq.Start()
		oq.Enqueue(func() {
			<-block
			ran.Done()
		})
		oq.Enqueue(ran.Done)
		done := oq.Stop()
		close(block)
		ran.Wait()
		<-done
	})
}
