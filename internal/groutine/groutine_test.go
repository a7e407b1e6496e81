package groutine

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGoNamesContext(t *testing.T) {
	names := make(chan string, 1)
	Go(nil, "worker-42", func(ctx context.Context) {
		names <- Name(ctx)
	})
	assert.Equal(t, "worker-42", <-names)

	assert.Equal(t, "", Name(context.Background()))
	assert.Equal(t, "", Name(nil)) //nolint:staticcheck
}

func TestGroupWaitsForAll(t *testing.T) {
	var g Group
	var done atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())

	for i := 0; i < 5; i++ {
		g.Go(ctx, "waiter", func(ctx context.Context) {
			<-ctx.Done()
			done.Add(1)
		})
	}
	cancel()
	g.Wait()

	assert.Equal(t, int32(5), done.Load())
}
