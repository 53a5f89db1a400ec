package oscdispatch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trusch/vibelang/internal/apierr"
)

func TestReplyListenerWaitForDoneUnblocksOnDoneMessage(t *testing.T) {
	port := listenerPort(t)
	rl := NewReplyListener(fmt.Sprintf("127.0.0.1:%d", port))

	result := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		result <- rl.WaitForDone(ctx, "/b_allocRead")
	}()

	client := osc.NewClient("127.0.0.1", port)
	// NewReplyListener starts serving asynchronously, so the first few
	// sends may land before the socket is actually bound; keep sending
	// until WaitForDone reports it got its reply.
	for i := 0; i < 100; i++ {
		msg := osc.NewMessage("/done")
		msg.Append("/b_allocRead")
		_ = client.Send(msg)
		select {
		case err := <-result:
			require.NoError(t, err)
			return
		case <-time.After(20 * time.Millisecond):
		}
	}
	t.Fatal("WaitForDone never unblocked on a matching /done message")
}

func TestReplyListenerWaitForDoneTimesOutWithoutReply(t *testing.T) {
	port := listenerPort(t)
	rl := NewReplyListener(fmt.Sprintf("127.0.0.1:%d", port))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := rl.WaitForDone(ctx, "/b_allocRead")
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindBackendError, apiErr.Kind)
}

func TestReplyListenerIgnoresDoneForADifferentCommand(t *testing.T) {
	port := listenerPort(t)
	rl := NewReplyListener(fmt.Sprintf("127.0.0.1:%d", port))

	result := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		result <- rl.WaitForDone(ctx, "/d_recv")
	}()

	client := osc.NewClient("127.0.0.1", port)
	for i := 0; i < 5; i++ {
		msg := osc.NewMessage("/done")
		msg.Append("/b_allocRead") // different command, must not satisfy the /d_recv waiter
		_ = client.Send(msg)
		time.Sleep(10 * time.Millisecond)
	}

	err := <-result
	require.Error(t, err)
}
