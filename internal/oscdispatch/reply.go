package oscdispatch

import (
	"context"
	"sync"

	"github.com/hypebeast/go-osc/osc"

	"github.com/trusch/vibelang/internal/apierr"
)

// ReplyListener is the out-of-band request/reply channel spec.md §4.5
// calls for separately from the fire-and-forget audio path ("Out-of-band
// queries (sample loaded?) use a separate request/reply channel with a
// deadline and surface a typed error on timeout"). scsynth answers
// /b_allocRead and /d_recv with a /done message carrying the original
// command name as its first argument; ReplyListener correlates those
// against callers waiting on WaitForDone.
type ReplyListener struct {
	server *osc.Server

	mu      sync.Mutex
	waiters map[string][]chan struct{}
}

// NewReplyListener binds addr (e.g. ":57111", the port the engine is
// configured to reply to) and starts serving in the background.
func NewReplyListener(addr string) *ReplyListener {
	rl := &ReplyListener{waiters: map[string][]chan struct{}{}}
	d := osc.NewStandardDispatcher()
	_ = d.AddMsgHandler("/done", func(msg *osc.Message) {
		if len(msg.Arguments) == 0 {
			return
		}
		cmd, ok := msg.Arguments[0].(string)
		if !ok {
			return
		}
		rl.signal(cmd)
	})
	rl.server = &osc.Server{Addr: addr, Dispatcher: d}
	go func() {
		_ = rl.server.ListenAndServe()
	}()
	return rl
}

func (rl *ReplyListener) signal(cmd string) {
	rl.mu.Lock()
	chans := rl.waiters[cmd]
	delete(rl.waiters, cmd)
	rl.mu.Unlock()
	for _, ch := range chans {
		close(ch)
	}
}

// WaitForDone blocks until a /done reply naming cmd arrives or ctx is
// done, surfacing a BackendError on timeout
// (spec.md: "surface a typed error on timeout").
func (rl *ReplyListener) WaitForDone(ctx context.Context, cmd string) error {
	ch := make(chan struct{})
	rl.mu.Lock()
	rl.waiters[cmd] = append(rl.waiters[cmd], ch)
	rl.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return apierr.BackendError("oscdispatch: timed out waiting for /done %s: %v", cmd, ctx.Err())
	}
}
