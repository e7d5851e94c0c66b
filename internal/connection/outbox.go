package connection

import (
	"context"
	"sync"

	"github.com/packetloom/utp/internal/engine"
)

// outbox is the engine's ProcessQueue collaborator: a queue of application
// writes bounded at depth chunks, fed by Connection.Send and drained by
// engine.Buffer.FillWindow's Fill(n) calls.
type outbox struct {
	mu        sync.Mutex
	chunks    chan []byte
	remainder []byte
}

func newOutbox(depth int) *outbox {
	return &outbox{chunks: make(chan []byte, depth)}
}

// Fill implements engine.ProcessQueue.
func (o *outbox) Fill(n int) (engine.FillOutcome, []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]byte, 0, n)
	if len(o.remainder) > 0 {
		take := o.remainder
		if len(take) > n {
			take = take[:n]
		}
		out = append(out, take...)
		o.remainder = o.remainder[len(take):]
	}

drain:
	for len(out) < n {
		select {
		case chunk := <-o.chunks:
			need := n - len(out)
			if len(chunk) > need {
				out = append(out, chunk[:need]...)
				o.remainder = append(o.remainder, chunk[need:]...)
			} else {
				out = append(out, chunk...)
			}
		default:
			break drain
		}
	}

	switch {
	case len(out) == 0:
		return engine.FillZero, nil
	case len(out) < n:
		return engine.FillPartial, out
	default:
		return engine.FillFilled, out
	}
}

// push enqueues data, blocking if the outbox is at capacity until ctx is
// done.
func (o *outbox) push(ctx context.Context, data []byte) error {
	select {
	case o.chunks <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
