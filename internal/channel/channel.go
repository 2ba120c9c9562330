// Package channel models the request/response links between the controller,
// the extractor and the orchestrator. Each side only sees Send, so any side
// can be replaced by a fake in tests.
package channel

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// Channel delivers one request and waits for its response.
type Channel[Req, Resp any] interface {
	Send(ctx context.Context, req Req) (Resp, error)
}

// Func adapts a handler function to a Channel.
type Func[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

func (f Func[Req, Resp]) Send(ctx context.Context, req Req) (Resp, error) {
	return f(ctx, req)
}

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Isolated forwards through Next after serialising the request and the
// response, so neither side can retain a reference into the other's values.
// This mirrors message passing between separate execution contexts.
type Isolated[Req, Resp any] struct {
	Next Channel[Req, Resp]
}

func (c Isolated[Req, Resp]) Send(ctx context.Context, req Req) (Resp, error) {
	var zero Resp
	if c.Next == nil {
		return zero, fmt.Errorf("channel: no receiver")
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	var inbound Req
	if err := roundTrip(req, &inbound); err != nil {
		return zero, fmt.Errorf("channel: encode request: %w", err)
	}
	resp, err := c.Next.Send(ctx, inbound)
	if err != nil {
		return zero, err
	}
	var outbound Resp
	if err := roundTrip(resp, &outbound); err != nil {
		return zero, fmt.Errorf("channel: encode response: %w", err)
	}
	return outbound, nil
}

func roundTrip(in any, out any) error {
	b, err := codec.Marshal(in)
	if err != nil {
		return err
	}
	return codec.Unmarshal(b, out)
}
