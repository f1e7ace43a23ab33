package proxy

import (
	"context"
	"errors"
	"fmt"

	enclave "github.com/jonwraymond/enclavejs"
	"github.com/jonwraymond/tooldocs"
)

// Serve is the host-side counterpart to Gateway: it reads request messages
// off conn in a loop and dispatches each one to gw, the real ToolGateway,
// replying with MsgResponse or MsgError carrying the same request ID. This
// is what an isolated backend's proxy.Gateway talks to on the other end of
// the connection.
//
// Serve blocks until ctx is done, conn is closed, or Receive returns a
// non-recoverable error. It is safe to run Serve in its own goroutine per
// connection.
func Serve(ctx context.Context, conn Connection, gw enclave.ToolGateway) error {
	for {
		msg, err := conn.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrConnectionClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("proxy: serve: receive: %w", err)
		}

		go dispatch(ctx, conn, gw, msg)
	}
}

func dispatch(ctx context.Context, conn Connection, gw enclave.ToolGateway, msg Message) {
	reply, err := handle(ctx, gw, msg)
	if err != nil {
		_ = conn.Send(ctx, Message{
			Type:    MsgError,
			ID:      msg.ID,
			Payload: map[string]any{"error": err.Error()},
		})
		return
	}
	_ = conn.Send(ctx, Message{Type: MsgResponse, ID: msg.ID, Payload: reply})
}

func handle(ctx context.Context, gw enclave.ToolGateway, msg Message) (map[string]any, error) {
	switch msg.Type {
	case MsgSearchTools:
		query := getString(msg.Payload, "query")
		limit, _ := msg.Payload["limit"].(float64)
		results, err := gw.SearchTools(ctx, query, int(limit))
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(results))
		for _, s := range results {
			out = append(out, map[string]any{
				"id": s.ID, "name": s.Name, "namespace": s.Namespace,
				"shortDescription": s.ShortDescription, "tags": s.Tags,
			})
		}
		return map[string]any{"results": out}, nil

	case MsgListNamespaces:
		namespaces, err := gw.ListNamespaces(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"namespaces": namespaces}, nil

	case MsgDescribeTool:
		id := getString(msg.Payload, "id")
		level := getString(msg.Payload, "level")
		doc, err := gw.DescribeTool(ctx, id, tooldocs.DetailLevel(level))
		if err != nil {
			return nil, err
		}
		return map[string]any{"summary": doc.Summary, "notes": doc.Notes}, nil

	case MsgListToolExamples:
		id := getString(msg.Payload, "id")
		max, _ := msg.Payload["max"].(float64)
		examples, err := gw.ListToolExamples(ctx, id, int(max))
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(examples))
		for _, ex := range examples {
			out = append(out, map[string]any{
				"id": ex.ID, "title": ex.Title, "description": ex.Description,
				"resultHint": ex.ResultHint, "args": ex.Args,
			})
		}
		return map[string]any{"examples": out}, nil

	case MsgRunTool:
		id := getString(msg.Payload, "id")
		args, _ := msg.Payload["args"].(map[string]any)
		result, err := gw.RunTool(ctx, id, args)
		if err != nil {
			return nil, err
		}
		return map[string]any{"structured": result.Structured}, nil

	case MsgRunChain:
		return nil, fmt.Errorf("proxy: serve: run_chain not supported over the wire")

	default:
		return nil, fmt.Errorf("proxy: serve: unknown message type %q", msg.Type)
	}
}
