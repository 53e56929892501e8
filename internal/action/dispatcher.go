package action

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"github.com/lyra-voice/lyra/internal/observe"
)

// Opener is the external-view collaborator. Implementations open the
// URL in whatever surface the host provides (browser tab, webview).
type Opener interface {
	OpenExternalView(url string) error
}

// ack is the fixed acknowledgement returned for every dispatched call.
const ack = `{"result":"Success"}`

// Dispatcher executes action descriptors against an Opener.
//
// Dispatch never fails the conversational turn: unknown kinds are
// acknowledged without opening anything, and opener failures are
// logged and swallowed. The model only ever sees a success payload.
type Dispatcher struct {
	opener  Opener
	metrics *observe.Metrics
}

// NewDispatcher creates a Dispatcher opening views through opener.
// metrics may be nil.
func NewDispatcher(opener Opener, metrics *observe.Metrics) *Dispatcher {
	return &Dispatcher{opener: opener, metrics: metrics}
}

// Dispatch performs d and returns the JSON acknowledgement payload.
// At most one view is opened per call.
func (d *Dispatcher) Dispatch(ctx context.Context, desc Descriptor) string {
	status := "ok"
	defer func() {
		if d.metrics != nil {
			d.metrics.ToolCalls.Add(ctx, 1, metric.WithAttributes(
				observe.Attr("tool", desc.Kind.String()),
				observe.Attr("status", status),
			))
		}
	}()

	u, ok := desc.URL()
	if !ok {
		status = "unknown"
		slog.Warn("action: unknown kind acknowledged without dispatch", "query", desc.Query)
		return ack
	}

	if err := d.opener.OpenExternalView(u); err != nil {
		status = "open_failed"
		slog.Warn("action: open external view failed", "url", u, "err", err)
	}
	return ack
}

// HandleToolCall adapts Dispatch to the tool-call surface of the
// inference providers: name is the declared tool name, argsJSON the
// raw argument object. Argument parse failures degrade to an empty
// query; the call is still acknowledged.
func (d *Dispatcher) HandleToolCall(ctx context.Context, name, argsJSON string) string {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		slog.Warn("action: malformed tool arguments", "tool", name, "err", err)
	}
	return d.Dispatch(ctx, Descriptor{Kind: KindFromName(name), Query: args.Query})
}
