// Package kit holds the small shared transport helpers: the Endpoint
// signature, request-scoped context keys, and MCP tool registration.
package kit

import "context"

// Endpoint is a transport-agnostic service method: typed request in,
// typed response out. HTTP handlers and MCP tools both terminate here.
type Endpoint func(ctx context.Context, request any) (response any, err error)

type contextKey string

const (
	RequestIDKey contextKey = "kit_request_id"
	TransportKey contextKey = "kit_transport" // "http", "mcp"
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(RequestIDKey).(string)
	return v
}

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}

func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "http"
}
