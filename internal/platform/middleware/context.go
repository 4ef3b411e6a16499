package middleware

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	actorKey
	clientInfoKey
)

// GetRequestID returns the request correlation ID, or empty string.
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithActor stamps the authenticated operator identity onto the context.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor returns the authenticated operator identity, or empty string.
func GetActor(ctx context.Context) string {
	v, _ := ctx.Value(actorKey).(string)
	return v
}

// ClientInfo describes the operator's client, parsed from the User-Agent
// header. Recorded in audit details so an operator action can be traced back
// to a workstation during incident review.
type ClientInfo struct {
	Browser string
	OS      string
	Mobile  bool
	Raw     string
}

// GetClientInfo returns the parsed client metadata, or the zero value.
func GetClientInfo(ctx context.Context) ClientInfo {
	v, _ := ctx.Value(clientInfoKey).(ClientInfo)
	return v
}
