package console

import "context"

type ctxIndex int

const ctxIndexVerbose ctxIndex = iota

// SetVerbose marks ctx so commands print every received word even when a per
// batch summary was requested.
func SetVerbose(parent context.Context, value bool) context.Context {
	return context.WithValue(parent, ctxIndexVerbose, value)
}

func IsVerbose(ctx context.Context) bool {
	val, ok := ctx.Value(ctxIndexVerbose).(bool)
	return ok && val
}
