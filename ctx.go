package authstate

import "context"

var stateCtxKey = &contextKey{"state"}
var recordCtxKey = &contextKey{"record"}

type contextKey struct {
	name string
}

// WithStateContext sets the auth State in the given context
func WithStateContext(ctx context.Context, state State) context.Context {
	return context.WithValue(ctx, stateCtxKey, state)
}

// StateFromContext finds the auth State from the context.
func StateFromContext(ctx context.Context) (State, bool) {
	raw, ok := ctx.Value(stateCtxKey).(State)
	return raw, ok
}

// WithRecordContext sets the UserRecord in the given context
func WithRecordContext(ctx context.Context, record *UserRecord) context.Context {
	return context.WithValue(ctx, recordCtxKey, record)
}

// RecordFromContext finds the user record from the context.
func RecordFromContext(ctx context.Context) (*UserRecord, bool) {
	raw, ok := ctx.Value(recordCtxKey).(*UserRecord)
	return raw, ok
}
