// Package context carries correlation fields used by structured logs.
package context

import (
	"context"
	"strings"
)

type ctxKey int

const (
	runIDKey ctxKey = iota
	actorKey
	creatorIDKey
)

type actor struct {
	typ string
	id  string
}

func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, strings.TrimSpace(runID))
}

func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(runIDKey).(string)
	return v
}

// WithActor records who initiated the work, e.g. ("system", "scheduler") or
// ("admin", "<id>").
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey, actor{
		typ: strings.TrimSpace(actorType),
		id:  strings.TrimSpace(actorID),
	})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	a, _ := ctx.Value(actorKey).(actor)
	return a.typ, a.id
}

func WithCreatorID(ctx context.Context, creatorID string) context.Context {
	return context.WithValue(ctx, creatorIDKey, strings.TrimSpace(creatorID))
}

func CreatorIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(creatorIDKey).(string)
	return v
}
