package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	tests := []struct {
		name string
		with func(context.Context, string) context.Context
		get  func(context.Context) string
	}{
		{"request id", WithRequestID, RequestIDFromContext},
		{"run id", WithRunID, RunIDFromContext},
		{"job uid", WithJobUID, JobUIDFromContext},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := tt.with(context.Background(), "value-123")
			assert.Equal(t, "value-123", tt.get(ctx))
			assert.Equal(t, "", tt.get(context.Background()))
		})
	}
}

func TestContextValues_Independent(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req")
	ctx = WithRunID(ctx, "run")

	assert.Equal(t, "req", RequestIDFromContext(ctx))
	assert.Equal(t, "run", RunIDFromContext(ctx))
	assert.Equal(t, "", JobUIDFromContext(ctx))
}

func TestContextValues_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), runIDKey, 42)
	assert.Equal(t, "", RunIDFromContext(ctx))
}
