package trace_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"post-digest/cmd/internal/trace"
)

func TestRequestIDRoundTrip(t *testing.T) {
	assert.Equal(t, "", trace.RequestIDFromContext(context.Background()))

	id := trace.GenerateID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	ctx := trace.WithRequestID(context.Background(), id)
	assert.Equal(t, id, trace.RequestIDFromContext(ctx))
	assert.NotEqual(t, id, trace.GenerateID())
}
