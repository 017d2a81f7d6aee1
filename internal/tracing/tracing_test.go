package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_EmptyEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), "stellar-anchor", "", true)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	tracer := Tracer("test")
	_, span := tracer.Start(context.Background(), "op")
	span.End()
	assert.False(t, span.SpanContext().IsValid())
}
