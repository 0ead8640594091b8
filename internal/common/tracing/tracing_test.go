package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStart_WithoutSegment(t *testing.T) {
	ctx := context.Background()

	got, end := Start(ctx, "Test.Op")
	assert.Equal(t, ctx, got)
	assert.NotPanics(t, func() { end(errors.New("boom")) })
	assert.NotPanics(t, func() { Annotate(got, "key", "value") })
}
