package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCurrent_AbsentByDefault(t *testing.T) {
	_, ok := Current(context.Background())
	assert.False(t, ok)
}

func TestCurrent_InstalledByWithCurrent(t *testing.T) {
	lt := New(newFakePool(1), nil)
	ctx := WithCurrent(context.Background(), lt)

	got, ok := Current(ctx)
	assert.True(t, ok)
	assert.Same(t, lt, got)
}

func TestCurrent_NestingRestoresParentOnReturn(t *testing.T) {
	outer := New(newFakePool(1), nil)
	inner := New(newFakePool(1), nil)

	ctx := WithCurrent(context.Background(), outer)

	func() {
		nested := WithCurrent(ctx, inner)
		got, ok := Current(nested)
		assert.True(t, ok)
		assert.Same(t, inner, got)
	}()

	// ctx itself was never mutated by the nested call.
	got, ok := Current(ctx)
	assert.True(t, ok)
	assert.Same(t, outer, got)
}
