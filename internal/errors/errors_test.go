package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorBuilder(t *testing.T) {
	t.Run("DefaultsAppliedWhenUnset", func(t *testing.T) {
		ee := New(NewStd("boom")).Build()

		assert.Equal(t, ComponentUnknown, ee.Component)
		assert.Equal(t, CategoryGeneric, ee.Category)
		assert.NotZero(t, ee.Timestamp)
	})

	t.Run("MetadataPreserved", func(t *testing.T) {
		ee := New(NewStd("lock held")).
			Component("dataset").
			Category(CategoryLockTimeout).
			Context("path", "/tmp/data.csv").
			Context("attempts", 10).
			Build()

		assert.Equal(t, "dataset", ee.Component)
		assert.Equal(t, CategoryLockTimeout, ee.Category)
		assert.Equal(t, "/tmp/data.csv", ee.Context["path"])
		assert.Equal(t, 10, ee.Context["attempts"])
	})
}

func TestErrorUnwrapping(t *testing.T) {
	base := NewStd("root cause")
	wrapped := fmt.Errorf("outer: %w", base)
	ee := New(wrapped).Category(CategoryDatabase).Build()

	require.ErrorIs(t, ee, base)
	assert.Equal(t, "outer: root cause", ee.Error())
}

func TestIsCategory(t *testing.T) {
	ee := New(NewStd("missing")).Category(CategoryNotFound).Build()

	assert.True(t, IsCategory(ee, CategoryNotFound))
	assert.False(t, IsCategory(ee, CategoryDatabase))
	assert.True(t, IsNotFound(ee))

	// Category matching survives another layer of wrapping.
	outer := fmt.Errorf("handler: %w", ee)
	assert.True(t, IsNotFound(outer))
}

func TestCategoryMatchingViaIs(t *testing.T) {
	a := New(NewStd("a")).Category(CategoryValidation).Build()
	b := New(NewStd("b")).Category(CategoryValidation).Build()
	c := New(NewStd("c")).Category(CategoryDatabase).Build()

	assert.True(t, Is(a, b), "same category should match")
	assert.False(t, Is(a, c), "different category should not match")
}
