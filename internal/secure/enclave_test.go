package secure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_Reveal(t *testing.T) {
	t.Parallel()

	v := FromString("dataform-api-key")
	defer v.Destroy()

	got, err := v.Reveal()
	require.NoError(t, err)
	assert.Equal(t, "dataform-api-key", got)
	assert.False(t, v.Empty())
}

func TestValue_UseSeesPlaintext(t *testing.T) {
	t.Parallel()

	v := NewValue([]byte{0x00, 0xFF, 0x10})
	defer v.Destroy()

	var seen []byte
	require.NoError(t, v.Use(func(b []byte) error {
		seen = append(seen, b...)
		return nil
	}))
	assert.Equal(t, []byte{0x00, 0xFF, 0x10}, seen)
}

func TestValue_Empty(t *testing.T) {
	t.Parallel()

	for name, v := range map[string]*Value{
		"nil":        nil,
		"empty":      NewValue(nil),
		"emptyslice": FromString(""),
	} {
		t.Run(name, func(t *testing.T) {
			assert.True(t, v.Empty())
			got, err := v.Reveal()
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestValue_DestroyIsIdempotent(t *testing.T) {
	t.Parallel()

	v := FromString("git-token")
	v.Destroy()
	v.Destroy()

	_, err := v.Reveal()
	assert.ErrorIs(t, err, ErrDestroyed)
	assert.True(t, v.Empty())
}
