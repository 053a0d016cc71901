package sha256

import (
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"
)

func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash(strings.NewReader("hello world"))
	require.NoError(t, err)
	require.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", got)

	again, err := h.Hash(strings.NewReader("hello world"))
	require.NoError(t, err)
	require.Equal(t, got, again)
}

func TestHasherHashReadError(t *testing.T) {
	t.Parallel()

	_, err := New().Hash(iotest.ErrReader(errors.New("disk gone")))
	require.Error(t, err)
}
