package blob

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLimitReaderUnderLimit(t *testing.T) {
	r := LimitReader(strings.NewReader("hello"), 10)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestLimitReaderExactLimit(t *testing.T) {
	r := LimitReader(strings.NewReader("hello"), 5)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestLimitReaderOverLimit(t *testing.T) {
	r := LimitReader(strings.NewReader("hello world"), 5)
	_, err := io.ReadAll(r)
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestLimitReaderEmpty(t *testing.T) {
	r := LimitReader(strings.NewReader(""), 0)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Empty(t, data)

	r = LimitReader(strings.NewReader("x"), 0)
	_, err = io.ReadAll(r)
	require.ErrorIs(t, err, ErrTooLarge)
}
