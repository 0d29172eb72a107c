package storage

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStorePutGet(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	key, err := s.Put("data/leyes/CE.json", strings.NewReader(`[]`))
	require.NoError(t, err)
	assert.Equal(t, "data/leyes/CE.json", key)

	rc, err := s.Get("data/leyes/CE.json")
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))
}

func TestFSStoreRejectsEscapingKeys(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	for _, k := range []string{"", "../secret.json", "a/../../b"} {
		_, err := s.Get(k)
		assert.True(t, errors.Is(err, ErrInvalidKey), "key %q: %v", k, err)
	}
}
