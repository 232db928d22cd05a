package user_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/flagsync/pkg/user"
)

func TestUserJSON(t *testing.T) {
	t.Parallel()

	u := user.User{Key: "u-1", Email: "a@b.c", Custom: map[string]any{"z": 1, "a": "x"}}
	b, err := u.JSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"u-1","email":"a@b.c","custom":{"a":"x","z":1}}`, string(b))
	assert.Equal(t, `{"key":"u-1","email":"a@b.c","custom":{"a":"x","z":1}}`, string(b))
}

func TestUserBase64(t *testing.T) {
	t.Parallel()

	u := user.User{Key: "u-1"}
	enc, err := u.Base64()
	require.NoError(t, err)
	assert.NotContains(t, enc, "=")

	raw, err := base64.RawURLEncoding.DecodeString(enc)
	require.NoError(t, err)
	assert.Equal(t, `{"key":"u-1"}`, string(raw))
}

func TestUserHash(t *testing.T) {
	t.Parallel()

	a := user.User{Key: "u-1", Custom: map[string]any{"x": 1, "y": 2}}
	b := user.User{Key: "u-1", Custom: map[string]any{"y": 2, "x": 1}}
	c := user.User{Key: "u-2"}

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, _ := b.Hash()
	hc, _ := c.Hash()

	assert.Len(t, ha, 64)
	assert.Equal(t, ha, hb)
	assert.NotEqual(t, ha, hc)
}

func TestWithDefaultKey(t *testing.T) {
	t.Parallel()

	anon := user.User{Name: "guest"}.WithDefaultKey("install-1")
	assert.Equal(t, "install-1", anon.Key)
	assert.True(t, anon.Anonymous)
	assert.Equal(t, "guest", anon.Name)

	known := user.User{Key: "u-1"}.WithDefaultKey("install-1")
	assert.Equal(t, "u-1", known.Key)
	assert.False(t, known.Anonymous)
}
