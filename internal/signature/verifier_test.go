package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerify_ValidSignature(t *testing.T) {
	body := []byte(`{"entry":[]}`)
	v := NewVerifier("test-secret", nil)

	assert.True(t, v.Verify(body, Sign("test-secret", body)))
}

func TestVerify_WrongSecret(t *testing.T) {
	body := []byte(`{"entry":[]}`)
	v := NewVerifier("test-secret", nil)

	assert.False(t, v.Verify(body, Sign("other-secret", body)))
}

func TestVerify_TamperedBody(t *testing.T) {
	body := []byte(`{"entry":[]}`)
	v := NewVerifier("test-secret", nil)
	header := Sign("test-secret", body)

	assert.False(t, v.Verify([]byte(`{"entry":[{}]}`), header))
}

func TestVerify_FailsClosed(t *testing.T) {
	body := []byte(`{}`)

	t.Run("missing secret", func(t *testing.T) {
		v := NewVerifier("", nil)
		assert.False(t, v.Verify(body, Sign("", body)))
	})

	t.Run("missing header", func(t *testing.T) {
		v := NewVerifier("test-secret", nil)
		assert.False(t, v.Verify(body, ""))
	})

	t.Run("missing algorithm prefix", func(t *testing.T) {
		v := NewVerifier("test-secret", nil)
		assert.False(t, v.Verify(body, "deadbeef"))
	})

	t.Run("non-hex digest", func(t *testing.T) {
		v := NewVerifier("test-secret", nil)
		assert.False(t, v.Verify(body, "sha256=not-hex-at-all"))
	})
}
