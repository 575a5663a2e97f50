package biometric

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goTrust/store"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, KeySize)
}

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher(testKey())
	require.NoError(t, err)

	vec := []float64{0.1, -0.25, 3.5, 0}
	sealed, integrity, err := c.Seal("acct-1", "tmpl-1", vec)
	require.NoError(t, err)
	require.Len(t, integrity, 64)

	got, err := c.Open("acct-1", "tmpl-1", sealed, integrity)
	require.NoError(t, err)
	require.Equal(t, vec, got)
}

func TestCipherBindsOwner(t *testing.T) {
	c, err := NewCipher(testKey())
	require.NoError(t, err)

	sealed, integrity, err := c.Seal("acct-1", "tmpl-1", []float64{1, 2})
	require.NoError(t, err)

	_, err = c.Open("acct-2", "tmpl-1", sealed, integrity)
	require.ErrorIs(t, err, ErrDecrypt)
	_, err = c.Open("acct-1", "tmpl-2", sealed, integrity)
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestCipherDetectsTampering(t *testing.T) {
	c, err := NewCipher(testKey())
	require.NoError(t, err)

	sealed, integrity, err := c.Seal("a", "t", []float64{1, 2, 3})
	require.NoError(t, err)

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xff
	_, err = c.Open("a", "t", tampered, integrity)
	require.ErrorIs(t, err, ErrIntegrity)

	// Matching hash but corrupted ciphertext still fails authentication.
	_, err = c.Open("a", "t", tampered, IntegrityHash(tampered))
	require.ErrorIs(t, err, ErrDecrypt)

	_, err = c.Open("a", "t", []byte{1, 2}, IntegrityHash([]byte{1, 2}))
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestNewCipherRejectsShortKey(t *testing.T) {
	_, err := NewCipher(make([]byte, 16))
	require.ErrorIs(t, err, ErrKeySize)
}

func TestDistance(t *testing.T) {
	d, err := Distance([]float64{0, 0}, []float64{3, 4})
	require.NoError(t, err)
	require.InDelta(t, 5.0, d, 1e-12)

	_, err = Distance([]float64{1}, []float64{1, 2})
	require.ErrorIs(t, err, ErrDimension)
}

func TestVectorEncoding(t *testing.T) {
	v := []float64{math.Pi, -1e-9, 42}
	got, err := DecodeVector(EncodeVector(v))
	require.NoError(t, err)
	require.Equal(t, v, got)

	_, err = DecodeVector([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidVector)

	require.False(t, Valid([]float64{1, math.NaN()}))
	require.False(t, Valid(nil))
	require.True(t, Valid([]float64{0.5}))
}

func TestStateOf(t *testing.T) {
	require.Equal(t, StateVerified, StateOf(store.Template{IsVerified: true, FailedMatches: 3}, 5))
	require.Equal(t, StatePending, StateOf(store.Template{}, 5))
	require.Equal(t, StateLocked, StateOf(store.Template{FailedMatches: 5}, 5))
}

func TestVectorExtractor(t *testing.T) {
	f, err := VectorExtractor{}.Extract(context.Background(), []byte(`[0.1, 0.2]`))
	require.NoError(t, err)
	require.Equal(t, []float64{0.1, 0.2}, f.Vector)

	_, err = VectorExtractor{}.Extract(context.Background(), []byte(`not json`))
	require.True(t, errors.Is(err, ErrNoFeatures))

	f, err = VectorExtractor{}.Extract(context.Background(), []byte(` {"vector":[1,2],"preview":"aGk="}`))
	require.NoError(t, err)
	require.Equal(t, []float64{1, 2}, f.Vector)
	require.Equal(t, []byte("hi"), f.Preview)

	_, err = VectorExtractor{}.Extract(context.Background(), []byte(`{"preview":"aGk="}`))
	require.True(t, errors.Is(err, ErrNoFeatures))
}
