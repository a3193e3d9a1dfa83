// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ringbuf

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(n int, start byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = start + byte(i)
	}
	return out
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	b := New()
	data := seq(100, 1)
	b.Write(data)
	assert.Equal(t, 100, b.Len())
	assert.Equal(t, data, b.Read(100))
	assert.Equal(t, 0, b.Len())
}

func TestReadMoreThanAvailableReturnsAll(t *testing.T) {
	b := New()
	b.Write([]byte("abc"))
	assert.Equal(t, []byte("abc"), b.Read(10))
	assert.Empty(t, b.Read(10))
	assert.Empty(t, b.ReadAll())
}

func TestGrowthFromMinimumSize(t *testing.T) {
	b := New()
	b.Write([]byte{1})
	assert.Equal(t, 2*MinSize, b.Cap())

	// Exceed current capacity in one write.
	big := seq(5000, 7)
	b.Write(big)
	require.GreaterOrEqual(t, b.Cap(), 5001)
	assert.Equal(t, []byte{1}, b.Read(1))
	assert.Equal(t, big, b.Read(-1))
}

func TestWrapAroundPreservesOrder(t *testing.T) {
	b := New()
	b.Write(seq(1500, 0))
	capBefore := b.Cap()
	_ = b.Read(1200)

	// Fits in remaining capacity but crosses the end of storage.
	chunk := seq(1000, 50)
	b.Write(chunk)
	assert.Equal(t, capBefore, b.Cap(), "no growth expected")

	got := b.ReadAll()
	want := append(seq(1500, 0)[1200:], chunk...)
	assert.Equal(t, want, got)
}

func TestGrowthWhileWrappedKeepsOrder(t *testing.T) {
	b := New()
	b.Write(seq(2000, 0))
	_ = b.Read(1900)
	b.Write(seq(90, 100)) // wraps
	b.Write(seq(3000, 9)) // forces growth while wrapped

	want := append(append(seq(2000, 0)[1900:], seq(90, 100)...), seq(3000, 9)...)
	assert.Equal(t, want, b.ReadAll())
}

func TestRandomisedAgainstReference(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	b := New()
	var ref bytes.Buffer

	for i := 0; i < 2000; i++ {
		if rng.Intn(2) == 0 {
			chunk := make([]byte, rng.Intn(3000))
			rng.Read(chunk)
			b.Write(chunk)
			ref.Write(chunk)
		} else {
			n := rng.Intn(4000)
			want := ref.Next(n)
			got := b.Read(n)
			require.True(t, bytes.Equal(want, got), "iteration %d: want %d bytes, got %d", i, len(want), len(got))
		}
		require.Equal(t, ref.Len(), b.Len())
		require.LessOrEqual(t, b.Len(), b.Cap())
	}
}

func TestReadEmptyReturnsEmptySlice(t *testing.T) {
	b := New()
	got := b.Read(16)
	require.NotNil(t, got)
	require.Empty(t, got)

	var ref bytes.Buffer
	require.True(t, bytes.Equal(ref.Next(16), got), "nil and empty compare equal by content")
}
