package compute

import (
	"context"
	"testing"

	"github.com/fxnlabs/compute-bridge/internal/bridge"
	"github.com/fxnlabs/compute-bridge/kernels"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession("cpu", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSession_VectorAdd(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	k, err := s.Compile(ctx, kernels.VecAddMSL, "vec_add")
	require.NoError(t, err)
	assert.Equal(t, "vec_add", k.String())

	const n = 256
	ha, a, err := Alloc[float32](s, n)
	require.NoError(t, err)
	hb, b, err := Alloc[float32](s, n)
	require.NoError(t, err)
	hout, out, err := Alloc[float32](s, n)
	require.NoError(t, err)

	for i := 0; i < n; i++ {
		a[i] = float32(i)
		b[i] = float32(2 * i)
	}

	require.NoError(t, k.Run(ctx, Grid{X: n, Y: 1, Z: 1}, ha, hb, hout))

	for i := 0; i < n; i++ {
		require.Equal(t, float32(3*i), out[i], "index %d", i)
	}
}

func TestSession_TypedViews(t *testing.T) {
	s := newTestSession(t)

	h, elems, err := Alloc[int32](s, 16)
	require.NoError(t, err)
	require.Len(t, elems, 16)
	elems[3] = 42

	again, err := ViewAs[int32](s, h)
	require.NoError(t, err)
	assert.Equal(t, int32(42), again[3])

	raw, err := ViewAs[uint8](s, h)
	require.NoError(t, err)
	assert.Len(t, raw, 64)
}

func TestSession_AllocErrors(t *testing.T) {
	s := newTestSession(t)

	_, _, err := Alloc[float32](s, 0)
	assert.Error(t, err)
	_, _, err = Alloc[float32](s, -4)
	assert.Error(t, err)
}

func TestSession_ReleaseInvalidatesHandles(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	k, err := s.Compile(ctx, kernels.TransferMSL, "transfer")
	require.NoError(t, err)

	h, _, err := Alloc[uint8](s, 64)
	require.NoError(t, err)
	require.NoError(t, s.Free(h))

	_, err = ViewAs[uint8](s, h)
	assert.ErrorIs(t, err, bridge.ErrNotFound)

	require.NoError(t, k.Release())
	err = k.Run(ctx, Grid{X: 1, Y: 1, Z: 1})
	assert.ErrorIs(t, err, bridge.ErrNotFound)
}

func TestSession_UnknownBackend(t *testing.T) {
	_, err := NewSession("tpu", nil)
	require.Error(t, err)
}
