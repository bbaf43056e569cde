package convert

import (
	"testing"

	"github.com/brensch/gomokuzero/game"
	"github.com/stretchr/testify/require"
)

func TestStateToFloat32(t *testing.T) {
	state := game.New()
	_, err := state.Apply(2, 3)
	require.NoError(t, err)

	ptr := StateToFloat32(state)
	defer PutFloatBuffer(ptr)

	require.Equal(t, state.Encode(), *ptr, "pooled encoding should match the direct encoding")
}

func TestStateToFloat32ReusesDirtyBuffers(t *testing.T) {
	dirty := GetFloatBuffer()
	for i := range *dirty {
		(*dirty)[i] = 9
	}
	PutFloatBuffer(dirty)

	state := game.New()
	ptr := StateToFloat32(state)
	defer PutFloatBuffer(ptr)

	require.Equal(t, state.Encode(), *ptr)
}

func TestHWCToCHW(t *testing.T) {
	state := game.New()
	_, err := state.Apply(4, 9)
	require.NoError(t, err)
	hwc := state.Encode()

	chw := make([]float32, FloatSize)
	HWCToCHW(chw, hwc)

	plane := func(c int) []float32 {
		return chw[c*Height*Width : (c+1)*Height*Width]
	}
	require.Equal(t, float32(1), plane(0)[4*Width+9], "black stone plane")
	require.Equal(t, float32(0), plane(2)[4*Width+9], "empty plane at the stone")
	require.Equal(t, float32(1), plane(2)[0], "empty plane elsewhere")
	for _, v := range plane(4) {
		require.Equal(t, float32(1), v, "white-to-move plane is broadcast")
	}
}

func BenchmarkStateToFloat32(b *testing.B) {
	state := game.New()
	for _, m := range []game.Move{{Row: 7, Col: 7}, {Row: 7, Col: 8}, {Row: 8, Col: 8}, {Row: 6, Col: 6}} {
		if _, err := state.Apply(m.Row, m.Col); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ptr := StateToFloat32(state)
		PutFloatBuffer(ptr)
	}
}
