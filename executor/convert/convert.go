package convert

import (
	"sync"

	"github.com/brensch/gomokuzero/game"
)

const (
	Width     = game.Dimension
	Height    = game.Dimension
	Channels  = game.Channels
	FloatSize = Channels * Width * Height
)

var floatPool = sync.Pool{
	New: func() interface{} {
		b := make([]float32, FloatSize)
		return &b
	},
}

// GetFloatBuffer returns a FloatSize buffer from the pool.
func GetFloatBuffer() *[]float32 {
	return floatPool.Get().(*[]float32)
}

// PutFloatBuffer returns a buffer to the pool.
func PutFloatBuffer(b *[]float32) {
	floatPool.Put(b)
}

// StateToFloat32 encodes the position into a pooled float32 slice.
// Output shape: [Height, Width, Channels] (H, W, C), matching game.State.EncodeInto.
// Caller must return it to the pool using PutFloatBuffer.
func StateToFloat32(state *game.State) *[]float32 {
	dataPtr := GetFloatBuffer()
	state.EncodeInto(*dataPtr)
	return dataPtr
}

// HWCToCHW transposes an (H, W, C) encoding into (C, H, W) for models exported
// channels-first. dst and src must both hold FloatSize floats.
func HWCToCHW(dst, src []float32) {
	_ = dst[FloatSize-1]
	_ = src[FloatSize-1]
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			cell := (y*Width + x) * Channels
			for c := 0; c < Channels; c++ {
				dst[c*Height*Width+y*Width+x] = src[cell+c]
			}
		}
	}
}
