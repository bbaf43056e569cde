package game

// Encoding layout: (H, W, C) with five channels per cell.
//
//	0: black stone
//	1: white stone
//	2: empty
//	3: black to move (broadcast)
//	4: white to move (broadcast)
const (
	Channels    = 5
	EncodedSize = Cells * Channels
)

// Encode returns a freshly allocated network input for the position.
func (s *State) Encode() []float32 {
	out := make([]float32, EncodedSize)
	s.EncodeInto(out)
	return out
}

// EncodeInto writes the network input into dst, which must hold EncodedSize floats.
func (s *State) EncodeInto(dst []float32) {
	dst = dst[:EncodedSize]
	clear(dst)

	blackTurn, whiteTurn := float32(1), float32(0)
	if s.ToMove() == White {
		blackTurn, whiteTurn = 0, 1
	}

	for i, c := range s.board {
		base := i * Channels
		switch c {
		case Black:
			dst[base] = 1
		case White:
			dst[base+1] = 1
		default:
			dst[base+2] = 1
		}
		dst[base+3] = blackTurn
		dst[base+4] = whiteTurn
	}
}
