package pngx

// Adam7 pass geometry: x/y starting offsets and steps of the seven
// passes. See https://www.w3.org/TR/PNG/#8Interlace
var (
	adam7IX = [7]int{0, 4, 0, 2, 0, 1, 0}
	adam7IY = [7]int{0, 0, 4, 0, 2, 0, 1}
	adam7DX = [7]int{8, 8, 4, 4, 2, 2, 1}
	adam7DY = [7]int{8, 8, 8, 4, 4, 2, 2}
)

// adam7Passes describes the seven sub-images of one interlaced image:
// their dimensions and their start offsets in the three buffer layouts
// involved (filtered with filter bytes, byte-padded lines, bit-tight).
type adam7Passes struct {
	w, h [7]int

	// filterStart[i] is the byte offset of pass i in the filtered
	// buffer, where every scanline is preceded by a filter type byte.
	filterStart [8]int
	// paddedStart[i] is the byte offset of pass i with scanlines
	// padded to whole bytes.
	paddedStart [8]int
	// start[i] is the byte offset of pass i with pixels bit-packed
	// tightly across scanlines.
	start [8]int
}

func adam7PassValues(w, h, bpp int) adam7Passes {
	var p adam7Passes
	for i := 0; i < 7; i++ {
		p.w[i] = (w + adam7DX[i] - adam7IX[i] - 1) / adam7DX[i]
		if adam7IX[i] >= w {
			p.w[i] = 0
		}
		p.h[i] = (h + adam7DY[i] - adam7IY[i] - 1) / adam7DY[i]
		if adam7IY[i] >= h {
			p.h[i] = 0
		}
	}
	for i := 0; i < 7; i++ {
		lineBytes := (p.w[i]*bpp + 7) / 8
		filterBytes := 0
		if p.w[i] > 0 && p.h[i] > 0 {
			filterBytes = p.h[i] * (1 + lineBytes)
		}
		p.filterStart[i+1] = p.filterStart[i] + filterBytes
		p.paddedStart[i+1] = p.paddedStart[i] + p.h[i]*lineBytes
		p.start[i+1] = p.start[i] + (p.h[i]*p.w[i]*bpp+7)/8
	}
	return p
}

// Bit access with the high bit first within each byte, the order PNG
// packs sub-byte pixels in.
func readBitReversed(bitPtr *int, data []byte) byte {
	b := data[*bitPtr>>3] >> (7 - *bitPtr&7) & 1
	*bitPtr++
	return b
}

func setBitReversed(bitPtr *int, data []byte, bit byte) {
	if bit != 0 {
		data[*bitPtr>>3] |= 1 << (7 - *bitPtr&7)
	} else {
		data[*bitPtr>>3] &^= 1 << (7 - *bitPtr&7)
	}
	*bitPtr++
}

// adam7Interlace scatters the linear image in (byte-padded rows) into
// the seven bit-tight pass sub-images of out.
func adam7Interlace(out, in []byte, w, h, bpp int) {
	p := adam7PassValues(w, h, bpp)
	lineBytes := (w*bpp + 7) / 8

	for i := 0; i < 7; i++ {
		if bpp >= 8 {
			byteWidth := bpp / 8
			for y := 0; y < p.h[i]; y++ {
				for x := 0; x < p.w[i]; x++ {
					src := (adam7IY[i]+y*adam7DY[i])*lineBytes + (adam7IX[i]+x*adam7DX[i])*byteWidth
					dst := p.start[i] + (y*p.w[i]+x)*byteWidth
					copy(out[dst:dst+byteWidth], in[src:src+byteWidth])
				}
			}
			continue
		}
		for y := 0; y < p.h[i]; y++ {
			for x := 0; x < p.w[i]; x++ {
				srcBit := (adam7IY[i]+y*adam7DY[i])*lineBytes*8 + (adam7IX[i]+x*adam7DX[i])*bpp
				dstBit := p.start[i]*8 + (y*p.w[i]+x)*bpp
				for b := 0; b < bpp; b++ {
					setBitReversed(&dstBit, out, readBitReversed(&srcBit, in))
				}
			}
		}
	}
}

// adam7Deinterlace gathers the seven bit-tight pass sub-images of in
// back into the linear image out (byte-padded rows).
func adam7Deinterlace(out, in []byte, w, h, bpp int) {
	p := adam7PassValues(w, h, bpp)
	lineBytes := (w*bpp + 7) / 8

	for i := 0; i < 7; i++ {
		if bpp >= 8 {
			byteWidth := bpp / 8
			for y := 0; y < p.h[i]; y++ {
				for x := 0; x < p.w[i]; x++ {
					src := p.start[i] + (y*p.w[i]+x)*byteWidth
					dst := (adam7IY[i]+y*adam7DY[i])*lineBytes + (adam7IX[i]+x*adam7DX[i])*byteWidth
					copy(out[dst:dst+byteWidth], in[src:src+byteWidth])
				}
			}
			continue
		}
		for y := 0; y < p.h[i]; y++ {
			for x := 0; x < p.w[i]; x++ {
				srcBit := p.start[i]*8 + (y*p.w[i]+x)*bpp
				dstBit := (adam7IY[i]+y*adam7DY[i])*lineBytes*8 + (adam7IX[i]+x*adam7DX[i])*bpp
				for b := 0; b < bpp; b++ {
					setBitReversed(&dstBit, out, readBitReversed(&srcBit, in))
				}
			}
		}
	}
}

// addPaddingBits converts h scanlines of inLineBits tight bits each into
// lines padded to outLineBits (a whole number of bytes), zero filling
// the tail of every line.
func addPaddingBits(out, in []byte, outLineBits, inLineBits, h int) {
	srcBit, dstBit := 0, 0
	for y := 0; y < h; y++ {
		for b := 0; b < inLineBits; b++ {
			setBitReversed(&dstBit, out, readBitReversed(&srcBit, in))
		}
		for b := inLineBits; b < outLineBits; b++ {
			setBitReversed(&dstBit, out, 0)
		}
	}
}

// removePaddingBits is the inverse of addPaddingBits.
func removePaddingBits(out, in []byte, outLineBits, inLineBits, h int) {
	srcBit, dstBit := 0, 0
	for y := 0; y < h; y++ {
		for b := 0; b < outLineBits; b++ {
			setBitReversed(&dstBit, out, readBitReversed(&srcBit, in))
		}
		srcBit += inLineBits - outLineBits
	}
}
