// Package flate implements the DEFLATE compressed data format of RFC
// 1951 and its zlib framing of RFC 1950, operating on in-memory byte
// buffers. It is the compression engine embedded in the PNG codec; the
// zlib entry points are also usable on their own.
package flate

import (
	"encoding/binary"
	"hash/adler32"

	"github.com/fumin/pngx/pngerr"
)

var (
	errZlibTooSmall      = pngerr.New(53, "zlib data is too small to hold header and checksum")
	errZlibMethod        = pngerr.New(25, "invalid compression method in zlib header")
	errZlibFCheck        = pngerr.New(24, "invalid FCHECK in zlib header")
	errZlibDict          = pngerr.New(26, "preset dictionaries are not supported")
	errBadAdler          = pngerr.New(58, "adler checksum of decompressed data mismatches")
	errWindowSize        = pngerr.New(60, "window size must be in [256, 32768]")
	errWindowNotPowerOf2 = pngerr.New(90, "window size must be a power of two")
)

// A CompressHook replaces the built-in compressor for one stage. It
// receives the input buffer and the settings it was registered on; its
// errors propagate unchanged.
type CompressHook func(in []byte, s *CompressSettings) ([]byte, error)

// A DecompressHook is the decompression counterpart of CompressHook.
type DecompressHook func(in []byte, s *DecompressSettings) ([]byte, error)

// CompressSettings configures ZlibCompress and Deflate.
type CompressSettings struct {
	// BType selects the deflate block type: 0 stored, 1 fixed huffman,
	// 2 dynamic huffman.
	BType int
	// UseLZ77 enables the match finder; without it every byte is coded
	// as a literal.
	UseLZ77 bool
	// WindowSize bounds match distances. Must be a power of two in
	// [256, 32768].
	WindowSize int
	// MinMatch and NiceMatch bound the match search: matches shorter
	// than MinMatch are rejected, matches of NiceMatch or longer end
	// the chain walk early.
	MinMatch  int
	NiceMatch int
	// MaxChainLength bounds the number of hash chain entries visited
	// per position. Zero means no limit beyond the window.
	MaxChainLength int
	// LazyMatching prefers a strictly longer match found one byte
	// ahead of the current position.
	LazyMatching bool

	// CustomZlib, when set, replaces the whole zlib stage.
	// CustomDeflate replaces only the deflate stage inside the zlib
	// framing. CustomContext is carried for the hooks' own use.
	CustomZlib    CompressHook
	CustomDeflate CompressHook
	CustomContext interface{}
}

// NewCompressSettings returns the default compression settings.
func NewCompressSettings() CompressSettings {
	return CompressSettings{
		BType:          2,
		UseLZ77:        true,
		WindowSize:     2048,
		MinMatch:       3,
		NiceMatch:      128,
		MaxChainLength: 128,
		LazyMatching:   true,
	}
}

// DecompressSettings configures ZlibDecompress and Inflate.
type DecompressSettings struct {
	// IgnoreAdler32 skips the RFC 1950 checksum verification.
	IgnoreAdler32 bool

	CustomZlib    DecompressHook
	CustomInflate DecompressHook
	CustomContext interface{}
}

// NewDecompressSettings returns the default decompression settings.
func NewDecompressSettings() DecompressSettings {
	return DecompressSettings{}
}

func checkWindowSize(windowSize int) error {
	if windowSize < 256 || windowSize > maxWindow {
		return errWindowSize
	}
	if windowSize&(windowSize-1) != 0 {
		return errWindowNotPowerOf2
	}
	return nil
}

// ZlibCompress deflates in and wraps it in the two-byte zlib header and
// the big-endian Adler-32 trailer of RFC 1950.
func ZlibCompress(in []byte, s *CompressSettings) ([]byte, error) {
	if s.CustomZlib != nil {
		return s.CustomZlib(in, s)
	}
	if err := checkWindowSize(s.WindowSize); err != nil {
		return nil, err
	}

	var deflated []byte
	var err error
	if s.CustomDeflate != nil {
		deflated, err = s.CustomDeflate(in, s)
	} else {
		deflated, err = Deflate(in, s)
	}
	if err != nil {
		return nil, err
	}

	windowBits := 0
	for 1<<(windowBits+8) < s.WindowSize {
		windowBits++
	}
	cmf := uint32(8 | windowBits<<4)
	flg := (31 - cmf*256%31) % 31

	out := make([]byte, 0, len(deflated)+6)
	out = append(out, byte(cmf), byte(flg))
	out = append(out, deflated...)
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], adler32.Checksum(in))
	return append(out, sum[:]...), nil
}

// ZlibDecompress validates the zlib framing around in, inflates the
// payload and verifies the Adler-32 trailer.
func ZlibDecompress(in []byte, s *DecompressSettings) ([]byte, error) {
	if s.CustomZlib != nil {
		return s.CustomZlib(in, s)
	}
	if len(in) < 6 {
		return nil, errZlibTooSmall
	}
	cmf, flg := uint32(in[0]), uint32(in[1])
	if cmf&15 != 8 {
		return nil, errZlibMethod
	}
	if (cmf*256+flg)%31 != 0 {
		return nil, errZlibFCheck
	}
	if flg&32 != 0 {
		return nil, errZlibDict
	}

	payload := in[2 : len(in)-4]
	var out []byte
	var err error
	if s.CustomInflate != nil {
		out, err = s.CustomInflate(payload, s)
	} else {
		out, err = Inflate(payload)
	}
	if err != nil {
		return nil, err
	}

	if !s.IgnoreAdler32 {
		want := binary.BigEndian.Uint32(in[len(in)-4:])
		if adler32.Checksum(out) != want {
			return nil, errBadAdler
		}
	}
	return out, nil
}
