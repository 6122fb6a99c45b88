package pngx

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/fumin/pngx/pngerr"
)

const pngHeader = "\x89PNG\r\n\x1a\n"

var (
	errSignature       = pngerr.New(28, "incorrect PNG signature")
	errUnexpectedEnd   = pngerr.New(27, "chunk runs past the end of the data")
	errChunkTooLarge   = pngerr.New(63, "chunk length exceeds 2^31-1")
	errFirstNotIHDR    = pngerr.New(29, "first chunk is not IHDR")
	errOutOfOrderChunk = pngerr.New(44, "chunk out of order")
	errUnknownCritical = pngerr.New(69, "unknown critical chunk")
	errBadCrc          = pngerr.New(57, "invalid chunk CRC")
	errMissingIEND     = pngerr.New(45, "data ends without an IEND chunk")
)

// parseChunkHeader reads the chunk at in[off:] and returns its type, its
// payload and the offset of the next chunk. The CRC is not verified
// here.
func parseChunkHeader(in []byte, off int) (ctype string, data []byte, next int, err error) {
	if off+12 > len(in) {
		return "", nil, 0, errUnexpectedEnd
	}
	length := binary.BigEndian.Uint32(in[off:])
	if length > 0x7fffffff {
		return "", nil, 0, errChunkTooLarge
	}
	next = off + 12 + int(length)
	if next > len(in) {
		return "", nil, 0, errUnexpectedEnd
	}
	ctype = string(in[off+4 : off+8])
	data = in[off+8 : off+8+int(length)]
	return ctype, data, next, nil
}

// chunkCRCOK verifies the CRC of the chunk starting at in[off:], which
// covers the type and payload but not the length.
func chunkCRCOK(in []byte, off, length int) bool {
	sum := crc32.ChecksumIEEE(in[off+4 : off+8+length])
	return binary.BigEndian.Uint32(in[off+8+length:]) == sum
}

// isCriticalChunk follows the case convention of the type's first
// letter: uppercase chunks are critical.
func isCriticalChunk(ctype string) bool {
	return ctype[0] >= 'A' && ctype[0] <= 'Z'
}

// makeChunk frames data as one chunk: big-endian length, type, payload
// and the CRC over type and payload.
func makeChunk(w *bytes.Buffer, typ string, data []byte) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(len(data)))
	w.Write(tmp[:])
	w.WriteString(typ)
	w.Write(data)
	crc := crc32.NewIEEE()
	crc.Write([]byte(typ))
	crc.Write(data)
	binary.BigEndian.PutUint32(tmp[:], crc.Sum32())
	w.Write(tmp[:])
}

// A ChunkInfo locates one chunk inside a PNG byte stream. Offset points
// at the chunk's length field; Length is the payload length.
type ChunkInfo struct {
	Type   string
	Offset int
	Length int
}

// InspectChunks lists the chunks of a PNG stream in order, without
// decoding pixels or verifying CRCs.
func InspectChunks(in []byte) ([]ChunkInfo, error) {
	if len(in) < 8 || string(in[:8]) != pngHeader {
		return nil, errSignature
	}
	var out []ChunkInfo
	off := 8
	for off < len(in) {
		ctype, data, next, err := parseChunkHeader(in, off)
		if err != nil {
			return nil, err
		}
		out = append(out, ChunkInfo{Type: ctype, Offset: off, Length: len(data)})
		if ctype == "IEND" {
			break
		}
		off = next
	}
	return out, nil
}
