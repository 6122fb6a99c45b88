package flate

import "github.com/fumin/pngx/pngerr"

var (
	errInvalidBlockType  = pngerr.New(20, "invalid deflate block type (3 is reserved)")
	errStoredMismatch    = pngerr.New(21, "NLEN is not the one's complement of LEN in a stored block")
	errStoredPastEnd     = pngerr.New(23, "stored block runs past the end of the input")
	errInvalidSymbol     = pngerr.New(30, "invalid literal/length symbol")
	errInvalidDistSymbol = pngerr.New(18, "invalid distance symbol")
	errBadDistance       = pngerr.New(52, "distance reaches before the start of the output")
	errRepeatNoPrevious  = pngerr.New(15, "repeat code with no previous code length")
	errRepeatOverflow    = pngerr.New(14, "repeat code writes past the declared code lengths")
	errNoEndCode         = pngerr.New(64, "the end code 256 has length zero")
)

// clclOrder is the permuted order in which code lengths of the
// code-length alphabet appear, RFC 1951 section 3.2.7.
var clclOrder = [numCodeLengthCodes]int{
	16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15,
}

// Inflate decompresses a raw DEFLATE stream.
func Inflate(in []byte) ([]byte, error) {
	return inflate(in, nil)
}

func inflate(in []byte, info *[]ZlibBlockInfo) ([]byte, error) {
	r := &bitReader{data: in}
	var out []byte
	for {
		startBits := r.pos
		startBytes := len(out)

		bfinal, err := r.readBit()
		if err != nil {
			return nil, err
		}
		btype, err := r.readBits(2)
		if err != nil {
			return nil, err
		}

		var bi *ZlibBlockInfo
		if info != nil {
			*info = append(*info, ZlibBlockInfo{BType: int(btype)})
			bi = &(*info)[len(*info)-1]
		}

		switch btype {
		case 0:
			out, err = inflateStored(r, out)
		case 1:
			out, err = inflateHuffman(r, out, fixedLitLenTree(), fixedDistTree(), bi)
		case 2:
			var lit, dist *huffTree
			lit, dist, err = readDynamicTrees(r, bi)
			if err == nil {
				out, err = inflateHuffman(r, out, lit, dist, bi)
			}
		default:
			err = errInvalidBlockType
		}
		if err != nil {
			return nil, err
		}

		if bi != nil {
			bi.CompressedBits = r.pos - startBits
			bi.UncompressedBytes = len(out) - startBytes
		}
		if bfinal == 1 {
			return out, nil
		}
	}
}

func inflateStored(r *bitReader, out []byte) ([]byte, error) {
	r.alignByte()
	if r.bitsLeft() < 32 {
		return nil, errStoredPastEnd
	}
	p := r.pos / 8
	length := int(r.data[p]) | int(r.data[p+1])<<8
	nlength := int(r.data[p+2]) | int(r.data[p+3])<<8
	if length+nlength != 65535 {
		return nil, errStoredMismatch
	}
	p += 4
	if p+length > len(r.data) {
		return nil, errStoredPastEnd
	}
	out = append(out, r.data[p:p+length]...)
	r.pos = (p + length) * 8
	return out, nil
}

// readDynamicTrees decodes the HLIT/HDIST/HCLEN header and the
// run-length-coded code lengths of a dynamic block.
func readDynamicTrees(r *bitReader, bi *ZlibBlockInfo) (lit, dist *huffTree, err error) {
	startBits := r.pos

	hlit, err := r.readBits(5)
	if err != nil {
		return nil, nil, err
	}
	hdist, err := r.readBits(5)
	if err != nil {
		return nil, nil, err
	}
	hclen, err := r.readBits(4)
	if err != nil {
		return nil, nil, err
	}
	numLit := int(hlit) + 257
	numDist := int(hdist) + 1
	numCl := int(hclen) + 4

	clLengths := make([]uint32, numCodeLengthCodes)
	for i := 0; i < numCl; i++ {
		l, err := r.readBits(3)
		if err != nil {
			return nil, nil, err
		}
		clLengths[clclOrder[i]] = l
	}
	clTree, err := makeTreeFromLengths(clLengths, maxBitsCodeLength)
	if err != nil {
		return nil, nil, err
	}

	lengths := make([]uint32, numLit+numDist)
	for i := 0; i < len(lengths); {
		sym, err := clTree.decodeSymbol(r)
		if err != nil {
			return nil, nil, err
		}
		switch {
		case sym < 16:
			lengths[i] = sym
			i++
		case sym == 16:
			if i == 0 {
				return nil, nil, errRepeatNoPrevious
			}
			n, err := r.readBits(2)
			if err != nil {
				return nil, nil, err
			}
			rep := int(n) + 3
			if i+rep > len(lengths) {
				return nil, nil, errRepeatOverflow
			}
			for j := 0; j < rep; j++ {
				lengths[i] = lengths[i-1]
				i++
			}
		case sym == 17:
			n, err := r.readBits(3)
			if err != nil {
				return nil, nil, err
			}
			rep := int(n) + 3
			if i+rep > len(lengths) {
				return nil, nil, errRepeatOverflow
			}
			i += rep
		case sym == 18:
			n, err := r.readBits(7)
			if err != nil {
				return nil, nil, err
			}
			rep := int(n) + 11
			if i+rep > len(lengths) {
				return nil, nil, errRepeatOverflow
			}
			i += rep
		default:
			return nil, nil, errInvalidSymbol
		}
	}
	if lengths[endSymbol] == 0 {
		return nil, nil, errNoEndCode
	}

	litLengths := make([]uint32, numLitLenSymbols)
	copy(litLengths, lengths[:numLit])
	distLengths := make([]uint32, numDistSymbols)
	copy(distLengths, lengths[numLit:])

	lit, err = makeTreeFromLengths(litLengths, maxBitsLitLen)
	if err != nil {
		return nil, nil, err
	}
	dist, err = makeTreeFromLengths(distLengths, maxBitsLitLen)
	if err != nil {
		return nil, nil, err
	}

	if bi != nil {
		bi.TreeBits = r.pos - startBits
		bi.HLit = int(hlit)
		bi.HDist = int(hdist)
		bi.HCLen = int(hclen)
		bi.CodeLengthLengths = toInts(clLengths)
		bi.LitLenLengths = toInts(litLengths[:numLit])
		bi.DistLengths = toInts(distLengths[:numDist])
	}
	return lit, dist, nil
}

func toInts(v []uint32) []int {
	out := make([]int, len(v))
	for i, x := range v {
		out[i] = int(x)
	}
	return out
}

// inflateHuffman runs the symbol loop of a compressed block.
func inflateHuffman(r *bitReader, out []byte, lit, dist *huffTree, bi *ZlibBlockInfo) ([]byte, error) {
	for {
		sym, err := lit.decodeSymbol(r)
		if err != nil {
			return nil, err
		}
		switch {
		case sym < endSymbol:
			out = append(out, byte(sym))
			if bi != nil {
				bi.Symbols = append(bi.Symbols, LZ77Symbol{Literal: true, Value: int(sym)})
			}
		case sym == endSymbol:
			return out, nil
		case sym < firstLengthCode+uint32(len(lengthBase)):
			i := int(sym) - firstLengthCode
			extra, err := r.readBits(lengthExtra[i])
			if err != nil {
				return nil, err
			}
			length := lengthBase[i] + int(extra)

			dsym, err := dist.decodeSymbol(r)
			if err != nil {
				return nil, err
			}
			if dsym >= uint32(len(distanceBase)) {
				return nil, errInvalidDistSymbol
			}
			dextra, err := r.readBits(distanceExtra[dsym])
			if err != nil {
				return nil, err
			}
			d := distanceBase[dsym] + int(dextra)
			if d > len(out) {
				return nil, errBadDistance
			}
			start := len(out) - d
			for j := 0; j < length; j++ {
				out = append(out, out[start+j])
			}
			if bi != nil {
				bi.Symbols = append(bi.Symbols, LZ77Symbol{Value: length, Distance: d})
			}
		default:
			return nil, errInvalidSymbol
		}
	}
}
