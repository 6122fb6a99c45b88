package flate

import "github.com/fumin/pngx/pngerr"

var errInvalidBType = pngerr.New(61, "invalid block type in compress settings (must be 0, 1 or 2)")

const (
	maxStoredBlock = 65535

	// Dynamic-block input sizes are bounded so tree overhead stays small
	// relative to the data.
	minBlockSize = 65536
	maxBlockSize = 262144
)

// Deflate compresses in to a raw DEFLATE stream using the block type and
// LZ77 parameters in s.
func Deflate(in []byte, s *CompressSettings) ([]byte, error) {
	if s.BType < 0 || s.BType > 2 {
		return nil, errInvalidBType
	}
	w := &bitWriter{}
	if s.BType == 0 {
		deflateStored(w, in)
		return w.data, nil
	}

	blockSize := len(in)
	if blockSize == 0 {
		blockSize = 1
	}
	if s.BType == 2 {
		blockSize = len(in)/8 + 8
		if blockSize < minBlockSize {
			blockSize = minBlockSize
		}
		if blockSize > maxBlockSize {
			blockSize = maxBlockSize
		}
	}
	numBlocks := (len(in) + blockSize - 1) / blockSize
	if numBlocks == 0 {
		numBlocks = 1
	}

	for b := 0; b < numBlocks; b++ {
		start := b * blockSize
		end := start + blockSize
		if end > len(in) {
			end = len(in)
		}
		block := in[start:end]
		final := b == numBlocks-1

		var tokens []token
		if s.UseLZ77 {
			var err error
			tokens, err = lz77Encode(block, s)
			if err != nil {
				return nil, err
			}
		} else {
			tokens = make([]token, len(block))
			for i, c := range block {
				tokens[i] = literalToken(c)
			}
		}

		if s.BType == 1 {
			if err := writeFixedBlock(w, tokens, final); err != nil {
				return nil, err
			}
			continue
		}
		if err := writeBestBlock(w, block, tokens, final); err != nil {
			return nil, err
		}
	}
	return w.data, nil
}

// deflateStored emits the input as stored blocks of at most 65535 bytes.
func deflateStored(w *bitWriter, in []byte) {
	numBlocks := (len(in) + maxStoredBlock - 1) / maxStoredBlock
	if numBlocks == 0 {
		numBlocks = 1
	}
	for b := 0; b < numBlocks; b++ {
		start := b * maxStoredBlock
		end := start + maxStoredBlock
		if end > len(in) {
			end = len(in)
		}
		writeStoredBlock(w, in[start:end], b == numBlocks-1)
	}
}

func writeStoredBlock(w *bitWriter, block []byte, final bool) {
	var bfinal uint32
	if final {
		bfinal = 1
	}
	w.writeBit(bfinal)
	w.writeBits(0, 2)
	w.alignByte()
	length := len(block)
	w.data = append(w.data, byte(length), byte(length>>8), byte(^length), byte(^length>>8))
	w.data = append(w.data, block...)
}

// writeTokens emits the symbol stream followed by the end code 256.
func writeTokens(w *bitWriter, tokens []token, lit, dist *huffTree) error {
	for _, t := range tokens {
		if !t.isMatch() {
			w.writeBitsRev(lit.codes[t.literal], int(lit.lengths[t.literal]))
			continue
		}
		lsym, lbits, lval := lengthSymbol(t.matchLen())
		w.writeBitsRev(lit.codes[lsym], int(lit.lengths[lsym]))
		w.writeBits(uint32(lval), lbits)
		dsym, dbits, dval := distanceSymbol(t.distance())
		w.writeBitsRev(dist.codes[dsym], int(dist.lengths[dsym]))
		w.writeBits(uint32(dval), dbits)
	}
	w.writeBitsRev(lit.codes[endSymbol], int(lit.lengths[endSymbol]))
	return nil
}

func writeFixedBlock(w *bitWriter, tokens []token, final bool) error {
	var bfinal uint32
	if final {
		bfinal = 1
	}
	w.writeBit(bfinal)
	w.writeBits(1, 2)
	return writeTokens(w, tokens, fixedLitLenTree(), fixedDistTree())
}

// A clSym is one symbol of the run-length-encoded code-length stream:
// a plain length 0-15, or a repeat code 16/17/18 with its argument.
type clSym struct {
	sym      int
	extraVal int
}

func (c clSym) extraBits() int {
	switch c.sym {
	case 16:
		return 2
	case 17:
		return 3
	case 18:
		return 7
	}
	return 0
}

// encodeCodeLengths run-length encodes the concatenated literal/length
// and distance code lengths with the repeat codes of RFC 1951 3.2.7.
func encodeCodeLengths(lengths []uint32) []clSym {
	var out []clSym
	for i := 0; i < len(lengths); {
		v := lengths[i]
		run := 0
		for i+run < len(lengths) && lengths[i+run] == v {
			run++
		}
		i += run
		if v == 0 {
			for run >= 11 {
				n := run
				if n > 138 {
					n = 138
				}
				out = append(out, clSym{sym: 18, extraVal: n - 11})
				run -= n
			}
			if run >= 3 {
				out = append(out, clSym{sym: 17, extraVal: run - 3})
				run = 0
			}
			for ; run > 0; run-- {
				out = append(out, clSym{sym: 0})
			}
			continue
		}
		out = append(out, clSym{sym: int(v)})
		run--
		for run >= 3 {
			n := run
			if n > 6 {
				n = 6
			}
			out = append(out, clSym{sym: 16, extraVal: n - 3})
			run -= n
		}
		for ; run > 0; run-- {
			out = append(out, clSym{sym: int(v)})
		}
	}
	return out
}

// dynamicPlan holds everything needed to emit one dynamic block, plus the
// bit-size bookkeeping used to pick the cheapest block type.
type dynamicPlan struct {
	lit, dist, cl          *huffTree
	numLit, numDist, numCl int
	clSymbols              []clSym
	headerBits             int
	dataBits               int
}

func planDynamicBlock(tokens []token) (*dynamicPlan, error) {
	litFreq := make([]uint32, firstLengthCode+len(lengthBase))
	distFreq := make([]uint32, len(distanceBase))
	for _, t := range tokens {
		if !t.isMatch() {
			litFreq[t.literal]++
			continue
		}
		lsym, _, _ := lengthSymbol(t.matchLen())
		litFreq[lsym]++
		dsym, _, _ := distanceSymbol(t.distance())
		distFreq[dsym]++
	}
	litFreq[endSymbol]++

	litLengths := lengthsFromFrequencies(litFreq, maxBitsLitLen)
	distLengths := lengthsFromFrequencies(distFreq, maxBitsLitLen)

	numLit := len(litLengths)
	for numLit > firstLengthCode && litLengths[numLit-1] == 0 {
		numLit--
	}
	numDist := len(distLengths)
	for numDist > 2 && distLengths[numDist-1] == 0 {
		numDist--
	}

	combined := make([]uint32, 0, numLit+numDist)
	combined = append(combined, litLengths[:numLit]...)
	combined = append(combined, distLengths[:numDist]...)
	clSymbols := encodeCodeLengths(combined)

	clFreq := make([]uint32, numCodeLengthCodes)
	for _, c := range clSymbols {
		clFreq[c.sym]++
	}
	clLengths := lengthsFromFrequencies(clFreq, maxBitsCodeLength)

	numCl := numCodeLengthCodes
	for numCl > 4 && clLengths[clclOrder[numCl-1]] == 0 {
		numCl--
	}

	lit, err := makeTreeFromLengths(litLengths, maxBitsLitLen)
	if err != nil {
		return nil, err
	}
	dist, err := makeTreeFromLengths(distLengths, maxBitsLitLen)
	if err != nil {
		return nil, err
	}
	cl, err := makeTreeFromLengths(clLengths, maxBitsCodeLength)
	if err != nil {
		return nil, err
	}

	p := &dynamicPlan{
		lit: lit, dist: dist, cl: cl,
		numLit: numLit, numDist: numDist, numCl: numCl,
		clSymbols: clSymbols,
	}
	p.headerBits = 14 + numCl*3
	for _, c := range clSymbols {
		p.headerBits += int(clLengths[c.sym]) + c.extraBits()
	}
	p.dataBits = tokenBits(tokens, litLengths, distLengths)
	return p, nil
}

// tokenBits returns the number of bits the token stream plus the end code
// occupy under the given code lengths.
func tokenBits(tokens []token, litLengths, distLengths []uint32) int {
	bits := 0
	for _, t := range tokens {
		if !t.isMatch() {
			bits += int(litLengths[t.literal])
			continue
		}
		lsym, lbits, _ := lengthSymbol(t.matchLen())
		bits += int(litLengths[lsym]) + lbits
		dsym, dbits, _ := distanceSymbol(t.distance())
		bits += int(distLengths[dsym]) + dbits
	}
	return bits + int(litLengths[endSymbol])
}

// writeBestBlock emits block in whichever of the stored, fixed and
// dynamic representations is estimated smallest.
func writeBestBlock(w *bitWriter, block []byte, tokens []token, final bool) error {
	plan, err := planDynamicBlock(tokens)
	if err != nil {
		return err
	}
	dynamicBits := 3 + plan.headerBits + plan.dataBits

	fixedLit := fixedLitLenTree()
	fixedDist := fixedDistTree()
	fixedBits := 3 + tokenBits(tokens, fixedLit.lengths, fixedDist.lengths)

	numStored := (len(block) + maxStoredBlock - 1) / maxStoredBlock
	if numStored == 0 {
		numStored = 1
	}
	storedBits := 8 * (len(block) + 5*numStored)

	if storedBits < dynamicBits && storedBits < fixedBits {
		deflateStoredPart(w, block, final)
		return nil
	}

	var bfinal uint32
	if final {
		bfinal = 1
	}
	if fixedBits < dynamicBits {
		w.writeBit(bfinal)
		w.writeBits(1, 2)
		return writeTokens(w, tokens, fixedLit, fixedDist)
	}

	w.writeBit(bfinal)
	w.writeBits(2, 2)
	w.writeBits(uint32(plan.numLit-257), 5)
	w.writeBits(uint32(plan.numDist-1), 5)
	w.writeBits(uint32(plan.numCl-4), 4)
	for i := 0; i < plan.numCl; i++ {
		w.writeBits(plan.cl.lengths[clclOrder[i]], 3)
	}
	for _, c := range plan.clSymbols {
		w.writeBitsRev(plan.cl.codes[c.sym], int(plan.cl.lengths[c.sym]))
		w.writeBits(uint32(c.extraVal), c.extraBits())
	}
	return writeTokens(w, tokens, plan.lit, plan.dist)
}

// deflateStoredPart writes block as stored blocks; final marks the last
// of them as BFINAL.
func deflateStoredPart(w *bitWriter, block []byte, final bool) {
	numBlocks := (len(block) + maxStoredBlock - 1) / maxStoredBlock
	if numBlocks == 0 {
		numBlocks = 1
	}
	for b := 0; b < numBlocks; b++ {
		start := b * maxStoredBlock
		end := start + maxStoredBlock
		if end > len(block) {
			end = len(block)
		}
		writeStoredBlock(w, block[start:end], final && b == numBlocks-1)
	}
}
