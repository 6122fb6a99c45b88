package flate

import (
	"sort"

	"github.com/fumin/pngx/pngerr"
)

// Alphabet sizes and code length limits from RFC 1951 section 3.2.
const (
	numLitLenSymbols   = 288
	numDistSymbols     = 32
	numCodeLengthCodes = 19

	maxBitsLitLen     = 15
	maxBitsCodeLength = 7

	endSymbol       = 256
	firstLengthCode = 257
)

var (
	errTreeOversubscribed = pngerr.New(55, "code lengths oversubscribe the huffman tree")
	errInvalidCode        = pngerr.New(16, "bit sequence is not a valid huffman code")
)

// The unfilled sentinel in tree2d. Symbols and node pointers are both far
// below it.
const treeUnfilled = 32767

// A huffTree holds a canonical prefix code: per-symbol codes and lengths
// for encoding, and a flattened two-dimensional tree for decoding.
type huffTree struct {
	codes    []uint32
	lengths  []uint32
	tree2d   []uint32
	numCodes int
}

// makeTreeFromLengths builds the canonical code determined by the given
// code lengths. Symbols of equal length are ordered by symbol index and
// codes are assigned in length order starting from zero.
func makeTreeFromLengths(lengths []uint32, maxBits int) (*huffTree, error) {
	t := &huffTree{
		lengths:  lengths,
		numCodes: len(lengths),
	}

	// RFC 1951 section 3.2.2.
	blCount := make([]uint32, maxBits+1)
	for _, l := range lengths {
		blCount[l]++
	}
	blCount[0] = 0
	nextCode := make([]uint32, maxBits+2)
	var code uint32
	for b := 1; b <= maxBits; b++ {
		code = (code + blCount[b-1]) << 1
		nextCode[b] = code
	}
	t.codes = make([]uint32, len(lengths))
	for i, l := range lengths {
		if l != 0 {
			t.codes[i] = nextCode[l] & (1<<l - 1)
			nextCode[l]++
		}
	}

	return t, t.makeTree2D()
}

// makeTree2D flattens the code into an array of 2*numCodes entries. Entry
// 2*node+bit holds either a symbol (< numCodes), an internal node pointer
// (numCodes..2*numCodes), or treeUnfilled.
func (t *huffTree) makeTree2D() error {
	t.tree2d = make([]uint32, t.numCodes*2)
	for i := range t.tree2d {
		t.tree2d[i] = treeUnfilled
	}

	nodeFilled := 0
	for sym, l := range t.lengths {
		if l == 0 {
			continue
		}
		treePos := 0
		for i := int(l) - 1; i >= 0; i-- {
			if treePos > t.numCodes-2 {
				return errTreeOversubscribed
			}
			bit := t.codes[sym] >> i & 1
			idx := 2*treePos + int(bit)
			if i == 0 {
				if t.tree2d[idx] != treeUnfilled {
					return errTreeOversubscribed
				}
				t.tree2d[idx] = uint32(sym)
				continue
			}
			if t.tree2d[idx] == treeUnfilled {
				nodeFilled++
				t.tree2d[idx] = uint32(t.numCodes + nodeFilled)
				treePos = nodeFilled
			} else {
				if t.tree2d[idx] < uint32(t.numCodes) {
					return errTreeOversubscribed
				}
				treePos = int(t.tree2d[idx]) - t.numCodes
			}
		}
	}
	return nil
}

// decodeSymbol reads one symbol from r.
func (t *huffTree) decodeSymbol(r *bitReader) (uint32, error) {
	treePos := 0
	for {
		bit, err := r.readBit()
		if err != nil {
			return 0, err
		}
		ct := t.tree2d[2*treePos+int(bit)]
		if ct == treeUnfilled {
			return 0, errInvalidCode
		}
		if ct < uint32(t.numCodes) {
			return ct, nil
		}
		treePos = int(ct) - t.numCodes
		if treePos >= t.numCodes {
			return 0, errInvalidCode
		}
	}
}

// A coin is a package in the package-merge algorithm: a weight plus the
// set of leaves it contains.
type coin struct {
	weight uint64
	leaves []int
}

// lengthsFromFrequencies computes code lengths limited to maxBits that
// minimize the weighted length sum, using package-merge. At least two
// symbols always receive a nonzero length, even when fewer are live:
// some inflaters reject single-symbol trees.
func lengthsFromFrequencies(freqs []uint32, maxBits int) []uint32 {
	lengths := make([]uint32, len(freqs))

	type leaf struct {
		sym  int
		freq uint32
	}
	var leaves []leaf
	for i, f := range freqs {
		if f > 0 {
			leaves = append(leaves, leaf{sym: i, freq: f})
		}
	}

	switch len(leaves) {
	case 0:
		lengths[0], lengths[1] = 1, 1
		return lengths
	case 1:
		lengths[leaves[0].sym] = 1
		if leaves[0].sym == 0 {
			lengths[1] = 1
		} else {
			lengths[0] = 1
		}
		return lengths
	}

	sort.SliceStable(leaves, func(i, j int) bool { return leaves[i].freq < leaves[j].freq })

	base := make([]coin, len(leaves))
	for i, lf := range leaves {
		base[i] = coin{weight: uint64(lf.freq), leaves: []int{i}}
	}

	row := append([]coin(nil), base...)
	for level := 1; level < maxBits; level++ {
		// Package pairs of the previous row, then merge with the
		// original leaves by weight.
		var packaged []coin
		for i := 0; i+1 < len(row); i += 2 {
			lv := make([]int, 0, len(row[i].leaves)+len(row[i+1].leaves))
			lv = append(lv, row[i].leaves...)
			lv = append(lv, row[i+1].leaves...)
			packaged = append(packaged, coin{weight: row[i].weight + row[i+1].weight, leaves: lv})
		}
		merged := make([]coin, 0, len(base)+len(packaged))
		bi, pi := 0, 0
		for bi < len(base) || pi < len(packaged) {
			if pi >= len(packaged) || (bi < len(base) && base[bi].weight <= packaged[pi].weight) {
				merged = append(merged, base[bi])
				bi++
			} else {
				merged = append(merged, packaged[pi])
				pi++
			}
		}
		row = merged
	}

	counts := make([]int, len(leaves))
	take := 2*len(leaves) - 2
	if take > len(row) {
		take = len(row)
	}
	for _, c := range row[:take] {
		for _, lf := range c.leaves {
			counts[lf]++
		}
	}
	for i, n := range counts {
		lengths[leaves[i].sym] = uint32(n)
	}
	return lengths
}

// fixedLitLenTree returns the fixed literal/length code of RFC 1951
// section 3.2.6.
func fixedLitLenTree() *huffTree {
	lengths := make([]uint32, numLitLenSymbols)
	for i := 0; i <= 143; i++ {
		lengths[i] = 8
	}
	for i := 144; i <= 255; i++ {
		lengths[i] = 9
	}
	for i := 256; i <= 279; i++ {
		lengths[i] = 7
	}
	for i := 280; i <= 287; i++ {
		lengths[i] = 8
	}
	t, err := makeTreeFromLengths(lengths, maxBitsLitLen)
	if err != nil {
		panic(err) // fixed table, cannot fail
	}
	return t
}

// fixedDistTree returns the fixed distance code: 32 five-bit codes.
func fixedDistTree() *huffTree {
	lengths := make([]uint32, numDistSymbols)
	for i := range lengths {
		lengths[i] = 5
	}
	t, err := makeTreeFromLengths(lengths, maxBitsLitLen)
	if err != nil {
		panic(err)
	}
	return t
}
