package flate

import "github.com/fumin/pngx/pngerr"

// LZ77 limits from RFC 1951.
const (
	minMatch  = 3
	maxMatch  = 258
	maxWindow = 32768
)

var errMatchOutOfRange = pngerr.New(86, "lz77 match distance exceeds window")

// Length code tables, RFC 1951 section 3.2.5. lengthBase[i] is the
// smallest match length of symbol 257+i, lengthExtra[i] its extra bits.
var lengthBase = [29]int{
	3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 15, 17, 19, 23, 27, 31,
	35, 43, 51, 59, 67, 83, 99, 115, 131, 163, 195, 227, 258,
}

var lengthExtra = [29]int{
	0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2,
	3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0,
}

var distanceBase = [30]int{
	1, 2, 3, 4, 5, 7, 9, 13, 17, 25, 33, 49, 65, 97, 129, 193,
	257, 385, 513, 769, 1025, 1537, 2049, 3073, 4097, 6145, 8193, 12289, 16385, 24577,
}

var distanceExtra = [30]int{
	0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6,
	7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13,
}

// lengthSymbol maps a match length in [3,258] to its code and extra bits.
func lengthSymbol(length int) (sym, extraBits, extraVal int) {
	i := len(lengthBase) - 1
	for lengthBase[i] > length {
		i--
	}
	return firstLengthCode + i, lengthExtra[i], length - lengthBase[i]
}

// distanceSymbol maps a distance in [1,32768] to its code and extra bits.
func distanceSymbol(dist int) (sym, extraBits, extraVal int) {
	i := len(distanceBase) - 1
	for distanceBase[i] > dist {
		i--
	}
	return i, distanceExtra[i], dist - distanceBase[i]
}

// A token is one element of the intermediate symbol stream between the
// match finder and the entropy coder: either a literal byte, or a
// (length, distance) back-reference.
type token struct {
	length  uint16 // 0 for a literal, otherwise in [3,258]
	dist    uint16 // offset-1, so distances up to 32768 fit
	literal byte
}

func literalToken(b byte) token { return token{literal: b} }

func matchToken(length, dist int) token {
	return token{length: uint16(length), dist: uint16(dist - 1)}
}

func (t token) isMatch() bool { return t.length != 0 }
func (t token) distance() int { return int(t.dist) + 1 }
func (t token) matchLen() int { return int(t.length) }

const (
	hashBits = 15
	hashSize = 1 << hashBits
)

func hash3(p []byte) uint32 {
	return (uint32(p[0])<<10 ^ uint32(p[1])<<5 ^ uint32(p[2])) & (hashSize - 1)
}

// lz77Encode runs the hash-chain match finder over in and returns the
// token stream. Chains are walked at most MaxChainLength steps and a
// match of NiceMatch bytes or more ends the search early. With
// LazyMatching, a strictly longer match one byte ahead wins.
func lz77Encode(in []byte, s *CompressSettings) ([]token, error) {
	window := s.WindowSize
	if window > maxWindow {
		return nil, errMatchOutOfRange
	}
	nice := s.NiceMatch
	if nice > maxMatch {
		nice = maxMatch
	}
	minLen := s.MinMatch
	if minLen < minMatch {
		minLen = minMatch
	}
	maxChain := s.MaxChainLength
	if maxChain <= 0 {
		maxChain = maxWindow
	}

	head := make([]int32, hashSize)
	for i := range head {
		head[i] = -1
	}
	prev := make([]int32, len(in))

	insertedTo := 0
	insert := func(upTo int) {
		for ; insertedTo < upTo && insertedTo+minMatch <= len(in); insertedTo++ {
			h := hash3(in[insertedTo:])
			prev[insertedTo] = head[h]
			head[h] = int32(insertedTo)
		}
	}

	findMatch := func(pos int) (length, dist int) {
		if pos+minMatch > len(in) {
			return 0, 0
		}
		limit := maxMatch
		if rest := len(in) - pos; rest < limit {
			limit = rest
		}
		chain := 0
		for p := head[hash3(in[pos:])]; p >= 0; p = prev[p] {
			if int(p) >= pos {
				continue
			}
			if pos-int(p) > window {
				break
			}
			l := 0
			for l < limit && in[int(p)+l] == in[pos+l] {
				l++
			}
			if l > length {
				length, dist = l, pos-int(p)
				if l >= nice {
					break
				}
			}
			chain++
			if chain >= maxChain {
				break
			}
		}
		return length, dist
	}

	tokens := make([]token, 0, len(in)/2)
	for i := 0; i < len(in); {
		insert(i + 1)
		bl, bd := findMatch(i)
		if s.LazyMatching && bl >= minLen && bl < nice && i+1 < len(in) {
			insert(i + 2)
			bl2, bd2 := findMatch(i + 1)
			if bl2 > bl {
				tokens = append(tokens, literalToken(in[i]))
				i++
				bl, bd = bl2, bd2
			}
		}
		if bl >= minLen {
			tokens = append(tokens, matchToken(bl, bd))
			i += bl
			insert(i)
		} else {
			tokens = append(tokens, literalToken(in[i]))
			i++
		}
	}
	return tokens, nil
}
