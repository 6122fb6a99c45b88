package flate

// An LZ77Symbol is one decoded element of a compressed block: a literal
// byte, or a back-reference of Value bytes copied from Distance back.
type LZ77Symbol struct {
	Literal  bool
	Value    int
	Distance int
}

// ZlibBlockInfo describes one deflate block of a zlib stream, as decoded
// by the inspection mode of the inflater. It is observability data; the
// normal decode path does not produce it.
type ZlibBlockInfo struct {
	BType             int
	CompressedBits    int
	UncompressedBytes int

	// Dynamic tree parameters; zero for stored and fixed blocks.
	TreeBits          int
	HLit              int
	HDist             int
	HCLen             int
	CodeLengthLengths []int
	LitLenLengths     []int
	DistLengths       []int

	// The symbol stream of the block, empty for stored blocks.
	Symbols []LZ77Symbol
}

// ExtractZlibInfo inflates a zlib stream while recording per-block
// structure. The framing is validated but the Adler-32 trailer is not:
// inspection is meant to work on streams a strict decode would reject.
func ExtractZlibInfo(in []byte) ([]ZlibBlockInfo, error) {
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
	var info []ZlibBlockInfo
	if _, err := inflate(in[2:len(in)-4], &info); err != nil {
		return nil, err
	}
	return info, nil
}
