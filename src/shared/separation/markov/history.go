package markov

// HistoryCodec is a bijective mixed-radix encoding between a k-tuple of
// state ids and an index in [0, nStates^k). Shared by training, scoring
// and mask synthesis so the flattening logic lives in exactly one place.
type HistoryCodec struct {
	order   int
	nStates int
	size    int
}

func NewHistoryCodec(order, nStates int) HistoryCodec {
	size := 1
	for i := 0; i < order; i++ {
		size *= nStates
	}

	return HistoryCodec{
		order:   order,
		nStates: nStates,
		size:    size,
	}
}

// Size is the number of distinct histories, nStates^order.
func (c HistoryCodec) Size() int {
	return c.size
}

func (c HistoryCodec) Order() int {
	return c.order
}

// Encode maps a history tuple to its row index. The first element is
// the most significant digit.
func (c HistoryCodec) Encode(history []int) int {
	index := 0
	for _, state := range history {
		index = index*c.nStates + state
	}

	return index
}

// Decode inverts Encode.
func (c HistoryCodec) Decode(index int) []int {
	history := make([]int, c.order)
	for i := c.order - 1; i >= 0; i-- {
		history[i] = index % c.nStates
		index /= c.nStates
	}

	return history
}
