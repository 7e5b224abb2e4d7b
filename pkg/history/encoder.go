package history

// Encoder turns a free-form incident description into a fixed-size
// vector for similarity search. Built on the earlier
// pkg/embedding.Model/SimpleModel — kept as the "no external model
// configured" fallback; a real deployment would swap in an HTTP-backed
// encoder the same way the prior design swapped in OpenAI/Ollama/
// sentence-transformers models, but none of those appear in the
// example pack's go.mod, so only the hash-based fallback is carried
// over here (see DESIGN.md).
type Encoder interface {
	Encode(text string) ([]float32, error)
}

// HashEncoder is a basic, dependency-free embedding: deterministic, so
// the same incident text always lands at the same point in vector
// space, which is all the similarity search underneath it requires.
type HashEncoder struct {
	dimension int
}

// NewHashEncoder builds a HashEncoder producing vectors of the given
// dimension.
func NewHashEncoder(dimension int) *HashEncoder {
	if dimension <= 0 {
		dimension = 384
	}
	return &HashEncoder{dimension: dimension}
}

// Encode implements Encoder.
func (m *HashEncoder) Encode(text string) ([]float32, error) {
	vector := make([]float32, m.dimension)
	hash := 0
	for _, c := range text {
		hash = 31*hash + int(c)
	}
	for i := range vector {
		vector[i] = float32(hash%100) / 100.0
	}
	return vector, nil
}
