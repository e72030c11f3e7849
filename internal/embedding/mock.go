package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// MockClient hashes lowercase word tokens into a fixed-size vector. Equal
// texts embed identically and texts sharing words land close together, which
// is enough for local runs and tests.
type MockClient struct {
	dims int
}

func NewMockClient() *MockClient {
	return &MockClient{dims: Dimensions}
}

func (c *MockClient) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, c.dims)
	for _, tok := range Tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[h.Sum32()%uint32(c.dims)] += 1
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec, nil
}

// Tokenize splits text into lowercase alphanumeric words.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
