// Package similarity scores how closely two claims say the same thing.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/Harshitk-cp/concord/internal/domain"
	"github.com/Harshitk-cp/concord/internal/embedding"
)

var ErrDimensionMismatch = errors.New("embedding dimensions differ")

// EmbeddingOracle compares texts by the cosine similarity of their embeddings,
// clamped to [0,1].
type EmbeddingOracle struct {
	client domain.EmbeddingClient
}

func NewEmbeddingOracle(client domain.EmbeddingClient) *EmbeddingOracle {
	return &EmbeddingOracle{client: client}
}

func (o *EmbeddingOracle) Similarity(ctx context.Context, a, b string) (float64, error) {
	if a == b {
		return 1.0, nil
	}
	va, err := o.client.Embed(ctx, a)
	if err != nil {
		return 0, fmt.Errorf("embed first text: %w", err)
	}
	vb, err := o.client.Embed(ctx, b)
	if err != nil {
		return 0, fmt.Errorf("embed second text: %w", err)
	}
	sim, err := Cosine(va, vb)
	if err != nil {
		return 0, err
	}
	return math.Max(0, math.Min(1, sim)), nil
}

// Cosine returns the cosine similarity of two vectors, or 0 when either is
// all zeros.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// Lexical is the Jaccard overlap of the two texts' word sets.
type Lexical struct{}

func (Lexical) Similarity(_ context.Context, a, b string) (float64, error) {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1.0, nil
	}

	inter := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union), nil
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range embedding.Tokenize(s) {
		set[t] = struct{}{}
	}
	return set
}
