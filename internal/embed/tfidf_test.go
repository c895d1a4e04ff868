package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fittedTFIDF(t *testing.T, dims int, corpus ...string) *TFIDFEmbedder {
	t.Helper()
	e := NewTFIDFEmbedder(dims)
	require.NoError(t, e.Fit(corpus))
	return e
}

func TestTFIDFEmbedder_UnfittedFails(t *testing.T) {
	e := NewTFIDFEmbedder(0)

	_, err := e.Embed(context.Background(), "anything")

	assert.Error(t, err)
	assert.False(t, e.Fitted())
	assert.Equal(t, FallbackDimensions, e.Dimensions())
	assert.Equal(t, "tfidf-svd-300", e.ModelName())
}

func TestTFIDFEmbedder_FixedWidthNormalized(t *testing.T) {
	// Given: a corpus with far fewer components than the output width
	e := fittedTFIDF(t, 300, "the sky is blue", "grass is green", "bananas are yellow")

	// When: embedding a known text
	vec, err := e.Embed(context.Background(), "the sky is blue")

	// Then: the vector is padded to 300 and unit length
	require.NoError(t, err)
	assert.Len(t, vec, 300)
	assert.InDelta(t, 1.0, vectorMagnitude(vec), 1e-5)
	assert.LessOrEqual(t, e.Rank(), 3)
}

func TestTFIDFEmbedder_QueryNearestToMatchingDocument(t *testing.T) {
	docs := []string{"the sky is blue", "grass is green", "bananas are yellow"}
	e := fittedTFIDF(t, 300, docs...)
	ctx := context.Background()

	vecs, err := e.EmbedBatch(ctx, docs)
	require.NoError(t, err)
	query, err := e.Embed(ctx, "what color is the sky?")
	require.NoError(t, err)

	sky := cosineSimilarity(query, vecs[0])
	assert.Greater(t, sky, cosineSimilarity(query, vecs[1]))
	assert.Greater(t, sky, cosineSimilarity(query, vecs[2]))
}

func TestTFIDFEmbedder_UnknownTokensGiveZeroVector(t *testing.T) {
	e := fittedTFIDF(t, 10, "alpha beta", "gamma delta")

	vec, err := e.Embed(context.Background(), "zebra")

	require.NoError(t, err)
	assert.Len(t, vec, 10)
	assert.Zero(t, vectorMagnitude(vec))
}

func TestTFIDFEmbedder_RefitReproducesVectors(t *testing.T) {
	// Given: two embedders fit on the same corpus
	corpus := []string{"meeting with Bob on Friday", "buy milk and eggs", "Bob likes eggs"}
	a := fittedTFIDF(t, 300, corpus...)
	b := fittedTFIDF(t, 300, corpus...)

	// When: both embed the same text
	va, err := a.Embed(context.Background(), "eggs for Bob")
	require.NoError(t, err)
	vb, err := b.Embed(context.Background(), "eggs for Bob")
	require.NoError(t, err)

	// Then: the vectors agree
	assert.InDeltaSlice(t, va, vb, 1e-6)
}

func TestTFIDFEmbedder_StopwordOnlyCorpusKeepsStopwords(t *testing.T) {
	e := fittedTFIDF(t, 8, "the the the", "it is what it is")

	vec, err := e.Embed(context.Background(), "it is")

	require.NoError(t, err)
	assert.InDelta(t, 1.0, vectorMagnitude(vec), 1e-5)
}

func TestTFIDFEmbedder_FitErrors(t *testing.T) {
	e := NewTFIDFEmbedder(8)
	assert.Error(t, e.Fit(nil))
	assert.Error(t, e.Fit([]string{"   ", ""}))
	assert.Error(t, e.Fit([]string{"!!! ???"}))

	require.NoError(t, e.Fit([]string{"one two"}))
	assert.Error(t, e.Fit([]string{"three"}), "second fit without reset")

	e.Reset()
	assert.False(t, e.Fitted())
	assert.Equal(t, 0, e.Rank())
	require.NoError(t, e.Fit([]string{"three"}))
}

func TestTFIDFEmbedder_Close(t *testing.T) {
	e := fittedTFIDF(t, 8, "one two")
	assert.True(t, e.Available(context.Background()))

	require.NoError(t, e.Close())

	assert.False(t, e.Available(context.Background()))
	_, err := e.Embed(context.Background(), "one")
	assert.Error(t, err)
}
