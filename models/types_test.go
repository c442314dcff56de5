package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPredictionResultOrdering(t *testing.T) {
	probs := map[string]float64{"PCO": 0.1, "DF": 0.7, "Normal": 0.2, "extra": 0}
	r := NewPredictionResult(probs, []string{"DF", "ghost", "Normal", "DF", "PCO"}, "", ShapeFlat)

	assert.Equal(t, []string{"DF", "Normal", "PCO", "extra"}, r.Labels())

	probs["DF"] = 1
	p, ok := r.Probability("DF")
	require.True(t, ok)
	assert.Equal(t, 0.7, p)

	_, ok = r.Probability("ghost")
	assert.False(t, ok)
}

func TestPredictionResultAccessorsCopy(t *testing.T) {
	r := NewPredictionResult(map[string]float64{"DF": 0.5}, []string{"DF"}, "https://h/x.png", ShapeLabel)

	r.ClassProbabilities()["DF"] = 9
	r.Labels()[0] = "changed"

	p, _ := r.Probability("DF")
	assert.Equal(t, 0.5, p)
	assert.Equal(t, []string{"DF"}, r.Labels())
	assert.Equal(t, "https://h/x.png", r.HeatmapURL())
	assert.Equal(t, ShapeLabel, r.Shape())
}

func TestPredictionResultJSON(t *testing.T) {
	in := NewPredictionResult(map[string]float64{"Normal": 0.9, "DF": 0.1}, []string{"Normal", "DF"}, "u", ShapeFlat)

	b, err := json.Marshal(in)
	require.NoError(t, err)

	var out PredictionResult
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in.Labels(), out.Labels())
	assert.Equal(t, in.ClassProbabilities(), out.ClassProbabilities())
	assert.Equal(t, "u", out.HeatmapURL())
	assert.Equal(t, ShapeFlat, out.Shape())
}

func TestImageEmpty(t *testing.T) {
	assert.True(t, Image{Filename: "a.png"}.Empty())
	assert.False(t, Image{Data: []byte{1}}.Empty())
}
