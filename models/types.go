package models

import (
	"encoding/json"
	"sort"
	"time"
)

// Image is a staged upload. The bytes are forwarded to the remote model untouched.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (i Image) Empty() bool {
	return len(i.Data) == 0
}

// ResponseShape records which prediction variant the remote response decoded to.
type ResponseShape string

const (
	ShapeFlat         ResponseShape = "flat"
	ShapeLabel        ResponseShape = "label"
	ShapeUnrecognized ResponseShape = "unrecognized"
)

// PredictionResult is the normalized answer of the remote model. It is immutable:
// accessors hand out copies.
type PredictionResult struct {
	probabilities map[string]float64
	labels        []string
	heatmapURL    string
	shape         ResponseShape
}

// NewPredictionResult copies probabilities and keeps labels as the display order.
// Labels missing from probabilities are dropped, keys missing from labels are appended.
func NewPredictionResult(probabilities map[string]float64, labels []string, heatmapURL string, shape ResponseShape) *PredictionResult {
	probs := make(map[string]float64, len(probabilities))
	for k, v := range probabilities {
		probs[k] = v
	}

	order := make([]string, 0, len(probs))
	seen := make(map[string]struct{}, len(probs))
	for _, l := range labels {
		if _, ok := probs[l]; !ok {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		order = append(order, l)
	}
	var rest []string
	for k := range probs {
		if _, ok := seen[k]; !ok {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	order = append(order, rest...)

	return &PredictionResult{
		probabilities: probs,
		labels:        order,
		heatmapURL:    heatmapURL,
		shape:         shape,
	}
}

func (r *PredictionResult) ClassProbabilities() map[string]float64 {
	out := make(map[string]float64, len(r.probabilities))
	for k, v := range r.probabilities {
		out[k] = v
	}
	return out
}

func (r *PredictionResult) Labels() []string {
	return append([]string(nil), r.labels...)
}

func (r *PredictionResult) Probability(label string) (float64, bool) {
	p, ok := r.probabilities[label]
	return p, ok
}

func (r *PredictionResult) HeatmapURL() string {
	return r.heatmapURL
}

func (r *PredictionResult) Shape() ResponseShape {
	return r.shape
}

type predictionResultJSON struct {
	Predictions map[string]float64 `json:"predictions"`
	Labels      []string           `json:"labels"`
	Heatmap     string             `json:"heatmap"`
	Shape       ResponseShape      `json:"shape"`
}

func (r *PredictionResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(predictionResultJSON{
		Predictions: r.probabilities,
		Labels:      r.labels,
		Heatmap:     r.heatmapURL,
		Shape:       r.shape,
	})
}

func (r *PredictionResult) UnmarshalJSON(data []byte) error {
	var raw predictionResultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = *NewPredictionResult(raw.Predictions, raw.Labels, raw.Heatmap, raw.Shape)
	return nil
}

type ProcessingTimings struct {
	Call      time.Duration
	Normalize time.Duration
	Total     time.Duration
}
