package inference

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/Tutortoise/ovaquick/models"
)

// Prediction is the decoded prediction component of a remote response.
type Prediction struct {
	Shape         models.ResponseShape
	Probabilities map[string]float64
	// Labels holds the keys in the order the remote listed them.
	Labels []string
}

type confidenceEntry struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// DecodePrediction tries the known prediction shapes in priority order:
// a flat class->probability object, then a label object carrying a confidences list.
// Anything else decodes as ShapeUnrecognized with no probabilities.
func DecodePrediction(raw json.RawMessage) Prediction {
	if p, ok := decodeFlat(raw); ok {
		return p
	}
	if p, ok := decodeLabel(raw); ok {
		return p
	}
	return Prediction{
		Shape:         models.ShapeUnrecognized,
		Probabilities: map[string]float64{},
	}
}

func decodeFlat(raw json.RawMessage) (Prediction, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return Prediction{}, false
	}

	p := Prediction{Shape: models.ShapeFlat, Probabilities: map[string]float64{}}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return Prediction{}, false
		}
		key, ok := keyTok.(string)
		if !ok || key == "label" {
			return Prediction{}, false
		}
		valTok, err := dec.Token()
		if err != nil {
			return Prediction{}, false
		}
		num, ok := valTok.(json.Number)
		if !ok {
			return Prediction{}, false
		}
		v, err := num.Float64()
		if err != nil {
			return Prediction{}, false
		}
		if _, seen := p.Probabilities[key]; !seen {
			p.Labels = append(p.Labels, key)
		}
		p.Probabilities[key] = v
	}
	if tok, err := dec.Token(); err != nil || tok != json.Delim('}') {
		return Prediction{}, false
	}
	if _, err := dec.Token(); err != io.EOF {
		return Prediction{}, false
	}
	return p, true
}

func decodeLabel(raw json.RawMessage) (Prediction, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return Prediction{}, false
	}
	list := bytes.TrimSpace(obj["confidences"])
	if len(list) == 0 || list[0] != '[' {
		return Prediction{}, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(list, &items); err != nil {
		return Prediction{}, false
	}

	p := Prediction{Shape: models.ShapeLabel, Probabilities: make(map[string]float64, len(items))}
	for _, item := range items {
		e, ok := decodeConfidence(item)
		if !ok {
			continue
		}
		if _, seen := p.Probabilities[e.Label]; !seen {
			p.Labels = append(p.Labels, e.Label)
		}
		p.Probabilities[e.Label] = e.Confidence
	}
	return p, true
}

// decodeConfidence accepts only objects with a non-empty string label and a numeric
// confidence. Anything else is skipped rather than becoming an empty class.
func decodeConfidence(item json.RawMessage) (confidenceEntry, bool) {
	item = bytes.TrimSpace(item)
	if len(item) == 0 || item[0] != '{' {
		return confidenceEntry{}, false
	}
	var e confidenceEntry
	if err := json.Unmarshal(item, &e); err != nil || e.Label == "" {
		return confidenceEntry{}, false
	}
	return e, true
}

// ExtractHeatmapURL returns the url carried by the second output component, verbatim,
// or "" when there is none.
func ExtractHeatmapURL(data []json.RawMessage) string {
	if len(data) < 2 {
		return ""
	}
	var file map[string]json.RawMessage
	if err := json.Unmarshal(data[1], &file); err != nil {
		return ""
	}
	var url string
	if err := json.Unmarshal(file["url"], &url); err != nil {
		return ""
	}
	return url
}

// Normalize turns the raw output components into a PredictionResult.
func Normalize(data []json.RawMessage) *models.PredictionResult {
	var pred Prediction
	if len(data) > 0 {
		pred = DecodePrediction(data[0])
	} else {
		pred = DecodePrediction(nil)
	}
	return models.NewPredictionResult(pred.Probabilities, pred.Labels, ExtractHeatmapURL(data), pred.Shape)
}
