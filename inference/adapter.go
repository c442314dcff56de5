package inference

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Tutortoise/ovaquick/gradio"
	"github.com/Tutortoise/ovaquick/metric"
	"github.com/Tutortoise/ovaquick/models"
	"github.com/rs/zerolog"
)

const DefaultRoute = "/predict"

// Caller is the remote model handle. *gradio.Client satisfies it.
type Caller interface {
	Predict(ctx context.Context, route string, data ...any) ([]json.RawMessage, error)
}

// Predictor is anything that can turn an image into a normalized result.
type Predictor interface {
	Predict(ctx context.Context, img models.Image) (*models.PredictionResult, error)
}

type Option func(*Adapter)

func WithRoute(route string) Option {
	return func(a *Adapter) {
		if route != "" {
			a.route = route
		}
	}
}

// WithTimeout bounds a single Predict call. Zero leaves the call unbounded.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		a.timeout = d
	}
}

// Adapter submits one image to the remote model and normalizes the answer. It performs
// no retries and no client-side validation of the image.
type Adapter struct {
	caller  Caller
	route   string
	timeout time.Duration
}

func NewAdapter(caller Caller, opts ...Option) *Adapter {
	a := &Adapter{
		caller: caller,
		route:  DefaultRoute,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Route() string {
	return a.route
}

func (a *Adapter) Predict(ctx context.Context, img models.Image) (*models.PredictionResult, error) {
	start := time.Now()
	timings := &models.ProcessingTimings{}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	file := gradio.File{
		Name:        img.Filename,
		ContentType: img.ContentType,
		Data:        img.Data,
	}
	data, err := a.caller.Predict(ctx, a.route, file)
	timings.Call = time.Since(start)
	if err != nil {
		ierr := classify("predict", err)
		metric.Count(metric.InferenceCallCount, 1, []string{
			metric.TagAsString(metric.TagRoute, a.route),
			metric.TagAsString(metric.TagResult, ierr.Kind.String()),
		})
		zerolog.Ctx(ctx).Error().Err(err).Str("kind", ierr.Kind.String()).Msg("prediction call failed")
		return nil, ierr
	}

	normStart := time.Now()
	result := Normalize(data)
	timings.Normalize = time.Since(normStart)
	timings.Total = time.Since(start)

	tags := []string{
		metric.TagAsString(metric.TagRoute, a.route),
		metric.TagAsString(metric.TagResult, "success"),
		metric.TagAsString(metric.TagShape, string(result.Shape())),
	}
	metric.Count(metric.InferenceCallCount, 1, tags)
	metric.Timing(metric.InferenceCallLatency, timings.Total, tags)
	logTimings(ctx, timings, result)

	return result, nil
}

func logTimings(ctx context.Context, t *models.ProcessingTimings, r *models.PredictionResult) {
	zerolog.Ctx(ctx).Debug().
		Dur("call", t.Call).
		Dur("normalize", t.Normalize).
		Dur("total", t.Total).
		Str("shape", string(r.Shape())).
		Int("classes", len(r.Labels())).
		Bool("heatmap", r.HeatmapURL() != "").
		Msg("processing times")
}
