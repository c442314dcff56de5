package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Tutortoise/ovaquick/gradio"
	"github.com/Tutortoise/ovaquick/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	mu    sync.Mutex
	calls int
	route string
	data  []any

	out   []json.RawMessage
	err   error
	delay time.Duration
}

func (f *fakeCaller) Predict(ctx context.Context, route string, data ...any) ([]json.RawMessage, error) {
	f.mu.Lock()
	f.calls++
	f.route = route
	f.data = data
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.out, f.err
}

func (f *fakeCaller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestAdapterPredictForwardsImageOnce(t *testing.T) {
	caller := &fakeCaller{out: rawList(`{"Normal": 0.7, "PCO": 0.3}`, `{"url":"https://x/heatmap.png"}`)}
	a := NewAdapter(caller)

	img := models.Image{Filename: "scan.jpg", ContentType: "image/jpeg", Data: []byte("not even an image")}
	res, err := a.Predict(context.Background(), img)
	require.NoError(t, err)

	assert.Equal(t, 1, caller.callCount())
	assert.Equal(t, DefaultRoute, caller.route)
	require.Len(t, caller.data, 1)
	assert.Equal(t, gradio.File{Name: "scan.jpg", ContentType: "image/jpeg", Data: img.Data}, caller.data[0])

	assert.Equal(t, map[string]float64{"Normal": 0.7, "PCO": 0.3}, res.ClassProbabilities())
	assert.Equal(t, "https://x/heatmap.png", res.HeatmapURL())
	assert.Equal(t, models.ShapeFlat, res.Shape())
}

func TestAdapterUnrecognizedShapeIsNotAnError(t *testing.T) {
	caller := &fakeCaller{out: rawList(`[1, 2, 3]`)}
	res, err := NewAdapter(caller, WithRoute("/classify")).Predict(context.Background(), models.Image{Data: []byte{1}})
	require.NoError(t, err)
	assert.Empty(t, res.ClassProbabilities())
	assert.Equal(t, "", res.HeatmapURL())
	assert.Equal(t, models.ShapeUnrecognized, res.Shape())
	assert.Equal(t, "/classify", caller.route)
}

func TestAdapterErrorKinds(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind Kind
		wantIs   error
	}{
		{
			name:     "cannot connect",
			err:      fmt.Errorf("%w: load config: %w", gradio.ErrConnect, errors.New("503")),
			wantKind: KindConnection,
			wantIs:   ErrConnection,
		},
		{
			name:     "remote error",
			err:      &gradio.RemoteError{Status: 422, Message: "bad image"},
			wantKind: KindRemoteCall,
			wantIs:   ErrRemoteCall,
		},
		{
			name:     "protocol error",
			err:      fmt.Errorf("%w: event stream ended before completion", gradio.ErrProtocol),
			wantKind: KindRemoteCall,
			wantIs:   ErrRemoteCall,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := &fakeCaller{err: tt.err}
			res, err := NewAdapter(caller).Predict(context.Background(), models.Image{Data: []byte{1}})
			assert.Nil(t, res)
			require.Error(t, err)

			var ie *InferenceError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, tt.wantKind, ie.Kind)
			assert.Equal(t, tt.wantKind, KindOf(err))
			assert.ErrorIs(t, err, tt.wantIs)
			assert.ErrorIs(t, err, tt.err)
			assert.NotErrorIs(t, err, ErrUnexpectedShape)
			assert.Equal(t, 1, caller.callCount())
		})
	}
}

func TestAdapterTimeout(t *testing.T) {
	caller := &fakeCaller{delay: time.Second}
	a := NewAdapter(caller, WithTimeout(20*time.Millisecond))

	_, err := a.Predict(context.Background(), models.Image{Data: []byte{1}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, KindRemoteCall, KindOf(err))
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, Kind(0), KindOf(errors.New("boom")))
	assert.Equal(t, "unknown", Kind(0).String())
}

func TestAdapterRoute(t *testing.T) {
	assert.Equal(t, DefaultRoute, NewAdapter(&fakeCaller{}).Route())
	assert.Equal(t, DefaultRoute, NewAdapter(&fakeCaller{}, WithRoute("")).Route())
	assert.Equal(t, "/classify", NewAdapter(&fakeCaller{}, WithRoute("/classify")).Route())
}
