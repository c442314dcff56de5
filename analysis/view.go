package analysis

import (
	"fmt"
	"math"

	"github.com/Tutortoise/ovaquick/models"
)

// Row is one class of the result as the page shows it.
type Row struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
	// Percent is probability x 100 with two decimals, ChartPercent the one-decimal bar label.
	Percent      string  `json:"percent"`
	ChartPercent string  `json:"chart_percent"`
	Width        float64 `json:"-"`
}

// View is an immutable copy of the controller state for rendering.
type View struct {
	State     State                `json:"state"`
	Busy      bool                 `json:"busy"`
	HasFile   bool                 `json:"has_file"`
	Filename  string               `json:"filename,omitempty"`
	Preview   string               `json:"preview,omitempty"`
	HasResult bool                 `json:"has_result"`
	Shape     models.ResponseShape `json:"shape,omitempty"`
	Rows      []Row                `json:"rows"`
	Heatmap   string               `json:"heatmap,omitempty"`
	Error     string               `json:"error,omitempty"`
}

func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		State:   c.state,
		Busy:    c.state == Loading,
		Preview: c.preview,
		Error:   c.errMsg,
		Rows:    []Row{},
	}
	if c.staged != nil {
		v.HasFile = true
		v.Filename = c.staged.Filename
	}
	if c.result != nil {
		v.HasResult = true
		v.Shape = c.result.Shape()
		v.Heatmap = c.result.HeatmapURL()
		v.Rows = Rows(c.result)
	}
	return v
}

// Rows lists the classes of r in the order the model reported them.
func Rows(r *models.PredictionResult) []Row {
	labels := r.Labels()
	rows := make([]Row, 0, len(labels))
	for _, l := range labels {
		p, _ := r.Probability(l)
		rows = append(rows, Row{
			Label:        l,
			Probability:  p,
			Percent:      FormatPercent(p),
			ChartPercent: fmt.Sprintf("%.1f", p*100),
			Width:        math.Max(0, math.Min(100, p*100)),
		})
	}
	return rows
}

func FormatPercent(p float64) string {
	return fmt.Sprintf("%.2f", p*100)
}
