package metric

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTagAsString(t *testing.T) {
	assert.Equal(t, "route:/predict", TagAsString(TagRoute, "/predict"))
}

func TestCountFeedsSnapshotWithoutStatsd(t *testing.T) {
	Init(Config{AppName: "ovaquick", AppEnv: "test"})
	assert.Nil(t, statsDClient)

	tags := []string{TagAsString(TagResult, "hit")}
	Incr("snapshot_test_count", tags)
	Count("snapshot_test_count", 2, tags)
	Incr("snapshot_test_count", []string{TagAsString(TagResult, "miss")})

	// disabled statsd calls must be no-ops
	Timing("snapshot_test_latency", time.Millisecond, tags)
	TimingWithStart("snapshot_test_latency", time.Now(), tags)
	Gauge("snapshot_test_gauge", 1, tags)

	snap := Snapshot()
	assert.Equal(t, int64(3), snap["snapshot_test_count,result:hit"])
	assert.Equal(t, int64(1), snap["snapshot_test_count,result:miss"])
	assert.NotContains(t, snap, "snapshot_test_latency,result:hit")
}
