package metric

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rs/zerolog/log"
)

const (
	ApiRequestCount      = "api_request_count"
	ApiRequestLatency    = "api_request_latency"
	InferenceCallCount   = "inference_call_count"
	InferenceCallLatency = "inference_call_latency"
	ResultCacheCount     = "result_cache_count"
	ResultCacheEntries   = "result_cache_entries"
	SessionCount         = "session_count"

	TagEnv     = "env"
	TagService = "service"
	TagPath    = "path"
	TagMethod  = "method"
	TagStatus  = "status"
	TagRoute   = "route"
	TagResult  = "result"
	TagShape   = "shape"
)

type Config struct {
	AppName      string
	AppEnv       string
	TelegrafHost string
	TelegrafPort string
	SamplingRate float64
}

var (
	// nil until Init succeeds; every helper is a no-op against a nil client
	statsDClient statsd.ClientInterface
	samplingRate = 1.0
	once         sync.Once

	counters sync.Map
)

// Init builds the statsd client. Without a telegraf host metrics only feed the in-process
// counters exposed by Snapshot.
func Init(cfg Config) {
	once.Do(func() {
		if cfg.SamplingRate > 0 {
			samplingRate = cfg.SamplingRate
		}
		if cfg.TelegrafHost == "" {
			log.Info().Msg("TELEGRAF_HOST not set, statsd metrics disabled")
			return
		}
		address := cfg.TelegrafHost + ":" + cfg.TelegrafPort
		globalTags := []string{
			TagAsString(TagEnv, cfg.AppEnv),
			TagAsString(TagService, cfg.AppName),
		}
		client, err := statsd.New(address, statsd.WithTags(globalTags))
		if err != nil {
			log.Error().Err(err).Msg("StatsD client initialization failed, metrics will be unavailable")
			return
		}
		statsDClient = client
		log.Info().Msgf("Metrics client initialized with telegraf address - %s, global tags - %v, and "+
			"sampling rate - %f", address, globalTags, samplingRate)
	})
}

func Close() {
	if statsDClient != nil {
		_ = statsDClient.Close()
	}
}

func Timing(name string, value time.Duration, tags []string) {
	if statsDClient == nil {
		return
	}
	if err := statsDClient.Timing(name, value, tags, samplingRate); err != nil {
		log.Warn().Err(err).Msg("Error occurred while doing statsd timing")
	}
}

// TimingWithStart is meant for `defer metric.TimingWithStart(name, time.Now(), tags)`.
func TimingWithStart(name string, startTime time.Time, tags []string) {
	Timing(name, time.Since(startTime), tags)
}

func Count(name string, value int64, tags []string) {
	counter(name, tags).Add(value)
	if statsDClient == nil {
		return
	}
	if err := statsDClient.Count(name, value, tags, samplingRate); err != nil {
		log.Warn().Err(err).Msg("Error occurred while doing statsd count")
	}
}

func Incr(name string, tags []string) {
	Count(name, 1, tags)
}

func Gauge(name string, value float64, tags []string) {
	if statsDClient == nil {
		return
	}
	if err := statsDClient.Gauge(name, value, tags, samplingRate); err != nil {
		log.Warn().Err(err).Msg("Error occurred while doing statsd gauge")
	}
}

func TagAsString(key, value string) string {
	return fmt.Sprintf("%s:%s", key, value)
}

// Snapshot returns the in-process totals of every counter, keyed by name and tags.
func Snapshot() map[string]int64 {
	out := make(map[string]int64)
	counters.Range(func(k, v any) bool {
		out[k.(string)] = v.(*atomic.Int64).Load()
		return true
	})
	return out
}

func counter(name string, tags []string) *atomic.Int64 {
	key := name
	for _, t := range tags {
		key += "," + t
	}
	if c, ok := counters.Load(key); ok {
		return c.(*atomic.Int64)
	}
	c, _ := counters.LoadOrStore(key, new(atomic.Int64))
	return c.(*atomic.Int64)
}
