package runner

import "github.com/rudderlabs/rudder-go-kit/stats"

// histogram buckets in seconds
var defaultHistogramBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 60,
}

var customBuckets = map[string][]float64{
	"visitor_log_store_request_latency": {
		0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
	},
	"visitor_log_refresh_duration": {
		0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
	},
}

func statsOptions(releaseInfo ReleaseInfo) []stats.Option {
	options := []stats.Option{
		stats.WithServiceName(appName),
		stats.WithServiceVersion(releaseInfo.Version),
		stats.WithDefaultHistogramBuckets(defaultHistogramBuckets),
	}
	for histogramName, buckets := range customBuckets {
		options = append(options, stats.WithHistogramBuckets(histogramName, buckets))
	}
	return options
}
