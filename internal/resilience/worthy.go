package resilience

import (
	"errors"

	"github.com/sells-group/traffic-cli/internal/model"
)

// errTotalFailure marks a result set with no metrics at all as retryable.
var errTotalFailure = errors.New("extraction produced no metrics for any domain")

// TotalFailure reports whether a sub-batch result set is worth retrying:
// either nothing came back, or not a single domain carries any metric.
// Confirmed-zero records carry a metric (zero visits), so a page full of
// zero-traffic domains is a success, not a failure.
func TotalFailure(records []model.TrafficRecord) bool {
	if len(records) == 0 {
		return true
	}
	for i := range records {
		if records[i].HasMetrics() {
			return false
		}
	}
	return true
}
