package session

import "time"

// Histogram bucket labels, in ascending order. Kept in sync with the
// stats/session_durations children the reporting side reads.
var bucketLabels = []string{"0-10s", "10-30s", "30-60s", "1-5m", "5-10m", "10-30m", "30-60m", "60m+"}

// DurationBucket classifies an elapsed session duration into its histogram
// bucket. Intervals are half-open: the lower bound is inclusive, the upper
// exclusive, so exactly 10s lands in "10-30s".
func DurationBucket(d time.Duration) string {
	s := d.Seconds()
	switch {
	case s < 10:
		return bucketLabels[0]
	case s < 30:
		return bucketLabels[1]
	case s < 60:
		return bucketLabels[2]
	case s < 300:
		return bucketLabels[3]
	case s < 600:
		return bucketLabels[4]
	case s < 1800:
		return bucketLabels[5]
	case s < 3600:
		return bucketLabels[6]
	default:
		return bucketLabels[7]
	}
}

// BucketLabels returns the histogram labels in display order.
func BucketLabels() []string {
	out := make([]string, len(bucketLabels))
	copy(out, bucketLabels)
	return out
}
