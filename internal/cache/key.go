package cache

import (
	"fmt"

	"racedash/internal/charts"
)

// FingerprintLength is how many leading bytes of a dataset identify it.
const FingerprintLength = 100

// Key identifies a cached payload. Datasets that share their first
// FingerprintLength bytes map to the same key.
type Key struct {
	Chart       charts.ID
	Fingerprint string
}

// KeyFor derives the cache key for chart computed over dataset.
func KeyFor(chart charts.ID, dataset string) Key {
	return Key{Chart: chart, Fingerprint: Fingerprint(dataset)}
}

// Fingerprint returns the truncated dataset prefix used for keying.
func Fingerprint(dataset string) string {
	if len(dataset) <= FingerprintLength {
		return dataset
	}
	return dataset[:FingerprintLength]
}

// String converts the key into the form used in Redis and logs.
func (k Key) String() string {
	// chart:<CHART_ID>:<FINGERPRINT>
	return fmt.Sprintf("chart:%s:%s", k.Chart, k.Fingerprint)
}
