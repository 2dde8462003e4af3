// Package metrics defines the Prometheus series of transform runs. A run is
// a short-lived process, so series are pushed to a Pushgateway when one is
// configured instead of being scraped.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus/push"
)

// Push sends the registry to the Pushgateway at url under job. Series carry
// their source as a label. An empty url disables pushing.
func Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if job == "" {
		job = "sheetflow"
	}

	err := push.New(url, job).
		Gatherer(Registry).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
