package health

import (
	"context"
	"net/http"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck reports unhealthy when the goroutine count exceeds
// threshold. Useful as a liveness check against goroutine leaks.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if count := runtime.NumGoroutine(); count > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", count, threshold)
		}
		return nil
	}
}

// HTTPCheck reports unhealthy when a GET against url fails or returns a
// 5xx. Useful as a readiness check for an upstream dependency.
func HTTPCheck(client *http.Client, url string) CheckFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return errors.Wrap(err, "build request")
		}
		resp, err := client.Do(req)
		if err != nil {
			return errors.Wrap(err, "request")
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return errors.Errorf("status %d", resp.StatusCode)
		}
		return nil
	}
}
