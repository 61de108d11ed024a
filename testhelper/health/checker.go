package health

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

// WaitUntilReady polls endpoint every interval until it answers 200 with
// {"server":"UP"}, failing the test after atMost.
func WaitUntilReady(ctx context.Context, t testing.TB, endpoint string, atMost, interval time.Duration) {
	t.Helper()
	probe := time.NewTicker(interval)
	defer probe.Stop()
	timeout := time.After(atMost)
	for {
		select {
		case <-ctx.Done():
			return
		case <-timeout:
			t.Fatalf("Application was not ready after %s, for the endpoint: %s", atMost, endpoint)
		case <-probe.C:
			if isUp(ctx, endpoint) {
				t.Log("Application ready")
				return
			}
		}
	}
}

func isUp(ctx context.Context, endpoint string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false
	}
	return resp.StatusCode == http.StatusOK && gjson.GetBytes(body, "server").String() == "UP"
}
