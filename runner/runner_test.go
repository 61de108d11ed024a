package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/rudderlabs/rudder-go-kit/config"

	"github.com/rudderlabs/visitor-log/jsonrs"
	"github.com/rudderlabs/visitor-log/testhelper"
	"github.com/rudderlabs/visitor-log/testhelper/health"
)

// storeServer is an in-memory entry store speaking the append/list protocol.
type storeServer struct {
	mu   sync.Mutex
	rows []string
}

func (s *storeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Method {
	case http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		for _, row := range gjson.GetBytes(body, "data").Array() {
			s.rows = append(s.rows, row.Raw)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"created":1}`))
	case http.MethodGet:
		_, _ = w.Write([]byte("[" + strings.Join(s.rows, ",") + "]"))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	ipinfo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/8.8.8.8/json", "/json":
			_, _ = w.Write([]byte(`{"ip":"8.8.8.8","city":"Mountain View","country":"US"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(ipinfo.Close)
	storeSrv := httptest.NewServer(&storeServer{
		rows: []string{`{"ip":"1.1.1.1","city":"sydney","country":"au","timestamp":"2020-01-02T03:04:05.000Z"}`},
	})
	t.Cleanup(storeSrv.Close)

	c := config.New()
	c.Set("enableStats", false)
	c.Set("Geolocation.url", ipinfo.URL)
	c.Set("Store.url", storeSrv.URL)
	c.Set("Visitors.timezone", "UTC")
	return c
}

func TestRunOnce(t *testing.T) {
	var out bytes.Buffer
	r := newRunner(newTestConfig(t), ReleaseInfo{Version: "test"}, &out)

	exitCode := r.Run(context.Background(), []string{appName, "once", "--ip", "8.8.8.8"})
	require.Equal(t, 0, exitCode)

	entries := strings.Split(strings.TrimSpace(out.String()), " ➛ ")
	require.Len(t, entries, 2)
	require.True(t, strings.HasSuffix(entries[0], " mountain view, us"), entries[0])
	require.Equal(t, "1.2.20 3:04:05 sydney, au", entries[1])
}

func TestRunOnceTable(t *testing.T) {
	var out bytes.Buffer
	r := newRunner(newTestConfig(t), ReleaseInfo{}, &out)

	require.Equal(t, 0, r.Run(context.Background(), []string{appName, "once", "--ip", "8.8.8.8", "--table"}))
	require.Contains(t, out.String(), "Country")
	require.Contains(t, out.String(), "mountain view")
	require.Contains(t, out.String(), "1.2.20 3:04:05")
}

func TestRunJSONLibrary(t *testing.T) {
	previous := jsonrs.Default
	t.Cleanup(func() { jsonrs.Default = previous })

	c := newTestConfig(t)
	c.Set("Json.Library", jsonrs.StdLib)
	var out bytes.Buffer
	r := newRunner(c, ReleaseInfo{}, &out)

	require.Equal(t, 0, r.Run(context.Background(), []string{appName, "once", "--ip", "8.8.8.8"}))
	require.IsType(t, jsonrs.New(c), jsonrs.Default)
	require.Contains(t, out.String(), "1.2.20 3:04:05 sydney, au")

	c.Set("Json.Library", jsonrs.JsoniterLib)
	require.NotEqual(t, fmt.Sprintf("%T", jsonrs.New(c)), fmt.Sprintf("%T", jsonrs.Default))
}

func TestRunOnceWithoutStore(t *testing.T) {
	c := config.New()
	c.Set("enableStats", false)
	r := newRunner(c, ReleaseInfo{}, io.Discard)

	require.Equal(t, 1, r.Run(context.Background(), []string{appName, "once"}))
}

func TestRunVersion(t *testing.T) {
	var out bytes.Buffer
	r := newRunner(config.New(), ReleaseInfo{Version: "v1.2.3", Commit: "abc"}, &out)

	require.Equal(t, 0, r.Run(context.Background(), []string{appName, "version"}))
	require.True(t, strings.HasPrefix(out.String(), "Version Info "))
	require.Equal(t, "v1.2.3", gjson.Get(strings.TrimPrefix(out.String(), "Version Info "), "Version").String())
}

func TestRunServe(t *testing.T) {
	port := testhelper.FreePort(t)
	c := newTestConfig(t)
	c.Set("Http.port", port)
	c.Set("Visitors.refreshInterval", "10ms")
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exitCode := make(chan int, 1)
	go func() {
		exitCode <- newRunner(c, ReleaseInfo{}, io.Discard).Run(ctx, []string{appName})
	}()
	health.WaitUntilReady(ctx, t, baseURL+"/health", 10*time.Second, 10*time.Millisecond)

	resp, err := http.Get(baseURL + "/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	require.Eventually(t, func() bool {
		resp, err := http.Get(baseURL + "/visitors")
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		return len(gjson.GetBytes(body, "entries").Array()) == 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case code := <-exitCode:
		require.Equal(t, 0, code)
	case <-time.After(20 * time.Second):
		t.Fatal("serve did not shut down")
	}
}
