// Package store talks to the spreadsheet backed, append-only entry store.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"

	"github.com/rudderlabs/visitor-log/internal/model"
	"github.com/rudderlabs/visitor-log/jsonrs"
	"github.com/rudderlabs/visitor-log/utils/httputil"
)

var ErrMissingURL = errors.New("store url is not configured")

// Client appends entries to the store and reads them back. Requests are never
// retried: the next scheduled read is the only retry there is.
type Client struct {
	client *http.Client
	url    string
	token  string

	log   logger.Logger
	stats stats.Stats
}

func New(conf *config.Config, log logger.Logger, statsFactory stats.Stats) (*Client, error) {
	url := conf.GetStringVar("", "Store.url")
	if url == "" {
		return nil, ErrMissingURL
	}
	return &Client{
		client: &http.Client{
			Timeout: conf.GetDurationVar(30, time.Second, "Store.timeout"),
		},
		url:   url,
		token: conf.GetStringVar("", "Store.token"),
		log:   log.Child("store"),
		stats: statsFactory,
	}, nil
}

// Append submits entry wrapped in a one element batch and returns the raw
// response body.
func (c *Client) Append(ctx context.Context, entry model.Entry) ([]byte, error) {
	rawEntry, err := jsonrs.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshalling entry: %w", err)
	}
	payload, err := sjson.SetRawBytes([]byte(`{}`), "data.0", rawEntry)
	if err != nil {
		return nil, fmt.Errorf("building append payload: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, payload)
	if err != nil {
		return nil, fmt.Errorf("appending entry: %w", err)
	}
	c.log.Debugn("Appended entry",
		logger.NewStringField("ip", entry.IP),
		logger.NewIntField("created", gjson.GetBytes(body, "created").Int()),
	)
	return body, nil
}

// List returns every entry in the store, in store order.
func (c *Client) List(ctx context.Context) ([]model.Entry, error) {
	body, err := c.do(ctx, http.MethodGet, nil)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}

	if !gjson.ParseBytes(body).IsArray() {
		return nil, fmt.Errorf("listing entries: %w", model.ErrMalformedResponse)
	}
	var entries []model.Entry
	if err := jsonrs.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("listing entries: %w: %w", model.ErrMalformedResponse, err)
	}
	return entries, nil
}

func (c *Client) do(ctx context.Context, method string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.record(method, "error", start)
		return nil, err
	}
	defer func() { httputil.CloseResponse(resp) }()
	c.record(method, strconv.Itoa(resp.StatusCode), start)

	if err := httputil.CheckResponse(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) record(method, status string, start time.Time) {
	tags := stats.Tags{"method": method, "status": status}
	c.stats.NewTaggedStat("visitor_log_store_request_latency", stats.TimerType, tags).Since(start)
	c.stats.NewTaggedStat("visitor_log_store_requests", stats.CountType, tags).Increment()
}
