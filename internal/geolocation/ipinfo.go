package geolocation

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/rudderlabs/rudder-go-kit/config"

	"github.com/rudderlabs/visitor-log/internal/model"
	"github.com/rudderlabs/visitor-log/utils/httputil"
)

// IPInfoClient looks addresses up through an ipinfo.io compatible HTTP API.
type IPInfoClient struct {
	client  *http.Client
	baseURL string
	token   string
}

func NewIPInfoClient(conf *config.Config) *IPInfoClient {
	return &IPInfoClient{
		client: &http.Client{
			Timeout: conf.GetDurationVar(10, time.Second, "Geolocation.timeout"),
		},
		baseURL: strings.TrimSuffix(conf.GetStringVar("https://ipinfo.io", "Geolocation.url"), "/"),
		token:   conf.GetStringVar("", "Geolocation.token"),
	}
}

func (c *IPInfoClient) Locate(ctx context.Context, ip string) (Info, error) {
	endpoint := c.baseURL + "/json"
	if ip != "" {
		if net.ParseIP(ip) == nil {
			return Info{}, ErrInvalidIP
		}
		endpoint = c.baseURL + "/" + url.PathEscape(ip) + "/json"
	}
	if c.token != "" {
		endpoint += "?" + url.Values{"token": []string{c.token}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Info{}, fmt.Errorf("creating geolocation request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Info{}, fmt.Errorf("requesting geolocation: %w", err)
	}
	defer func() { httputil.CloseResponse(resp) }()

	if err := httputil.CheckResponse(resp); err != nil {
		return Info{}, fmt.Errorf("requesting geolocation: %w", err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Info{}, fmt.Errorf("reading geolocation response: %w", err)
	}
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return Info{}, fmt.Errorf("decoding geolocation response: %w", model.ErrMalformedResponse)
	}

	fields := gjson.GetManyBytes(body, "ip", "city", "country")
	return Info{
		IP:      fields[0].String(),
		City:    fields[1].String(),
		Country: fields[2].String(),
	}, nil
}
