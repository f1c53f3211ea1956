package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"PricePulse/internal/domain/models"
	domrepo "PricePulse/internal/domain/repository"
	xhttp "PricePulse/pkg/http"
	applogger "PricePulse/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Client fetches one tick per call from the upstream pairs API and
// classifies the outcome. Failures never escape as errors: HTTP 429 maps to
// RateLimited, everything else that goes wrong maps to SoftFailure.
type Client struct {
	http *xhttp.Client
	url  string
	pair string
	log  *applogger.Logger
	now  func() time.Time
}

// New creates a TickSource for the configured pair.
func New(url, pair string, timeout time.Duration, log *applogger.Logger) domrepo.TickSource {
	return &Client{
		http: xhttp.NewClient(xhttp.WithTimeout(timeout)),
		url:  url,
		pair: pair,
		log:  log,
		now:  time.Now,
	}
}

type upstreamPair struct {
	Pair      string  `json:"pair"`
	PriceUSD  float64 `json:"price_usd"`
	Change24h float64 `json:"change_24h"`
	Volume24h float64 `json:"volume_24h"`
}

type upstreamPayload struct {
	Pairs []upstreamPair `json:"pairs"`
}

// FetchOne issues one request for the configured pair.
func (c *Client) FetchOne(ctx context.Context) domrepo.Outcome {
	resp, err := c.http.SendRequest(ctx, &xhttp.RequestOptions{
		Method:      http.MethodGet,
		URL:         c.url,
		QueryParams: map[string][]string{"pair": {c.pair}},
	})
	if err != nil {
		c.log.Debug("upstream request failed", applogger.Error(err))
		return domrepo.Failed(fmt.Sprintf("transport: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return domrepo.Throttled()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domrepo.Failed(fmt.Sprintf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return domrepo.Failed(fmt.Sprintf("read body: %v", err))
	}

	return c.parse(body)
}

// parse decodes the pairs payload into exactly one tick.
func (c *Client) parse(body []byte) domrepo.Outcome {
	var payload upstreamPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return domrepo.Failed(fmt.Sprintf("decode: %v", err))
	}
	if len(payload.Pairs) == 0 {
		return domrepo.Failed("missing pairs array")
	}

	p := payload.Pairs[0]
	for _, cand := range payload.Pairs {
		if cand.Pair == c.pair {
			p = cand
			break
		}
	}

	tick := &models.Tick{
		Timestamp: c.now().UTC(),
		Price:     p.PriceUSD,
		Change:    p.Change24h,
		Volume:    p.Volume24h,
	}
	if !tick.Valid() {
		return domrepo.Failed("non-finite numeric fields")
	}

	return domrepo.Succeeded(tick)
}
