package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"

	perr "recallwatch/internal/platform/errors"
	"recallwatch/internal/platform/logger"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUA        = "recallwatch-ingest"
	defaultMax429    = 5
	default429Floor  = 2 * time.Second
	responseBodyCap  = 16 << 20 // agencies ship big pages, cap reads anyway
	diagnosticTailSz = 2048
)

// ClientOptions configures the shared agency HTTP client
type ClientOptions struct {
	UserAgent string
	Timeout   time.Duration

	// Max429Waits bounds how many rate-limit responses one Fetch absorbs
	// before giving up with a TooManyRequests error
	Max429Waits int
}

// Client is the resilient HTTP client every adapter fetches through.
// It absorbs HTTP 429 by honoring Retry-After; transient 5xx responses are
// returned as Unavailable so the connector's retry policy owns that backoff
type Client struct {
	http  *http.Client
	opts  ClientOptions
	log   logger.Logger
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewClient creates a Client with sane defaults
func NewClient(o ClientOptions) *Client {
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.Max429Waits <= 0 {
		o.Max429Waits = defaultMax429
	}
	return &Client{
		http:  &http.Client{Timeout: o.Timeout},
		opts:  o,
		log:   *logger.Named("sources"),
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// Get issues a GET with rate-limit handling and returns the body bytes.
// query may be nil. Callers decode; use GetJSON GetXML GetHTML for sugar
func (c *Client) Get(ctx context.Context, rawURL string, query url.Values) ([]byte, error) {
	u := rawURL
	if len(query) > 0 {
		u = rawURL + "?" + query.Encode()
	}

	waits := 0
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "source new request failed")
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)
		req.Header.Set("Accept", "application/json, application/xml, text/html")

		start := c.now()
		resp, err := c.http.Do(req)
		lat := c.now().Sub(start)

		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "source fetch failed")
		}

		c.log.Debug().
			Str("url", rawURL).
			Int("status", resp.StatusCode).
			Dur("latency", lat).
			Msg("source http response")

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			body, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyCap))
			_ = resp.Body.Close()
			if err != nil {
				return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "source body read failed")
			}
			return body, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			wait := retryAfter(resp.Header, c.now())
			if wait <= 0 {
				wait = default429Floor << uint(waits)
			}
			_ = drainAndClose(resp.Body)
			if waits >= c.opts.Max429Waits {
				return nil, perr.Newf(perr.ErrorCodeTooManyRequests, "source rate limited")
			}
			c.log.Warn().Str("url", rawURL).Dur("sleep", wait).Msg("source rate limited backing off")
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
			waits++
			continue

		case resp.StatusCode >= 500:
			// transient server side; the connector owns retry cadence
			tail, _ := io.ReadAll(io.LimitReader(resp.Body, diagnosticTailSz))
			_ = resp.Body.Close()
			return nil, perr.Newf(perr.ErrorCodeUnavailable, "source server error %d body %s", resp.StatusCode, string(tail))

		default:
			tail, _ := io.ReadAll(io.LimitReader(resp.Body, diagnosticTailSz))
			_ = resp.Body.Close()
			return nil, perr.Newf(perr.ErrorCodeUnknown, "source unexpected status %d body %s", resp.StatusCode, string(tail))
		}
	}
}

// GetJSON fetches and decodes a JSON payload into out.
// Decode failures classify as schema errors, the agency changed shape
func (c *Client) GetJSON(ctx context.Context, rawURL string, query url.Values, out any) error {
	body, err := c.Get(ctx, rawURL, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "source json schema mismatch")
	}
	return nil
}

// GetXML fetches and decodes an XML payload into out
func (c *Client) GetXML(ctx context.Context, rawURL string, query url.Values, out any) error {
	body, err := c.Get(ctx, rawURL, query)
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(body, out); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "source xml schema mismatch")
	}
	return nil
}

// GetHTML fetches and parses an HTML page for scraping adapters
func (c *Client) GetHTML(ctx context.Context, rawURL string, query url.Values) (*goquery.Document, error) {
	body, err := c.Get(ctx, rawURL, query)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "source html parse failed")
	}
	return doc, nil
}

// retryAfter reads Retry-After as either seconds or an HTTP date
func retryAfter(h http.Header, now time.Time) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
		return time.Duration(sec) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

func drainAndClose(rc io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 512))
	return rc.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
