package connectivity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Prober performs one reachability check. A nil error means online.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Probe(ctx context.Context) error {
	return f(ctx)
}

// HTTPProber issues a cache-busted GET request and treats any 2xx response
// as proof of connectivity.
type HTTPProber struct {
	URL    string
	Client *http.Client
	now    func() time.Time
}

func NewHTTPProber(rawURL string) *HTTPProber {
	return &HTTPProber{
		URL:    rawURL,
		Client: &http.Client{},
		now:    time.Now,
	}
}

func (p *HTTPProber) Probe(ctx context.Context) error {
	u, err := url.Parse(p.URL)
	if err != nil {
		return fmt.Errorf("invalid probe url: %w", err)
	}
	q := u.Query()
	q.Set("_", strconv.FormatInt(p.now().UnixNano(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build probe request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("Pragma", "no-cache")

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
	return nil
}
