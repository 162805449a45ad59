package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Prober checks whether a reference is directly fetchable.
type Prober interface {
	Probe(ctx context.Context, reference string) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, reference string) error

func (f ProberFunc) Probe(ctx context.Context, reference string) error {
	return f(ctx, reference)
}

// HTTPProber probes with a HEAD request and accepts any 2xx status.
type HTTPProber struct {
	Client *http.Client
}

func (p HTTPProber) Probe(ctx context.Context, reference string) error {
	u, err := url.Parse(reference)
	if err != nil {
		return fmt.Errorf("probe %q: %w", reference, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("probe %q: unsupported scheme %q", reference, u.Scheme)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		return fmt.Errorf("probe %q: %w", reference, err)
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %q: %w", reference, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("probe %q: status %d", reference, resp.StatusCode)
	}
	return nil
}
