package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const maxManifestSize = 1 << 20

// Release describes an update published by an endpoint.
type Release struct {
	Version   string `json:"version"`
	Notes     string `json:"notes"`
	PubDate   string `json:"pub_date"`
	URL       string `json:"url"`
	Signature string `json:"signature"`
}

// Request is a single endpoint query. Endpoint already has its placeholders expanded.
type Request struct {
	Endpoint       string
	CurrentVersion string
	Target         string
	Arch           string
}

// Checker asks an update endpoint for the latest release. A nil release without error means no update is offered.
type Checker interface {
	Check(ctx context.Context, req Request) (*Release, error)
}

// CheckerFunc adapts a function to a Checker.
type CheckerFunc func(ctx context.Context, req Request) (*Release, error)

func (f CheckerFunc) Check(ctx context.Context, req Request) (*Release, error) {
	return f(ctx, req)
}

// HTTPChecker fetches a JSON release manifest. 204 No Content means the application is up to date.
type HTTPChecker struct {
	Client *http.Client
}

func (c *HTTPChecker) Check(ctx context.Context, req Request) (*Release, error) {
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.Endpoint, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.Endpoint)
	}

	var release Release
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxManifestSize)).Decode(&release); err != nil {
		return nil, fmt.Errorf("invalid release manifest from %s: %w", req.Endpoint, err)
	}
	if release.Version == "" {
		return nil, fmt.Errorf("release manifest from %s has no version", req.Endpoint)
	}
	return &release, nil
}

var _ Checker = &HTTPChecker{}
