// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/syntheticmagus/manifold-meeting-space/lib/netutil"
)

const (
	defaultRequestTimeout = 10 * time.Second

	// maxResponseBytes bounds a roster response.
	maxResponseBytes = 1 << 20
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// URL is the registry base URL. A missing trailing slash is added,
	// so "http://host:9000" and "http://host:9000/" are equivalent.
	URL string

	// HTTPClient defaults to a client with a 10 second timeout.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client calls a registry over HTTP. It satisfies the space package's
// registry contract, including departures.
type Client struct {
	base       string
	httpClient *http.Client
	logger     *slog.Logger
}

type membershipRequest struct {
	Space string `json:"space"`
	ID    string `json:"id"`
}

type joinResponse struct {
	IDs []string `json:"ids"`
}

// NewClient validates the base URL.
func NewClient(config ClientConfig) (*Client, error) {
	parsed, err := url.Parse(config.URL)
	if err != nil {
		return nil, fmt.Errorf("registry: parsing URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("registry: URL %q must be http or https", config.URL)
	}
	base := config.URL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{base: base, httpClient: config.HTTPClient, logger: config.Logger}, nil
}

// Join records id in space and returns the members already there,
// excluding id.
func (client *Client) Join(ctx context.Context, space, id string) ([]string, error) {
	var response joinResponse
	if err := client.post(ctx, "join", membershipRequest{Space: space, ID: id}, &response); err != nil {
		return nil, err
	}
	roster := make([]string, 0, len(response.IDs))
	for _, member := range response.IDs {
		if member != id {
			roster = append(roster, member)
		}
	}
	client.logger.Debug("registry join", "space", space, "id", id, "roster", len(roster))
	return roster, nil
}

// Leave removes id from space.
func (client *Client) Leave(ctx context.Context, space, id string) error {
	return client.post(ctx, "leave", membershipRequest{Space: space, ID: id}, nil)
}

// Members lists space.
func (client *Client) Members(ctx context.Context, space string) ([]string, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, client.base+"spaces/"+url.PathEscape(space), nil)
	if err != nil {
		return nil, fmt.Errorf("registry: creating request: %w", err)
	}
	var listing spaceListing
	if err := client.do(request, &listing); err != nil {
		return nil, err
	}
	return listing.Members, nil
}

func (client *Client) post(ctx context.Context, path string, body, result any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("registry: encoding request body: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, client.base+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("registry: creating request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	return client.do(request, result)
}

// do sends request and decodes a 2xx body into result when result is
// non-nil. Other statuses become *Error.
func (client *Client) do(request *http.Request, result any) error {
	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("registry: %s %s: %w", request.Method, request.URL, err)
	}
	defer response.Body.Close()

	body, err := netutil.ReadBounded(response.Body, maxResponseBytes)
	if err != nil {
		return fmt.Errorf("registry: reading response: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		message := http.StatusText(response.StatusCode)
		var parsed errorBody
		if json.Unmarshal(body, &parsed) == nil && parsed.Error != "" {
			message = parsed.Error
		}
		return &Error{StatusCode: response.StatusCode, Message: message}
	}
	if result == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("registry: decoding response: %w", err)
	}
	return nil
}
