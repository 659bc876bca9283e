package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const maxResponseBytes = 4 << 20

// HTTPSource reaches the facts and policy collaborators over HTTP.
//
//	GET {base}/facts/{section}?customer_id=&order_id=&session_id=
//	GET {base}/policy/search?category=&q=&limit=
//
// 404 maps to ErrNotFound; 429, 5xx, and transport failures map to ErrUnavailable.
type HTTPSource struct {
	base   string
	client *http.Client
}

// NewHTTPSource creates a source rooted at baseURL.
func NewHTTPSource(baseURL string, client *http.Client) (*HTTPSource, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid evidence base url %q", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{
		base:   strings.TrimSuffix(baseURL, "/"),
		client: client,
	}, nil
}

func (s *HTTPSource) Fetch(ctx context.Context, section Section, lookup Lookup) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("customer_id", lookup.CustomerID)
	if lookup.OrderID != "" {
		q.Set("order_id", lookup.OrderID)
	}
	if lookup.SessionID != "" {
		q.Set("session_id", lookup.SessionID)
	}

	endpoint := fmt.Sprintf("%s/facts/%s?%s", s.base, url.PathEscape(string(section)), q.Encode())
	return s.get(ctx, endpoint)
}

func (s *HTTPSource) Search(ctx context.Context, category, query string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("category", category)
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))

	return s.get(ctx, s.base+"/policy/search?"+q.Encode())
}

func (s *HTTPSource) get(ctx context.Context, endpoint string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return json.RawMessage(body), nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		return nil, fmt.Errorf("collaborator returned status %d", resp.StatusCode)
	}
}
