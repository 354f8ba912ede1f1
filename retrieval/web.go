package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/microcosm-cc/bluemonday"

	"github.com/fabfab/agentic-rag/rag"
)

const (
	defaultBraveURL = "https://api.search.brave.com/res/v1/web/search"
	sourceWeb       = "websearch"
)

// BraveSearcher queries the Brave Search API and merges every result snippet
// into a single document.
type BraveSearcher struct {
	apiKey     string
	baseURL    string
	count      int
	httpClient *http.Client
	client     *resty.Client
	sanitize   *bluemonday.Policy
}

type BraveOption func(*BraveSearcher)

func WithBraveBaseURL(baseURL string) BraveOption {
	return func(b *BraveSearcher) {
		if baseURL != "" {
			b.baseURL = baseURL
		}
	}
}

// WithBraveCount sets the number of results to request (1-20).
func WithBraveCount(count int) BraveOption {
	return func(b *BraveSearcher) {
		if count < 1 {
			count = 1
		}
		if count > 20 {
			count = 20
		}
		b.count = count
	}
}

func WithBraveHTTPClient(client *http.Client) BraveOption {
	return func(b *BraveSearcher) {
		if client != nil {
			b.httpClient = client
		}
	}
}

func NewBraveSearcher(apiKey string, opts ...BraveOption) (*BraveSearcher, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("BRAVE_API_KEY not set")
	}

	b := &BraveSearcher{
		apiKey:     apiKey,
		baseURL:    defaultBraveURL,
		count:      5,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		sanitize:   bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		opt(b)
	}

	// A failed search is reported, never retried.
	b.client = resty.NewWithClient(b.httpClient).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetHeader("X-Subscription-Token", b.apiKey)
	return b, nil
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title         string   `json:"title"`
			URL           string   `json:"url"`
			Description   string   `json:"description"`
			ExtraSnippets []string `json:"extra_snippets"`
		} `json:"results"`
	} `json:"web"`
}

func (b *BraveSearcher) Search(ctx context.Context, question string) (rag.RetrievalResult, error) {
	resp, err := b.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":     question,
			"count": strconv.Itoa(b.count),
		}).
		Get(b.baseURL)
	if err != nil {
		return rag.RetrievalResult{}, b.fail(fmt.Errorf("send request: %w", err))
	}
	if resp.StatusCode() != http.StatusOK {
		return rag.RetrievalResult{}, b.fail(fmt.Errorf("brave api returned status: %d", resp.StatusCode()))
	}

	var payload braveResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return rag.RetrievalResult{}, b.fail(fmt.Errorf("decode response: %w", err))
	}

	snippets := make([]string, 0, len(payload.Web.Results))
	for _, item := range payload.Web.Results {
		for _, text := range append([]string{item.Description}, item.ExtraSnippets...) {
			if clean := b.clean(text); clean != "" {
				snippets = append(snippets, clean)
			}
		}
	}

	result := rag.RetrievalResult{Query: question}
	if len(snippets) == 0 {
		return result, nil
	}
	result.Documents = []rag.Document{{
		Content: strings.Join(snippets, "\n"),
		Source:  sourceWeb,
	}}
	return result, nil
}

func (b *BraveSearcher) clean(text string) string {
	stripped := b.sanitize.Sanitize(text)
	return strings.TrimSpace(html.UnescapeString(stripped))
}

func (b *BraveSearcher) fail(err error) error {
	return &rag.RetrievalError{Source: sourceWeb, Err: err}
}

var _ rag.WebSearcher = (*BraveSearcher)(nil)
