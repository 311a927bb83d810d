package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"auto_xhs_publisher/config"
)

// HTTPClient implements Client against a JSON search API
// (Tavily-compatible request/response shape).
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPClient(cfg config.SearchConfig, client *http.Client) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("search base url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  client,
	}, nil
}

type searchRequest struct {
	APIKey        string `json:"api_key,omitempty"`
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	IncludeImages bool   `json:"include_images"`
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
		Snippet string `json:"snippet"`
	} `json:"results"`
	Images []struct {
		URL    string `json:"url"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	} `json:"images"`
	Error string `json:"error"`
}

func (h *HTTPClient) Search(ctx context.Context, query string, maxResults int) (*Results, error) {
	data, err := h.post(ctx, searchRequest{
		APIKey:        h.apiKey,
		Query:         query,
		MaxResults:    maxResults,
		IncludeImages: true,
	})
	if err != nil {
		return nil, err
	}

	out := &Results{}
	for _, r := range data.Results {
		content := r.Content
		if content == "" {
			content = r.Snippet
		}
		out.Documents = append(out.Documents, Document{
			Title:   r.Title,
			URL:     r.URL,
			Summary: r.Snippet,
			Content: content,
		})
	}
	for _, img := range data.Images {
		out.Images = append(out.Images, Image{URL: img.URL, Width: img.Width, Height: img.Height})
	}
	return out, nil
}

func (h *HTTPClient) SearchImages(ctx context.Context, query string, maxResults int) ([]Image, error) {
	data, err := h.post(ctx, searchRequest{
		APIKey:        h.apiKey,
		Query:         query,
		MaxResults:    maxResults,
		IncludeImages: true,
	})
	if err != nil {
		return nil, err
	}

	imgs := make([]Image, 0, len(data.Images))
	for _, img := range data.Images {
		imgs = append(imgs, Image{URL: img.URL, Width: img.Width, Height: img.Height})
	}
	return imgs, nil
}

func (h *HTTPClient) post(ctx context.Context, reqBody searchRequest) (*searchResponse, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", h.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	var data searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if data.Error != "" {
		return nil, fmt.Errorf("search error: %s", data.Error)
	}
	return &data, nil
}
