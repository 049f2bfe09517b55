// Package unsplash 提供了一个图库照片搜索 API 的客户端。
package unsplash

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"gemchat-go/internal/config"
)

// Photo 是一次搜索命中的照片。
type Photo struct {
	URL         string
	Description string
}

// Client 是图库搜索 API 的客户端。
type Client struct {
	accessKey string
	baseURL   string
	client    *http.Client
}

// NewClient 创建一个新的图库客户端实例。
func NewClient(cfg config.UnsplashConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.unsplash.com"
	}
	return &Client{
		accessKey: cfg.AccessKey,
		baseURL:   baseURL,
		client:    &http.Client{},
	}
}

// Enabled 返回是否配置了访问凭证。未配置时调用方应直接走降级路径。
func (c *Client) Enabled() bool {
	return c.accessKey != ""
}

type searchResponse struct {
	Results []struct {
		URLs struct {
			Regular string `json:"regular"`
		} `json:"urls"`
		AltDescription string `json:"alt_description"`
	} `json:"results"`
}

// SearchPhoto 以给定关键词搜索一张横版照片。
// 没有命中结果时返回错误，由调用方降级处理。
func (c *Client) SearchPhoto(ctx context.Context, query string) (*Photo, error) {
	reqURL := fmt.Sprintf("%s/search/photos?query=%s&per_page=1&orientation=landscape",
		c.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Authorization", "Client-ID "+c.accessKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call unsplash api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unsplash api returned %s: %s", resp.Status, string(body))
	}

	var searchResp searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("failed to decode unsplash response: %w", err)
	}

	if len(searchResp.Results) == 0 {
		return nil, fmt.Errorf("no images found for query %q", query)
	}

	photo := searchResp.Results[0]
	description := photo.AltDescription
	if description == "" {
		description = fmt.Sprintf("Photo related to: %s", query)
	}
	return &Photo{URL: photo.URLs.Regular, Description: description}, nil
}
