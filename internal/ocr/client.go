// Package ocr is the boundary to the external text-recognition service.
// The inference engine and its image processing live behind an HTTP API;
// only the calling contract is known here.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/aldersea/questor/internal/tool"
	"go.uber.org/zap"
)

// Client talks to the recognition service.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *zap.Logger
}

// NewClient creates an OCR client for the given service endpoint.
func NewClient(endpoint string, logger *zap.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 60 * time.Second},
		logger:   logger,
	}
}

type recognizeRequest struct {
	ImageURL string `json:"image_url"`
}

type recognizeResponse struct {
	Success bool   `json:"success"`
	Result  string `json:"result"`
	Msg     string `json:"msg"`
}

// Recognize submits one image URL and returns the extracted text.
func (c *Client) Recognize(ctx context.Context, imageURL string) (string, error) {
	body, err := json.Marshal(recognizeRequest{ImageURL: imageURL})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ocr service status %d: %s", resp.StatusCode, string(respBody))
	}

	var out recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if !out.Success {
		return "", fmt.Errorf("ocr service: %s", out.Msg)
	}
	return out.Result, nil
}

var urlRe = regexp.MustCompile(`https?://[^\s"']+`)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".tiff"}

// ExtractImageURLs pulls image URLs out of free text.
func ExtractImageURLs(text string) []string {
	var urls []string
	for _, candidate := range urlRe.FindAllString(text, -1) {
		parsed, err := url.Parse(candidate)
		if err != nil {
			continue
		}
		path := strings.ToLower(parsed.Path)
		for _, ext := range imageExtensions {
			if strings.HasSuffix(path, ext) {
				urls = append(urls, candidate)
				break
			}
		}
	}
	return urls
}

// RegisterTool exposes recognition as an agent capability. The input may
// be a bare image URL or text containing one or more image URLs.
func RegisterTool(reg *tool.Registry, c *Client) {
	reg.Register("ocr",
		"Extract text from images; input is an image URL or text containing image URLs",
		func(ctx context.Context, input string) (string, error) {
			urls := ExtractImageURLs(input)
			if len(urls) == 0 {
				trimmed := strings.TrimSpace(input)
				if !strings.HasPrefix(trimmed, "http") {
					return "", fmt.Errorf("no image URL found in input")
				}
				urls = []string{trimmed}
			}

			var results []string
			for _, u := range urls {
				text, err := c.Recognize(ctx, u)
				if err != nil {
					return "", fmt.Errorf("recognize %s: %w", u, err)
				}
				results = append(results, text)
			}
			return strings.Join(results, "\n"), nil
		})
}
