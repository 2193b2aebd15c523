package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Knetic/govaluate"
)

// fetchBodyLimit caps how much of a fetched page is returned to the agent.
const fetchBodyLimit = 64 * 1024

var fetchClient = &http.Client{Timeout: 15 * time.Second}

// RegisterBuiltins adds the default tools. Built-ins are registered before
// extensions so a plugin can override any of them by name.
func RegisterBuiltins(reg *Registry) {
	reg.Register("calculator",
		"Evaluate an arithmetic expression, e.g. \"123*456\" or \"(2+3)/4\"",
		Calculate)

	reg.Register("current_time",
		"Get the current date and time",
		func(ctx context.Context, input string) (string, error) {
			return time.Now().Format(time.RFC3339), nil
		})

	reg.Register("http_fetch",
		"Fetch the body of a URL over HTTP GET",
		fetchURL)
}

// Calculate evaluates an arithmetic expression and formats the result
// without a trailing ".0" for whole numbers.
func Calculate(ctx context.Context, input string) (string, error) {
	expr, err := govaluate.NewEvaluableExpression(strings.TrimSpace(input))
	if err != nil {
		return "", fmt.Errorf("invalid expression %q: %w", input, err)
	}
	result, err := expr.Evaluate(nil)
	if err != nil {
		return "", fmt.Errorf("evaluate %q: %w", input, err)
	}
	switch v := result.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	case string:
		return v, nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

func fetchURL(ctx context.Context, input string) (string, error) {
	url := strings.TrimSpace(input)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", fmt.Errorf("not an http(s) URL: %q", url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := fetchClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchBodyLimit))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}
