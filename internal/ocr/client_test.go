package ocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aldersea/questor/internal/tool"
	"go.uber.org/zap"
)

func TestExtractImageURLs(t *testing.T) {
	text := `Please read https://cdn.example.com/scan.png and
http://example.com/page.html plus https://img.example.com/a.jpeg?sig=1`

	urls := ExtractImageURLs(text)
	if len(urls) != 2 {
		t.Fatalf("got %v, want 2 image URLs", urls)
	}
	if urls[0] != "https://cdn.example.com/scan.png" {
		t.Errorf("urls[0] = %q", urls[0])
	}
}

func TestRecognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req recognizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.ImageURL == "" {
			t.Error("missing image_url")
		}
		json.NewEncoder(w).Encode(recognizeResponse{Success: true, Result: "total: 42.00"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	got, err := c.Recognize(context.Background(), "https://cdn.example.com/receipt.png")
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if got != "total: 42.00" {
		t.Errorf("result = %q", got)
	}
}

func TestRecognizeServiceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(recognizeResponse{Success: false, Msg: "unreadable image"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	if _, err := c.Recognize(context.Background(), "https://x/y.png"); err == nil {
		t.Fatal("expected error")
	}
}

func TestToolRejectsInputWithoutURL(t *testing.T) {
	reg := tool.NewRegistry()
	RegisterTool(reg, NewClient("http://unused", zap.NewNop()))

	tl, ok := reg.Get("ocr")
	if !ok {
		t.Fatal("ocr tool not registered")
	}
	if _, err := tl.Invoke(context.Background(), "no urls here"); err == nil {
		t.Fatal("expected error for input without image URL")
	}
}
