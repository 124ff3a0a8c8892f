package scope

import (
	"testing"
)

// =============================================================================
// Checker Tests
// =============================================================================

func TestNewChecker(t *testing.T) {
	c, err := NewChecker("HTTPS://Example.com:443/docs/start#top")
	if err != nil {
		t.Fatalf("NewChecker() error = %v", err)
	}
	if got := c.Origin(); got != "https://example.com" {
		t.Errorf("Origin() = %s, want https://example.com", got)
	}
}

func TestChecker_IsInScope(t *testing.T) {
	c, err := NewChecker("https://example.com/")
	if err != nil {
		t.Fatalf("NewChecker() error = %v", err)
	}

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"same origin page", "https://example.com/about", true},
		{"same origin with query", "https://example.com/search?q=go", true},
		{"explicit default port", "https://example.com:443/pricing", true},
		{"uppercase host", "https://EXAMPLE.com/x", true},
		{"other scheme", "http://example.com/about", false},
		{"subdomain", "https://blog.example.com/", false},
		{"other port", "https://example.com:8443/", false},
		{"external", "https://other.com/", false},
		{"static asset", "https://example.com/logo.png", false},
		{"mailto", "mailto:hi@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.IsInScope(tt.url); got != tt.want {
				t.Errorf("IsInScope(%s) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

// =============================================================================
// NormalizeURL Tests
// =============================================================================

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "lowercase scheme",
			input: "HTTPS://example.com/path",
			want:  "https://example.com/path",
		},
		{
			name:  "lowercase host",
			input: "https://EXAMPLE.COM/path",
			want:  "https://example.com/path",
		},
		{
			name:  "remove http port 80",
			input: "http://example.com:80/path",
			want:  "http://example.com/path",
		},
		{
			name:  "remove https port 443",
			input: "https://example.com:443/path",
			want:  "https://example.com/path",
		},
		{
			name:  "keep non-default port",
			input: "https://example.com:8080/path",
			want:  "https://example.com:8080/path",
		},
		{
			name:  "remove trailing slash",
			input: "https://example.com/path/",
			want:  "https://example.com/path",
		},
		{
			name:  "keep root slash",
			input: "https://example.com/",
			want:  "https://example.com/",
		},
		{
			name:  "add root slash",
			input: "https://example.com",
			want:  "https://example.com/",
		},
		{
			name:  "remove fragment",
			input: "https://example.com/path#section",
			want:  "https://example.com/path",
		},
		{
			name:  "sort query parameters",
			input: "https://example.com/path?z=1&a=2",
			want:  "https://example.com/path?a=2&z=1",
		},
		{
			name:    "invalid URL",
			input:   "://invalid",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("NormalizeURL() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("NormalizeURL() = %v, want %v", got, tt.want)
			}
		})
	}
}

// =============================================================================
// ResolveURL Tests
// =============================================================================

func TestResolveURL(t *testing.T) {
	tests := []struct {
		name     string
		baseURL  string
		relative string
		want     string
		wantErr  bool
	}{
		{
			name:     "relative path",
			baseURL:  "https://example.com/dir/page",
			relative: "other.html",
			want:     "https://example.com/dir/other.html",
		},
		{
			name:     "absolute path",
			baseURL:  "https://example.com/dir/page",
			relative: "/root/page.html",
			want:     "https://example.com/root/page.html",
		},
		{
			name:     "full URL",
			baseURL:  "https://example.com/dir/page",
			relative: "https://other.com/page",
			want:     "https://other.com/page",
		},
		{
			name:     "parent directory",
			baseURL:  "https://example.com/dir/subdir/page",
			relative: "../other.html",
			want:     "https://example.com/dir/other.html",
		},
		{
			name:     "query string",
			baseURL:  "https://example.com/page",
			relative: "?query=1",
			want:     "https://example.com/page?query=1",
		},
		{
			name:     "fragment dropped",
			baseURL:  "https://example.com/page",
			relative: "other#section",
			want:     "https://example.com/other",
		},
		{
			name:    "invalid base URL",
			baseURL: "://invalid",
			wantErr: true,
		},
		{
			name:     "invalid relative URL",
			baseURL:  "https://example.com",
			relative: "://invalid",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveURL(tt.baseURL, tt.relative)
			if (err != nil) != tt.wantErr {
				t.Errorf("ResolveURL() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ResolveURL() = %v, want %v", got, tt.want)
			}
		})
	}
}

// =============================================================================
// IsValidURL Tests
// =============================================================================

func TestIsValidURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"valid https", "https://example.com/page", true},
		{"valid http", "http://example.com/page", true},
		{"with query", "https://example.com/page?id=1", true},
		{"with fragment", "https://example.com/page#section", true},
		{"no scheme", "example.com/page", false},
		{"no host", "https:///page", false},
		{"ftp scheme", "ftp://example.com/file", false},
		{"mailto scheme", "mailto:user@example.com", false},
		{"javascript", "javascript:void(0)", false},
		{"jpg image", "https://example.com/image.jpg", false},
		{"jpeg image", "https://example.com/image.jpeg", false},
		{"png image", "https://example.com/image.png", false},
		{"gif image", "https://example.com/image.gif", false},
		{"css file", "https://example.com/style.css", false},
		{"pdf file", "https://example.com/doc.pdf", false},
		{"zip file", "https://example.com/archive.zip", false},
		{"mp4 video", "https://example.com/video.mp4", false},
		{"docx file", "https://example.com/doc.docx", false},
		{"script", "https://example.com/app.js", false},
		{"feed", "https://example.com/feed.xml", false},
		{"json document", "https://example.com/api/data.JSON", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidURL(tt.url)
			if got != tt.want {
				t.Errorf("IsValidURL(%s) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}
