package util

import (
	"net/url"
	"testing"
)

func TestSafeTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{name: "string shorter than maxLen", input: "short", maxLen: 10, want: "short"},
		{name: "string equal to maxLen", input: "exactly10c", maxLen: 10, want: "exactly10c"},
		{name: "string longer than maxLen", input: "this-is-a-very-long-token-string", maxLen: 8, want: "this-is-"},
		{name: "empty string", input: "", maxLen: 5, want: ""},
		{name: "maxLen is zero", input: "test", maxLen: 0, want: ""},
		{name: "maxLen is negative", input: "test", maxLen: -1, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeTruncate(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("SafeTruncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestAppendQuery(t *testing.T) {
	tests := []struct {
		name    string
		rawURL  string
		params  []string
		want    url.Values
		wantErr bool
	}{
		{
			name:   "code and state",
			rawURL: "https://client.example.com/cb",
			params: []string{"code", "SplxlOBeZQQYbYS6WxSbIA", "state", "xyz"},
			want:   url.Values{"code": {"SplxlOBeZQQYbYS6WxSbIA"}, "state": {"xyz"}},
		},
		{
			name:   "empty state omitted",
			rawURL: "https://client.example.com/cb",
			params: []string{"code", "abc", "state", ""},
			want:   url.Values{"code": {"abc"}},
		},
		{
			name:   "existing query preserved",
			rawURL: "https://client.example.com/cb?tenant=acme",
			params: []string{"code", "abc"},
			want:   url.Values{"code": {"abc"}, "tenant": {"acme"}},
		},
		{
			name:    "odd params",
			rawURL:  "https://client.example.com/cb",
			params:  []string{"code"},
			wantErr: true,
		},
		{
			name:    "unparseable url",
			rawURL:  "http://[::1",
			params:  []string{"code", "abc"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AppendQuery(tt.rawURL, tt.params...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("AppendQuery() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			u, err := url.Parse(got)
			if err != nil {
				t.Fatalf("result %q is not a URL: %v", got, err)
			}
			if u.Query().Encode() != tt.want.Encode() {
				t.Errorf("query = %q, want %q", u.Query().Encode(), tt.want.Encode())
			}
		})
	}
}
