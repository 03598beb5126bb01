package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchChecksum(t *testing.T) {
	digest := strings.Repeat("ab", 32)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ".sha256") {
			t.Errorf("expected .sha256 suffix on request path, got %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(digest + "  qtbase-Linux-X86_64.7z\n"))
	}))
	defer server.Close()

	client := newTestClient(t)
	got, err := client.FetchChecksum(context.Background(), server.URL+"/qtbase-Linux-X86_64.7z", "sha256")
	if err != nil {
		t.Fatalf("FetchChecksum failed: %v", err)
	}
	if got != digest {
		t.Errorf("expected digest %s, got %s", digest, got)
	}
}

func TestFetchChecksumBareDigest(t *testing.T) {
	digest := strings.Repeat("0f", 20)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(digest))
	}))
	defer server.Close()

	client := newTestClient(t)
	got, err := client.FetchChecksum(context.Background(), server.URL+"/pkg.7z", "sha1")
	if err != nil {
		t.Fatalf("FetchChecksum failed: %v", err)
	}
	if got != digest {
		t.Errorf("expected digest %s, got %s", digest, got)
	}
}

func TestFetchChecksumUppercaseNormalized(t *testing.T) {
	digest := strings.Repeat("AB", 32)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(digest + "  pkg.7z"))
	}))
	defer server.Close()

	client := newTestClient(t)
	got, err := client.FetchChecksum(context.Background(), server.URL+"/pkg.7z", "sha256")
	if err != nil {
		t.Fatalf("FetchChecksum failed: %v", err)
	}
	if got != strings.ToLower(digest) {
		t.Errorf("expected lowercased digest, got %s", got)
	}
}

func TestFetchChecksumMalformed(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"wrong_length", "abc123  pkg.7z"},
		{"not_hex", strings.Repeat("zz", 32) + "  pkg.7z"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := newTestClient(t)
			if _, err := client.FetchChecksum(context.Background(), server.URL+"/pkg.7z", "sha256"); err == nil {
				t.Error("expected error for malformed checksum file, got nil")
			}
		})
	}
}

func TestFetchChecksumNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such file", http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t)
	if _, err := client.FetchChecksum(context.Background(), server.URL+"/pkg.7z", "sha256"); err == nil {
		t.Error("expected error for missing checksum file, got nil")
	}
}
