package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func TestObjectNameFor(t *testing.T) {
	name := objectNameFor("image/jpeg", "/1700000000000/", "", " square ")
	if !strings.HasPrefix(name, "results/1700000000000/square/") || !strings.HasSuffix(name, ".jpg") {
		t.Fatalf("object name = %q", name)
	}
	if name := objectNameFor("image/png"); !strings.HasPrefix(name, "results/") || strings.Count(name, "/") != 1 {
		t.Fatalf("object name without segments = %q", name)
	}
}

func TestObjectNameFromURL(t *testing.T) {
	s := &ResultStorage{bucket: "sketches", publicURL: "https://cdn.example.com"}
	cases := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"https://cdn.example.com/sketches/results/1/a.png", "results/1/a.png", true},
		{"/sketches/results/1/a.png", "results/1/a.png", true},
		{"results/1/a.png", "results/1/a.png", true},
		{"https://elsewhere.example.com/sketches/results/1/a.png", "", false},
	}
	for _, tc := range cases {
		got, ok := s.objectNameFromURL(tc.raw)
		if got != tc.want || ok != tc.ok {
			t.Errorf("objectNameFromURL(%q) = %q, %v; want %q, %v", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestPublicBaseURL(t *testing.T) {
	if got := publicBaseURL("", "minio:9000", true); got != "https://minio:9000" {
		t.Fatalf("got %q", got)
	}
	if got := publicBaseURL("https://cdn.example.com/", "minio:9000", false); got != "https://cdn.example.com" {
		t.Fatalf("got %q", got)
	}
}

func TestUnconfiguredStorage(t *testing.T) {
	t.Setenv("MINIO_ENDPOINT", "")
	s, err := NewResultStorageFromEnv()
	if err != nil || s != nil {
		t.Fatalf("NewResultStorageFromEnv = %v, %v", s, err)
	}
	if _, err := s.Publish(context.Background(), "data:image/png;base64,AAAA"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Publish err = %v", err)
	}
	if got, err := s.PresignedURL(context.Background(), " x ", 0); got != "x" || err != nil {
		t.Fatalf("PresignedURL = %q, %v", got, err)
	}
	if s.Private() {
		t.Fatal("nil storage reported a private bucket")
	}
}

func TestPresignedURLSignsBucketObjects(t *testing.T) {
	client, err := minio.New("localhost:9000", &minio.Options{
		Creds:  credentials.NewStaticV4("access", "secret", ""),
		Region: "us-east-1",
	})
	if err != nil {
		t.Fatalf("minio.New: %v", err)
	}
	s := &ResultStorage{client: client, bucket: "sketches", publicURL: "http://localhost:9000", private: true}
	if !s.Private() {
		t.Fatal("storage should report a private bucket")
	}

	signed, err := s.PresignedURL(context.Background(), "http://localhost:9000/sketches/results/1/a.png", time.Minute)
	if err != nil {
		t.Fatalf("PresignedURL: %v", err)
	}
	if !strings.Contains(signed, "/sketches/results/1/a.png?") || !strings.Contains(signed, "X-Amz-Signature=") {
		t.Fatalf("signed url = %q", signed)
	}

	foreign := "https://elsewhere.example.com/a.png"
	if got, err := s.PresignedURL(context.Background(), foreign, time.Minute); err != nil || got != foreign {
		t.Fatalf("foreign url = %q, %v", got, err)
	}
}
