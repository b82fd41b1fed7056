package generator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

const testSketch = "data:image/jpeg;base64,c2tldGNo"

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(srv.URL, "", "test-key", srv.Client())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, srv
}

func TestTransformSendsSketchAndRatio(t *testing.T) {
	var captured generateRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.5-flash-image:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("api key header = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"here"},{"inlineData":{"mimeType":"image/png","data":"cmVzdWx0"}}]}}]}`))
	})

	image, err := client.Transform(context.Background(), TransformRequest{
		Image:       testSketch,
		Style:       "Anime",
		Category:    "Character",
		AspectRatio: "9:16",
	})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if image != "data:image/png;base64,cmVzdWx0" {
		t.Fatalf("image = %q", image)
	}

	parts := captured.Contents[0].Parts
	if parts[0].InlineData == nil || parts[0].InlineData.MimeType != "image/jpeg" || parts[0].InlineData.Data != "c2tldGNo" {
		t.Fatalf("inline part = %+v", parts[0].InlineData)
	}
	if !strings.Contains(parts[1].Text, "Style: Anime.") || !strings.Contains(parts[1].Text, defaultDetail) {
		t.Fatalf("prompt = %q", parts[1].Text)
	}
	if captured.GenerationConfig.ImageConfig.AspectRatio != "9:16" {
		t.Fatalf("aspect ratio = %q", captured.GenerationConfig.ImageConfig.AspectRatio)
	}
}

func TestTransformRejectsUnsupportedRatioLocally(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})
	_, err := client.Transform(context.Background(), TransformRequest{Image: testSketch, AspectRatio: "7:3"})
	if KindOf(err) != KindInvalidArgument {
		t.Fatalf("kind = %s (%v)", KindOf(err), err)
	}
	if calls.Load() != 0 {
		t.Fatal("unsupported ratio reached the network")
	}
}

func TestMissingCredential(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request sent without a key")
	})
	client.SetAPIKey("  ")
	if client.HasCredential() {
		t.Fatal("HasCredential with a blank key")
	}
	_, err := client.Transform(context.Background(), TransformRequest{Image: testSketch})
	var genErr *Error
	if !errors.As(err, &genErr) || genErr.Kind != KindCredential || genErr.Remediation() != RemediationReenterCredential {
		t.Fatalf("err = %v", err)
	}
}

func TestFailureClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   Kind
	}{
		{"bad key", http.StatusBadRequest, `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT","details":[{"reason":"API_KEY_INVALID"}]}}`, KindCredential},
		{"forbidden", http.StatusForbidden, `{"error":{"code":403,"status":"PERMISSION_DENIED"}}`, KindCredential},
		{"quota", http.StatusTooManyRequests, `{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`, KindQuota},
		{"invalid ratio", http.StatusBadRequest, `{"error":{"code":400,"message":"Unsupported aspect ratio","status":"INVALID_ARGUMENT"}}`, KindInvalidArgument},
		{"quota status wins over key text", http.StatusTooManyRequests, `{"error":{"code":429,"message":"Quota exceeded for this API key","status":"RESOURCE_EXHAUSTED"}}`, KindQuota},
		{"auth status wins over quota text", http.StatusForbidden, `{"error":{"code":403,"message":"Project quota settings deny this caller"}}`, KindCredential},
		{"server text is not trusted", http.StatusServiceUnavailable, `{"error":{"code":503,"message":"quota backend blocked"}}`, KindTransient},
		{"bad request quota text", http.StatusBadRequest, `{"error":{"code":400,"message":"Daily quota reached"}}`, KindQuota},
		{"bad request safety text", http.StatusBadRequest, `{"error":{"code":400,"message":"Request blocked by safety filters"}}`, KindSafety},
		{"server", http.StatusServiceUnavailable, `{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`, KindTransient},
		{"blocked prompt", http.StatusOK, `{"promptFeedback":{"blockReason":"SAFETY"}}`, KindSafety},
		{"safety finish", http.StatusOK, `{"candidates":[{"content":{"parts":[]},"finishReason":"IMAGE_SAFETY"}]}`, KindSafety},
		{"text only", http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"I cannot draw that"}]},"finishReason":"STOP"}]}`, KindTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := client.Transform(context.Background(), TransformRequest{Image: testSketch})
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := KindOf(err); got != tc.want {
				t.Fatalf("kind = %s, want %s (%v)", got, tc.want, err)
			}
		})
	}
}

func TestMessagesAreDistinct(t *testing.T) {
	seen := map[string]Kind{}
	for _, kind := range []Kind{KindCredential, KindQuota, KindSafety, KindInvalidArgument, KindTransient} {
		msg := Message(kind)
		if prev, dup := seen[msg]; dup {
			t.Fatalf("%s and %s share the message %q", prev, kind, msg)
		}
		seen[msg] = kind
	}
}

func TestSketch(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Contents[0].Parts) != 1 || !strings.Contains(req.Contents[0].Parts[0].Text, "Subject: a cat.") {
			t.Errorf("sketch parts = %+v", req.Contents[0].Parts)
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"inlineData":{"data":"Y2F0"}}]}}]}`))
	})
	image, err := client.Sketch(context.Background(), " a cat ")
	if err != nil {
		t.Fatalf("Sketch: %v", err)
	}
	if image != "data:image/png;base64,Y2F0" {
		t.Fatalf("image = %q", image)
	}
	if _, err := client.Sketch(context.Background(), ""); KindOf(err) != KindInvalidArgument {
		t.Fatalf("empty prompt err = %v", err)
	}
}

func TestNewClientFromEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("API_KEY", "fallback")
	t.Setenv("GEMINI_BASE_URL", "")
	t.Setenv("GENERATOR_TIMEOUT", "")
	client, err := NewClientFromEnv()
	if err != nil {
		t.Fatalf("NewClientFromEnv: %v", err)
	}
	if !client.HasCredential() || client.baseURL != defaultBaseURL || client.modelID != defaultModelID {
		t.Fatalf("client = %+v", client)
	}

	t.Setenv("GEMINI_BASE_URL", "ftp://nope")
	if _, err := NewClientFromEnv(); err == nil {
		t.Fatal("expected an error for a non-http base URL")
	}
}
