package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"studynerd/internal/tutor"
)

func imagenSuccessBody(t *testing.T, mime string, data []byte) []byte {
	t.Helper()
	body, err := json.Marshal(imagenResponse{
		Predictions: []imagenPrediction{
			{BytesBase64Encoded: base64.StdEncoding.EncodeToString(data), MIMEType: mime},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func newTestImagenClient(serverURL string) *ImagenClient {
	return NewImagenClient(ImagenConfig{
		APIKey:  "test-key",
		BaseURL: serverURL,
		Model:   "imagen-3.0-generate-002",
		Timeout: 5 * time.Second,
	})
}

func TestImagenGenerateImage(t *testing.T) {
	var gotPath string
	var gotReq imagenRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write(imagenSuccessBody(t, "image/png", []byte("pixels")))
	}))
	defer server.Close()

	client := newTestImagenClient(server.URL)
	ref, err := client.GenerateImage(context.Background(), "a red cube", tutor.Tier2K)
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}

	want := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("pixels"))
	if ref != want {
		t.Errorf("ref = %q, want %q", ref, want)
	}
	if gotPath != "/models/imagen-3.0-generate-002:predict" {
		t.Errorf("path = %q", gotPath)
	}
	if len(gotReq.Instances) != 1 || gotReq.Instances[0].Prompt != "a red cube" {
		t.Errorf("instances = %+v", gotReq.Instances)
	}
	if gotReq.Parameters.SampleCount != 1 || gotReq.Parameters.SampleImageSize != "2K" {
		t.Errorf("parameters = %+v", gotReq.Parameters)
	}
}

func TestImagenGenerateImageForbidden(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"key lacks access","status":"PERMISSION_DENIED"}}`))
	}))
	defer server.Close()

	client := newTestImagenClient(server.URL)
	_, err := client.GenerateImage(context.Background(), "a red cube", tutor.Tier1K)
	if err == nil {
		t.Fatal("expected error for 403 response")
	}

	var denied tutor.AuthDenied
	if !errors.As(err, &denied) || !denied.AuthDenied() {
		t.Errorf("err = %v, want authorization-denied transport error", err)
	}
}

func TestImagenGenerateImageRetriesRateLimit(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write(imagenSuccessBody(t, "image/png", []byte("pixels")))
	}))
	defer server.Close()

	client := newTestImagenClient(server.URL)
	ref, err := client.GenerateImage(context.Background(), "a red cube", tutor.Tier1K)
	if err != nil {
		t.Fatalf("GenerateImage after retry: %v", err)
	}
	if ref == "" {
		t.Error("ref is empty after retry")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestImagenGenerateImageMissingKey(t *testing.T) {
	client := NewImagenClient(ImagenConfig{})
	_, err := client.GenerateImage(context.Background(), "a red cube", tutor.Tier1K)
	if err == nil {
		t.Fatal("expected error without API key")
	}

	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %T, want *TransportError", err)
	}
	if terr.AuthDenied() {
		t.Error("missing key should not read as authorization denial")
	}
}

func TestParseImagenResponse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr string
	}{
		{
			name: "png prediction",
			body: `{"predictions":[{"bytesBase64Encoded":"cGl4","mimeType":"image/png"}]}`,
			want: "data:image/png;base64,cGl4",
		},
		{
			name: "missing mime defaults to png",
			body: `{"predictions":[{"bytesBase64Encoded":"cGl4"}]}`,
			want: "data:image/png;base64,cGl4",
		},
		{
			name:    "embedded error",
			body:    `{"error":{"code":400,"message":"prompt rejected","status":"INVALID_ARGUMENT"}}`,
			wantErr: "prompt rejected",
		},
		{
			name:    "no predictions",
			body:    `{"predictions":[]}`,
			wantErr: "no image returned",
		},
		{
			name:    "empty prediction",
			body:    `{"predictions":[{"bytesBase64Encoded":""}]}`,
			wantErr: "no image returned",
		},
		{
			name:    "malformed body",
			body:    `not json`,
			wantErr: "failed to parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseImagenResponse([]byte(tt.body))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("err = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseImagenResponse: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
