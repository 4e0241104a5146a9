package sheetsync

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookClientPush(t *testing.T) {
	var gotBody []byte
	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewWebhookClient(server.Client())
	payload := ExportPayload{Type: "sync_up", LastModified: 99}
	if err := client.Push(context.Background(), server.URL, payload); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if gotContentType != "application/json" {
		t.Fatalf("content type = %q", gotContentType)
	}
	var decoded ExportPayload
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("decode pushed body: %v", err)
	}
	if decoded.Type != "sync_up" || decoded.LastModified != 99 {
		t.Fatalf("pushed payload = %+v", decoded)
	}
}

func TestWebhookClientPushServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewWebhookClient(server.Client())
	if err := client.Push(context.Background(), server.URL, ExportPayload{}); err == nil {
		t.Fatal("500 response accepted")
	}
}

func TestWebhookClientFetchAddsAction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("action"); got != "get" {
			t.Errorf("action = %q", got)
		}
		if got := r.URL.Query().Get("key"); got != "abc" {
			t.Errorf("existing query param lost: key = %q", got)
		}
		w.Write([]byte(`{"lastModified":1}`))
	}))
	defer server.Close()

	client := NewWebhookClient(server.Client())
	data, err := client.Fetch(context.Background(), server.URL+"?key=abc")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != `{"lastModified":1}` {
		t.Fatalf("body = %q", data)
	}
}

func TestWebhookClientFetchNonOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewWebhookClient(server.Client())
	if _, err := client.Fetch(context.Background(), server.URL); err == nil {
		t.Fatal("non-200 fetch accepted")
	}
}
