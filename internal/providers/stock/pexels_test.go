package stock

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearchRanksAndFilters(t *testing.T) {
	var gotAuth, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("query")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"photos":[
			{"id":1,"photographer":"Ana","alt":"cookies","src":{"large":"https://img.example/1.jpg"}},
			{"id":2,"photographer":"Ben","alt":"no source","src":{}},
			{"id":3,"photographer":"Cao","alt":"table","src":{"large":"https://img.example/3.jpg"}}
		]}`))
	}))
	defer server.Close()

	client, err := NewClient(Options{APIKey: "pexels-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	photos, err := client.Search(context.Background(), "christmas cookies", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotAuth != "pexels-key" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotQuery != "christmas cookies" {
		t.Fatalf("query = %q", gotQuery)
	}
	if len(photos) != 2 {
		t.Fatalf("photos len = %d, want 2 (entry without source dropped)", len(photos))
	}
	if photos[0].ID != 1 || photos[1].ID != 3 {
		t.Fatalf("ranking not preserved: %+v", photos)
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(Options{}); err != ErrMissingAPIKey {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestSearchErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewClient(Options{APIKey: "k", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Search(context.Background(), "x", 1); err == nil {
		t.Fatalf("expected error for 429")
	}
}
