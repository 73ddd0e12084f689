package httpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		case "/bad":
			w.Write([]byte(`not json`))
		default:
			http.Error(w, "nope", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	var out struct{ Status string }
	if err := GetJSON(context.Background(), srv.URL+"/ok", &out); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if out.Status != "ok" {
		t.Errorf("Status = %q", out.Status)
	}

	if err := GetJSON(context.Background(), srv.URL+"/missing", &out); err == nil {
		t.Error("GetJSON() should fail on 404")
	}
	if err := GetJSON(context.Background(), srv.URL+"/bad", &out); err == nil {
		t.Error("GetJSON() should fail on invalid JSON")
	}
}

func TestNewClientTimeout(t *testing.T) {
	c := NewClient(DefaultTimeout)
	if c.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v", c.Timeout)
	}
	if Client.Timeout != DefaultTimeout {
		t.Errorf("shared Timeout = %v", Client.Timeout)
	}
}
