package connection

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"

	adminv1 "github.com/yndnr/converge/api/admin/v1"
)

func TestBaseURL(t *testing.T) {
	tests := map[string]string{
		"127.0.0.1:4525":          "http://127.0.0.1:4525",
		"http://control:4525/":    "http://control:4525",
		"https://control.example": "https://control.example",
	}
	for in, want := range tests {
		if got := BaseURL(in); got != want {
			t.Errorf("BaseURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewClient_SendsUserAgent(t *testing.T) {
	var agent string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"protocol_major":1,"version":"v1"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, time.Second)
	resp, err := client.Version(context.Background(), connect.NewRequest(&adminv1.VersionRequest{}))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Msg.Version != "v1" {
		t.Errorf("version = %q", resp.Msg.Version)
	}
	if !strings.HasPrefix(agent, "convergectl/") {
		t.Errorf("User-Agent = %q", agent)
	}
}

func TestDescribe(t *testing.T) {
	plain := errors.New("dial tcp: refused")
	if Describe(plain) != plain {
		t.Error("non-connect errors must pass through")
	}

	err := Describe(connect.NewError(connect.CodeInvalidArgument, errors.New("node key mismatch")))
	if !strings.HasPrefix(err.Error(), "rejected: ") {
		t.Errorf("Describe() = %q", err)
	}
}
