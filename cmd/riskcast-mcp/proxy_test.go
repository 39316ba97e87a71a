package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestProxy_ForwardsAndAnswers(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID json.RawMessage `json:"id"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":{"ok":true}}`))
	}))
	defer backend.Close()

	proxy := &StdioProxy{serverURL: backend.URL}

	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}` + "\n")
	var out strings.Builder
	if err := proxy.RunWithIO(in, &out); err != nil {
		t.Fatalf("RunWithIO failed: %v", err)
	}

	var resp struct {
		ID     int             `json:"id"`
		Result json.RawMessage `json:"result"`
		Error  json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal([]byte(out.String()), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp.ID != 1 || resp.Error != nil {
		t.Errorf("response = %s", out.String())
	}
}

func TestProxy_ServerErrorBecomesJSONRPCError(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer backend.Close()

	proxy := &StdioProxy{serverURL: backend.URL}

	in := strings.NewReader(`{"jsonrpc":"2.0","id":7,"method":"tools/call"}` + "\n")
	var out strings.Builder
	if err := proxy.RunWithIO(in, &out); err != nil {
		t.Fatalf("RunWithIO failed: %v", err)
	}

	var resp struct {
		ID    int `json:"id"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(out.String()), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp.ID != 7 || resp.Error == nil || resp.Error.Code != -32000 {
		t.Errorf("response = %s", out.String())
	}
}

func TestProxy_SkipsBlankLines(t *testing.T) {
	calls := 0
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
	}))
	defer backend.Close()

	proxy := &StdioProxy{serverURL: backend.URL}

	in := strings.NewReader("\n\n" + `{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n\n")
	var out strings.Builder
	if err := proxy.RunWithIO(in, &out); err != nil {
		t.Fatalf("RunWithIO failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("backend calls = %d, want 1", calls)
	}
}

func TestExtractID_Malformed(t *testing.T) {
	if got := string(extractID([]byte("{not json"))); got != "null" {
		t.Errorf("extractID = %s, want null", got)
	}
	if got := string(extractID([]byte(`{"id":"abc"}`))); got != `"abc"` {
		t.Errorf("extractID = %s, want \"abc\"", got)
	}
}
