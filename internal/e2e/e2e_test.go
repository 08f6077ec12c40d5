package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"modelbridge/internal/catalog"
	"modelbridge/internal/gateway"
	"modelbridge/internal/httpapi"
	"modelbridge/internal/snapshot"
	"modelbridge/pkg/types"
)

// fakeLMStudio emulates the local server's /api/v0 surface: a fixed set of
// downloaded models plus an in-memory table of loaded instances.
type fakeLMStudio struct {
	mu         sync.Mutex
	downloaded []map[string]any
	loaded     map[string]map[string]any
}

func newFakeLMStudio(modelKeys ...string) *fakeLMStudio {
	f := &fakeLMStudio{loaded: make(map[string]map[string]any)}
	for _, k := range modelKeys {
		f.downloaded = append(f.downloaded, map[string]any{
			"modelKey": k, "type": "llm", "maxContextLength": 4096,
		})
	}
	return f
}

func (f *fakeLMStudio) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v0/version", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"version": "0.3.16", "build": 8})
	})
	mux.HandleFunc("GET /api/v0/models", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"data": f.downloaded})
	})
	mux.HandleFunc("GET /api/v0/models/loaded", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		data := make([]map[string]any, 0, len(f.loaded))
		for _, m := range f.loaded {
			data = append(data, m)
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	})
	mux.HandleFunc("POST /api/v0/models/load", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ModelKey string `json:"modelKey"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		defer f.mu.Unlock()
		for _, d := range f.downloaded {
			if d["modelKey"] == req.ModelKey {
				inst := map[string]any{
					"identifier": req.ModelKey, "modelKey": req.ModelKey, "contextLength": 4096,
				}
				f.loaded[req.ModelKey] = inst
				json.NewEncoder(w).Encode(inst)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"error": "model '" + req.ModelKey + "' not found"})
	})
	mux.HandleFunc("POST /api/v0/models/unload", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Identifier string `json:"identifier"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.loaded[req.Identifier]; !ok {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{"error": "no model loaded with identifier '" + req.Identifier + "'"})
			return
		}
		delete(f.loaded, req.Identifier)
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})
	return mux
}

// newBridge starts a fake local server and a bridge in front of it, returning
// the bridge's test server plus a regular-user session token.
func newBridge(t *testing.T, fake *fakeLMStudio) (*httptest.Server, string) {
	t.Helper()
	upstream := httptest.NewServer(fake.handler())
	t.Cleanup(upstream.Close)

	log := zerolog.Nop()
	gw := gateway.New(upstream.URL, log)
	refresher := snapshot.NewRefresher(snapshot.NewBuilder(gw, log), 0, log)

	sessions := httpapi.NewSessionStore([]string{"e2e-token"})
	sess, ok := sessions.Login("e2e-token")
	if !ok {
		t.Fatalf("login failed")
	}

	mux := httpapi.NewMux(httpapi.ServerConfig{
		Snapshots: refresher,
		Gateway:   gw,
		Sessions:  sessions,
		Catalog:   catalog.DefaultChatModels,
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, sess.Token
}

func httpGet(t *testing.T, url, token string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url, token string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func TestE2E_Snapshot_Load_Catalog_Unload(t *testing.T) {
	fake := newFakeLMStudio("alpha", "beta")
	srv, token := newBridge(t, fake)

	// 1) Snapshot: available, two downloaded, none loaded.
	resp, body := httpGet(t, srv.URL+"/api/models", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/api/models status=%d body=%s", resp.StatusCode, string(body))
	}
	var snap types.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("/api/models json: %v body=%s", err, string(body))
	}
	if !snap.IsAvailable || len(snap.Downloaded) != 2 || len(snap.Loaded) != 0 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	// 2) Load alpha.
	resp, body = httpPostJSON(t, srv.URL+"/api/models/load", token, []byte(`{"modelKey":"alpha"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("load status=%d body=%s", resp.StatusCode, string(body))
	}
	var loadResp types.LoadResponse
	if err := json.Unmarshal(body, &loadResp); err != nil {
		t.Fatalf("load json: %v", err)
	}
	if loadResp.Model.Identifier != "alpha" {
		t.Fatalf("unexpected identifier %q", loadResp.Model.Identifier)
	}

	// 3) Snapshot reflects the loaded instance.
	resp, body = httpGet(t, srv.URL+"/api/models", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/api/models status=%d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("/api/models json: %v", err)
	}
	if len(snap.Loaded) != 1 || snap.Loaded[0].Identifier != "alpha" {
		t.Fatalf("expected alpha loaded, got %+v", snap.Loaded)
	}

	// 4) Catalog: static entries first, then the local instance; beta remains
	// available to load.
	resp, body = httpGet(t, srv.URL+"/api/models/catalog", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("catalog status=%d body=%s", resp.StatusCode, string(body))
	}
	var cat types.CatalogResponse
	if err := json.Unmarshal(body, &cat); err != nil {
		t.Fatalf("catalog json: %v", err)
	}
	if !cat.CanUseLocalModels {
		t.Fatalf("regular session should allow local models")
	}
	last := cat.Models[len(cat.Models)-1]
	if last.ID != catalog.LocalModelID("alpha") || last.Source != catalog.SourceLMStudio {
		t.Fatalf("expected trailing local option, got %+v", last)
	}
	if len(cat.AvailableToLoad) != 1 || cat.AvailableToLoad[0].ModelKey != "beta" {
		t.Fatalf("unexpected availableToLoad: %+v", cat.AvailableToLoad)
	}

	// 5) Unload alpha, then unloading again reports the server's error.
	resp, body = httpPostJSON(t, srv.URL+"/api/models/unload", token, []byte(`{"identifier":"alpha"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unload status=%d body=%s", resp.StatusCode, string(body))
	}
	resp, body = httpPostJSON(t, srv.URL+"/api/models/unload", token, []byte(`{"identifier":"alpha"}`))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("second unload status=%d body=%s", resp.StatusCode, string(body))
	}
	var er types.ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil {
		t.Fatalf("error json: %v", err)
	}
	if er.Error != "no model loaded with identifier 'alpha'" {
		t.Fatalf("server message not preserved: %q", er.Error)
	}
}

func TestE2E_OfflineServerYields503Snapshot(t *testing.T) {
	// A bridge pointed at a dead upstream.
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()

	log := zerolog.Nop()
	gw := gateway.New(dead.URL, log)
	refresher := snapshot.NewRefresher(snapshot.NewBuilder(gw, log), 0, log)
	sessions := httpapi.NewSessionStore(nil)
	sess, _ := sessions.Login("")
	offline := httptest.NewServer(httpapi.NewMux(httpapi.ServerConfig{
		Snapshots: refresher,
		Gateway:   gw,
		Sessions:  sessions,
		Catalog:   catalog.DefaultChatModels,
	}))
	t.Cleanup(offline.Close)

	resp, body := httpGet(t, offline.URL+"/api/models", sess.Token)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d body=%s", resp.StatusCode, string(body))
	}
	var snap types.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("snapshot json: %v", err)
	}
	if snap.IsAvailable || len(snap.Errors) != 3 {
		t.Fatalf("expected three probe errors, got %+v", snap)
	}
}

func TestE2E_SessionRequired(t *testing.T) {
	fake := newFakeLMStudio("alpha")
	srv, _ := newBridge(t, fake)

	resp, _ := httpGet(t, srv.URL+"/api/models", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session, got %d", resp.StatusCode)
	}

	// Login over HTTP, then use the returned token.
	resp, body := httpPostJSON(t, srv.URL+"/api/session", "", []byte(`{"accessToken":"e2e-token"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("session status=%d body=%s", resp.StatusCode, string(body))
	}
	var sess types.SessionResponse
	if err := json.Unmarshal(body, &sess); err != nil {
		t.Fatalf("session json: %v", err)
	}
	if sess.UserType != "regular" {
		t.Fatalf("expected regular session, got %q", sess.UserType)
	}
	resp, _ = httpGet(t, srv.URL+"/api/models", sess.Token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with session token, got %d", resp.StatusCode)
	}
}
