package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"modelbridge/pkg/types"
)

// DefaultBaseURL is where LM Studio serves its local API when unconfigured.
const DefaultBaseURL = "http://localhost:1234"

const defaultTimeout = 30 * time.Second

// Client talks to the local LM Studio server process. It is constructed
// explicitly and injected wherever needed; there is no package-level
// singleton. All operations take a context and return typed errors: a
// transport failure never escapes as anything but an error value, so callers
// aggregating several operations can let one fail without losing the rest.
type Client struct {
	baseURL string
	hc      *http.Client
	log     zerolog.Logger
}

// New returns a Client for the server at baseURL (DefaultBaseURL when empty).
func New(baseURL string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: defaultTimeout},
		log:     log,
	}
}

// BaseURL reports the server address the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// wireModel is the server's model shape for both downloaded and loaded
// listings; loaded entries additionally carry an identifier.
type wireModel struct {
	ModelKey         string `json:"modelKey"`
	DisplayName      string `json:"displayName,omitempty"`
	Type             string `json:"type"`
	Path             string `json:"path,omitempty"`
	SizeBytes        int64  `json:"sizeBytes,omitempty"`
	MaxContextLength int    `json:"maxContextLength,omitempty"`
	Identifier       string `json:"identifier,omitempty"`
	ContextLength    int    `json:"contextLength,omitempty"`
}

type modelList struct {
	Data []wireModel `json:"data"`
}

// Version probes the server build info. Callers treat its success as the
// availability signal for the whole server.
func (c *Client) Version(ctx context.Context) (types.VersionInfo, error) {
	var v types.VersionInfo
	if err := c.getJSON(ctx, "getVersion", "/api/v0/version", &v); err != nil {
		return types.VersionInfo{}, err
	}
	return v, nil
}

// ListDownloaded returns the LLM artifacts present on the server's disk.
// Non-LLM artifact types (embeddings, vision adapters) are filtered out.
func (c *Client) ListDownloaded(ctx context.Context) ([]types.DownloadedModel, error) {
	var list modelList
	if err := c.getJSON(ctx, "listDownloadedModels", "/api/v0/models", &list); err != nil {
		return nil, err
	}
	out := make([]types.DownloadedModel, 0, len(list.Data))
	for _, m := range list.Data {
		if m.Type != "llm" {
			continue
		}
		out = append(out, types.DownloadedModel{
			ModelKey:         m.ModelKey,
			DisplayName:      m.DisplayName,
			Type:             m.Type,
			Path:             m.Path,
			SizeBytes:        m.SizeBytes,
			MaxContextLength: m.MaxContextLength,
		})
	}
	return out, nil
}

// ListLoaded returns the model instances currently resident in memory.
func (c *Client) ListLoaded(ctx context.Context) ([]types.LoadedModel, error) {
	var list modelList
	if err := c.getJSON(ctx, "listLoadedModels", "/api/v0/models/loaded", &list); err != nil {
		return nil, err
	}
	out := make([]types.LoadedModel, 0, len(list.Data))
	for _, m := range list.Data {
		out = append(out, types.LoadedModel{
			Identifier:    m.Identifier,
			ModelKey:      m.ModelKey,
			DisplayName:   m.DisplayName,
			Path:          m.Path,
			ContextLength: m.ContextLength,
		})
	}
	return out, nil
}

// LoadOptions tune a Load call.
type LoadOptions struct {
	// TTLSeconds, when positive, asks the server to auto-unload the instance
	// after that many seconds of idleness. Zero means the instance persists
	// until explicitly unloaded or the server restarts.
	TTLSeconds int
	// Identifier pins the instance handle; the server picks one when empty.
	Identifier string
}

type loadBody struct {
	ModelKey   string `json:"modelKey"`
	Identifier string `json:"identifier,omitempty"`
	TTLSeconds int    `json:"ttlSeconds,omitempty"`
}

// Load asks the server to load (or reuse) an instance of modelKey. A
// reachable server rejecting the request yields a load error with the
// server's message; an unreachable server yields a gateway error.
func (c *Client) Load(ctx context.Context, modelKey string, opts LoadOptions) (types.LoadedModel, error) {
	body := loadBody{ModelKey: modelKey, Identifier: opts.Identifier}
	if opts.TTLSeconds > 0 {
		body.TTLSeconds = opts.TTLSeconds
	}
	var m wireModel
	if err := c.postJSON(ctx, "loadModel", "/api/v0/models/load", body, &m); err != nil {
		if IsGatewayError(err) {
			return types.LoadedModel{}, err
		}
		return types.LoadedModel{}, ErrLoad(modelKey, err.Error())
	}
	if m.Identifier == "" {
		return types.LoadedModel{}, ErrLoad(modelKey, "server returned no model info after loading")
	}
	c.log.Debug().Str("model_key", modelKey).Str("identifier", m.Identifier).Msg("model loaded")
	return types.LoadedModel{
		Identifier:    m.Identifier,
		ModelKey:      m.ModelKey,
		DisplayName:   m.DisplayName,
		Path:          m.Path,
		ContextLength: m.ContextLength,
	}, nil
}

type unloadBody struct {
	Identifier string `json:"identifier"`
}

// Unload removes the in-memory instance with the given identifier. An
// identifier that no longer exists is a reported error, not a silent
// success; callers are expected to refresh their snapshot afterwards.
func (c *Client) Unload(ctx context.Context, identifier string) error {
	if err := c.postJSON(ctx, "unloadModel", "/api/v0/models/unload", unloadBody{Identifier: identifier}, nil); err != nil {
		if IsGatewayError(err) {
			return err
		}
		return ErrUnload(identifier, err.Error())
	}
	c.log.Debug().Str("identifier", identifier).Msg("model unloaded")
	return nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return ErrGateway(op, err.Error())
	}
	return c.do(op, req, out, true)
}

func (c *Client) postJSON(ctx context.Context, op, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return ErrGateway(op, err.Error())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return ErrGateway(op, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(op, req, out, false)
}

// do executes the request. Transport failures become gateway errors; a non-2xx
// status becomes a plain error carrying the server's message so the caller
// can wrap it with the operation-appropriate type. When gatewayStatus is true
// a non-2xx status is also treated as "server not usable".
func (c *Client) do(op string, req *http.Request, out any, gatewayStatus bool) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("op", op).Msg("local server unreachable")
		return ErrGateway(op, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := serverMessage(resp)
		if gatewayStatus {
			return ErrGateway(op, msg)
		}
		return fmt.Errorf("%s", msg)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return ErrGateway(op, "decode response: "+err.Error())
	}
	return nil
}

// serverMessage extracts the error field from a JSON error payload, falling
// back to the HTTP status text.
func serverMessage(resp *http.Response) string {
	var payload struct {
		Error string `json:"error"`
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(b, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return resp.Status
}
