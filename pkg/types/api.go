package types

// ChatModelOption is one selectable entry in the unified model picker:
// either a static hosted model or a loaded local instance. Recomputed from
// the current Snapshot plus the static catalog on every read, never stored.
type ChatModelOption struct {
	// Option id; local entries are namespaced ("lmstudio:<identifier>").
	// example: chat-model
	ID string `json:"id" example:"chat-model"`
	// Display name.
	// example: Chat model
	Name string `json:"name" example:"Chat model"`
	// Short description shown in the picker.
	Description string `json:"description"`
	// Where the option came from: "static" or "lmstudio".
	// example: static
	Source string `json:"source" example:"static"`
	// Instance identifier, set for local entries only.
	Identifier string `json:"identifier,omitempty"`
	// Model key, set for local entries only.
	ModelKey string `json:"modelKey,omitempty"`
}

// LoadRequest is the body of POST /api/models/load.
type LoadRequest struct {
	// Required key of the downloaded model to load.
	// example: phi-3
	ModelKey string `json:"modelKey" example:"phi-3"`
	// Optional idle TTL in seconds; the server auto-unloads the instance
	// after this much idleness. Zero or absent means no auto-unload.
	// example: 300
	TTLSeconds int `json:"ttlSeconds,omitempty" example:"300"`
}

// LoadResponse is returned by POST /api/models/load on success.
type LoadResponse struct {
	Model LoadedModel `json:"model"`
}

// UnloadRequest is the body of POST /api/models/unload.
type UnloadRequest struct {
	// Required identifier of the in-memory instance to remove.
	// example: phi-3
	Identifier string `json:"identifier" example:"phi-3"`
}

// UnloadResponse is returned by POST /api/models/unload on success.
type UnloadResponse struct {
	OK bool `json:"ok" example:"true"`
}

// CatalogResponse is returned by GET /api/models/catalog: the merged list of
// selectable options plus downloaded-but-not-loaded models offered as a
// secondary "available to load" list.
type CatalogResponse struct {
	Models []ChatModelOption `json:"models"`
	// Downloaded models with no currently loaded instance.
	AvailableToLoad []DownloadedModel `json:"availableToLoad"`
	// Whether the requesting user type may use local models at all.
	// example: true
	CanUseLocalModels bool `json:"canUseLocalModels" example:"true"`
}

// SessionRequest is the body of POST /api/session.
type SessionRequest struct {
	// Configured access token. When the server has no tokens configured the
	// field may be empty and a guest session is issued.
	AccessToken string `json:"accessToken,omitempty"`
}

// SessionResponse carries the issued session token.
type SessionResponse struct {
	Token string `json:"token"`
	// User type the session was issued for (guest or regular).
	// example: regular
	UserType string `json:"userType" example:"regular"`
}

// EmbedRequest is the body of POST /api/embed. Exactly one of Text or Texts
// must be set.
type EmbedRequest struct {
	Text  string   `json:"text,omitempty"`
	Texts []string `json:"texts,omitempty"`
	// Optional embedding model key; the configured default applies when empty.
	// example: nomic-embed-text-v1.5
	ModelKey string `json:"modelKey,omitempty" example:"nomic-embed-text-v1.5"`
}

// EmbedResponse is returned by POST /api/embed.
type EmbedResponse struct {
	// "single" or "batch".
	// example: single
	Type     string `json:"type" example:"single"`
	ModelKey string `json:"modelKey"`
	// Set for single requests.
	Embedding []float32 `json:"embedding,omitempty"`
	// Set for batch requests.
	Embeddings [][]float32 `json:"embeddings,omitempty"`
	// Vector dimensionality.
	// example: 768
	Dims int `json:"dims" example:"768"`
	// Number of vectors in a batch response.
	Count int `json:"count,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}
