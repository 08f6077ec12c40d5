package types

// DownloadedModel is a model artifact present on the local server's disk,
// not necessarily resident in memory. Regenerated on every snapshot fetch.
type DownloadedModel struct {
	// Key naming the underlying weights/artifact.
	// example: phi-3
	ModelKey string `json:"modelKey" example:"phi-3"`
	// Human-friendly name reported by the server.
	// example: Phi 3 Mini
	DisplayName string `json:"displayName,omitempty" example:"Phi 3 Mini"`
	// Model type as reported by the server (llm, embeddings, vlm, ...).
	// example: llm
	Type string `json:"type" example:"llm"`
	// Path of the artifact on the server's disk.
	Path string `json:"path,omitempty"`
	// Artifact size in bytes.
	// example: 2393232963
	SizeBytes int64 `json:"sizeBytes,omitempty" example:"2393232963"`
	// Maximum context length supported by the artifact.
	// example: 131072
	MaxContextLength int `json:"maxContextLength,omitempty" example:"131072"`
}

// LoadedModel is a live, memory-resident model instance. Identifier is the
// only stable handle for unloading; one ModelKey may have any number of
// concurrently loaded identifiers.
type LoadedModel struct {
	// Unique handle for this in-memory instance.
	// example: phi-3
	Identifier string `json:"identifier" example:"phi-3"`
	// Key naming the underlying weights/artifact.
	// example: phi-3
	ModelKey string `json:"modelKey" example:"phi-3"`
	// Human-friendly name reported by the server.
	DisplayName string `json:"displayName,omitempty"`
	// Path of the artifact on the server's disk.
	Path string `json:"path,omitempty"`
	// Context length the instance was loaded with.
	// example: 4096
	ContextLength int `json:"contextLength,omitempty" example:"4096"`
}

// VersionInfo identifies the local server build. Its retrieval doubles as
// the availability probe.
type VersionInfo struct {
	// Semantic version of the server.
	// example: 0.3.16
	Version string `json:"version" example:"0.3.16"`
	// Build number, when the server reports one.
	// example: 8
	Build int `json:"build,omitempty" example:"8"`
}

// Snapshot is the point-in-time aggregate view of the local server:
// downloaded and loaded models plus availability. Downloaded and Loaded are
// never nil so consumers never null-check them; Errors carries one labeled
// entry per failed probe.
type Snapshot struct {
	Downloaded []DownloadedModel `json:"downloaded"`
	Loaded     []LoadedModel     `json:"loaded"`
	Version    *VersionInfo      `json:"version,omitempty"`
	// True iff the version probe succeeded. List probes returning empty is a
	// valid success state and must not flip this.
	// example: true
	IsAvailable bool     `json:"isAvailable" example:"true"`
	Errors      []string `json:"errors"`
}
