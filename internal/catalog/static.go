package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ChatModel is one static (hosted) catalog entry.
type ChatModel struct {
	ID          string `json:"id" yaml:"id" toml:"id"`
	Name        string `json:"name" yaml:"name" toml:"name"`
	Description string `json:"description" yaml:"description" toml:"description"`
}

// DefaultChatModelID is the fallback selection for new sessions. Hosted
// entries precede local ones in the merged catalog, so the default favors a
// hosted model.
const DefaultChatModelID = "chat-model"

// LocalEntitlementID is the capability id that, when present in a user
// type's entitlement list, allows local models (and snapshot polling) at all.
const LocalEntitlementID = "lmstudio-chat"

// DefaultChatModels is the built-in static catalog, overridable by file.
var DefaultChatModels = []ChatModel{
	{
		ID:          "chat-model",
		Name:        "Chat model",
		Description: "Advanced multimodal model with vision and text capabilities",
	},
	{
		ID:          "chat-model-reasoning",
		Name:        "Reasoning model",
		Description: "Uses advanced chain-of-thought reasoning for complex problems",
	},
	{
		ID:          LocalEntitlementID,
		Name:        "LM Studio (Local)",
		Description: "Local model running via LM Studio (localhost:1234)",
	},
}

// UserType gates catalog entries by account kind.
type UserType string

const (
	UserTypeGuest   UserType = "guest"
	UserTypeRegular UserType = "regular"
)

// Entitlements lists the chat model ids a user type may select.
type Entitlements struct {
	AvailableChatModelIDs []string
}

var entitlementsByUserType = map[UserType]Entitlements{
	UserTypeGuest: {
		AvailableChatModelIDs: []string{"chat-model", "chat-model-reasoning"},
	},
	UserTypeRegular: {
		AvailableChatModelIDs: []string{"chat-model", "chat-model-reasoning", LocalEntitlementID},
	},
}

// EntitlementsFor resolves the entitlement set for a user type; unknown
// types get guest entitlements.
func EntitlementsFor(ut UserType) Entitlements {
	if e, ok := entitlementsByUserType[ut]; ok {
		return e
	}
	return entitlementsByUserType[UserTypeGuest]
}

// CanUseLocalModels reports whether the entitlement set includes the local
// model capability. When false the snapshot subsystem must not be queried on
// this user's behalf.
func (e Entitlements) CanUseLocalModels() bool {
	for _, id := range e.AvailableChatModelIDs {
		if id == LocalEntitlementID {
			return true
		}
	}
	return false
}

// AnyLocalEntitlement reports whether any known user type is entitled to
// local models; the refresher only runs when someone could use its output.
func AnyLocalEntitlement() bool {
	for _, e := range entitlementsByUserType {
		if e.CanUseLocalModels() {
			return true
		}
	}
	return false
}

type catalogFile struct {
	Models []ChatModel `json:"models" yaml:"models" toml:"models"`
}

// LoadFile reads a static catalog override based on its extension.
// Supports: .yaml/.yml, .json, .toml
func LoadFile(path string) ([]ChatModel, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f catalogFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &f); err != nil {
			return nil, err
		}
	case ".json":
		if err := json.Unmarshal(b, &f); err != nil {
			return nil, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &f); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported catalog extension: %s", ext)
	}
	if len(f.Models) == 0 {
		return nil, fmt.Errorf("catalog file %s contains no models", path)
	}
	return f.Models, nil
}
