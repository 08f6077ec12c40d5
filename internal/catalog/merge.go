package catalog

import (
	"modelbridge/pkg/types"
)

// Option sources.
const (
	SourceStatic   = "static"
	SourceLMStudio = "lmstudio"
)

// Merge combines the static catalog with the loaded local instances from
// snap into one list of selectable options. Static entries are filtered to
// the entitled ids and always precede local entries, so a first-match
// default selection favors hosted models. Local gating happens upstream:
// callers without the local capability never fetch a snapshot, so snap is
// zero and contributes nothing. The result is recomputed from its inputs
// and safe to discard.
func Merge(static []ChatModel, entitled Entitlements, snap types.Snapshot) []types.ChatModelOption {
	allowed := make(map[string]bool, len(entitled.AvailableChatModelIDs))
	for _, id := range entitled.AvailableChatModelIDs {
		allowed[id] = true
	}

	out := make([]types.ChatModelOption, 0, len(static)+len(snap.Loaded))
	for _, m := range static {
		if !allowed[m.ID] {
			continue
		}
		out = append(out, types.ChatModelOption{
			ID:          m.ID,
			Name:        m.Name,
			Description: m.Description,
			Source:      SourceStatic,
		})
	}
	for _, m := range snap.Loaded {
		out = append(out, types.ChatModelOption{
			ID:          LocalModelID(m.Identifier),
			Name:        localName(m),
			Description: "Local • " + m.ModelKey,
			Source:      SourceLMStudio,
			Identifier:  m.Identifier,
			ModelKey:    m.ModelKey,
		})
	}
	return out
}

// localName prefers the server's display name, then the model key, then the
// raw on-disk path.
func localName(m types.LoadedModel) string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	if m.ModelKey != "" {
		return m.ModelKey
	}
	return m.Path
}

// AvailableToLoad returns downloaded models with no currently loaded
// instance, since offering a load action for an already-loaded key would be
// redundant. Entries with an empty model key are skipped.
func AvailableToLoad(snap types.Snapshot) []types.DownloadedModel {
	loadedKeys := make(map[string]bool, len(snap.Loaded))
	for _, m := range snap.Loaded {
		loadedKeys[m.ModelKey] = true
	}
	out := make([]types.DownloadedModel, 0, len(snap.Downloaded))
	for _, m := range snap.Downloaded {
		if m.ModelKey == "" || loadedKeys[m.ModelKey] {
			continue
		}
		out = append(out, m)
	}
	return out
}
