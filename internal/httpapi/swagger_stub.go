//go:build !swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
)

// MountSwagger is a no-op in default builds; the bridge API docs are served
// only when built with -tags=swagger.
func MountSwagger(r chi.Router) {}
