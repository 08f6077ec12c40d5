// Package snapshot aggregates the local server's state into consistent
// point-in-time views and keeps them fresh on a fixed cadence.
package snapshot

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"modelbridge/pkg/types"
)

// Gateway is the subset of the gateway client the builder probes.
type Gateway interface {
	Version(ctx context.Context) (types.VersionInfo, error)
	ListDownloaded(ctx context.Context) ([]types.DownloadedModel, error)
	ListLoaded(ctx context.Context) ([]types.LoadedModel, error)
}

// Builder combines the three independent probes into one Snapshot.
type Builder struct {
	gw  Gateway
	log zerolog.Logger
}

// NewBuilder returns a Builder over gw.
func NewBuilder(gw Gateway, log zerolog.Logger) *Builder {
	return &Builder{gw: gw, log: log}
}

// Build issues the version, downloaded and loaded probes concurrently, waits
// for all three, and assembles the combined Snapshot. It never returns an
// error: each probe failure is captured as a labeled string in Errors and
// the corresponding field falls back to its zero view. Availability derives
// only from the version probe; an empty list is a valid success state and
// must not read as "server offline".
func (b *Builder) Build(ctx context.Context) types.Snapshot {
	var (
		wg sync.WaitGroup

		version types.VersionInfo
		verErr  error

		downloaded []types.DownloadedModel
		downErr    error

		loaded  []types.LoadedModel
		loadErr error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		version, verErr = b.gw.Version(ctx)
	}()
	go func() {
		defer wg.Done()
		downloaded, downErr = b.gw.ListDownloaded(ctx)
	}()
	go func() {
		defer wg.Done()
		loaded, loadErr = b.gw.ListLoaded(ctx)
	}()
	wg.Wait()

	snap := types.Snapshot{
		Downloaded:  downloaded,
		Loaded:      loaded,
		IsAvailable: verErr == nil,
		Errors:      []string{},
	}
	if snap.Downloaded == nil {
		snap.Downloaded = []types.DownloadedModel{}
	}
	if snap.Loaded == nil {
		snap.Loaded = []types.LoadedModel{}
	}
	if verErr == nil {
		v := version
		snap.Version = &v
	} else {
		snap.Errors = append(snap.Errors, verErr.Error())
	}
	if downErr != nil {
		snap.Errors = append(snap.Errors, downErr.Error())
		snap.Downloaded = []types.DownloadedModel{}
	}
	if loadErr != nil {
		snap.Errors = append(snap.Errors, loadErr.Error())
		snap.Loaded = []types.LoadedModel{}
	}
	if len(snap.Errors) > 0 {
		b.log.Debug().Strs("probe_errors", snap.Errors).Bool("available", snap.IsAvailable).Msg("snapshot built with probe failures")
	}
	return snap
}
