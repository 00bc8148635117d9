// package tasks implements the synchronization engine: the import pipeline
// (provider → catalog), the export pipeline (catalog → provider), and the
// disconnect cascade.
//
// Operations emit progress updates via channels for non-blocking status
// reporting to outer layers.
package tasks

import (
	"github.com/charmbracelet/log"
	"github.com/tunebridge/tunebridge/internal/credentials"
	"github.com/tunebridge/tunebridge/internal/repositories"
	"github.com/tunebridge/tunebridge/internal/shared"
	"golang.org/x/time/rate"
)

// Export concurrency defaults. Workers are capped so a single export cannot
// monopolize a provider's rate budget.
const (
	defaultSearchWorkers = 5
	maxSearchWorkers     = 10
	defaultSearchRate    = 5.0 // requests per second
)

// Engine orchestrates sync runs between providers and the canonical catalog.
type Engine struct {
	playlists *repositories.PlaylistRepository
	tracks    *repositories.TrackRepository
	creds     *credentials.Manager
	logger    *log.Logger

	searchWorkers int
	searchRate    rate.Limit
}

// EngineOpts tunes the engine's export concurrency.
type EngineOpts struct {
	SearchWorkers int     // Concurrent catalog searches during export
	SearchRate    float64 // Outbound searches per second
}

// NewEngine creates a sync engine over the catalog store and credential
// manager.
func NewEngine(playlists *repositories.PlaylistRepository, tracks *repositories.TrackRepository,
	creds *credentials.Manager, logger *log.Logger, opts EngineOpts) *Engine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	workers := opts.SearchWorkers
	if workers <= 0 {
		workers = defaultSearchWorkers
	}
	if workers > maxSearchWorkers {
		workers = maxSearchWorkers
	}

	searchRate := rate.Limit(opts.SearchRate)
	if searchRate <= 0 {
		searchRate = defaultSearchRate
	}

	return &Engine{
		playlists:     playlists,
		tracks:        tracks,
		creds:         creds,
		logger:        logger,
		searchWorkers: workers,
		searchRate:    searchRate,
	}
}

// ProgressUpdate reports sync progress to an optional observer channel.
type ProgressUpdate struct {
	Phase   Phase
	Current int
	Total   int
	Message string
}

// Phase identifies the stage a sync run is in.
type Phase int

const (
	PhaseFetchIndex Phase = iota
	PhaseReconcile
	PhaseSearch
	PhaseCreate
	PhaseAddTracks
)

// sendProgress sends a progress update without blocking. Updates are
// best-effort; a full or nil channel drops them.
func (e *Engine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
