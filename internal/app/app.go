// Package app provides application initialization and dependency wiring.
//
// App is the container that assembles configuration, the database pool,
// Genkit, the tool registry, the document store, and the orchestrator.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stationmind/stationmind/internal/config"
	"github.com/stationmind/stationmind/internal/orchestrator"
	"github.com/stationmind/stationmind/internal/retrieval"
	"github.com/stationmind/stationmind/internal/session"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Sessions     session.Store
	Documents    *retrieval.DocumentStore
	Orchestrator *orchestrator.Orchestrator
}

// Close releases all resources.
func (a *App) Close() error {
	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Debug("database pool closed")
	}
	return nil
}
