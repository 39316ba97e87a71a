// Package app wires configuration, storage, services, and the MCP server
// into one composition root shared by cmd/riskcast-server and
// cmd/riskcast-mcp.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/risquanter/riskcast/internal/cache"
	"github.com/risquanter/riskcast/internal/common"
	"github.com/risquanter/riskcast/internal/interfaces"
	"github.com/risquanter/riskcast/internal/services/engine"
	"github.com/risquanter/riskcast/internal/services/treesvc"
	"github.com/risquanter/riskcast/internal/storage/badger"
)

// App holds all initialized services and the MCP server.
type App struct {
	Config      *common.Config
	Logger      *common.Logger
	Store       interfaces.TreeStore
	TreeService interfaces.TreeService
	Engine      interfaces.EngineService
	ResultCache *cache.ResultCache
	MCPServer   *server.MCPServer
	StartupTime time.Time
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes storage, services, and the MCP server.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	common.LoadVersionFromFile()
	binDir := getBinaryDir()

	// Config resolution: explicit path, RISKCAST_CONFIG, binary dir, then
	// the development fallback.
	if configPath == "" {
		configPath = os.Getenv("RISKCAST_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "riskcast.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/riskcast.toml"
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Resolve relative storage path to the binary directory so the server
	// is self-contained wherever it is deployed.
	if config.Storage.Path != "" && !filepath.IsAbs(config.Storage.Path) {
		config.Storage.Path = filepath.Join(binDir, config.Storage.Path)
	}

	logger := common.NewLogger(config.Logging.Level)

	store, err := badger.NewStore(logger, config.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tree store: %w", err)
	}
	treeStore := badger.NewTreeStorage(store, logger)

	// Wiring order matters: the cache resolves ancestor paths through the
	// tree service, and the tree service signals mutations back to the
	// cache. The invalidator is attached after both exist.
	treeService := treesvc.NewService(treeStore, logger)
	resultCache := cache.NewResultCache(treeService, logger)
	treeService.SetInvalidator(resultCache)

	engineService := engine.NewService(treeService, resultCache, config.Simulation, logger)
	engineService.SetDefaultSeeds(loadOrInitSeeds(context.Background(), treeStore, logger))

	mcpServer := server.NewMCPServer(
		"riskcast",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	a := &App{
		Config:      config,
		Logger:      logger,
		Store:       treeStore,
		TreeService: treeService,
		Engine:      engineService,
		ResultCache: resultCache,
		MCPServer:   mcpServer,
		StartupTime: startupStart,
	}
	a.registerTools()

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")
	return a, nil
}

// Close releases all resources held by the App.
func (a *App) Close() {
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Tree store close failed")
		}
		a.Store = nil
	}
}
