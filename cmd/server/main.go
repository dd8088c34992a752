package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Kotoad/APP-PyQt-sub000/internal/api"
	"github.com/Kotoad/APP-PyQt-sub000/internal/compiler"
	"github.com/Kotoad/APP-PyQt-sub000/internal/config"
	"github.com/Kotoad/APP-PyQt-sub000/internal/execution"
	"github.com/Kotoad/APP-PyQt-sub000/internal/history"
	"github.com/Kotoad/APP-PyQt-sub000/internal/remote"
	"github.com/Kotoad/APP-PyQt-sub000/internal/storage"
	"github.com/Kotoad/APP-PyQt-sub000/internal/web"
	"github.com/Kotoad/APP-PyQt-sub000/internal/workspace"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	configPath := filepath.Join(exeDir, config.FileName)
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	projectStore, err := storage.NewLocalStore(cfg.Storage.ProjectsDirectory, cfg.Storage.BackupDirectory)
	if err != nil {
		fmt.Printf("Failed to initialize storage: %v\n", err)
		os.Exit(1)
	}

	// Run history is optional: the editor works without it.
	var recorder execution.Recorder
	runHistory, err := history.Open(cfg.Storage.HistoryDatabase)
	if err != nil {
		fmt.Printf("Warning: run history disabled: %v\n", err)
		runHistory = nil
	} else {
		defer runHistory.Close()
		recorder = runHistory
	}

	ssh := remote.NewSSHBackend()
	pico := remote.NewMPRemoteBackend(cfg.Execution.MPRemoteBinary)
	pico.Device = cfg.Execution.PicoDevice
	if pico.Device == "" {
		pico.Device = "auto"
	}
	runs := execution.NewManager(ssh, pico, recorder)
	runs.ConnectTimeout = cfg.ConnectTimeout()

	ws, err := workspace.New(workspace.Options{
		Store:        projectStore,
		Runner:       runs,
		ArtifactPath: filepath.Join(cfg.Storage.ArtifactDirectory, compiler.DefaultArtifact),
		SSHPort:      cfg.Execution.Port,
	})
	if err != nil {
		fmt.Printf("Failed to initialize workspace: %v\n", err)
		os.Exit(1)
	}
	seedSettings(ws, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Periodic autosave of the open project
	go func() {
		ticker := time.NewTicker(cfg.AutosaveInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := ws.Autosave(); err != nil {
					fmt.Printf("Warning: autosave failed: %v\n", err)
				}
			}
		}
	}()

	// Background cleanup of finished runs and old history
	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runs.CleanupOldRuns(execution.RunMaxAge)
				if runHistory != nil {
					if _, err := runHistory.CleanupBefore(time.Now().Add(-cfg.HistoryRetention())); err != nil {
						fmt.Printf("Warning: history cleanup failed: %v\n", err)
					}
				}
			}
		}
	}()

	h := api.NewHandler(ws, runs, runHistory, Version)
	wsHandler := api.NewWebSocketHandler(h, cfg.Advanced.WebSocketMaxMessageSize)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.NewErrorHandler(cfg.Advanced.LogLevel == "debug")

	// Configure middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/api/health" || strings.HasPrefix(path, "/api/ws/") ||
				strings.HasSuffix(path, "/keepalive")
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 1 && origins[0] == "" {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	api.RegisterRoutes(e, h, wsHandler)

	if web.HasEmbeddedFiles() {
		if err := web.RegisterStaticRoutes(e); err != nil {
			fmt.Printf("Warning: failed to register static routes: %v\n", err)
		}
	}

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:        cfg.GetServerAddr(),
		ReadTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		IdleTimeout: time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           FlowPi Server                                   ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Projects:  %-46s║\n", cfg.Storage.ProjectsDirectory)
	fmt.Printf("║  Board:     %-46s║\n", cfg.Execution.Host)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Printf("Server error: %v\n", err)
			stop()
		}
	}()

	<-ctx.Done()
	fmt.Println("Shutting down...")

	runs.Shutdown(execution.StopWait)
	if _, err := ws.Autosave(); err != nil {
		fmt.Printf("Warning: final autosave failed: %v\n", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		fmt.Printf("Warning: shutdown: %v\n", err)
	}
}

// seedSettings fills board connection fields the user has not set yet
// from the config file and environment.
func seedSettings(ws *workspace.Workspace, cfg *config.AppConfig) {
	s := ws.AppSettings()
	changed := false
	if s.RPIHost == "" {
		s.RPIHost, changed = cfg.Execution.Host, true
	}
	if s.RPIUser == "" {
		s.RPIUser, changed = cfg.Execution.User, true
	}
	if s.RPIPassword == "" && cfg.Execution.Password != "" {
		s.RPIPassword, changed = cfg.Execution.Password, true
	}
	if os.Getenv("FLOWPI_LANGUAGE") != "" && s.Language != cfg.Editor.Language {
		s.Language, changed = cfg.Editor.Language, true
	}
	if !changed {
		return
	}
	if _, err := ws.UpdateAppSettings(s); err != nil {
		fmt.Printf("Warning: failed to store settings: %v\n", err)
	}
}
