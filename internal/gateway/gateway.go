// ABOUTME: Gateway orchestrator serving HTTP and WebSocket on a single port
// ABOUTME: Wires config, store, skills, backends, channels, and auth together

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tailscale.com/tsnet"

	"github.com/chaihq/chai/internal/agent"
	"github.com/chaihq/chai/internal/auth"
	"github.com/chaihq/chai/internal/channels"
	"github.com/chaihq/chai/internal/config"
	"github.com/chaihq/chai/internal/llm"
	"github.com/chaihq/chai/internal/routing"
	"github.com/chaihq/chai/internal/session"
	"github.com/chaihq/chai/internal/skills"
	"github.com/chaihq/chai/internal/store"
	"github.com/chaihq/chai/internal/tools"
)

// inboundBuffer is the queue depth between connectors and the processor.
const inboundBuffer = 64

// Gateway is the chai server: one port, HTTP health and Telegram webhook,
// WebSocket control protocol, channel connectors, and the agent loop.
type Gateway struct {
	cfg    *config.Config
	logger *slog.Logger

	store    *store.Store
	sessions *session.Store
	bindings *routing.Bindings
	registry *channels.Registry
	events   *Broadcaster
	verifier *auth.DeviceVerifier
	tokens   *auth.DeviceTokens

	backends map[string]llm.Backend

	modelsMu sync.RWMutex
	models   map[string][]llm.Model

	loadedSkills []skills.Skill
	agentCtx     string
	toolDefs     []llm.ToolDefinition
	executor     agent.ToolExecutor

	inbound chan channels.InboundMessage

	// telegram is set when the connector is configured; webhookMode selects
	// webhook delivery over long polling.
	telegram    *channels.Telegram
	webhookMode bool

	httpServer  *http.Server
	tsnetServer *tsnet.Server
}

// New builds a gateway from config. The store is opened and skills are
// loaded here; network listeners start in Run.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := store.Open(cfg.StorePath(), logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	secret, err := db.SigningSecret(context.Background())
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("loading signing secret: %w", err)
	}

	g := &Gateway{
		cfg:      cfg,
		logger:   logger.With("component", "gateway"),
		store:    db,
		sessions: session.NewStore(),
		bindings: routing.NewBindings(),
		registry: channels.NewRegistry(),
		events:   NewBroadcaster(),
		verifier: auth.NewDeviceVerifier(),
		tokens:   auth.NewDeviceTokens(secret),
		backends: buildBackends(cfg),
		models:   make(map[string][]llm.Model),
		inbound:  make(chan channels.InboundMessage, inboundBuffer),
	}

	loaded, err := skills.Load(skills.LoadOptions{
		BundledDir:   cfg.SkillsDir(),
		WorkspaceDir: filepath.Join(cfg.WorkspaceDir(), "skills"),
		ExtraDirs:    cfg.Skills.ExtraDirs,
		Enabled:      cfg.Skills.Enabled,
		Logger:       logger,
	})
	if err != nil {
		g.logger.Warn("loading skills failed", "error", err)
		loaded = nil
	}
	g.loadedSkills = loaded
	g.logger.Info("loaded skills for agent context", "count", len(loaded))
	g.agentCtx = agent.LoadAgentContext(cfg.WorkspaceDir())
	g.buildTooling()

	g.httpServer = &http.Server{
		Handler:           g.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g, nil
}

// buildBackends creates both LLM clients from config.
func buildBackends(cfg *config.Config) map[string]llm.Backend {
	endpointType := llm.LMStudioOpenAI
	if cfg.Agents.Backends.LMStudio.EndpointType == "native" {
		endpointType = llm.LMStudioNative
	}
	return map[string]llm.Backend{
		"ollama":   llm.NewOllamaClient(cfg.Agents.Backends.Ollama.BaseURL),
		"lmstudio": llm.NewLMStudioClient(cfg.Agents.Backends.LMStudio.BaseURL, endpointType),
	}
}

// buildTooling assembles the tool definitions and executor from loaded
// skills. With readOnDemand context the read_skill tool is prepended and the
// executor wraps the generic one.
func (g *Gateway) buildTooling() {
	readOnDemand := g.contextMode() == agent.ContextReadOnDemand

	var defs []llm.ToolDefinition
	if readOnDemand && len(g.loadedSkills) > 0 {
		defs = append(defs, agent.ReadSkillToolDefinition())
	}
	for _, s := range g.loadedSkills {
		if s.Descriptor != nil {
			defs = append(defs, s.Descriptor.ToolDefinitions()...)
		}
	}
	if len(defs) == 0 {
		g.toolDefs = nil
		g.executor = nil
		return
	}

	generic := tools.NewGenericExecutor(g.loadedSkills, g.cfg.Skills.AllowScripts, g.store, g.logger)
	g.toolDefs = defs
	if readOnDemand {
		g.executor = agent.NewReadSkillExecutor(generic, g.loadedSkills)
	} else {
		g.executor = generic
	}
}

func (g *Gateway) contextMode() agent.ContextMode {
	if g.cfg.Skills.ContextMode == string(agent.ContextReadOnDemand) {
		return agent.ContextReadOnDemand
	}
	return agent.ContextFull
}

// backend resolves a backend by name, falling back to the config default
// when name is empty or unknown.
func (g *Gateway) backend(name string) llm.Backend {
	if b, ok := g.backends[config.NormalizeBackend(name)]; ok && name != "" {
		return b
	}
	return g.backends[g.cfg.DefaultBackend()]
}

// model resolves the model for a turn: request override, then config, then
// the backend fallback applied inside the turn loop.
func (g *Gateway) model(override string) string {
	if override != "" {
		return override
	}
	return g.cfg.Agents.DefaultModel
}

func (g *Gateway) systemContext() string {
	return agent.BuildSystemContext(g.agentCtx, g.loadedSkills, g.contextMode())
}

// discoveredModels returns the models found for a backend at startup.
func (g *Gateway) discoveredModels(backend string) []llm.Model {
	g.modelsMu.RLock()
	defer g.modelsMu.RUnlock()
	return g.models[backend]
}

// discoverModels queries each enabled backend for its model list. Failures
// are expected when a server is not running and only logged at debug.
func (g *Gateway) discoverModels(ctx context.Context) {
	for name, backend := range g.backends {
		if !g.cfg.DiscoveryEnabled(name) {
			g.logger.Debug("model discovery skipped", "backend", name)
			continue
		}
		go func(name string, backend llm.Backend) {
			list, err := backend.ListModels(ctx)
			if err != nil {
				g.logger.Debug("model discovery failed", "backend", name, "error", err)
				return
			}
			g.modelsMu.Lock()
			g.models[name] = list
			g.modelsMu.Unlock()
			g.logger.Info("model discovery completed", "backend", name, "models", len(list))
		}(name, backend)
	}
}

// startChannels launches the configured connectors.
func (g *Gateway) startChannels(ctx context.Context) {
	if token := g.cfg.TelegramToken(); token != "" {
		g.telegram = channels.NewTelegram(token, "", g.logger)
		g.registry.Register(g.telegram)
		if url := g.cfg.Channels.Telegram.WebhookURL; url != "" {
			g.webhookMode = true
			if err := g.telegram.SetWebhook(ctx, url, g.cfg.Channels.Telegram.WebhookSecret); err != nil {
				g.logger.Warn("telegram setWebhook failed", "error", err)
			} else {
				g.logger.Info("telegram channel registered (webhook mode)", "url", url)
			}
		} else {
			g.telegram.StartPolling(ctx, g.inbound)
			g.logger.Info("telegram channel registered (long-poll mode)")
		}
	}

	if mc := g.cfg.Channels.Matrix; mc.Enabled {
		matrix, err := channels.NewMatrix(channels.MatrixOptions{
			Homeserver:   mc.Homeserver,
			UserID:       mc.UserID,
			AccessToken:  mc.AccessToken,
			AllowedRooms: mc.AllowedRooms,
			Logger:       g.logger,
		})
		if err != nil {
			g.logger.Warn("matrix connector failed to initialize", "error", err)
			return
		}
		if err := matrix.Start(ctx, g.inbound); err != nil {
			g.logger.Warn("matrix connector failed to start", "error", err)
			return
		}
		g.registry.Register(matrix)
		g.logger.Info("matrix channel registered", "homeserver", mc.Homeserver)
	}
}

// Run starts the gateway and blocks until ctx is canceled or serving fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.listen(ctx)
	if err != nil {
		return err
	}

	g.discoverModels(ctx)
	go g.processInbound(ctx)
	g.startChannels(ctx)

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		g.logger.Info("shutdown requested")
	case serveErr = <-errCh:
		g.logger.Error("server error", "error", serveErr)
	}

	shutdownErr := g.shutdown()
	if serveErr != nil {
		return serveErr
	}
	return shutdownErr
}

// listen opens the serving listener: a tsnet node when Tailscale is enabled,
// plain TCP otherwise.
func (g *Gateway) listen(ctx context.Context) (net.Listener, error) {
	if !g.cfg.Gateway.Tailscale.Enabled {
		addr := fmt.Sprintf("%s:%d", g.cfg.Gateway.Bind, g.cfg.Gateway.Port)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("listening on %s: %w", addr, err)
		}
		return ln, nil
	}

	tsCfg := g.cfg.Gateway.Tailscale
	stateDir := tsCfg.StateDir
	if stateDir == "" {
		stateDir = filepath.Join(g.cfg.Dir(), "tailscale")
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   g.cfg.TailscaleAuthKey(),
	}
	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir)
	if _, err := g.tsnetServer.Up(ctx); err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	ln, err := g.tsnetServer.Listen("tcp", fmt.Sprintf(":%d", g.cfg.Gateway.Port))
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale port: %w", err)
	}
	return ln, nil
}

// shutdown broadcasts the shutdown event, stops connectors, and closes the
// server and store. Uses a fresh context since the run context is done.
func (g *Gateway) shutdown() error {
	g.logger.Info("shutting down gateway")
	g.events.Broadcast("shutdown", map[string]any{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g.registry.StopAll()
	if g.telegram != nil && g.webhookMode {
		if err := g.telegram.DeleteWebhook(ctx); err != nil {
			g.logger.Debug("telegram deleteWebhook on shutdown", "error", err)
		}
	}

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if g.tsnetServer != nil {
		if err := g.tsnetServer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tailscale shutdown: %w", err))
		}
	}
	g.events.Close()
	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
