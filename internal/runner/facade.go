// Package runner wires the storage, filesystem, sandbox, permission and
// lifecycle layers into a single facade: the one entry point both the HTTP
// surface and the agentumctl CLI driver use to run and manage sessions.
//
// Grounded on cmd/kandev/main.go's wiring order (config -> logger -> event
// bus -> store -> lifecycle manager), collapsed into one constructor so a
// second caller (the CLI) doesn't need to re-derive it.
package runner

import (
	"context"

	"go.uber.org/zap"

	"github.com/extractumio/agentum/internal/apperr"
	"github.com/extractumio/agentum/internal/common/config"
	"github.com/extractumio/agentum/internal/common/logger"
	"github.com/extractumio/agentum/internal/hub"
	"github.com/extractumio/agentum/internal/lifecycle"
	"github.com/extractumio/agentum/internal/permission"
	"github.com/extractumio/agentum/internal/sandbox"
	"github.com/extractumio/agentum/internal/sessionfs"
	"github.com/extractumio/agentum/internal/store"
)

// Facade is the single-process surface over the full session runtime: the
// metadata store, session filesystem, sandbox launcher, permission engine
// and lifecycle manager, wired together from one Config.
type Facade struct {
	Config     *config.Config
	Store      store.Repository
	FS         *sessionfs.FS
	Sandbox    *sandbox.Launcher
	Permission *permission.Engine
	Lifecycle  *lifecycle.Manager

	log *logger.Logger
}

// NewFacade constructs every layer from cfg, in dependency order: store,
// filesystem, sandbox launcher, permission engine, then the lifecycle
// manager tying them together. Construction fails closed: a missing
// bwrap binary when sandboxing is enabled, for instance, aborts here
// rather than at the first run request.
func NewFacade(cfg *config.Config, log *logger.Logger) (*Facade, error) {
	repo, err := store.NewSQLiteRepository(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	fs, err := sessionfs.New(cfg.Sessions.WorkspaceRoot, cfg.Sessions.SkillsDir)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	sandboxCfg := cfg.Sandbox
	if cfg.Sessions.SecurityPath != "" {
		if loaded, loadErr := sandbox.LoadConfig(cfg.Sessions.SecurityPath); loadErr == nil {
			sandboxCfg = *loaded
		} else {
			log.Warn("falling back to inline sandbox config", zap.Error(loadErr), zap.String("path", cfg.Sessions.SecurityPath))
		}
	}
	launcher, err := sandbox.NewLauncher(sandboxCfg)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	profile, err := permission.LoadProfile(cfg.Sessions.PermissionsPath)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}
	permEngine := permission.NewEngine(profile, cfg.Sessions.DenialThreshold)

	manager := lifecycle.NewManager(cfg, repo, fs, launcher, permEngine, log)

	return &Facade{
		Config:     cfg,
		Store:      repo,
		FS:         fs,
		Sandbox:    launcher,
		Permission: permEngine,
		Lifecycle:  manager,
		log:        log.WithFields(zap.String("component", "runner")),
	}, nil
}

// Run creates and starts a new session. It is the facade's single entry
// point shared by the HTTP surface's run endpoint and the CLI driver.
func (f *Facade) Run(ctx context.Context, params lifecycle.RunParams) (*store.Session, *hub.Hub, error) {
	return f.Lifecycle.CreateAndRun(ctx, params)
}

// Resume continues a finished session with new task text.
func (f *Facade) Resume(ctx context.Context, sessionID, userID, task string) (*store.Session, *hub.Hub, error) {
	return f.Lifecycle.Resume(ctx, sessionID, userID, task)
}

// Cancel requests termination of a running session.
func (f *Facade) Cancel(ctx context.Context, sessionID, userID string) error {
	return f.Lifecycle.Cancel(ctx, sessionID, userID)
}

// Startup runs the reconciliation pass that must happen once before this
// process accepts any session requests: any row left running by a
// previous crash becomes failed, since no supervisor can exist across a
// restart.
func (f *Facade) Startup(ctx context.Context) error {
	n, err := f.Lifecycle.CleanupStaleSessions(ctx)
	if err != nil {
		return apperr.Wrap(err, "cleanup stale sessions")
	}
	if n > 0 {
		f.log.Info("reconciled stale running sessions at startup", zap.Int("count", n))
	}
	return nil
}

// Close releases every resource the facade opened.
func (f *Facade) Close() error {
	return f.Store.Close()
}
