// Command covenant hosts the agreement workflow engine: it opens the
// configured record store, wires the engine, and exposes a small set of
// operational subcommands.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	_ "github.com/lib/pq"

	"github.com/Tidemark-Labs/covenant/pkg/audit"
	"github.com/Tidemark-Labs/covenant/pkg/clock"
	"github.com/Tidemark-Labs/covenant/pkg/conditions"
	"github.com/Tidemark-Labs/covenant/pkg/config"
	"github.com/Tidemark-Labs/covenant/pkg/contracts"
	"github.com/Tidemark-Labs/covenant/pkg/identity"
	"github.com/Tidemark-Labs/covenant/pkg/observability"
	"github.com/Tidemark-Labs/covenant/pkg/store"
	"github.com/Tidemark-Labs/covenant/pkg/workflow"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split out for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 0
	}

	switch args[1] {
	case "init":
		return runInit(args[2:], stdout, stderr)
	case "demo":
		return runDemo(stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "covenant engine v%s (interface v%d)\n", workflow.EngineVersion, workflow.Version())
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: covenant <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  init <admin>   initialize the configured store and set the admin party")
	fmt.Fprintln(w, "  demo           run an in-memory end-to-end scenario")
	fmt.Fprintln(w, "  version        print engine version")
	fmt.Fprintln(w, "  help           show this help")
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// openStore opens the record store named by the configuration. The
// returned closer is nil for the memory backend.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func() error, error) {
	switch cfg.StoreBackend {
	case "memory", "":
		return store.NewMemory(), nil, nil
	case "sqlite":
		st, err := store.OpenSQLite(cfg.StoreDSN)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case "postgres":
		db, err := sql.Open("postgres", cfg.StoreDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		st := store.NewPostgresStore(db)
		if err := st.Init(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return st, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// host is the assembled runtime: the engine plus the deployment
// policy pieces that outlive a single operation.
type host struct {
	engine   *workflow.Engine
	archiver audit.Archiver
	cleanup  func()
}

// buildHost wires an engine from the environment configuration plus the
// deployment profile named by COVENANT_PROFILE, when set. The profile
// contributes engine limits, the party policy and the audit archiver.
func buildHost(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*host, error) {
	var profile *config.DeploymentProfile
	if cfg.Profile != "" {
		var err error
		profile, err = config.LoadProfile(cfg.ProfilesDir, cfg.Profile)
		if err != nil {
			return nil, err
		}
		logger.InfoContext(ctx, "deployment profile loaded", "code", profile.Code, "name", profile.Name)
	}

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// The JWT verifier takes precedence: with a shared secret configured
	// the profile allowlist is advisory, proof-of-key is not.
	var verifier identity.Verifier
	switch {
	case cfg.JWTSecret != "":
		verifier = identity.NewJWTVerifier([]byte(cfg.JWTSecret), cfg.JWTIssuer)
	case profile != nil && profile.Parties.Mode == "allowlist":
		parties := make([]contracts.Party, 0, len(profile.Parties.Allowlist))
		for _, p := range profile.Parties.Allowlist {
			parties = append(parties, contracts.Party(p))
		}
		verifier = identity.Allow(parties...)
	default:
		verifier = identity.AllowAll()
	}

	limits, err := profileLimits(profile)
	if err != nil {
		return nil, err
	}

	var approvals conditions.ApprovalRegistry
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		approvals = conditions.NewRedisApprovals(redis.NewClient(redisOpts), "")
	}

	var obs *observability.Provider
	if cfg.OTLPEndpoint != "" {
		obsCfg := observability.DefaultConfig()
		obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
		obs, err = observability.New(ctx, obsCfg)
		if err != nil {
			return nil, fmt.Errorf("init observability: %w", err)
		}
	}

	eng, err := workflow.New(workflow.Options{
		Store:         st,
		Clock:         clock.System{},
		Verifier:      verifier,
		Approvals:     approvals,
		Logger:        logger,
		Observability: obs,
		Limits:        limits,
	})
	if err != nil {
		return nil, err
	}

	archiver, err := newArchiver(ctx, cfg, profile)
	if err != nil {
		return nil, err
	}

	cleanup := func() {
		if obs != nil {
			_ = obs.Shutdown(context.Background())
		}
		if closeStore != nil {
			_ = closeStore()
		}
	}
	return &host{engine: eng, archiver: archiver, cleanup: cleanup}, nil
}

// profileLimits maps a profile's limit block onto engine limits. A nil
// profile yields unconstrained limits.
func profileLimits(profile *config.DeploymentProfile) (workflow.Limits, error) {
	var limits workflow.Limits
	if profile == nil {
		return limits, nil
	}
	if profile.Limits.MaxAmount != "" {
		max, err := contracts.ParseAmount(profile.Limits.MaxAmount)
		if err != nil {
			return limits, fmt.Errorf("profile %q max_amount: %w", profile.Code, err)
		}
		limits.MaxAmount = max
	}
	limits.MaxConditions = profile.Limits.MaxConditions
	limits.MinEscrowTTL = profile.Limits.MinEscrowTTL
	return limits, nil
}

// newArchiver selects the audit archiver from the profile's archival
// block, falling back to the archive directory from the environment.
// A nil archiver disables snapshot export.
func newArchiver(ctx context.Context, cfg *config.Config, profile *config.DeploymentProfile) (audit.Archiver, error) {
	if profile != nil && profile.Archival.Enabled {
		switch profile.Archival.Backend {
		case "s3":
			return audit.NewS3Archiver(ctx, profile.Archival.S3Bucket, profile.Archival.S3Prefix)
		case "dir", "":
			dir := cfg.ArchiveDir
			if dir == "" {
				dir = "archive"
			}
			return audit.NewDirArchiver(dir)
		default:
			return nil, fmt.Errorf("unknown archival backend %q", profile.Archival.Backend)
		}
	}
	if cfg.ArchiveDir != "" {
		return audit.NewDirArchiver(cfg.ArchiveDir)
	}
	return nil, nil
}

func runInit(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "Usage: covenant init <admin>")
		return 2
	}
	cfg := config.Load()
	ctx := context.Background()
	logger := newLogger(cfg, stderr)

	h, err := buildHost(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "init: %v\n", err)
		return 1
	}
	defer h.cleanup()

	if err := h.engine.Initialize(ctx, contracts.Party(args[0])); err != nil {
		fmt.Fprintf(stderr, "init: %v\n", err)
		return 1
	}
	if h.archiver != nil {
		if err := h.engine.Audit().Export(ctx, h.archiver); err != nil {
			fmt.Fprintf(stderr, "init: archive audit: %v\n", err)
			return 1
		}
	}
	fmt.Fprintf(stdout, "store %q initialized, admin set to %s\n", cfg.StoreBackend, args[0])
	return 0
}
