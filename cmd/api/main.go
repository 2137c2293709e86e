package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"caseshare.org/internal/actor"
	"caseshare.org/internal/audit"
	"caseshare.org/internal/cases"
	"caseshare.org/internal/config"
	"caseshare.org/internal/httpapi"
	"caseshare.org/internal/obs"
	"caseshare.org/internal/perm"
	"caseshare.org/internal/plan"
	"caseshare.org/internal/scope"
	"caseshare.org/internal/service"
	"caseshare.org/internal/share"
	"caseshare.org/internal/store/pg"
)

var version = "0.3.1"

func main() {
	cfg := config.Load()
	log := obs.InitLogger(cfg.LogLevel, cfg.Env)
	defer func() { _ = log.Sync() }()
	obs.Init()

	var (
		caseStore    cases.Store
		versionStore plan.VersionStore
		sink         audit.Sink
		directory    actor.Directory
		probe        httpapi.ReadyProbe
		pgStore      *pg.Store
	)
	if cfg.PGDSN != "" {
		var err error
		pgStore, err = pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatal("open database", zap.Error(err))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := pgStore.Migrate(ctx); err != nil {
			cancel()
			log.Fatal("migrate", zap.Error(err))
		}
		cancel()
		caseStore = pgStore
		versionStore = pgStore
		sink = pgStore
		directory = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		log.Warn("no CASESHARE_PG_DSN set, running with in-memory storage")
		mem := cases.NewInMemoryStore()
		memDir := actor.NewMemoryDirectory()
		seedDemo(mem, memDir, log)
		caseStore = mem
		versionStore = plan.NewInMemoryVersions()
		sink = audit.NewMemorySink()
		directory = memDir
	}

	orgs, err := caseStore.ListOrganizations(context.Background())
	if err != nil {
		log.Fatal("list organizations", zap.Error(err))
	}
	orgIDs := make([]string, 0, len(orgs))
	for _, o := range orgs {
		orgIDs = append(orgIDs, o.ID)
	}
	resolver := scope.NewResolver(orgIDs)

	matrix := perm.DefaultMatrix()
	if cfg.MatrixPath != "" {
		matrix, err = perm.LoadMatrix(cfg.MatrixPath)
		if err != nil {
			log.Fatal("load permission matrix", zap.String("path", cfg.MatrixPath), zap.Error(err))
		}
	}
	engine := perm.NewEngine(matrix, resolver)

	locks := plan.NewCaseLocks(cfg.LockWait)
	plans := plan.NewService(versionStore, locks)
	shares := share.NewEvaluator(resolver)
	auditor := audit.NewRecorder(sink, log, audit.WithSampleRate(cfg.AuditSampleRate))

	svc := service.New(caseStore, plans, engine, resolver, shares, auditor, locks)

	api := httpapi.New(svc, directory, probe, httpapi.Options{
		Version:        version,
		TokenTTL:       cfg.TokenTTL,
		ExportPageSize: cfg.ExportPageSize,
		RateLimitRPS:   cfg.RateLimitPerSecond,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info("starting caseshare-api",
		zap.String("version", version),
		zap.String("addr", srv.Addr),
		zap.String("env", cfg.Env))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)

	// Drain the async audit queue before closing the sink.
	auditor.Close()
	if pgStore != nil {
		_ = pgStore.Close()
	}
	log.Info("stopped")
}

// seedDemo provisions a small organization tree and one user per role so
// the in-memory mode is usable out of the box. Never runs against postgres.
func seedDemo(store *cases.InMemoryStore, dir *actor.MemoryDirectory, log *zap.Logger) {
	ctx := context.Background()
	now := time.Now().UTC()
	orgs := []cases.Organization{
		{ID: "org-hq", Name: "Central HQ", Kind: cases.OrgHQ, CreatedAt: now},
		{ID: "org-branch-a", Name: "Branch A", Kind: cases.OrgBranch, CreatedAt: now},
		{ID: "org-branch-b", Name: "Branch B", Kind: cases.OrgBranch, CreatedAt: now},
	}
	for _, o := range orgs {
		if err := store.CreateOrganization(ctx, o); err != nil {
			log.Fatal("seed organization", zap.String("org", o.ID), zap.Error(err))
		}
	}

	users := []struct {
		user     actor.User
		password string
	}{
		{actor.User{ID: "u-hq", Email: "hq@caseshare.local", Role: actor.RoleHQAdmin, HomeOrg: "org-hq"}, "hq-admin-dev"},
		{actor.User{ID: "u-badm", Email: "badmin@caseshare.local", Role: actor.RoleBranchAdmin, HomeOrg: "org-branch-a"}, "branch-admin-dev"},
		{actor.User{ID: "u-dent", Email: "dentist@caseshare.local", Role: actor.RoleDentist, HomeOrg: "org-branch-a"}, "dentist-dev"},
		{actor.User{ID: "u-asst", Email: "assistant@caseshare.local", Role: actor.RoleAssistant, HomeOrg: "org-branch-b"}, "assistant-dev"},
		{actor.User{ID: "u-desk", Email: "frontdesk@caseshare.local", Role: actor.RoleFrontDesk, HomeOrg: "org-branch-a"}, "frontdesk-dev"},
		{actor.User{ID: "u-ro", Email: "readonly@caseshare.local", Role: actor.RoleReadOnly, HomeOrg: "org-branch-b"}, "readonly-dev"},
	}
	for _, u := range users {
		if err := dir.Add(u.user, u.password); err != nil {
			log.Fatal("seed user", zap.String("email", u.user.Email), zap.Error(err))
		}
	}
	log.Info("seeded demo organizations and users", zap.Int("orgs", len(orgs)), zap.Int("users", len(users)))
}
