package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"github.com/athang/pixiu/internal/advisor"
	"github.com/athang/pixiu/internal/clients/eastmoney"
	"github.com/athang/pixiu/internal/config"
	"github.com/athang/pixiu/internal/database"
	"github.com/athang/pixiu/internal/events"
	"github.com/athang/pixiu/internal/guard"
	"github.com/athang/pixiu/internal/knowledge"
	"github.com/athang/pixiu/internal/learning"
	"github.com/athang/pixiu/internal/llm"
	"github.com/athang/pixiu/internal/market"
	"github.com/athang/pixiu/internal/portfolio"
	"github.com/athang/pixiu/internal/queue"
	"github.com/athang/pixiu/internal/regime"
	"github.com/athang/pixiu/internal/report"
	"github.com/athang/pixiu/internal/risk"
	"github.com/athang/pixiu/internal/strategy"
	"github.com/athang/pixiu/pkg/logger"
)

// app wires every service once; each command picks what it needs.
type app struct {
	cfg *config.Config
	log zerolog.Logger
	db  *database.DB

	funds      *market.FundRepo
	indices    *market.IndexRepo
	watchlist  *market.WatchlistRepo
	enrichment *market.EnrichmentService
	updater    *market.UpdateService
	scorer     *market.FundScorer

	book      *portfolio.Repo
	detector  *regime.Detector
	registry  *strategy.Registry
	composite *strategy.Composite
	guard     *guard.Guard
	sizer     *risk.Sizer
	learner   *learning.Learner
	knowledge *knowledge.Store
	gateway   *llm.Gateway
	brain     *advisor.Brain
	advisor   *advisor.Service
	reflector *advisor.Reflector
	reports   *report.Writer

	bus   *events.Bus
	queue *queue.Manager
}

func newApp() (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	db, err := database.New(database.Config{Path: cfg.Database.Path, Name: "pixiu"})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}

	a := &app{cfg: cfg, log: log, db: db}

	a.funds = market.NewFundRepo(db, log)
	a.indices = market.NewIndexRepo(db, log)
	a.watchlist = market.NewWatchlistRepo(db, log)
	a.enrichment = market.NewEnrichmentService(db, a.funds, a.watchlist, log)
	a.updater = market.NewUpdateService(eastmoney.New(log), a.funds, a.indices, a.watchlist, log)
	a.scorer = market.NewFundScorer(a.funds, cfg.Scoring, log)

	a.book = portfolio.NewRepo(db, log)
	a.detector = regime.New(market.NewSeries(a.funds, a.indices), market.NewFlows(db, log), log)

	a.registry = strategy.NewRegistry()
	a.registry.MustRegister(strategy.NewTrendFollowing())
	a.registry.MustRegister(strategy.NewMeanReversion())
	a.registry.MustRegister(strategy.NewMomentum())
	a.registry.MustRegister(strategy.NewValuation())
	a.registry.MustRegister(strategy.NewMacroCycle())
	a.registry.MustRegister(strategy.NewManagerAlpha())
	a.composite = strategy.NewComposite(a.registry, log)

	a.guard = guard.New(db.Conn(), log)
	a.sizer = risk.NewSizer(cfg.Risk)
	a.learner = learning.New(db.Conn(), a.registry.Names(), log)
	a.knowledge = knowledge.NewStore(db.Conn(), log)

	a.gateway = llm.NewGateway(cfg.LLM, os.Getenv("ANTHROPIC_BASE_URL"), log)
	a.brain = advisor.NewBrain(a.gateway, log)
	a.advisor = advisor.NewService(cfg, advisor.Deps{
		DB:         db,
		Funds:      a.funds,
		Indices:    a.indices,
		Watchlist:  a.watchlist,
		Enrichment: a.enrichment,
		Detector:   a.detector,
		Composite:  a.composite,
		Guard:      a.guard,
		Sizer:      a.sizer,
		Book:       a.book,
		Learner:    a.learner,
		Knowledge:  a.knowledge,
		Brain:      a.brain,
	}, log)
	a.reflector = advisor.NewReflector(cfg, db, a.brain, a.knowledge, log)
	a.reports = report.NewWriter(cfg.Reports.Dir, log)

	a.bus = events.NewBus()
	a.queue = queue.NewManager(a.bus, log)

	return a, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn().Err(err).Msg("关闭数据库失败")
	}
}

// registerJobs binds the background verbs used by the scheduler and
// the HTTP jobs endpoint.
func (a *app) registerJobs() {
	a.queue.Register("update", func(ctx context.Context) error {
		_, err := a.runUpdate(ctx)
		return err
	})
	a.queue.Register("daily", func(ctx context.Context) error {
		return a.runDaily(ctx)
	})
	a.queue.Register("reflect", func(ctx context.Context) error {
		_, err := a.reflector.Run(ctx)
		return err
	})
	a.queue.Register("learn", func(ctx context.Context) error {
		return a.runLearning(ctx)
	})
	a.queue.Register("backup", func(ctx context.Context) error {
		return a.runBackup(ctx)
	})
}
