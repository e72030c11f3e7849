package api

import (
	"encoding/json"
	"net/http"

	"github.com/Harshitk-cp/concord/internal/api/handlers"
	mw "github.com/Harshitk-cp/concord/internal/api/middleware"
	"github.com/Harshitk-cp/concord/internal/buildconfig"
	"github.com/Harshitk-cp/concord/internal/config"
	"github.com/Harshitk-cp/concord/internal/domain"
	"github.com/Harshitk-cp/concord/internal/embedding"
	"github.com/Harshitk-cp/concord/internal/service"
	"github.com/Harshitk-cp/concord/internal/similarity"
	"github.com/Harshitk-cp/concord/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services is the engine wired against one database.
type Services struct {
	Identity      *service.IdentityService
	Trust         *service.TrustService
	Corroboration *service.CorroborationService
	CommitReveal  *service.CommitRevealService
	Dispute       *service.DisputeService
	Stake         *service.StakeService
	Slashing      *service.SlashingService
	Sweeper       *service.SweeperService
}

// NewServices builds every service from config. It is shared by the server
// and the one-shot CLI commands.
func NewServices(db *pgxpool.Pool, logger *zap.Logger) *Services {
	// Stores
	tx := store.NewTxManager(db)
	identityStore := store.NewIdentityStore(db)
	trustStore := store.NewTrustEdgeStore(db)
	corroborationStore := store.NewCorroborationStore(db)
	commitmentStore := store.NewCommitmentStore(db)
	disputeStore := store.NewDisputeStore(db)
	stakeStore := store.NewStakeStore(db)
	slashingStore := store.NewSlashingStore(db)

	// Similarity via provider factory
	provider := config.EmbeddingProvider()
	embeddingClient, err := embedding.NewClient(provider, config.EmbeddingAPIKey(), config.OpenAIBaseURL())
	if err != nil {
		logger.Warn("embedding client initialization failed, using lexical similarity",
			zap.String("provider", provider), zap.Error(err))
	}

	var oracle domain.SimilarityOracle = similarity.Lexical{}
	if embeddingClient != nil {
		oracle = similarity.NewEmbeddingOracle(embeddingClient)
		logger.Info("embedding client initialized", zap.String("provider", provider))
	} else {
		logger.Info("using lexical similarity")
	}

	trustSvc := service.NewTrustService(trustStore, logger)
	trustSvc.MaxHops = config.TrustMaxHops()

	commitSvc := service.NewCommitRevealService(commitmentStore, tx, logger)
	commitSvc.RevealDelay = config.RevealDelay()
	commitSvc.RevealWindow = config.RevealWindow()

	slashingSvc := service.NewSlashingService(slashingStore, stakeStore, tx, logger)
	slashingSvc.AppealWindow = config.AppealWindow()

	sweeper := service.NewSweeperService(commitSvc, trustSvc, slashingSvc, logger)
	sweeper.SetInterval(config.SweepInterval())
	sweeper.SetAutoExecute(config.SlashingAutoExecute())

	return &Services{
		Identity:      service.NewIdentityService(identityStore, logger),
		Trust:         trustSvc,
		Corroboration: service.NewCorroborationService(corroborationStore, tx, oracle, embeddingClient, config.CorroborationPolicy(), logger),
		CommitReveal:  commitSvc,
		Dispute:       service.NewDisputeService(disputeStore, corroborationStore, stakeStore, tx, config.DisputePolicy(), logger),
		Stake:         service.NewStakeService(stakeStore, tx, logger),
		Slashing:      slashingSvc,
		Sweeper:       sweeper,
	}
}

// App holds the router and background services for lifecycle management.
type App struct {
	Router  *chi.Mux
	Sweeper *service.SweeperService
}

func NewApp(db *pgxpool.Pool, logger *zap.Logger) *App {
	svcs := NewServices(db, logger)
	r := NewRouter(svcs, store.NewIdentityStore(db), db, logger)
	return &App{Router: r, Sweeper: svcs.Sweeper}
}

// NewRouter mounts every route. db may be nil, in which case /health only
// reports the process as up.
func NewRouter(svcs *Services, identities domain.IdentityStore, db *pgxpool.Pool, logger *zap.Logger) *chi.Mux {
	identityHandler := handlers.NewIdentityHandler(svcs.Identity)
	trustHandler := handlers.NewTrustHandler(svcs.Trust)
	corroborationHandler := handlers.NewCorroborationHandler(svcs.Corroboration)
	voteHandler := handlers.NewVoteHandler(svcs.CommitReveal)
	disputeHandler := handlers.NewDisputeHandler(svcs.Dispute)
	stakeHandler := handlers.NewStakeHandler(svcs.Stake)
	slashingHandler := handlers.NewSlashingHandler(svcs.Slashing)

	operatorOnly := mw.RequireOperator(config.OperatorDIDs())

	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(mw.RequestID)                                                          // Generate/extract request ID first
	r.Use(middleware.RealIP)                                                     // Extract real IP
	r.Use(mw.Logging(logger))                                                    // Log and count all requests
	r.Use(middleware.Recoverer)                                                  // Recover from panics
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst(), mw.ByIP)) // Per-IP rate limiting

	// Unsigned
	r.Get("/health", healthHandler(db))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/version", versionHandler)

	// Identity creation (unsigned bootstrap endpoint)
	r.Post("/v1/identities", identityHandler.Create)

	// Signed routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.SignedRequestAuth(identities, config.SignatureMaxSkew(), nil))
		r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst(), mw.ByDID))

		r.Route("/trust", func(r chi.Router) {
			r.Get("/transitive", trustHandler.Transitive)
			r.Route("/edges", func(r chi.Router) {
				r.Get("/", trustHandler.List)
				r.Put("/", trustHandler.Upsert)
				r.Get("/{target}", trustHandler.Get)
				r.Delete("/{target}", trustHandler.Delete)
			})
		})

		r.Route("/corroboration", func(r chi.Router) {
			r.Post("/beliefs", corroborationHandler.Register)
			r.Get("/beliefs/{id}", corroborationHandler.Get)
			r.Post("/check", corroborationHandler.Check)
			r.Get("/elevation-candidates", corroborationHandler.ElevationCandidates)
		})

		r.Route("/votes", func(r chi.Router) {
			r.Post("/commitments", voteHandler.Commit)
			r.Post("/commitments/{id}/reveal", voteHandler.Reveal)
			r.Get("/beliefs/{id}/tally", voteHandler.Tally)
			r.With(operatorOnly).Post("/expire", voteHandler.Expire)
		})

		r.Route("/disputes", func(r chi.Router) {
			r.Post("/", disputeHandler.File)
			r.Post("/validate", disputeHandler.Validate)
			r.Get("/quality/{did}", disputeHandler.Quality)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", disputeHandler.Get)
				r.With(operatorOnly).Post("/resolve", disputeHandler.Resolve)
				r.Post("/withdraw", disputeHandler.Withdraw)
			})
		})

		r.Route("/stake", func(r chi.Router) {
			r.Post("/deposit", stakeHandler.Deposit)
			r.Post("/withdraw", stakeHandler.Withdraw)
			r.Get("/{did}", stakeHandler.Get)
		})

		r.Route("/slashing", func(r chi.Router) {
			r.With(operatorOnly).Post("/events", slashingHandler.Create)
			r.Get("/validators/{did}/events", slashingHandler.ListByValidator)
			r.Route("/events/{id}", func(r chi.Router) {
				r.Get("/", slashingHandler.Get)
				r.Post("/appeal", slashingHandler.Appeal)
				r.With(operatorOnly).Post("/execute", slashingHandler.Execute)
				r.With(operatorOnly).Post("/reject", slashingHandler.Reject)
			})
		})
	})

	return r
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(buildconfig.VersionInfo())
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.Transactor         = (*store.TxManager)(nil)
	_ domain.IdentityStore      = (*store.IdentityStore)(nil)
	_ domain.TrustEdgeStore     = (*store.TrustEdgeStore)(nil)
	_ domain.CorroborationStore = (*store.CorroborationStore)(nil)
	_ domain.CommitmentStore    = (*store.CommitmentStore)(nil)
	_ domain.DisputeStore       = (*store.DisputeStore)(nil)
	_ domain.StakeStore         = (*store.StakeStore)(nil)
	_ domain.SlashingStore      = (*store.SlashingStore)(nil)
	_ domain.EmbeddingClient    = (*embedding.OpenAIClient)(nil)
	_ domain.EmbeddingClient    = (*embedding.MockClient)(nil)
	_ domain.SimilarityOracle   = (*similarity.EmbeddingOracle)(nil)
	_ domain.SimilarityOracle   = similarity.Lexical{}
)
