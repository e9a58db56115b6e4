package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/rukunwarga/rukun/internal/access"
	"github.com/rukunwarga/rukun/internal/announcements"
	"github.com/rukunwarga/rukun/internal/auth"
	"github.com/rukunwarga/rukun/internal/bulk"
	"github.com/rukunwarga/rukun/internal/documents"
	"github.com/rukunwarga/rukun/internal/lifecycle"
	"github.com/rukunwarga/rukun/internal/observability"
	"github.com/rukunwarga/rukun/internal/payments"
	"github.com/rukunwarga/rukun/internal/platform/cache"
	"github.com/rukunwarga/rukun/internal/rbac"
	"github.com/rukunwarga/rukun/internal/shared"
	"github.com/rukunwarga/rukun/internal/warga"
)

// Services is the domain layer shared by the API server and the worker.
type Services struct {
	Model         *rbac.Model
	Facade        *access.Facade
	Users         *auth.PGRepository
	Auth          *auth.Service
	Documents     *documents.Service
	Announcements *announcements.Service
	Payments      *payments.Service
	Idempotency   *shared.IdempotencyStore
}

// ServiceDeps carries the infrastructure the services are built on.
type ServiceDeps struct {
	Config   *Config
	Pool     *pgxpool.Pool
	Redis    redis.UniversalClient
	Notifier announcements.Notifier
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// NewServices wires repositories, the capability model and the access facade
// into the domain services.
func NewServices(deps ServiceDeps) (*Services, error) {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	model, err := cfg.LoadModel()
	if err != nil {
		return nil, err
	}
	privileged, err := cfg.PrivilegedRoles()
	if err != nil {
		return nil, err
	}

	var lifecycleOpts []lifecycle.Option
	if cfg.DocumentCompletionEnabled {
		lifecycleOpts = append(lifecycleOpts, lifecycle.WithDocumentCompletion())
	}
	var facadeOpts []access.Option
	if deps.Metrics != nil {
		facadeOpts = append(facadeOpts, access.WithRecorder(deps.Metrics))
	}
	facade := access.NewFacade(model, lifecycle.New(model, lifecycleOpts...), facadeOpts...)

	idempotency := shared.NewIdempotencyStore(deps.Pool)
	users := auth.NewRepository(deps.Pool)
	tokens := auth.NewTokenStore(deps.Redis, cfg.SessionTTL)

	paymentRepo := payments.NewRepository(deps.Pool)
	engine := bulk.NewEngine(model, warga.NewRepository(deps.Pool), paymentRepo, bulk.Config{
		PrivilegedRoles: privileged,
		Location:        cfg.Location(),
		Logger:          logger.With(slog.String("component", "bulk")),
	})

	return &Services{
		Model:  model,
		Facade: facade,
		Users:  users,
		Auth:   auth.NewService(users, tokens),
		Documents: documents.NewService(documents.NewRepository(deps.Pool), facade, documents.Config{
			RejectReasonMinLen: cfg.RejectReasonMinLen,
		}, logger.With(slog.String("component", "documents"))),
		Announcements: announcements.NewService(announcements.NewRepository(deps.Pool), facade, deps.Notifier,
			logger.With(slog.String("component", "announcements"))),
		Payments: payments.NewService(
			paymentRepo,
			facade,
			engine,
			cache.NewLocker(deps.Redis),
			idempotency,
			shared.NewActivityLogger(deps.Pool),
			payments.Config{LockTTL: cfg.BulkLockTTL},
			logger.With(slog.String("component", "payments")),
		),
		Idempotency: idempotency,
	}, nil
}
