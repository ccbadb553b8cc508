package main

import (
	"context"
	"fmt"

	"github.com/grigta/simgate/pkg/cache"
	"github.com/grigta/simgate/pkg/crypto"
	"github.com/grigta/simgate/pkg/database"
	"github.com/grigta/simgate/pkg/messaging"
	"github.com/grigta/simgate/pkg/middleware"
	"github.com/grigta/simgate/services/ussd-service/internal/handlers"
	"github.com/grigta/simgate/services/ussd-service/internal/pool"
	"github.com/grigta/simgate/services/ussd-service/internal/repository"
	"github.com/grigta/simgate/services/ussd-service/internal/service"
)

type repositories struct {
	transactions *repository.MongoTransactionRepository
	sims         *repository.MongoSimCardRepository
	devices      *repository.MongoDeviceRepository
	users        *repository.MongoUserRepository
	templates    *repository.MongoTemplateRepository
	configs      *repository.MongoConfigRepository
}

// app holds every dependency a command may need. Redis, RabbitMQ and Telegram are optional:
// when they are unavailable the gateway runs without cache, events or alerts.
type app struct {
	db       *database.MongoDB
	redis    *cache.RedisCache
	rabbit   *messaging.RabbitMQ
	repos    repositories
	pool     *pool.Pool
	auth     *middleware.AuthMiddleware
	services handlers.Services
}

func connectMongo() (*database.MongoDB, error) {
	log.WithField("database", cfg.Database.DBName).Info("Connecting to MongoDB...")
	db, err := database.NewMongoDB(cfg.Database.URI, cfg.Database.DBName, cfg.Database.Timeout)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	return db, nil
}

func newRepositories(db *database.MongoDB) (repositories, error) {
	var encryptor *crypto.Encryptor
	if cfg.Encryption.Key != "" {
		var err error
		encryptor, err = crypto.NewEncryptor(cfg.Encryption.Key)
		if err != nil {
			return repositories{}, err
		}
	} else {
		log.Warn("ENCRYPTION_KEY is not set, SIM card secrets are stored in clear")
	}

	return repositories{
		transactions: repository.NewTransactionRepository(db, log),
		sims:         repository.NewSimCardRepository(db, encryptor, log),
		devices:      repository.NewDeviceRepository(db, log),
		users:        repository.NewUserRepository(db, log),
		templates:    repository.NewTemplateRepository(db, log),
		configs:      repository.NewConfigRepository(db, log),
	}, nil
}

// newApp connects the stores and builds the services. withBrokers also dials Redis, RabbitMQ
// and Telegram.
func newApp(withBrokers bool) (*app, error) {
	db, err := connectMongo()
	if err != nil {
		return nil, err
	}

	repos, err := newRepositories(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &app{
		db:    db,
		repos: repos,
		auth:  middleware.NewAuthMiddleware(cfg.JWT.Secret, cfg.JWT.ExpiresIn),
	}

	var (
		txCache   service.TransactionCache
		publisher messaging.EventPublisher
		notifier  service.Notifier
	)

	if withBrokers {
		a.redis, err = cache.NewRedisCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.WithError(err).Warn("Redis unavailable, continuing without cache and rate limiting")
			a.redis = nil
		} else {
			txCache = service.NewCacheService(a.redis, cfg.Gateway.CacheTTL, log)
		}

		if cfg.RabbitMQ.Enabled {
			a.rabbit, err = messaging.NewRabbitMQ(cfg.RabbitMQ.URL)
			if err != nil {
				log.WithError(err).Warn("RabbitMQ unavailable, continuing without events")
				a.rabbit = nil
			} else if err := a.rabbit.SetupTopology(); err != nil {
				log.WithError(err).Warn("Failed to declare RabbitMQ topology")
			}
		}
		if a.rabbit != nil {
			publisher = a.rabbit
		}

		if cfg.Telegram.BotToken != "" {
			tg, err := service.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.AdminChatIDs, log)
			if err != nil {
				log.WithError(err).Warn("Telegram notifier disabled")
			} else {
				notifier = tg
			}
		}
	}

	a.pool = pool.NewPool(repos.sims, cfg.Gateway.ReservationLease, pool.Caps{
		Activation: cfg.Gateway.DailyActivationCap,
		Topup:      cfg.Gateway.DailyTopupCap,
	}, log)

	accounting := service.NewAccounting(repos.users, repos.transactions, log)
	resolver := service.NewResolver(repos.templates, log)

	a.services = handlers.Services{
		Gateway: service.NewGatewayService(
			repos.transactions, repos.sims, a.pool, accounting, resolver,
			txCache, publisher, notifier, log, cfg.Gateway,
		),
		Users:      service.NewUserService(repos.users, accounting, a.auth, log),
		Devices:    service.NewDeviceService(repos.devices, repos.sims, log),
		SimCards:   service.NewSimCardService(repos.sims, repos.devices, log),
		Reference:  service.NewReferenceService(repos.templates, repos.configs, log),
		Statistics: service.NewStatisticsService(repos.transactions, log),
	}
	return a, nil
}

func (a *app) Close() {
	if a.rabbit != nil {
		if err := a.rabbit.Close(); err != nil {
			log.WithError(err).Warn("Failed to close RabbitMQ")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.WithError(err).Warn("Failed to close Redis")
		}
	}
	if err := a.db.Close(); err != nil {
		log.WithError(err).Warn("Failed to close MongoDB")
	}
}

func (a *app) ensureIndexes(ctx context.Context) error {
	return repository.EnsureIndexes(ctx, a.db, log)
}
