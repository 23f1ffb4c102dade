package main

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-petr/ledger-engine/pkg/configpkg"
	"github.com/go-petr/ledger-engine/pkg/dbpkg"
	_ "github.com/lib/pq"

	"github.com/go-petr/ledger-engine/internal/accountdelivery"
	"github.com/go-petr/ledger-engine/internal/accountrepo"
	"github.com/go-petr/ledger-engine/internal/accountservice"
	"github.com/go-petr/ledger-engine/internal/events"
	"github.com/go-petr/ledger-engine/internal/ledgerrepo"
	"github.com/go-petr/ledger-engine/internal/middleware"
	"github.com/go-petr/ledger-engine/internal/movement"
	"github.com/go-petr/ledger-engine/internal/transactiondelivery"
	"github.com/go-petr/ledger-engine/internal/transactionservice"
)

func main() {
	config, err := configpkg.Load("./configs")
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load config")
	}

	logger := middleware.GetLogger(config)

	server, err := createServer(logger, config)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot create server")
	}

	err = server.Run(config.ServerAddress)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot start server")
	}
}

type accountStore interface {
	accountservice.Repo
	movement.Store
}

func createServer(logger zerolog.Logger, config configpkg.Config) (*gin.Engine, error) {
	var (
		accountRepo accountStore
		ledgerRepo  transactionservice.Ledger
	)

	switch config.DBDriver {
	case "memory":
		accounts := accountrepo.NewRepoMem()
		ledger := ledgerrepo.NewRepoMem()

		// Postgres relies on foreign keys for this.
		accounts.GuardDelete(func(ctx context.Context, accountID int64) (bool, error) {
			txs, err := ledger.ListForAccount(ctx, accountID)
			return len(txs) > 0, err
		})

		accountRepo = accounts
		ledgerRepo = ledger
	default:
		conn, err := dbpkg.Setup(config.DBDriver, config.DBSource)
		if err != nil {
			return nil, err
		}

		accountRepo = accountrepo.NewRepoPGS(conn)
		ledgerRepo = ledgerrepo.NewRepoPGS(conn)
	}

	var publisher transactionservice.Publisher = events.NopPublisher{}
	if len(config.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(config.KafkaBrokers, config.KafkaTopic)
	}

	mover := movement.New(accountRepo, config.LockTimeout)
	accountService := accountservice.New(accountRepo, ledgerRepo)
	transactionService := transactionservice.New(accountRepo, ledgerRepo, mover, publisher)

	accountHandler := accountdelivery.NewHandler(accountService)
	transactionHandler := transactiondelivery.NewHandler(transactionService, accountService)

	gin.SetMode(gin.ReleaseMode)
	server := gin.New()

	server.Use(middleware.RequestLogger(logger))
	server.Use(gin.Recovery())

	authRoutes := server.Group("/").Use(middleware.AuthContext())

	authRoutes.POST("/accounts", accountHandler.Create)
	authRoutes.GET("/accounts", accountHandler.List)
	authRoutes.GET("/accounts/:id", accountHandler.Get)
	authRoutes.POST("/accounts/:id/deactivate", accountHandler.Deactivate)
	authRoutes.DELETE("/accounts/:id", accountHandler.Delete)
	authRoutes.GET("/accounts/:id/transactions", transactionHandler.ListForAccount)

	authRoutes.POST("/transactions/deposit", transactionHandler.Deposit)
	authRoutes.POST("/transactions/withdraw", transactionHandler.Withdraw)
	authRoutes.POST("/transactions/transfer", transactionHandler.Transfer)
	authRoutes.GET("/transactions/:reference", transactionHandler.Get)

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		err := v.RegisterValidation("amount", transactiondelivery.ValidAmount)
		if err != nil {
			return nil, errors.New("cannot register amount validator")
		}
	}

	return server, nil
}
