// Package daemon implements app.Runner for the eip20-kit process: one kit
// tracking a single (account, contract) pair, its transfer scheduler and the
// read-only HTTP surface.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/chainsafe/eip20-kit/internal/metrics"
	"github.com/chainsafe/eip20-kit/pkg/api"
	"github.com/chainsafe/eip20-kit/pkg/app"
	apphttp "github.com/chainsafe/eip20-kit/pkg/app/http"
	"github.com/chainsafe/eip20-kit/pkg/config"
	"github.com/chainsafe/eip20-kit/pkg/eip20"
	"github.com/chainsafe/eip20-kit/pkg/ethereum"
	"github.com/chainsafe/eip20-kit/pkg/indexer"
	"github.com/chainsafe/eip20-kit/pkg/pgutil"
	"github.com/chainsafe/eip20-kit/pkg/scheduler"
	"github.com/chainsafe/eip20-kit/pkg/store/leveldb"
	"github.com/chainsafe/eip20-kit/pkg/store/pg"
	"github.com/chainsafe/eip20-kit/pkg/token"
)

// Server holds configuration for the daemon process.
type Server struct {
	cfg *config.Config
}

var _ app.Runner = (*Server)(nil)

// NewServer initializes a new daemon Server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Run wires the kit and blocks until an OS shutdown signal is received or the
// HTTP server fails.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("nil config")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	contract := common.HexToAddress(cfg.Token.Contract)
	account := common.HexToAddress(cfg.Token.Account)

	logger.Info("Starting eip20-kit",
		zap.String("contract", contract.Hex()),
		zap.String("account", account.Hex()),
		zap.String("storage", cfg.Storage.Driver))

	storage, closeStorage, err := s.openStorage(ctx, account, logger)
	if err != nil {
		return err
	}
	defer closeStorage()

	ethClient, err := ethereum.NewClient(ctx, &cfg.Ethereum, logger)
	if err != nil {
		return fmt.Errorf("initialize ethereum client: %w", err)
	}
	defer ethClient.Close()
	ethClient.Start()

	idx := indexer.NewClient(&cfg.Indexer, indexer.WithLogger(logger))
	sched := scheduler.New(logger, cfg.Sync.Interval)
	defer sched.Stop()

	opts := []eip20.Option{
		eip20.WithLogger(logger),
		eip20.WithMaxConcurrentSyncs(cfg.Sync.MaxConcurrentSyncs),
		eip20.WithCallTimeout(cfg.Sync.CallTimeout),
	}

	kit, err := eip20.Instance(ctx, ethClient, storage, sched.Feed(), contract, account, opts...)
	if err != nil {
		return fmt.Errorf("create kit: %w", err)
	}
	defer kit.Stop()

	if _, err := eip20.AddTransactionSyncer(sched, idx, storage, contract, account, opts...); err != nil {
		return fmt.Errorf("register transaction syncer: %w", err)
	}
	go observeBalance(ctx, kit, ethClient, logger)

	kit.Start()
	sched.Start(cfg.Sync.Interval)

	router := api.NewRouter(kit, ethClient, logger, cfg.Monitoring.Enabled)
	err = apphttp.ServeAndWait(ctx, router, logger, &cfg.Server, cfg.Shutdown.Timeout)

	// Stop the producers before the kit and the storage they feed.
	sched.Stop()
	kit.Stop()

	return err
}

func (s *Server) openStorage(ctx context.Context, account common.Address, logger *zap.Logger) (eip20.Storage, func(), error) {
	switch s.cfg.Storage.Driver {
	case config.StorageLevelDB:
		store, err := leveldb.Open(s.cfg.Storage.LevelDBPath, account)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Opened LevelDB storage", zap.String("path", s.cfg.Storage.LevelDBPath))
		return store, func() { _ = store.Close() }, nil
	default:
		db, err := pgutil.ConnectDB(ctx, &s.cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Connected to database",
			zap.String("host", s.cfg.Database.Host),
			zap.String("database", s.cfg.Database.Database))
		return pg.NewStore(db, account), func() { _ = db.Close() }, nil
	}
}

// observeBalance mirrors balance changes into the balance gauge once token
// metadata is known.
func observeBalance(ctx context.Context, kit *eip20.Kit, caller eip20.Caller, logger *zap.Logger) {
	sub := kit.SubscribeBalance()
	defer sub.Cancel()

	var info *token.Info
	for {
		select {
		case <-ctx.Done():
			return
		case balance, ok := <-sub.C:
			if !ok {
				return
			}
			if info == nil {
				fetched, err := eip20.FetchTokenInfo(ctx, caller, kit.ContractAddress())
				if err != nil {
					logger.Debug("Token metadata unavailable for balance gauge", zap.Error(err))
					continue
				}
				info = fetched
			}
			metrics.ObserveBalance(kit.ContractAddress().Hex(), info.Symbol, balance, info.Decimals)
		}
	}
}
