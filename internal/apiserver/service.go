// Package apiserver exposes indexed chronos state, live chain reads, the slot
// reservation scheduler and the execution batch coordinator over HTTP.
package apiserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/coldbell/chronos/backend/internal/auction"
	"github.com/coldbell/chronos/backend/internal/batch"
	"github.com/coldbell/chronos/backend/internal/chain"
	"github.com/coldbell/chronos/backend/internal/chronos"
	"github.com/coldbell/chronos/backend/internal/clock"
	"github.com/coldbell/chronos/backend/internal/codec"
	"github.com/coldbell/chronos/backend/internal/config"
	"github.com/coldbell/chronos/backend/internal/indexer"
	"github.com/coldbell/chronos/backend/internal/logging"
	"github.com/coldbell/chronos/backend/internal/metrics"
	"github.com/coldbell/chronos/backend/internal/orderbook"
	"github.com/coldbell/chronos/backend/internal/programs"
	"github.com/coldbell/chronos/backend/internal/scheduler"
)

// Chain is the live read side, normally a *chronos.Client.
type Chain interface {
	OrderBook(ctx context.Context, market solana.PublicKey) (orderbook.Book, error)
	AuctionPrice(ctx context.Context, address solana.PublicKey, now int64) (auction.Quote, error)
	VaultExists(ctx context.Context, wallet solana.PublicKey) (chronos.VaultInfo, error)
	MarketExists(ctx context.Context, authority solana.PublicKey) (chronos.MarketInfo, error)
	Positions(ctx context.Context, vaultAuthority solana.PublicKey, users []solana.PublicKey) ([]codec.UserPosition, error)
	PreviewDeposit(ctx context.Context, wallet solana.PublicKey, amount uint64) (chronos.SharePreview, error)
	PreviewWithdraw(ctx context.Context, wallet solana.PublicKey, shares uint64) (chronos.SharePreview, error)
	AllOrders(ctx context.Context) ([]codec.Order, error)
	AllSlotNFTs(ctx context.Context) ([]codec.SlotNFT, error)
	Auctions(ctx context.Context) ([]codec.Auction, error)
	AllVaults(ctx context.Context) ([]codec.Vault, error)
}

// Writer submits program instructions signed by the server wallet,
// normally the same *chronos.Client as Chain.
type Writer interface {
	InitializeOrchestrator(ctx context.Context, authority solana.PublicKey) (chronos.Receipt, error)
	InitializeMarket(ctx context.Context, authority solana.PublicKey, args codec.InitializeMarketArgs) (chronos.Receipt, error)
	InitializeVault(ctx context.Context, wallet solana.PublicKey, args codec.InitializeVaultArgs) (chronos.Receipt, error)
	Deposit(ctx context.Context, vaultAuthority, user, mint solana.PublicKey, amount uint64) (chronos.Receipt, error)
	Withdraw(ctx context.Context, vaultAuthority, user, mint solana.PublicKey, shares uint64) (chronos.Receipt, error)
	PlaceOrder(ctx context.Context, market, trader solana.PublicKey, args codec.PlaceOrderArgs) (chronos.Receipt, error)
	CancelOrder(ctx context.Context, order, trader solana.PublicKey) (chronos.Receipt, error)
	MintSlotNFT(ctx context.Context, minter solana.PublicKey, args codec.MintSlotNFTArgs) (chronos.Receipt, error)
	CreateAuction(ctx context.Context, slotNFT, seller solana.PublicKey, args codec.CreateAuctionArgs) (chronos.Receipt, error)
	PlaceBid(ctx context.Context, auctionAddr, bidder solana.PublicKey) (chronos.Receipt, error)
	ReserveRaikuSlot(ctx context.Context, authority solana.PublicKey, args codec.ReserveRaikuSlotArgs) (chronos.Receipt, error)
	CreateExecutionBatch(ctx context.Context, authority solana.PublicKey, timestamp int64, size uint8) (chronos.Receipt, error)
}

// Store is the indexed snapshot, normally an *indexer.Store.
type Store interface {
	ListOrders(ctx context.Context, filter indexer.OrderFilter) ([]indexer.OrderRecord, int, int, error)
	ListAuctions(ctx context.Context, filter indexer.AuctionFilter) ([]indexer.AuctionRecord, int, int, error)
	ListSlotNFTs(ctx context.Context, filter indexer.SlotNFTFilter) ([]indexer.SlotNFTRecord, int, int, error)
	ListVaults(ctx context.Context, filter indexer.VaultFilter) ([]indexer.VaultRecord, int, int, error)
	ListDepthHistory(ctx context.Context, filter indexer.DepthHistoryFilter) ([]indexer.OrderbookSnapshot, int, int, error)
	SyncState(ctx context.Context) (indexer.SyncState, bool, error)
}

// Deps wires the service. Writer and Signer are both set or both zero; the
// transaction routes answer ReadOnly without them.
type Deps struct {
	Chain     Chain
	Writer    Writer
	Signer    solana.PublicKey
	Store     Store
	Scheduler *scheduler.Scheduler
	Batches   *batch.Coordinator
	Clock     clock.Clock
	Gatherer  prometheus.Gatherer
}

type Service struct {
	cfg       config.APIServerConfig
	logger    *slog.Logger
	chain     Chain
	writer    Writer
	signer    solana.PublicKey
	store     Store
	scheduler *scheduler.Scheduler
	batches   *batch.Coordinator
	clock     clock.Clock
	gatherer  prometheus.Gatherer
	validate  *validator.Validate

	allowAllOrigins  bool
	allowedOriginSet map[string]struct{}

	closers []func() error
}

// New wires the production dependencies: the RPC-backed chronos client,
// the Postgres store, a fresh scheduler and batch coordinator.
func New(cfg config.APIServerConfig, reg *prometheus.Registry, logger *slog.Logger) (*Service, error) {
	m := metrics.New(reg)
	rpc, err := chain.New(cfg.Chain, m, logger)
	if err != nil {
		return nil, fmt.Errorf("init chain client: %w", err)
	}
	store, err := indexer.NewStore(cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	opts := chronos.Options{CacheTTL: cfg.CacheTTL, Metrics: m, Logger: logger}
	signer, canSign := rpc.Signer()
	if canSign {
		opts.Submitter = rpc
	}
	client := chronos.New(rpc, programs.IDs(cfg.Chain.Programs), opts)
	sched := scheduler.New(
		scheduler.WithConfirmDelay(cfg.ConfirmDelay),
		scheduler.WithMetrics(m),
		scheduler.WithLogger(logger),
	)

	deps := Deps{
		Chain:     client,
		Store:     store,
		Scheduler: sched,
		Batches:   batch.New(clock.Real{}, m, logger),
		Gatherer:  reg,
	}
	if canSign {
		deps.Writer = client
		deps.Signer = signer
	}
	svc := NewService(cfg, deps, logger)
	svc.closers = append(svc.closers, store.Close, func() error {
		sched.Close()
		return nil
	})
	return svc, nil
}

func NewService(cfg config.APIServerConfig, deps Deps, logger *slog.Logger) *Service {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.WSPushInterval <= 0 {
		cfg.WSPushInterval = time.Second
	}

	allowAllOrigins := false
	allowedOriginSet := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		switch trimmed {
		case "":
		case "*":
			allowAllOrigins = true
		default:
			allowedOriginSet[trimmed] = struct{}{}
		}
	}
	if len(allowedOriginSet) == 0 {
		allowAllOrigins = true
	}

	return &Service{
		cfg:              cfg,
		logger:           logging.Component(logger, "api"),
		chain:            deps.Chain,
		writer:           deps.Writer,
		signer:           deps.Signer,
		store:            deps.Store,
		scheduler:        deps.Scheduler,
		batches:          deps.Batches,
		clock:            deps.Clock,
		gatherer:         deps.Gatherer,
		validate:         validator.New(),
		allowAllOrigins:  allowAllOrigins,
		allowedOriginSet: allowedOriginSet,
	}
}

// Router registers every route. CORS is applied by Handler.
func (s *Service) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.logRequests)

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/ws", s.handleWebsocket).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/indexer/status", s.handleIndexerStatus).Methods(http.MethodGet)
	api.HandleFunc("/markets/{market}/orderbook", s.handleOrderbook).Methods(http.MethodGet)
	api.HandleFunc("/markets/{market}/depth-history", s.handleDepthHistory).Methods(http.MethodGet)
	api.HandleFunc("/orders", s.handleOrders).Methods(http.MethodGet)
	api.HandleFunc("/auctions", s.handleAuctions).Methods(http.MethodGet)
	api.HandleFunc("/auctions/{address}/price", s.handleAuctionPrice).Methods(http.MethodGet)
	api.HandleFunc("/slots", s.handleSlots).Methods(http.MethodGet)
	api.HandleFunc("/vaults", s.handleVaults).Methods(http.MethodGet)
	api.HandleFunc("/vaults/{wallet}/exists", s.handleVaultExists).Methods(http.MethodGet)
	api.HandleFunc("/vaults/{wallet}/preview", s.handleVaultPreview).Methods(http.MethodGet)
	api.HandleFunc("/vaults/{wallet}/positions", s.handlePositions).Methods(http.MethodGet)
	api.HandleFunc("/markets/{authority}/exists", s.handleMarketExists).Methods(http.MethodGet)
	api.HandleFunc("/stats/{kind}", s.handleStats).Methods(http.MethodGet)

	api.HandleFunc("/reservations", s.handleReserve).Methods(http.MethodPost)
	api.HandleFunc("/reservations/preconfirmation/{tx}", s.handlePreConfirmation).Methods(http.MethodGet)
	api.HandleFunc("/reservations/{id}", s.handleReservationStatus).Methods(http.MethodGet)
	api.HandleFunc("/reservations/{id}", s.handleCancelReservation).Methods(http.MethodDelete)
	api.HandleFunc("/reservations/{id}/execute", s.handleExecute).Methods(http.MethodPost)
	api.HandleFunc("/slot-market/prices", s.handleSlotPrices).Methods(http.MethodGet)
	api.HandleFunc("/network/stats", s.handleNetworkStats).Methods(http.MethodGet)

	api.HandleFunc("/batches", s.handleCreateBatch).Methods(http.MethodPost)
	api.HandleFunc("/batches/{id}", s.handleGetBatch).Methods(http.MethodGet)
	api.HandleFunc("/batches/{id}/execute", s.handleExecuteBatch).Methods(http.MethodPost)
	api.HandleFunc("/batches/{id}/fail", s.handleFailBatch).Methods(http.MethodPost)
	api.HandleFunc("/orchestrator/stats", s.handleOrchestratorStats).Methods(http.MethodGet)

	tx := api.PathPrefix("/tx").Subrouter()
	tx.HandleFunc("/signer", s.handleSigner).Methods(http.MethodGet)
	tx.HandleFunc("/orchestrator", s.handleTxInitializeOrchestrator).Methods(http.MethodPost)
	tx.HandleFunc("/markets", s.handleTxInitializeMarket).Methods(http.MethodPost)
	tx.HandleFunc("/vaults", s.handleTxInitializeVault).Methods(http.MethodPost)
	tx.HandleFunc("/vaults/{wallet}/deposit", s.handleTxDeposit).Methods(http.MethodPost)
	tx.HandleFunc("/vaults/{wallet}/withdraw", s.handleTxWithdraw).Methods(http.MethodPost)
	tx.HandleFunc("/orders", s.handleTxPlaceOrder).Methods(http.MethodPost)
	tx.HandleFunc("/orders/{order}", s.handleTxCancelOrder).Methods(http.MethodDelete)
	tx.HandleFunc("/slots", s.handleTxMintSlot).Methods(http.MethodPost)
	tx.HandleFunc("/auctions", s.handleTxCreateAuction).Methods(http.MethodPost)
	tx.HandleFunc("/auctions/{address}/bid", s.handleTxPlaceBid).Methods(http.MethodPost)
	tx.HandleFunc("/reservations", s.handleTxReserveSlot).Methods(http.MethodPost)
	tx.HandleFunc("/batches", s.handleTxCreateBatch).Methods(http.MethodPost)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.respondMessage(w, http.StatusNotFound, "NotFound", "route not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.respondMessage(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed")
	})
	return router
}

func (s *Service) Handler() http.Handler {
	origins := []string{"*"}
	if !s.allowAllOrigins {
		origins = make([]string, 0, len(s.allowedOriginSet))
		for origin := range s.allowedOriginSet {
			origins = append(origins, origin)
		}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	})
	return c.Handler(s.Router())
}

func (s *Service) Run(ctx context.Context) error {
	defer func() {
		for _, closer := range s.closers {
			if err := closer(); err != nil {
				s.logger.Error("failed to close dependency", "err", err)
			}
		}
	}()

	server := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	s.logger.Info("api-server started",
		"listen_addr", s.cfg.ListenAddr,
		"db_driver", "postgres",
		"allowed_origins", strings.Join(s.cfg.AllowedOrigins, ","),
		"ws_push_interval", s.cfg.WSPushInterval.String(),
	)

	select {
	case <-ctx.Done():
		s.logger.Info("api-server stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown api-server: %w", err)
		}
		return <-errCh
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen and serve: %w", err)
		}
		return nil
	}
}

func (s *Service) isOriginAllowed(origin string) bool {
	if origin == "" || s.allowAllOrigins {
		return true
	}
	_, ok := s.allowedOriginSet[origin]
	return ok
}
