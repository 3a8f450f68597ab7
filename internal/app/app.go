package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/drstein77/luxestore/internal/cart"
	"github.com/drstein77/luxestore/internal/catalog"
	"github.com/drstein77/luxestore/internal/chat"
	"github.com/drstein77/luxestore/internal/config"
	"github.com/drstein77/luxestore/internal/controllers"
	"github.com/drstein77/luxestore/internal/dbkeeper"
	"github.com/drstein77/luxestore/internal/logger"
	"github.com/drstein77/luxestore/internal/middleware"
	"github.com/drstein77/luxestore/internal/storage"
	"github.com/go-chi/chi"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const readHeaderTimeout = 5 * time.Second

type Server struct {
	Log *logger.Logger

	ctx           context.Context
	srv           *http.Server
	storage       *storage.MemoryStorage
	flushInterval time.Duration

	stop context.CancelFunc
	done chan struct{}
}

// NewServer creates a new Server instance from command line flags and environment
func NewServer(ctx context.Context) *Server {
	// create and initialize a new option instance
	option := config.NewOptions()
	option.ParseFlags()

	// get a new logger
	nLogger, err := logger.NewLogger(option.LogLevel())
	if err != nil {
		log.Fatalln(err)
	}

	server, err := newServer(ctx, option, nLogger)
	if err != nil {
		nLogger.Error("cannot start storefront", zap.Error(err))
		log.Fatalln(err)
	}
	return server
}

func newServer(ctx context.Context, option *config.Options, nLogger *logger.Logger) (*Server, error) {
	cat, err := openCatalog(option.CatalogFile())
	if err != nil {
		return nil, err
	}
	nLogger.Info("catalog loaded", zap.Int("products", cat.Len()))

	policy := cart.ShippingPolicy{
		Threshold: option.FreeShippingThreshold(),
		Fee:       option.ShippingFee(),
	}

	// a nil *DBKeeper must not end up inside the Keeper interface
	var keeper storage.Keeper
	if kp := dbkeeper.NewDBKeeper(ctx, option.DataBaseDSN, nLogger); kp != nil {
		keeper = kp
	}

	store := storage.NewMemoryStorage(ctx, storage.Config{
		Catalog:    cat,
		Responder:  chat.NewResponder(cat, policy, option.RandomSeed()),
		Policy:     policy,
		SessionTTL: option.SessionTTL(),
	}, keeper, nLogger)

	basecontr := controllers.NewBaseController(store, nLogger)

	// create router and mount routes
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(nLogger))
	r.Use(middleware.SecureHeaders)
	r.Mount("/", basecontr.Route())

	runCtx, stop := context.WithCancel(ctx)

	return &Server{
		Log: nLogger,
		ctx: runCtx,
		srv: &http.Server{
			Addr:              option.RunAddr(),
			Handler:           r,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		storage:       store,
		flushInterval: option.FlushInterval(),
		stop:          stop,
		done:          make(chan struct{}),
	}, nil
}

func openCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Open(path)
}

// Serve runs the HTTP server and the cart flush loop until Shutdown is called
// or either of them fails.
func (server *Server) Serve() error {
	defer close(server.done)

	g, ctx := errgroup.WithContext(server.ctx)

	g.Go(func() error {
		server.Log.Info("storefront listening", zap.String("addr", server.srv.Addr))
		if err := server.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return server.storage.Run(ctx, server.flushInterval)
	})

	// stop listening once the group is cancelled from any side
	g.Go(func() error {
		<-ctx.Done()
		return server.srv.Close()
	})

	err := g.Wait()
	server.storage.Close()
	_ = server.Log.Sync()
	return err
}

// Shutdown stops accepting requests, waits for in-flight ones and for the final
// cart flush, within timeout.
func (server *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := server.srv.Shutdown(ctx)
	server.stop()

	select {
	case <-server.done:
	case <-ctx.Done():
		err = multierr.Append(err, fmt.Errorf("waiting for cart flush: %w", ctx.Err()))
	}
	return err
}
