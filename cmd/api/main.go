package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcclellann/carlot/pkg/config"
	"github.com/mcclellann/carlot/pkg/ledger"
	"github.com/mcclellann/carlot/pkg/store"
	"github.com/mcclellann/carlot/pkg/tracing"
	"github.com/shopspring/decimal"
)

// Server holds the ledger instance.
type Server struct {
	ledger         *ledger.Ledger
	storage        store.Storage // Keep a reference to the storage to close it
	vatPercent     decimal.Decimal
	allowedOrigins []string
	infoLog        *log.Logger
	errorLog       *log.Logger
}

func NewServer(s store.Storage, cfg *config.Config, infoLog, errorLog *log.Logger) *Server {
	return &Server{
		ledger: ledger.NewLedger(s, ledger.Options{
			VATPercent: cfg.VATPercent,
			LateFee:    cfg.LateFee,
			GraceDays:  cfg.LateFeeGraceDays,
		}),
		storage:        s,
		vatPercent:     cfg.VATPercent,
		allowedOrigins: cfg.AllowedOrigins,
		infoLog:        infoLog,
		errorLog:       errorLog,
	}
}

// runBatch assesses late fees every interval until ctx is done.
func (s *Server) runBatch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.infoLog.Println("Batch processing disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.infoLog.Println("Running late fee assessment...")
			charged, err := s.ledger.AssessLateFees(ctx, now.UTC())
			if err != nil {
				s.errorLog.Printf("Late fee assessment failed: %v", err)
				continue
			}
			s.infoLog.Printf("Late fee assessment complete, %d month(s) charged.", charged)
		}
	}
}

func main() {
	infoLog := log.New(os.Stdout, "INFO\t", log.Ldate|log.Ltime)
	errorLog := log.New(os.Stderr, "ERROR\t", log.Ldate|log.Ltime|log.Lshortfile)

	cfg, err := config.LoadConfig()
	if err != nil {
		errorLog.Fatalf("Failed to load config: %v", err)
	}

	shutdownTracing, err := tracing.Init(cfg.OTELServiceName, cfg.OTELEndpoint)
	if err != nil {
		errorLog.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	sqlStore, err := store.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		errorLog.Fatalf("Failed to initialize %s store: %v", cfg.DBDriver, err)
	}
	defer sqlStore.Close()

	var storage store.Storage = sqlStore
	if cfg.CacheEnabled {
		storage = store.NewCachedStorage(sqlStore)
	}

	server := NewServer(storage, cfg, infoLog, errorLog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start a goroutine for periodic batch processing
	go server.runBatch(ctx, cfg.BatchInterval)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		ErrorLog:     errorLog,
		Handler:      server.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errorLog.Printf("Server shutdown failed: %v", err)
		}
	}()

	infoLog.Printf("Starting server on %s", cfg.Addr())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errorLog.Fatal(err)
	}
	infoLog.Println("Server stopped")
}
