package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gobwas/ws"
	"go.uber.org/zap"

	"github.com/redis-developer/redis-stack-stocks/cmd/simulator/internal/simulator"
	"github.com/redis-developer/redis-stack-stocks/pkg/config"
)

func main() {
	addr := flag.String("addr", ":9090", "listen address for the synthetic feed")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.App, cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	rnd := simulator.RealRand{Rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
	sim := simulator.New(logger, simulator.RealClock{}, rnd)

	ctx, cancel := context.WithCancel(context.Background())
	go sim.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		go sim.HandleConn(conn)
	})

	srv := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		logger.Info("Simulator started", zap.String("addr", *addr))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	cancel()
	srv.Shutdown(context.Background())
	logger.Info("Shutdown Complete")
}
