package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/middleware/admission"

	"go.uber.org/zap"
)

// This binary shows the admission controller wired directly into a plain
// net/http server (no reverse proxy): / behaves like CPU-bound work and
// serializes on the connection slot, while /io promotes itself to a long
// task before simulating an upstream wait, freeing its connection slot for
// the next accept.
func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	controller := admission.New(admission.Config{
		MaximumConnections: 1,
		MaximumLongTasks:   10,
		StartDelay:         100 * time.Millisecond,
	}, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond) // pretend CPU work
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/io", func(w http.ResponseWriter, r *http.Request) {
		if lt, ok := admission.CurrentLongTask(r.Context()); ok {
			lt.Start(0) // promote before the simulated upstream wait
		}
		time.Sleep(50 * time.Millisecond) // pretend upstream I/O
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/debug/admission", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(controller.Statistics())
	})

	h := controller.Middleware()(http.Handler(mux))

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}
	gatedListener := controller.Gate(listener)

	srv := &http.Server{
		Handler:           h,
		ConnContext:       admission.ConnContext,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", zap.String("addr", addr))
	if err := srv.Serve(gatedListener); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
