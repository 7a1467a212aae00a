package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"admission-gateway/middleware/admission"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		// SilenceErrors and SilenceUsage keep cobra from printing either;
		// the panic reports the error.
		panic(err)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "gateway",
		Short:         "Reverse proxy gateway with connection and long-task admission control",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	bindFlags(cmd, v)
	return cmd
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	var flags *pflag.FlagSet = cmd.Flags()

	flags.String("listen-addr", ":8080", "address to listen on")
	flags.String("upstream-url", "", "upstream URL the proxy forwards to (required)")

	flags.Int("maximum-connections", 1, "capacity of the connection-admission pool")
	flags.Int("maximum-long-tasks", 10, "capacity of the long-task pool (<= 0 disables long-task promotion)")
	flags.Duration("start-delay", 100*time.Millisecond, "default delay before a promotion takes effect")

	_ = v.BindPFlags(flags)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

type config struct {
	listenAddr  string
	upstreamURL string

	maximumConnections int
	maximumLongTasks   int
	startDelay         time.Duration
}

func loadConfig(v *viper.Viper) (config, error) {
	cfg := config{
		listenAddr:  v.GetString("listen-addr"),
		upstreamURL: v.GetString("upstream-url"),

		maximumConnections: v.GetInt("maximum-connections"),
		maximumLongTasks:   v.GetInt("maximum-long-tasks"),
		startDelay:         v.GetDuration("start-delay"),
	}

	if cfg.upstreamURL == "" {
		return config{}, errors.New("upstream-url is required")
	}
	if cfg.maximumConnections < 1 {
		return config{}, errors.New("maximum-connections must be >= 1")
	}
	return cfg, nil
}

func run(cfg config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		return errors.New("invalid upstream-url: " + err.Error())
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("proxy error", zap.Error(err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	controller := admission.New(admission.Config{
		MaximumConnections: cfg.maximumConnections,
		MaximumLongTasks:   cfg.maximumLongTasks,
		StartDelay:         cfg.startDelay,
	}, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/admission", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(controller.Statistics())
	})
	mux.Handle("/", controller.Middleware()(proxy))

	listener, err := net.Listen("tcp", cfg.listenAddr)
	if err != nil {
		return err
	}
	gatedListener := controller.Gate(listener)

	srv := &http.Server{
		Handler:           mux,
		ConnContext:       admission.ConnContext,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown error", zap.Error(err))
		}
	}()

	logger.Info("gateway listening",
		zap.String("addr", cfg.listenAddr),
		zap.String("upstream", target.String()),
		zap.Int("maximumConnections", cfg.maximumConnections),
		zap.Int("maximumLongTasks", cfg.maximumLongTasks),
		zap.Duration("startDelay", cfg.startDelay),
	)

	serveErr := srv.Serve(gatedListener)
	if errors.Is(serveErr, http.ErrServerClosed) {
		serveErr = nil
	}

	// srv.Shutdown already closes gatedListener on the graceful path; this
	// catches the case where Serve returned on its own (e.g. a listener
	// error) before Shutdown ran, so the accept-gate's pool is never left
	// holding a listener nobody will close.
	closeErr := gatedListener.Close()
	if errors.Is(closeErr, net.ErrClosed) {
		closeErr = nil
	}
	return multierr.Combine(serveErr, closeErr)
}
