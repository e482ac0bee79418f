package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"

	"github.com/blndgs/oprules/api"
)

const shutdownTimeout = 10 * time.Second

var ServeCmd = cli.Command{
	Action: doServe,
	Name:   "serve",
	Usage:  "Serve the validation API over HTTP",
	Flags: []cli.Flag{
		AddrFlag,
	},
}

func doServe(c *cli.Context) error {
	cfg, err := ConfigFlag.Fetch(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	rules, err := cfg.ValidationRules()
	if err != nil {
		return err
	}
	stakePolicy, err := cfg.StakePolicy()
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router, err := api.NewRouter(api.NewHandler(rules, stakePolicy, cfg.Server.MaxBodyBytes, logger, cfg.ValidatorOptions()...))
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         AddrFlag.Fetch(c, cfg),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("serving validation api")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
