// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/someonegg/activitymatch/api"
)

func doServe(ctx context.Context, e *env) error {
	sc, err := e.cfg.Matching.Build()
	if err != nil {
		return err
	}

	db, closeDB, err := e.openDatabase(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	m, closeMatcher := e.matcher()
	defer closeMatcher()

	h := &api.Handler{Store: db, Scoring: sc, Matcher: m, Log: e.log}
	srv := &http.Server{
		Addr:         e.cfg.Server.Addr,
		Handler:      h.Router(),
		ReadTimeout:  e.cfg.Server.ReadTimeout,
		WriteTimeout: e.cfg.Server.WriteTimeout,
		IdleTimeout:  e.cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		e.log.WithField("addr", srv.Addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	e.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	e.log.Info("server stopped")
	return nil
}
