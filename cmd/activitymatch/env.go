// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/someonegg/activitymatch/config"
	"github.com/someonegg/activitymatch/notify"
	"github.com/someonegg/activitymatch/period"
	"github.com/someonegg/activitymatch/pgstore"
	"github.com/someonegg/activitymatch/runlock"
	"github.com/someonegg/activitymatch/sqlitestore"
	"github.com/urfave/cli/v2"
)

type env struct {
	cfg *config.Config
	log *logrus.Logger
}

func setup(ctx *cli.Context) (*env, error) {
	v, err := config.LoadConfig(ctx.String("config"))
	if err != nil {
		return nil, err
	}
	cfg, err := config.ParseConfig(v)
	if err != nil {
		return nil, err
	}
	log, err := cfg.Log.Logger()
	if err != nil {
		return nil, err
	}
	log.WithField("driver", cfg.Database.Driver).Debug("config loaded")
	return &env{cfg: cfg, log: log}, nil
}

// database is the store both drivers implement.
type database interface {
	period.Store
	Migrate(ctx context.Context) error
	Import(ctx context.Context, snap *period.Snapshot) error
	Export(ctx context.Context, periodID string) (*period.Snapshot, error)
}

func (e *env) openDatabase(ctx context.Context) (database, func(), error) {
	switch e.cfg.Database.Driver {
	case config.DriverPostgres:
		pool, err := pgstore.Connect(ctx, e.cfg.Database.Postgres, e.log)
		if err != nil {
			return nil, nil, err
		}
		return pgstore.New(pool), pool.Close, nil

	case config.DriverSQLite:
		db, err := sqlitestore.Open(e.cfg.Database.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		closer := func() {
			if err := db.Close(); err != nil {
				e.log.WithError(err).Warn("close database")
			}
		}
		return sqlitestore.New(db), closer, nil
	}
	return nil, nil, fmt.Errorf("unknown database driver %q", e.cfg.Database.Driver)
}

// matcher wires the run lock and the notification of the config.
func (e *env) matcher() (period.Matcher, func()) {
	m := period.Matcher{Log: e.log}
	var closers []func()

	if e.cfg.Redis.Enabled {
		client := runlock.NewClient(e.cfg.Redis.Lock)
		m.Lock = runlock.New(client, e.cfg.Redis.Lock.TTL)
		closers = append(closers, func() {
			if err := client.Close(); err != nil {
				e.log.WithError(err).Warn("close redis")
			}
		})
	}

	if e.cfg.Kafka.Enabled {
		pub := notify.NewKafkaPublisher(e.cfg.Kafka, e.log)
		m.Notify = pub
		closers = append(closers, func() {
			if err := pub.Close(); err != nil {
				e.log.WithError(err).Warn("close kafka publisher")
			}
		})
	} else {
		m.Notify = notify.LogPublisher{Log: e.log}
	}

	return m, func() {
		for _, c := range closers {
			c()
		}
	}
}
