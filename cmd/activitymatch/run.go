// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/someonegg/activitymatch/period"
)

func doMigrate(ctx context.Context, e *env) error {
	db, closeDB, err := e.openDatabase(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate failed: %w", err)
	}
	e.log.Info("schema up to date")
	return nil
}

func doImport(ctx context.Context, e *env, snapFile string) error {
	snap, err := period.LoadSnapshot(snapFile)
	if err != nil {
		return fmt.Errorf("load snapshot file failed: %w", err)
	}

	db, closeDB, err := e.openDatabase(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := db.Import(ctx, snap); err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	e.log.WithFields(logrus.Fields{
		"periods":   len(snap.Periods),
		"occasions": len(snap.Occasions),
		"attendees": len(snap.Attendees),
		"bookings":  len(snap.Bookings),
	}).Info("snapshot imported")
	return nil
}

func doExport(ctx context.Context, e *env, periodID, outFile string) error {
	db, closeDB, err := e.openDatabase(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	snap, err := db.Export(ctx, periodID)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if err := period.WriteJSON(outFile, snap); err != nil {
		return fmt.Errorf("write snapshot file failed: %w", err)
	}
	return nil
}

func doRun(ctx context.Context, e *env, periodID string, dryRun bool, outFile string) error {
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
	m.DryRun = dryRun

	summ, err := m.DeferredAcceptanceFromDatabase(ctx, db, periodID, sc)
	if err != nil {
		return fmt.Errorf("match period %s failed: %w", periodID, err)
	}

	if outFile == "" {
		fmt.Printf("accepted=%d denied=%d below_minimum=%v dry_run=%v\n",
			summ.Accepted, summ.Denied, summ.OccasionsBelowMinimum, summ.DryRun)
		return nil
	}
	if err := period.WriteJSON(outFile, summ); err != nil {
		return fmt.Errorf("write summary file failed: %w", err)
	}
	return nil
}

// doSimulate runs on an in-memory copy of a snapshot file. The run lock and
// the notification are not used.
func doSimulate(ctx context.Context, e *env, snapFile, periodID, outFile, resultFile string) error {
	sc, err := e.cfg.Matching.Build()
	if err != nil {
		return err
	}

	snap, err := period.LoadSnapshot(snapFile)
	if err != nil {
		return fmt.Errorf("load snapshot file failed: %w", err)
	}
	store := period.NewMemoryStore(snap)

	m := period.Matcher{Log: e.log}
	summ, err := m.DeferredAcceptanceFromDatabase(ctx, store, periodID, sc)
	if err != nil {
		return fmt.Errorf("match period %s failed: %w", periodID, err)
	}

	if err := period.WriteJSON(outFile, summ); err != nil {
		return fmt.Errorf("write summary file failed: %w", err)
	}
	if resultFile != "" {
		if err := period.WriteJSON(resultFile, store.Snapshot()); err != nil {
			return fmt.Errorf("write result file failed: %w", err)
		}
	}
	return nil
}
