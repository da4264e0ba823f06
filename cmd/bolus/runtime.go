package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bolus/internal/adapter/csvfile"
	"bolus/internal/adapter/memory"
	"bolus/internal/adapter/postgres"
	"bolus/internal/app"
	"bolus/internal/config"
	"bolus/internal/domain"
)

// runtime holds the configured stores and services for one command.
type runtime struct {
	cfg      config.Config
	log      *logrus.Logger
	records  domain.RecordRepository
	users    domain.UserRepository
	sessions domain.SessionRepository
	close    func() error

	history *app.HistoryService
	dose    *app.DoseService
	reports *app.ReportService
}

func openRuntime(cmd *cobra.Command) (*runtime, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, log: cfg.NewLogger(), close: func() error { return nil }}

	switch cfg.Store.Driver {
	case config.DriverPostgres:
		db, err := postgres.Open(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
		rt.records, rt.users, rt.sessions = db, db, postgres.NewSessionRepo(db)
		rt.close = db.Close
	case config.DriverCSV:
		store, err := csvfile.New(cfg.Store.DataDir)
		if err != nil {
			return nil, err
		}
		// Accounts are not persisted by the file store.
		mem := memory.New()
		rt.records, rt.users, rt.sessions = store, mem, mem.NewSessionRepo()
	default:
		mem := memory.New()
		rt.records, rt.users, rt.sessions = mem, mem, mem.NewSessionRepo()
	}

	rt.history = app.NewHistoryService(rt.records, rt.log)
	rt.dose = app.NewDoseService(cfg.DosingConfig(), rt.history, rt.log)
	rt.reports = app.NewReportService(rt.records, cfg.DosingConfig())

	rt.log.WithFields(logrus.Fields{
		"driver": cfg.Store.Driver,
		"target": cfg.Dosing.TargetGlucose,
		"isf":    cfg.Dosing.SensitivityFactor,
	}).Debug("runtime ready")
	return rt, nil
}

// userKey is the normalized --user flag.
func userKey(cmd *cobra.Command) (string, error) {
	name, _ := cmd.Flags().GetString("user")
	key := domain.NormalizeUserKey(name)
	if key == "" {
		return "", fmt.Errorf("%w: --user is empty", domain.ErrInvalidInput)
	}
	return key, nil
}
