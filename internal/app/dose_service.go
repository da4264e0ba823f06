package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"bolus/internal/domain"
	"bolus/internal/metrics"
)

// DoseService runs the dose calculator and optionally records the result.
type DoseService struct {
	cfg     domain.DosingConfig
	history *HistoryService
	log     logrus.FieldLogger
	now     func() time.Time
}

// NewDoseService creates a DoseService. history may be nil when results are
// never saved.
func NewDoseService(cfg domain.DosingConfig, history *HistoryService, log logrus.FieldLogger) *DoseService {
	return &DoseService{cfg: cfg, history: history, log: log, now: time.Now}
}

// Config returns the deployment dosing constants.
func (s *DoseService) Config() domain.DosingConfig {
	return s.cfg
}

// Calculation is a computed dose together with the entry it would record.
type Calculation struct {
	Breakdown domain.DoseBreakdown `json:"breakdown"`
	Entry     domain.Entry         `json:"entry"`
	Saved     bool                 `json:"saved"`
}

// Calculate computes a dose. The entry is stamped according to mode.
func (s *DoseService) Calculate(glucose, carbs float64, carbRatio int, mode domain.TimestampMode) (Calculation, error) {
	b, err := s.cfg.Compute(glucose, carbs, carbRatio)
	if err != nil {
		return Calculation{}, err
	}
	metrics.RecordDose(string(b.Advisory))
	if !b.Administrable() {
		s.log.WithFields(logrus.Fields{"glucose": glucose, "dose": b.RoundedDose}).
			Warn("hypoglycemic reading; dose withheld")
	}
	at := domain.CanonicalTime(mode.Resolve(s.now()))
	return Calculation{
		Breakdown: b,
		Entry:     domain.NewEntry(at, glucose, carbs, carbRatio, b),
	}, nil
}

// CalculateAndRecord computes a dose and appends the resulting entry to the
// user's history. Hypoglycemic results are recorded too, for audit.
func (s *DoseService) CalculateAndRecord(ctx context.Context, userKey string, glucose, carbs float64, carbRatio int, mode domain.TimestampMode) (Calculation, error) {
	c, err := s.Calculate(glucose, carbs, carbRatio, mode)
	if err != nil {
		return Calculation{}, err
	}
	if _, err := s.history.Record(ctx, userKey, c.Entry); err != nil {
		return c, err
	}
	c.Saved = true
	return c, nil
}
