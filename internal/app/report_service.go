package app

import (
	"context"
	"time"

	"bolus/internal/domain"
)

const (
	// WeeklyWindowDays is the span of the rolling mean printed on reports.
	WeeklyWindowDays = 7
	// RecentRows is the number of entries in a report's table.
	RecentRows = 15

	dateLabelLayout = "02/01/2006"
)

// ReportService builds report and chart projections from a user's history.
type ReportService struct {
	repo domain.RecordRepository
	cfg  domain.DosingConfig
	now  func() time.Time
}

// NewReportService creates a ReportService. cfg is echoed on reports.
func NewReportService(repo domain.RecordRepository, cfg domain.DosingConfig) *ReportService {
	return &ReportService{repo: repo, cfg: cfg, now: time.Now}
}

// Report is the projection handed to PDF, chart and share renderers.
type Report struct {
	GeneratedAt time.Time      `json:"generatedAt"`
	RangeLabel  string         `json:"rangeLabel"`
	Entries     []domain.Entry `json:"entries"`
	Summary     domain.Summary `json:"summary"`
	WeeklyMean  float64        `json:"weeklyMean"`
	Weekly      domain.Summary `json:"weekly"`
	Recent      []domain.Entry `json:"recent"`
	Target      float64        `json:"target"`
	Sensitivity float64        `json:"sensitivity"`
}

// Build projects the user's entries between start and end, inclusive by
// calendar date. A zero start or end leaves that side of the range open.
// The weekly figures always cover the seven days before now.
func (s *ReportService) Build(ctx context.Context, userKey string, start, end, now time.Time) (Report, error) {
	all, err := s.repo.Load(ctx, userKey)
	if err != nil {
		return Report{}, err
	}
	all = domain.SortChronological(all)

	entries := all
	if !start.IsZero() || !end.IsZero() {
		from, to := start, end
		if from.IsZero() && len(all) > 0 {
			from = all[0].Timestamp
		}
		if to.IsZero() && len(all) > 0 {
			to = all[len(all)-1].Timestamp
		}
		entries = domain.FilterByDateRange(all, from, to)
	}

	return Report{
		GeneratedAt: now,
		RangeLabel:  rangeLabel(entries, start, end),
		Entries:     entries,
		Summary:     domain.Summarize(entries),
		WeeklyMean:  domain.RollingWindowMean(all, now, WeeklyWindowDays),
		Weekly:      domain.RollingWindow(all, now, WeeklyWindowDays),
		Recent:      domain.Tail(entries, RecentRows),
		Target:      s.cfg.TargetGlucose,
		Sensitivity: s.cfg.SensitivityFactor,
	}, nil
}

// Daily returns per-day mean glucose for the last days days, ending today.
func (s *ReportService) Daily(ctx context.Context, userKey string, days int) ([]domain.DayMean, error) {
	entries, err := s.repo.Load(ctx, userKey)
	if err != nil {
		return nil, err
	}
	return domain.DailyMeans(entries, s.now().In(time.Local), days), nil
}

func rangeLabel(entries []domain.Entry, start, end time.Time) string {
	if start.IsZero() && len(entries) > 0 {
		start = entries[0].Timestamp
	}
	if end.IsZero() && len(entries) > 0 {
		end = entries[len(entries)-1].Timestamp
	}
	if start.IsZero() || end.IsZero() {
		return "no records"
	}
	return start.Format(dateLabelLayout) + " - " + end.Format(dateLabelLayout)
}
