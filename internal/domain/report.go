package domain

import "time"

// MaxTrendDays caps the length of a daily trend series.
const MaxTrendDays = 366

// Summary is the statistics block handed to report collaborators.
// MeanGlucose is nil when there is no data; it is never reported as zero.
type Summary struct {
	MeanGlucose *float64 `json:"meanGlucose"`
	TotalDose   int      `json:"totalDose"`
	Count       int      `json:"count"`
}

// HasData reports whether the summary covers at least one entry.
func (s Summary) HasData() bool {
	return s.Count > 0
}

// DayMean is one point of a daily trend series.
type DayMean struct {
	Day         string   `json:"day"`
	MeanGlucose *float64 `json:"meanGlucose"`
	Count       int      `json:"count"`
}

// FilterByDateRange returns the entries whose calendar date lies within
// [start, end], inclusive on both ends. Only the date part of each value is
// compared.
func FilterByDateRange(entries []Entry, start, end time.Time) []Entry {
	from, to := dateOf(start), dateOf(end)
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		d := dateOf(e.Timestamp)
		if d.Before(from) || d.After(to) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Summarize computes mean glucose, total dose and count.
func Summarize(entries []Entry) Summary {
	s := Summary{Count: len(entries)}
	if s.Count == 0 {
		return s
	}
	var sum float64
	for _, e := range entries {
		sum += e.Glucose
		s.TotalDose += e.Dose
	}
	mean := sum / float64(s.Count)
	s.MeanGlucose = &mean
	return s
}

// RollingWindow summarizes the entries with timestamp >= now - days.
func RollingWindow(entries []Entry, now time.Time, days int) Summary {
	cutoff := now.AddDate(0, 0, -days)
	in := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !e.Timestamp.Before(cutoff) {
			in = append(in, e)
		}
	}
	return Summarize(in)
}

// RollingWindowMean is the mean glucose of RollingWindow. An empty window
// yields 0, which the weekly report line has always printed.
func RollingWindowMean(entries []Entry, now time.Time, days int) float64 {
	s := RollingWindow(entries, now, days)
	if s.MeanGlucose == nil {
		return 0
	}
	return *s.MeanGlucose
}

// DailyMeans returns one point per calendar day for the last days days,
// oldest first, ending on the date of now.
func DailyMeans(entries []Entry, now time.Time, days int) []DayMean {
	if days > MaxTrendDays {
		days = MaxTrendDays
	}
	if days <= 0 {
		return []DayMean{}
	}
	byDay := make(map[string][]Entry)
	for _, e := range entries {
		key := e.Timestamp.Format("2006-01-02")
		byDay[key] = append(byDay[key], e)
	}

	points := make([]DayMean, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i).Format("2006-01-02")
		s := Summarize(byDay[day])
		points = append(points, DayMean{Day: day, MeanGlucose: s.MeanGlucose, Count: s.Count})
	}
	return points
}

// Tail returns the last n entries in chronological order.
func Tail(entries []Entry, n int) []Entry {
	sorted := SortChronological(entries)
	if n >= 0 && len(sorted) > n {
		sorted = sorted[len(sorted)-n:]
	}
	return sorted
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
