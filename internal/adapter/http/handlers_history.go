package adapthttp

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bolus/internal/adapter/csvfile"
	"bolus/internal/app"
	"bolus/internal/domain"
)

const maxBackupBytes = 10 << 20

// entryBody is an entry as posted by clients; the timestamp accepts every
// layout domain.ParseTimestamp does.
type entryBody struct {
	Timestamp string  `json:"timestamp"`
	Glucose   float64 `json:"glucose"`
	Carbs     float64 `json:"carbs"`
	CarbRatio int     `json:"carbRatio"`
	Dose      int     `json:"dose"`
}

func (b entryBody) entry() (domain.Entry, error) {
	ts, err := domain.ParseTimestamp(b.Timestamp)
	if err != nil {
		return domain.Entry{}, err
	}
	e := domain.Entry{Timestamp: ts, Glucose: b.Glucose, Carbs: b.Carbs, CarbRatio: b.CarbRatio, Dose: b.Dose}
	return e, e.Validate()
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := userFromContext(r).Key()

	switch r.Method {
	case http.MethodGet:
		items, err := s.history.List(ctx, key)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		if limit := intQuery(r, "limit", 0); limit > 0 {
			items = domain.Tail(items, limit)
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})

	case http.MethodPost:
		var body entryBody
		if err := parseJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		e, err := body.entry()
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		var items []domain.Entry
		added := true
		if r.URL.Query().Get("once") == "true" {
			items, added, err = s.history.RecordOnce(ctx, key, e)
		} else {
			items, err = s.history.Record(ctx, key, e)
		}
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entry": e, "added": added, "count": len(items)})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleHistoryDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Timestamps []string    `json:"timestamps"`
		Rows       []entryBody `json:"rows"`
	}
	if err := parseJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sel, err := selectorFor(body.Timestamps, body.Rows)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	removed, err := s.history.Delete(r.Context(), userFromContext(r).Key(), sel)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func selectorFor(timestamps []string, rows []entryBody) (domain.Selector, error) {
	switch {
	case len(timestamps) > 0 && len(rows) > 0:
		return domain.Selector{}, fmt.Errorf("%w: give timestamps or rows, not both", domain.ErrInvalidInput)
	case len(timestamps) > 0:
		ts := make([]time.Time, 0, len(timestamps))
		for _, v := range timestamps {
			t, err := domain.ParseTimestamp(v)
			if err != nil {
				return domain.Selector{}, err
			}
			ts = append(ts, t)
		}
		return domain.ByTimestamp(ts...), nil
	case len(rows) > 0:
		entries := make([]domain.Entry, 0, len(rows))
		for _, b := range rows {
			e, err := b.entry()
			if err != nil {
				return domain.Selector{}, err
			}
			entries = append(entries, e)
		}
		return domain.ByRow(entries...), nil
	default:
		return domain.Selector{}, fmt.Errorf("%w: nothing selected", domain.ErrInvalidInput)
	}
}

func (s *Server) handleHistoryExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user := userFromContext(r)
	entries, err := s.history.Export(r.Context(), user.Key())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	name := fmt.Sprintf("bolus-%s-%s.csv", user.Key(), localDayString(s.now()))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := csvfile.WriteEntries(w, entries); err != nil {
		s.log.WithError(err).Error("export")
	}
}

// handleHistoryRestore accepts a CSV backup as a multipart "file" field or
// as the raw request body. mode=import adds rows instead of overwriting.
func (s *Server) handleHistoryRestore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBackupBytes)

	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		f, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %w", domain.ErrMalformedBackup, err))
			return
		}
		defer f.Close() //nolint:errcheck
		src = f
	}

	rows, err := csvfile.ReadRows(src)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	key := userFromContext(r).Key()
	var report app.RestoreReport
	if r.URL.Query().Get("mode") == "import" {
		report, err = s.history.ImportBackup(r.Context(), key, rows)
	} else {
		report, err = s.history.MergeBackup(r.Context(), key, rows)
	}
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{"error": err.Error(), "report": report})
		return
	}
	writeJSON(w, http.StatusOK, report)
}
