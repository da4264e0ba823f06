package adapthttp

import (
	"net/http"
)

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	from, err := dateQuery(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := dateQuery(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	report, err := s.reports.Build(r.Context(), userFromContext(r).Key(), from, to, s.now())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleChartsDaily(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	days := intQuery(r, "days", 90)
	points, err := s.reports.Daily(r.Context(), userFromContext(r).Key(), days)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"days":  len(points),
		"today": localDayString(s.now()),
		"items": points,
	})
}
