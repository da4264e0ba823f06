package adapthttp

import (
	"fmt"
	"net/http"
	"strings"

	"bolus/internal/app"
	"bolus/internal/domain"
)

const hypoglycemiaAdvice = "Glucose below 70 mg/dL: treat the hypoglycemia with fast-acting carbohydrate. Do not inject insulin."

type doseRequest struct {
	Glucose   *float64 `json:"glucose"`
	Carbs     *float64 `json:"carbs"`
	CarbRatio *int     `json:"carbRatio"`
	Timestamp string   `json:"timestamp"`
	Save      bool     `json:"save"`
}

func (req doseRequest) mode() (domain.TimestampMode, error) {
	if strings.TrimSpace(req.Timestamp) == "" {
		return domain.AutoTimestamp(), nil
	}
	ts, err := domain.ParseTimestamp(req.Timestamp)
	if err != nil {
		return domain.TimestampMode{}, err
	}
	return domain.EditingTimestamp(ts), nil
}

func (s *Server) handleDoseCalculate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req doseRequest
	if err := parseJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Glucose == nil || req.CarbRatio == nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: glucose and carbRatio are required", domain.ErrInvalidInput))
		return
	}
	var carbs float64
	if req.Carbs != nil {
		carbs = *req.Carbs
	}
	mode, err := req.mode()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var c app.Calculation
	if req.Save || r.URL.Query().Get("save") == "true" {
		c, err = s.dose.CalculateAndRecord(r.Context(), userFromContext(r).Key(), *req.Glucose, carbs, *req.CarbRatio, mode)
	} else {
		c, err = s.dose.Calculate(*req.Glucose, carbs, *req.CarbRatio, mode)
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	resp := map[string]any{
		"breakdown":     c.Breakdown,
		"entry":         c.Entry,
		"saved":         c.Saved,
		"administrable": c.Breakdown.Administrable(),
	}
	if !c.Breakdown.Administrable() {
		resp["advice"] = hypoglycemiaAdvice
	}
	writeJSON(w, http.StatusOK, resp)
}
