package adapthttp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"bolus/internal/adapter/csvfile"
	adapthttp "bolus/internal/adapter/http"
	"bolus/internal/adapter/memory"
	"bolus/internal/app"
	"bolus/internal/domain"
)

// ---------------------------------------------------------------------------
// Test-server helpers
// ---------------------------------------------------------------------------

type failingRepo struct{}

func (failingRepo) Load(context.Context, string) ([]domain.Entry, error) {
	return nil, domain.ErrStoreIO
}

func (failingRepo) Append(context.Context, string, domain.Entry) ([]domain.Entry, error) {
	return nil, domain.ErrStoreIO
}

func (failingRepo) ReplaceAll(context.Context, string, []domain.Entry) error {
	return domain.ErrStoreIO
}

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newServer(t *testing.T, db *memory.DB, records domain.RecordRepository) *adapthttp.Server {
	t.Helper()

	log := quiet()
	cfg := domain.DefaultDosingConfig()
	hs := app.NewHistoryService(records, log)
	ds := app.NewDoseService(cfg, hs, log)
	rs := app.NewReportService(records, cfg)
	as := app.NewAuthService(db, db.NewSessionRepo(), log)

	webDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(webDir, "index.html"), []byte("<html></html>"), 0o600); err != nil {
		t.Fatal(err)
	}
	return adapthttp.New(ds, hs, rs, as, webDir, log)
}

func newTestServer(t *testing.T, records domain.RecordRepository) (*httptest.Server, *memory.DB) {
	t.Helper()
	db := memory.New()
	if records == nil {
		records = db
	}
	ts := httptest.NewServer(newServer(t, db, records).WithoutAuth().Handler())
	t.Cleanup(ts.Close)
	return ts, db
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return m
}

func seed(t *testing.T, db *memory.DB, entries ...domain.Entry) {
	t.Helper()
	if err := db.ReplaceAll(context.Background(), adapthttp.LocalUser, entries); err != nil {
		t.Fatal(err)
	}
}

func entryAt(day, hour int, glucose float64, dose int) domain.Entry {
	return domain.Entry{
		Timestamp: time.Date(2026, time.March, day, hour, 0, 0, 0, time.Local),
		Glucose:   glucose,
		Carbs:     30,
		CarbRatio: 10,
		Dose:      dose,
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp := get(t, ts.URL+"/api/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["ok"] != true {
		t.Fatalf("expected ok=true, got %v", body["ok"])
	}
}

func TestDoseCalculate(t *testing.T) {
	tests := []struct {
		name       string
		payload    map[string]any
		wantStatus int
		wantDose   float64
		wantAdmin  bool
	}{
		{"correction and meal", map[string]any{"glucose": 180, "carbs": 60, "carbRatio": 10}, http.StatusOK, 8, true},
		{"carbs omitted", map[string]any{"glucose": 100, "carbRatio": 10}, http.StatusOK, 0, true},
		{"hypoglycemia", map[string]any{"glucose": 65, "carbs": 30, "carbRatio": 10}, http.StatusOK, 3, false},
		{"ratio zero", map[string]any{"glucose": 150, "carbs": 45, "carbRatio": 0}, http.StatusBadRequest, 0, false},
		{"ratio above range", map[string]any{"glucose": 150, "carbs": 45, "carbRatio": 25}, http.StatusBadRequest, 0, false},
		{"glucose missing", map[string]any{"carbs": 45, "carbRatio": 10}, http.StatusBadRequest, 0, false},
		{"negative carbs", map[string]any{"glucose": 150, "carbs": -1, "carbRatio": 10}, http.StatusBadRequest, 0, false},
		{"unknown field", map[string]any{"glucose": 150, "carbRatio": 10, "icr": 10}, http.StatusBadRequest, 0, false},
	}

	ts, db := newTestServer(t, nil)

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/api/dose/calculate", tc.payload)
			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, resp.StatusCode)
			}
			if tc.wantStatus != http.StatusOK {
				return
			}
			body := decodeBody(t, resp)
			breakdown := body["breakdown"].(map[string]any)
			if breakdown["roundedDose"] != tc.wantDose {
				t.Errorf("expected dose %v, got %v", tc.wantDose, breakdown["roundedDose"])
			}
			if body["administrable"] != tc.wantAdmin {
				t.Errorf("expected administrable=%v, got %v", tc.wantAdmin, body["administrable"])
			}
			if _, ok := body["advice"]; ok == tc.wantAdmin {
				t.Errorf("advice presence should be %v", !tc.wantAdmin)
			}
			if body["saved"] != false {
				t.Error("unsaved calculation reported as saved")
			}
		})
	}

	stored, _ := db.Load(context.Background(), adapthttp.LocalUser)
	if len(stored) != 0 {
		t.Fatalf("calculations without save must not be recorded, got %d", len(stored))
	}
}

func TestDoseCalculate_Save(t *testing.T) {
	ts, db := newTestServer(t, nil)

	resp := postJSON(t, ts.URL+"/api/dose/calculate", map[string]any{
		"glucose": 150, "carbs": 45, "carbRatio": 10, "timestamp": "01/03/2026 08:15", "save": true,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["saved"] != true {
		t.Fatalf("expected saved=true, got %v", body["saved"])
	}

	stored, _ := db.Load(context.Background(), adapthttp.LocalUser)
	if len(stored) != 1 {
		t.Fatalf("expected 1 stored entry, got %d", len(stored))
	}
	want := time.Date(2026, time.March, 1, 8, 15, 0, 0, time.Local)
	if !stored[0].Timestamp.Equal(want) || stored[0].Dose != 6 {
		t.Fatalf("unexpected stored entry %+v", stored[0])
	}
}

func TestDoseCalculate_StoreFailure(t *testing.T) {
	ts, _ := newTestServer(t, failingRepo{})

	resp := postJSON(t, ts.URL+"/api/dose/calculate?save=true", map[string]any{"glucose": 150, "carbs": 45, "carbRatio": 10})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
}

func TestHistoryListAndAppend(t *testing.T) {
	ts, db := newTestServer(t, nil)
	seed(t, db, entryAt(3, 8, 120, 4), entryAt(1, 8, 140, 6))

	resp := postJSON(t, ts.URL+"/api/history", map[string]any{
		"timestamp": "02/03/2026 08:00", "glucose": 90, "carbs": 30, "carbRatio": 10, "dose": 3,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("append: expected 200, got %d", resp.StatusCode)
	}

	resp = get(t, ts.URL+"/api/history")
	body := decodeBody(t, resp)
	items := body["items"].([]any)
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	glucose := []float64{}
	for _, it := range items {
		glucose = append(glucose, it.(map[string]any)["glucose"].(float64))
	}
	if glucose[0] != 140 || glucose[1] != 90 || glucose[2] != 120 {
		t.Fatalf("expected chronological order, got %v", glucose)
	}

	resp = get(t, ts.URL+"/api/history?limit=1")
	if n := decodeBody(t, resp)["count"]; n != 1.0 {
		t.Fatalf("expected count 1, got %v", n)
	}
}

func TestHistoryAppend_Once(t *testing.T) {
	ts, db := newTestServer(t, nil)
	payload := map[string]any{"timestamp": "02/03/2026 08:00", "glucose": 90, "carbs": 30, "carbRatio": 10, "dose": 3}

	postJSON(t, ts.URL+"/api/history?once=true", payload)
	resp := postJSON(t, ts.URL+"/api/history?once=true", payload)
	if body := decodeBody(t, resp); body["added"] != false {
		t.Fatalf("retry should not append, got %v", body)
	}
	stored, _ := db.Load(context.Background(), adapthttp.LocalUser)
	if len(stored) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(stored))
	}
}

func TestHistoryAppend_OnceFileBacked(t *testing.T) {
	store, err := csvfile.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ts, _ := newTestServer(t, store)

	for i, stamp := range []string{"17/10/2026 08:30:15", "2026-10-17T08:30:00Z"} {
		payload := map[string]any{"timestamp": stamp, "glucose": 90 + i, "carbs": 30, "carbRatio": 10, "dose": 3}
		postJSON(t, ts.URL+"/api/history?once=true", payload)
		resp := postJSON(t, ts.URL+"/api/history?once=true", payload)
		if body := decodeBody(t, resp); body["added"] != false {
			t.Fatalf("%s: retry should not append, got %v", stamp, body)
		}
	}
	stored, err := store.Load(context.Background(), adapthttp.LocalUser)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(stored))
	}
}

func TestHistoryAppend_Invalid(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp := postJSON(t, ts.URL+"/api/history", map[string]any{
		"timestamp": "not a time", "glucose": 90, "carbRatio": 10, "dose": 3,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHistoryDelete(t *testing.T) {
	ts, db := newTestServer(t, nil)
	seed(t, db, entryAt(1, 8, 140, 6), entryAt(2, 8, 90, 3))

	resp := postJSON(t, ts.URL+"/api/history/delete", map[string]any{"timestamps": []string{"02/03/2026 08:00"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if n := decodeBody(t, resp)["removed"]; n != 1.0 {
		t.Fatalf("expected removed=1, got %v", n)
	}

	resp = postJSON(t, ts.URL+"/api/history/delete", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty selection: expected 400, got %d", resp.StatusCode)
	}
}

func TestHistoryDelete_Ambiguous(t *testing.T) {
	ts, db := newTestServer(t, nil)
	a := entryAt(1, 8, 140, 6)
	b := a
	b.Dose = 5
	seed(t, db, a, b)

	resp := postJSON(t, ts.URL+"/api/history/delete", map[string]any{"timestamps": []string{"01/03/2026 08:00"}})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/history/delete", map[string]any{"rows": []map[string]any{
		{"timestamp": "01/03/2026 08:00", "glucose": 140, "carbs": 30, "carbRatio": 10, "dose": 5},
	}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("row delete: expected 200, got %d", resp.StatusCode)
	}
	stored, _ := db.Load(context.Background(), adapthttp.LocalUser)
	if len(stored) != 1 || stored[0].Dose != 6 {
		t.Fatalf("unexpected remaining entries %+v", stored)
	}
}

func TestHistoryExport(t *testing.T) {
	ts, db := newTestServer(t, nil)
	seed(t, db, entryAt(1, 8, 140, 6))

	resp := get(t, ts.URL+"/api/history/export")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %q", ct)
	}
	b, _ := io.ReadAll(resp.Body)
	want := "Data,Glicemia,Carbos,ICR,Dose\n01/03/2026 08:00,140,30,10,6\n"
	if string(b) != want {
		t.Fatalf("unexpected export:\n%s", b)
	}
}

func TestHistoryRestore_OverwriteAndImport(t *testing.T) {
	backup := "Data,Glicemia,Carbos,ICR,Dose\n" +
		"01/03/2026 08:00,140,30,10,6\n" +
		"02/03/2026 08:00,90,,10,3\n" +
		"bad,90,30,10,3\n" +
		"03/03/2026 08:00,120,30,10,4\n"

	t.Run("overwrite", func(t *testing.T) {
		ts, db := newTestServer(t, nil)
		seed(t, db, entryAt(9, 9, 200, 9))

		resp, err := http.Post(ts.URL+"/api/history/restore", "text/csv", strings.NewReader(backup))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close() //nolint:errcheck
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		body := decodeBody(t, resp)
		if body["restored"] != 3.0 || len(body["skipped"].([]any)) != 1 {
			t.Fatalf("unexpected report %v", body)
		}
		stored, _ := db.Load(context.Background(), adapthttp.LocalUser)
		if len(stored) != 3 {
			t.Fatalf("expected 3 entries after overwrite, got %d", len(stored))
		}
	})

	t.Run("import", func(t *testing.T) {
		ts, db := newTestServer(t, nil)
		seed(t, db, entryAt(9, 9, 200, 9))

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, _ := mw.CreateFormFile("file", "backup.csv")
		_, _ = fw.Write([]byte(backup))
		_ = mw.Close()

		resp, err := http.Post(ts.URL+"/api/history/restore?mode=import", mw.FormDataContentType(), &buf)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close() //nolint:errcheck
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		stored, _ := db.Load(context.Background(), adapthttp.LocalUser)
		if len(stored) != 4 {
			t.Fatalf("expected 4 entries after import, got %d", len(stored))
		}
	})

	t.Run("bad header", func(t *testing.T) {
		ts, _ := newTestServer(t, nil)
		resp, err := http.Post(ts.URL+"/api/history/restore", "text/csv", strings.NewReader("a,b\n1,2\n"))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close() //nolint:errcheck
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
	})
}

func TestReport(t *testing.T) {
	ts, db := newTestServer(t, nil)
	seed(t, db, entryAt(1, 8, 100, 2), entryAt(3, 22, 150, 4), entryAt(4, 7, 300, 8))

	resp := get(t, ts.URL+"/api/report?from=2026-03-03&to=04/03/2026")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	summary := body["summary"].(map[string]any)
	if summary["count"] != 2.0 || summary["meanGlucose"] != 225.0 {
		t.Fatalf("unexpected summary %v", summary)
	}
	if body["rangeLabel"] != "03/03/2026 - 04/03/2026" {
		t.Fatalf("unexpected label %v", body["rangeLabel"])
	}

	resp = get(t, ts.URL+"/api/report?from=yesterday")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", resp.StatusCode)
	}
}

func TestReport_EmptyMeanIsNull(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	body := decodeBody(t, get(t, ts.URL+"/api/report"))
	summary := body["summary"].(map[string]any)
	if v, ok := summary["meanGlucose"]; !ok || v != nil {
		t.Fatalf("expected meanGlucose null, got %v", v)
	}
}

func TestChartsDaily(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	body := decodeBody(t, get(t, ts.URL+"/api/charts/daily?days=5"))
	if items := body["items"].([]any); len(items) != 5 {
		t.Fatalf("expected 5 items, got %d", len(items))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	get(t, ts.URL+"/api/health")

	resp := get(t, ts.URL+"/metrics")
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "bolus_http_requests_total") {
		t.Fatal("metrics missing request counter")
	}
}

func TestAuthRequired(t *testing.T) {
	db := memory.New()
	ts := httptest.NewServer(newServer(t, db, db).Handler())
	defer ts.Close()

	resp := get(t, ts.URL+"/api/history")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestSetupLoginAndUseSession(t *testing.T) {
	db := memory.New()
	ts := httptest.NewServer(newServer(t, db, db).Handler())
	defer ts.Close()

	jar, _ := cookiejar.New(nil)
	client := &http.Client{Jar: jar}
	post := func(path string, payload any) *http.Response {
		b, _ := json.Marshal(payload)
		resp, err := client.Post(ts.URL+path, "application/json", bytes.NewReader(b))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	if resp := post("/api/setup", map[string]string{"username": "Ana Maria", "password": "pw"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("setup: expected 200, got %d", resp.StatusCode)
	}
	if resp := post("/api/setup", map[string]string{"username": "other", "password": "pw"}); resp.StatusCode != http.StatusConflict {
		t.Fatalf("second setup: expected 409, got %d", resp.StatusCode)
	}
	if resp := post("/api/login", map[string]string{"username": "Ana Maria", "password": "wrong"}); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login: expected 401, got %d", resp.StatusCode)
	}
	if resp := post("/api/login", map[string]string{"username": "Ana Maria", "password": "pw"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}

	post("/api/dose/calculate", map[string]any{"glucose": 150, "carbs": 45, "carbRatio": 10, "save": true})

	stored, _ := db.Load(context.Background(), "anamaria")
	if len(stored) != 1 {
		t.Fatalf("expected entry under normalized key, got %d", len(stored))
	}

	resp, err := client.Get(ts.URL + "/api/me")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if body := decodeBody(t, resp); body["key"] != "anamaria" {
		t.Fatalf("unexpected identity %v", body)
	}
}

func TestForwardAuthHeader(t *testing.T) {
	db := memory.New()
	ts := httptest.NewServer(newServer(t, db, db).Handler())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/me", nil)
	req.Header.Set("Remote-User", "Bruno")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["key"] != "bruno" {
		t.Fatalf("unexpected identity %v", body)
	}
}

func TestSSODisabled(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp := get(t, ts.URL+"/api/sso/login")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	body := decodeBody(t, get(t, ts.URL+"/api/config"))
	if body["sso_enabled"] != false || body["target_glucose"] != 100.0 {
		t.Fatalf("unexpected config %v", body)
	}
}
