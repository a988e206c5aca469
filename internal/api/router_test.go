package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/usermanagement/usermanagement/internal/audit"
	"github.com/usermanagement/usermanagement/internal/auth"
	"github.com/usermanagement/usermanagement/internal/config"
	"github.com/usermanagement/usermanagement/internal/db/models"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// healthCheckHandler
// ---------------------------------------------------------------------------

func newHealthDB(t *testing.T, pingOK bool) *sql.DB {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if pingOK {
		mock.ExpectPing()
	} else {
		mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	}
	return db
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return body
}

func TestHealthCheckHandler_Healthy(t *testing.T) {
	db := newHealthDB(t, true)

	r := gin.New()
	r.GET("/health", healthCheckHandler(db))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
	if _, err := time.Parse(time.RFC3339, body["time"].(string)); err != nil {
		t.Errorf("time %v is not RFC 3339: %v", body["time"], err)
	}
}

func TestHealthCheckHandler_Unhealthy(t *testing.T) {
	db := newHealthDB(t, false)

	r := gin.New()
	r.GET("/health", healthCheckHandler(db))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "unhealthy" {
		t.Errorf("status = %v, want unhealthy", body["status"])
	}
	if body["error"] != "database connection failed" {
		t.Errorf("error = %v", body["error"])
	}
}

// ---------------------------------------------------------------------------
// readinessHandler / versionHandler
// ---------------------------------------------------------------------------

func TestReadinessHandler(t *testing.T) {
	for _, pingOK := range []bool{true, false} {
		db := newHealthDB(t, pingOK)

		r := gin.New()
		r.GET("/ready", readinessHandler(db, &BackgroundServices{}))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

		wantStatus, wantCheck := http.StatusOK, "ok"
		if !pingOK {
			wantStatus, wantCheck = http.StatusServiceUnavailable, "unavailable"
		}
		if w.Code != wantStatus {
			t.Errorf("pingOK=%v: status = %d, want %d", pingOK, w.Code, wantStatus)
		}
		body := decodeBody(t, w)
		if body["ready"] != pingOK {
			t.Errorf("pingOK=%v: ready = %v", pingOK, body["ready"])
		}
		checks, _ := body["checks"].(map[string]interface{})
		if checks["database"] != wantCheck {
			t.Errorf("pingOK=%v: database check = %v, want %s", pingOK, checks["database"], wantCheck)
		}
		if _, ok := checks["redis"]; ok {
			t.Errorf("pingOK=%v: redis reported without a redis backend", pingOK)
		}
	}
}

func TestVersionHandler(t *testing.T) {
	r := gin.New()
	r.GET("/version", versionHandler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	if body["version"] != Version || body["api_version"] != APIVersion {
		t.Errorf("body = %v", body)
	}
}

// ---------------------------------------------------------------------------
// NewRouter
// ---------------------------------------------------------------------------

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, DevMode: true},
		Auth:   config.AuthConfig{JWTSecret: testJWTSecret},
		Security: config.SecurityConfig{
			RateLimiting: config.RateLimitingConfig{
				Backend:                "memory",
				RequestsPerMinute:      300,
				Burst:                  60,
				WriteRequestsPerMinute: 60,
				WriteBurst:             20,
			},
		},
		Audit: config.AuditConfig{
			Enabled:        true,
			DefaultActorID: config.SeedAdminID,
			DefaultLimit:   100,
		},
	}
}

// newTestRouter builds the full router over sqlmock and an in-memory audit store
func newTestRouter(t *testing.T, cfg *config.Config) (*gin.Engine, sqlmock.Sqlmock, *audit.MemoryStore) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := audit.NewMemoryStore()
	router, bg, err := newRouter(cfg, db, store)
	if err != nil {
		t.Fatalf("newRouter: %v", err)
	}
	t.Cleanup(bg.Shutdown)
	return router, mock, store
}

func postJSON(r *gin.Engine, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// waitForRecords polls the store until it holds n records; audit writes are asynchronous
func waitForRecords(t *testing.T, store *audit.MemoryStore, n int) []*models.AuditLog {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		logs, _ := store.ListAll(context.Background(), 100)
		if len(logs) >= n || time.Now().After(deadline) {
			if len(logs) != n {
				t.Fatalf("got %d audit records, want %d", len(logs), n)
			}
			return logs
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func expectAddressInsert(mock sqlmock.Sqlmock) {
	mock.ExpectExec("INSERT INTO adresses").
		WithArgs(sqlmock.AnyArg(), "Main St 1", "12345").
		WillReturnResult(sqlmock.NewResult(1, 1))
}

func TestNewRouter_AuditsSuccessfulWrite(t *testing.T) {
	r, mock, store := newTestRouter(t, testConfig())
	expectAddressInsert(mock)

	w := postJSON(r, "/api/addresses", `{"street":"Main St 1","postalCode":"12345"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	logs := waitForRecords(t, store, 1)
	got := logs[0]
	if got.TableName != "addresses" || got.Operation != models.OperationInsert {
		t.Errorf("record = %s/%s, want addresses/INSERT", got.TableName, got.Operation)
	}
	if got.UserID != config.SeedAdminID {
		t.Errorf("user id = %s, want default actor %s", got.UserID, config.SeedAdminID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestNewRouter_AttributesBearerTokenSubject(t *testing.T) {
	r, mock, store := newTestRouter(t, testConfig())
	expectAddressInsert(mock)

	tokens, err := auth.NewTokens(testJWTSecret, false)
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	actor := "5b0c7a52-3d1e-4f7b-a6c9-2e8d4f1b9a07"
	token, err := tokens.Generate(actor, time.Hour)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	w := postJSON(r, "/api/addresses", `{"street":"Main St 1","postalCode":"12345"}`,
		http.Header{"Authorization": {"Bearer " + token}})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	logs := waitForRecords(t, store, 1)
	if logs[0].UserID != actor {
		t.Errorf("user id = %s, want token subject %s", logs[0].UserID, actor)
	}
}

func TestNewRouter_FailedWriteNotAudited(t *testing.T) {
	r, _, store := newTestRouter(t, testConfig())

	w := postJSON(r, "/api/addresses", `{"street":""}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	time.Sleep(50 * time.Millisecond)
	waitForRecords(t, store, 0)
}

func TestNewRouter_AuditDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = false
	r, mock, store := newTestRouter(t, cfg)
	expectAddressInsert(mock)

	w := postJSON(r, "/api/addresses", `{"street":"Main St 1","postalCode":"12345"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}

	time.Sleep(50 * time.Millisecond)
	waitForRecords(t, store, 0)
}

func TestNewRouter_AuditLogsReadable(t *testing.T) {
	r, _, store := newTestRouter(t, testConfig())
	store.Records = append(store.Records, models.AuditLog{
		ID:        "8e0c2d4a-6b1f-4a3e-9d5c-7f2b1e0a9c38",
		TableName: "users",
		Operation: models.OperationDelete,
		ChangedAt: time.Now().UTC(),
		UserID:    config.SeedAdminID,
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/audit-logs/by-table/USERS", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var logs []map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &logs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(logs) != 1 || logs[0]["operation"] != models.OperationDelete {
		t.Errorf("logs = %v", logs)
	}

	// reads are never audited
	time.Sleep(50 * time.Millisecond)
	waitForRecords(t, store, 1)
}

func TestNewRouter_WriteRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RateLimiting.Enabled = true
	cfg.Security.RateLimiting.WriteBurst = 1
	cfg.Security.RateLimiting.WriteRequestsPerMinute = 1
	r, _, _ := newTestRouter(t, cfg)

	first := postJSON(r, "/api/addresses", `{}`, nil)
	if first.Code != http.StatusBadRequest {
		t.Fatalf("first status = %d, want 400", first.Code)
	}
	second := postJSON(r, "/api/addresses", `{}`, nil)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}

	// the read tier is separate
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/audit-logs", nil))
	if w.Code != http.StatusOK {
		t.Errorf("read status = %d, want 200", w.Code)
	}
}

func TestNewRouter_SecurityHeadersAndRequestID(t *testing.T) {
	r, _, _ := newTestRouter(t, testConfig())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Errorf("X-Frame-Options = %q", w.Header().Get("X-Frame-Options"))
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID missing")
	}
}

func TestNewRouter_InvalidShipper(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Shippers = []config.AuditShipperConfig{{Enabled: true, Type: "carrier-pigeon"}}

	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	if _, _, err := NewRouter(cfg, db); err == nil {
		t.Fatal("expected error for unknown shipper type")
	}
}

func TestAuditStore(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	cfg := testConfig()
	if _, ok := auditStore(cfg, db).(*audit.MemoryStore); ok {
		t.Error("default audit store should be postgres, got memory")
	}

	cfg.Audit.Store = config.AuditStoreMemory
	if _, ok := auditStore(cfg, db).(*audit.MemoryStore); !ok {
		t.Error("audit.store=memory should select the memory store")
	}
}

func TestNewRouter_MemoryAuditStore(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Store = config.AuditStoreMemory

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	r, bg, err := NewRouter(cfg, db)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	defer bg.Shutdown()

	expectAddressInsert(mock)
	if w := postJSON(r, "/api/addresses", `{"street":"Main St 1","postalCode":"12345"}`, nil); w.Code != http.StatusCreated {
		t.Fatalf("create address: status = %d, body = %s", w.Code, w.Body.String())
	}

	// the record lands in memory, so no auditlogs queries reach the database
	deadline := time.Now().Add(2 * time.Second)
	for {
		req := httptest.NewRequest(http.MethodGet, "/api/audit-logs/by-table/addresses", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		var logs []map[string]interface{}
		if err := json.Unmarshal(w.Body.Bytes(), &logs); err == nil && len(logs) == 1 {
			if logs[0]["operation"] != models.OperationInsert {
				t.Errorf("operation = %v, want %s", logs[0]["operation"], models.OperationInsert)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("audit record not listed: status = %d, body = %s", w.Code, w.Body.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestShipperConfigs(t *testing.T) {
	in := []config.AuditShipperConfig{
		{Enabled: true, Type: "webhook", Webhook: &config.AuditWebhookConfig{
			URL: "https://siem.example.com/ingest", TimeoutSecs: 5, BatchSize: 10, FlushIntervalSecs: 2,
		}},
		{Enabled: false, Type: "file", File: &config.AuditFileConfig{Path: "/var/log/audit.jsonl", MaxSizeMB: 10, MaxBackups: 3}},
	}

	out := shipperConfigs(in)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	wh := out[0].Webhook
	if wh == nil || wh.Timeout != 5*time.Second || wh.FlushInterval != 2*time.Second || wh.BatchSize != 10 {
		t.Errorf("webhook = %+v", wh)
	}
	if out[1].Enabled || out[1].File == nil || out[1].File.MaxBackups != 3 {
		t.Errorf("file = %+v", out[1])
	}
}
