package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/GoldenRal/modSTR/internal/pipeline"
	"github.com/GoldenRal/modSTR/internal/projects"
	"github.com/GoldenRal/modSTR/internal/quota"
	pkgauth "github.com/GoldenRal/modSTR/pkg/auth"
	"github.com/GoldenRal/modSTR/pkg/config"
	"github.com/GoldenRal/modSTR/pkg/db/models"
	"github.com/GoldenRal/modSTR/pkg/enums"
	pkgerrors "github.com/GoldenRal/modSTR/pkg/errors"
	"github.com/GoldenRal/modSTR/pkg/logger"
)

type stubStore struct{}

func (stubStore) CreateProject(_ context.Context, userID uuid.UUID, input projects.CreateProjectInput) (*projects.Project, error) {
	return &projects.Project{ID: uuid.New(), UserID: userID, Name: input.Name}, nil
}

func (stubStore) ListProjects(context.Context, uuid.UUID) ([]*projects.Project, error) {
	return nil, nil
}

func (stubStore) GetProject(context.Context, uuid.UUID, uuid.UUID) (*projects.Project, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
}

func (stubStore) DeleteProject(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (stubStore) AddDocument(_ context.Context, _, _ uuid.UUID, doc *projects.Document) (*projects.Document, error) {
	doc.ID = uuid.New()
	return doc, nil
}

func (stubStore) DeleteDocument(context.Context, uuid.UUID, uuid.UUID, uuid.UUID) error { return nil }

func (stubStore) AssignDocumentType(context.Context, uuid.UUID, uuid.UUID, uuid.UUID, enums.DocumentType) error {
	return nil
}

func (stubStore) SetAdvocateInstructions(context.Context, uuid.UUID, uuid.UUID, string) error {
	return nil
}

type stubUploader struct{}

func (stubUploader) Begin(context.Context, pipeline.Job) {}

type stubQuota struct{}

func (stubQuota) CheckAllowance(context.Context, uuid.UUID, enums.UsageType, int64) (quota.Decision, error) {
	return quota.Decision{Allowed: true}, nil
}

func (stubQuota) RecordUsage(context.Context, quota.RecordUsageInput) error { return nil }

func (stubQuota) GetUsage(context.Context, uuid.UUID) (*quota.UsageSummary, error) {
	return &quota.UsageSummary{}, nil
}

func (stubQuota) ListPlans(context.Context) ([]models.Plan, error) { return nil, nil }

func (stubQuota) RolloverStale(context.Context, time.Time) error { return nil }

type stubDeriver struct{}

func (stubDeriver) DeriveNow(context.Context, uuid.UUID, uuid.UUID) error { return nil }

type stubReports struct{}

func (stubReports) Generate(context.Context, uuid.UUID, uuid.UUID, enums.ReportFormat) (*projects.Report, error) {
	return &projects.Report{Content: "report"}, nil
}

func (stubReports) Reformat(context.Context, uuid.UUID, uuid.UUID, enums.ReportFormat) (*projects.Report, error) {
	return &projects.Report{Content: "report"}, nil
}

type stubCounter struct {
	counts map[string]int64
}

func (s *stubCounter) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	if s.counts == nil {
		s.counts = map[string]int64{}
	}
	s.counts[key]++
	return s.counts[key], nil
}

func (s *stubCounter) CounterKey(name string) string { return "modstr:counter:" + name }

func testConfig() *config.Config {
	return &config.Config{
		App:       config.AppConfig{Env: "dev", CORSOrigins: []string{"http://localhost:3000"}},
		JWT:       config.JWTConfig{Secret: "router-secret", Issuer: "modstr-test", ExpirationMinutes: 15},
		RateLimit: config.RateLimitConfig{RequestsPerWindow: 2, Window: time.Minute},
	}
}

func testRouter(t *testing.T, limiter rateLimitStore) http.Handler {
	t.Helper()
	return NewRouter(
		testConfig(),
		logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard}),
		stubStore{},
		stubUploader{},
		stubQuota{},
		stubDeriver{},
		stubReports{},
		limiter,
	)
}

func TestHealthzIsPublic(t *testing.T) {
	router := testRouter(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestAPIRoutesRequireAuth(t *testing.T) {
	router := testRouter(t, nil)
	for _, path := range []string{"/api/v1/projects", "/api/v1/usage", "/api/v1/plans"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, w.Code)
		}
	}
}

func TestAuthenticatedProjectListing(t *testing.T) {
	router := testRouter(t, nil)
	cfg := testConfig()
	token, err := pkgauth.MintAccessToken(cfg.JWT, time.Now().UTC(), pkgauth.AccessTokenPayload{
		UserID: uuid.New(),
		Email:  "advocate@example.com",
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRequestThrottleKicksInAfterLimit(t *testing.T) {
	router := testRouter(t, &stubCounter{})
	cfg := testConfig()
	token, err := pkgauth.MintAccessToken(cfg.JWT, time.Now().UTC(), pkgauth.AccessTokenPayload{
		UserID: uuid.New(),
		Email:  "advocate@example.com",
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("requests within the window must pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected 429 past the limit, got %v", codes)
	}
}
