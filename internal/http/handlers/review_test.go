package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/clipreview-backend/internal/domain/review"
	"github.com/yungbote/clipreview-backend/internal/http/response"
	"github.com/yungbote/clipreview-backend/internal/modules/review/pipeline"
	"github.com/yungbote/clipreview-backend/internal/platform/dbctx"
	"github.com/yungbote/clipreview-backend/internal/platform/logger"
	"github.com/yungbote/clipreview-backend/internal/realtime"
	"github.com/yungbote/clipreview-backend/internal/services"
)

type fakeReviews struct {
	runs     map[uuid.UUID]*review.ReviewRun
	syncErr  error
	readyErr error
	lastReq  services.SubmitRequest
}

func newFakeReviews() *fakeReviews {
	return &fakeReviews{runs: map[uuid.UUID]*review.ReviewRun{}}
}

func (f *fakeReviews) Submit(dbc dbctx.Context, req services.SubmitRequest) (*review.ReviewRun, error) {
	f.lastReq = req
	if !strings.HasPrefix(req.URL, "http") {
		return nil, services.ErrInvalidURL
	}
	run := &review.ReviewRun{ID: uuid.New(), SourceURL: req.URL, Status: review.RunStatusQueued, Stage: "idle", Distinct: req.DistinctDuplicates}
	f.runs[run.ID] = run
	return run, nil
}

func (f *fakeReviews) RunSync(dbc dbctx.Context, req services.SubmitRequest) (*review.ReviewRun, *review.Result, error) {
	run, err := f.Submit(dbc, req)
	if err != nil {
		return nil, nil, err
	}
	if f.syncErr != nil {
		run.Status = review.RunStatusFailed
		return run, nil, f.syncErr
	}
	run.Status = review.RunStatusSucceeded
	return run, &review.Result{RunID: run.ID, Tokens: []review.Token{}, FlaggedSegments: []review.FlaggedSegment{}}, nil
}

func (f *fakeReviews) Get(dbc dbctx.Context, id uuid.UUID) (*review.ReviewRun, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, services.ErrRunNotFound
	}
	return run, nil
}

func (f *fakeReviews) List(dbc dbctx.Context, limit int) ([]*review.ReviewRun, error) {
	out := []*review.ReviewRun{}
	for _, r := range f.runs {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeReviews) Cancel(dbc dbctx.Context, id uuid.UUID) (*review.ReviewRun, error) {
	run, err := f.Get(dbc, id)
	if err != nil {
		return nil, err
	}
	if run.Terminal() {
		return run, services.ErrRunFinished
	}
	return run, nil
}

func (f *fakeReviews) Ready(ctx context.Context) error            { return f.readyErr }
func (f *fakeReviews) RecoverInterrupted(dbc dbctx.Context) error { return nil }
func (f *fakeReviews) Shutdown(ctx context.Context) error         { return nil }

func newTestRouter(f *fakeReviews) *gin.Engine {
	gin.SetMode(gin.TestMode)
	hub := realtime.NewHub(logger.Nop())
	h := NewReviewHandler(f, hub)
	hh := NewHealthHandler(f)

	r := gin.New()
	r.GET("/healthcheck", hh.HealthCheck)
	r.GET("/readyz", hh.Ready)
	r.POST("/api/reviews", h.Create)
	r.POST("/api/reviews/sync", h.CreateSync)
	r.GET("/api/reviews", h.List)
	r.GET("/api/reviews/:id", h.Get)
	r.GET("/api/reviews/:id/events", h.Events)
	r.POST("/api/reviews/:id/cancel", h.Cancel)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env response.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope: %v body=%s", err, rec.Body.String())
	}
	return env.Error.Code
}

func TestHealthAndReady(t *testing.T) {
	f := newFakeReviews()
	r := newTestRouter(f)

	if rec := do(r, http.MethodGet, "/healthcheck", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthcheck: want=200 got=%d", rec.Code)
	}
	if rec := do(r, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Fatalf("readyz: want=200 got=%d", rec.Code)
	}
	f.readyErr = errors.New("yt-dlp missing")
	rec := do(r, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusServiceUnavailable || errorCode(t, rec) != "not_ready" {
		t.Fatalf("readyz not ready: got=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestCreateReview(t *testing.T) {
	f := newFakeReviews()
	r := newTestRouter(f)

	rec := do(r, http.MethodPost, "/api/reviews", `{"url":"https://example.com/v","distinct_duplicates":true}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create: want=202 got=%d body=%s", rec.Code, rec.Body.String())
	}
	var body struct {
		Review review.ReviewRun `json:"review"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Review.ID == uuid.Nil || !body.Review.Distinct || !f.lastReq.DistinctDuplicates {
		t.Fatalf("create body: got=%+v", body.Review)
	}
}

func TestCreateReviewValidation(t *testing.T) {
	r := newTestRouter(newFakeReviews())

	if rec := do(r, http.MethodPost, "/api/reviews", `{}`); rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_request" {
		t.Fatalf("missing url: got=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec := do(r, http.MethodPost, "/api/reviews", `{"url":"ftp-thing"}`); rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_url" {
		t.Fatalf("bad url: got=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestCreateSyncStageError(t *testing.T) {
	f := newFakeReviews()
	f.syncErr = &pipeline.StageError{Stage: pipeline.StageDownloading, Err: errors.New("network reset")}
	r := newTestRouter(f)

	rec := do(r, http.MethodPost, "/api/reviews/sync", `{"url":"https://example.com/v"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("sync: want=422 got=%d", rec.Code)
	}
	if code := errorCode(t, rec); code != "downloading_failed" {
		t.Fatalf("code: want=downloading_failed got=%q", code)
	}
}

func TestCreateSyncOK(t *testing.T) {
	r := newTestRouter(newFakeReviews())
	rec := do(r, http.MethodPost, "/api/reviews/sync", `{"url":"https://example.com/v"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("sync: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"flagged_segments":[]`) {
		t.Fatalf("sync body should carry an empty segment list: %s", rec.Body.String())
	}
}

func TestGetAndCancel(t *testing.T) {
	f := newFakeReviews()
	r := newTestRouter(f)

	if rec := do(r, http.MethodGet, "/api/reviews/not-a-uuid", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: want=400 got=%d", rec.Code)
	}
	if rec := do(r, http.MethodGet, "/api/reviews/"+uuid.NewString(), ""); rec.Code != http.StatusNotFound || errorCode(t, rec) != "review_not_found" {
		t.Fatalf("unknown id: got=%d body=%s", rec.Code, rec.Body.String())
	}

	run, _ := f.Submit(dbctx.New(context.Background()), services.SubmitRequest{URL: "https://example.com/v"})
	if rec := do(r, http.MethodGet, "/api/reviews/"+run.ID.String(), ""); rec.Code != http.StatusOK {
		t.Fatalf("get: want=200 got=%d", rec.Code)
	}
	if rec := do(r, http.MethodPost, "/api/reviews/"+run.ID.String()+"/cancel", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("cancel: want=202 got=%d", rec.Code)
	}
	run.Status = review.RunStatusCanceled
	if rec := do(r, http.MethodPost, "/api/reviews/"+run.ID.String()+"/cancel", ""); rec.Code != http.StatusConflict {
		t.Fatalf("cancel finished: want=409 got=%d", rec.Code)
	}
}

func TestEventsForFinishedRun(t *testing.T) {
	f := newFakeReviews()
	r := newTestRouter(f)
	run, _ := f.Submit(dbctx.New(context.Background()), services.SubmitRequest{URL: "https://example.com/v"})
	run.Status = review.RunStatusDegraded
	run.Stage = "done"
	run.UpdatedAt = time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/reviews/"+run.ID.String()+"/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if ctx.Err() != nil {
		t.Fatalf("events stream did not end for a finished run")
	}
	if !strings.Contains(rec.Body.String(), `"stage":"done"`) {
		t.Fatalf("events body: got=%q", rec.Body.String())
	}
}
