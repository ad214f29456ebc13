package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/greenloop/recircle-backend/internal/pkg/logger"
	"github.com/greenloop/recircle-backend/internal/platform/apierr"
	"github.com/greenloop/recircle-backend/internal/repos"
	"github.com/greenloop/recircle-backend/internal/requestdata"
	"github.com/greenloop/recircle-backend/internal/services"
	"github.com/greenloop/recircle-backend/internal/types"
)

type fakeActionService struct {
	submitFn func(ctx context.Context, req services.SubmitActionRequest) (*types.RecycleAction, error)
	getFn    func(ctx context.Context, userID uuid.UUID, isAdmin bool, actionID uuid.UUID) (*types.RecycleAction, error)
	listFn   func(ctx context.Context, userID uuid.UUID, filter repos.ActionListFilter) ([]*types.RecycleAction, int64, error)
}

func (f *fakeActionService) Submit(ctx context.Context, req services.SubmitActionRequest) (*types.RecycleAction, error) {
	if f.submitFn != nil {
		return f.submitFn(ctx, req)
	}
	return &types.RecycleAction{ID: uuid.New(), UserID: req.UserID, Status: types.ActionStatusPending}, nil
}

func (f *fakeActionService) Process(ctx context.Context, action *types.RecycleAction) error {
	return fmt.Errorf("not implemented")
}

func (f *fakeActionService) Get(ctx context.Context, userID uuid.UUID, isAdmin bool, actionID uuid.UUID) (*types.RecycleAction, error) {
	if f.getFn != nil {
		return f.getFn(ctx, userID, isAdmin, actionID)
	}
	return &types.RecycleAction{ID: actionID, UserID: userID}, nil
}

func (f *fakeActionService) List(ctx context.Context, userID uuid.UUID, filter repos.ActionListFilter) ([]*types.RecycleAction, int64, error) {
	if f.listFn != nil {
		return f.listFn(ctx, userID, filter)
	}
	return nil, 0, nil
}

func handlerLogger(tb testing.TB) *logger.Logger {
	tb.Helper()
	log, err := logger.New("development")
	if err != nil {
		tb.Fatalf("logger.New: %v", err)
	}
	return log
}

// identityStub stands in for the auth middleware.
func identityStub(userID uuid.UUID, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := requestdata.WithRequestData(c.Request.Context(), &requestdata.RequestData{
			UserID: userID,
			Role:   role,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func newActionRouter(tb testing.TB, svc services.ActionService, userID uuid.UUID, role string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	ah := NewActionHandler(handlerLogger(tb), svc)
	r := gin.New()
	r.Use(identityStub(userID, role))
	r.POST("/actions", ah.Submit)
	r.GET("/actions", ah.List)
	r.GET("/actions/:id", ah.Get)
	return r
}

func submitForm(tb testing.TB, metadata any, withImage bool) (*bytes.Buffer, string) {
	tb.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	raw, err := json.Marshal(metadata)
	if err != nil {
		tb.Fatalf("marshal metadata: %v", err)
	}
	if err := mw.WriteField("metadata", string(raw)); err != nil {
		tb.Fatalf("write metadata: %v", err)
	}
	if withImage {
		fw, err := mw.CreateFormFile("image", "evidence.jpg")
		if err != nil {
			tb.Fatalf("create form file: %v", err)
		}
		if _, err := io.WriteString(fw, "jpeg-bytes"); err != nil {
			tb.Fatalf("write image: %v", err)
		}
	}
	mw.Close()
	return buf, mw.FormDataContentType()
}

func TestActionSubmit(t *testing.T) {
	userID := uuid.New()
	pointID := uuid.New()
	var got services.SubmitActionRequest
	router := newActionRouter(t, &fakeActionService{
		submitFn: func(ctx context.Context, req services.SubmitActionRequest) (*types.RecycleAction, error) {
			got = req
			return &types.RecycleAction{ID: uuid.New(), UserID: req.UserID, Status: types.ActionStatusPending}, nil
		},
	}, userID, "USER")

	metadata := map[string]any{
		"point_id":                pointID.String(),
		"material":                "Glass",
		"idempotency_key":         "key-1",
		"confidence":              0.93,
		"bounding_box_area_ratio": 0.4,
		"frame_count_detected":    6,
		"motion_score":            0.5,
		"perceptual_hash":         "abcdef0123456789",
		"gps_lat":                 40.7,
		"gps_lng":                 -74.0,
		"gps_accuracy":            8.0,
	}
	body, contentType := submitForm(t, metadata, true)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/actions", body)
	req.Header.Set("Content-Type", contentType)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if got.UserID != userID {
		t.Fatalf("expected identity user %s, got %s", userID, got.UserID)
	}
	if got.PointID != pointID {
		t.Fatalf("expected point %s, got %s", pointID, got.PointID)
	}
	if got.Material != types.MaterialGlass {
		t.Fatalf("expected material normalized to glass, got %q", got.Material)
	}
	if got.Image == nil {
		t.Fatal("expected image reader to reach the service")
	}
}

func TestActionSubmitMissingMetadata(t *testing.T) {
	router := newActionRouter(t, &fakeActionService{}, uuid.New(), "USER")

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	mw.Close()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/actions", buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestActionSubmitMissingImage(t *testing.T) {
	router := newActionRouter(t, &fakeActionService{}, uuid.New(), "USER")

	metadata := map[string]any{"point_id": uuid.New().String(), "material": "glass"}
	body, contentType := submitForm(t, metadata, false)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/actions", body)
	req.Header.Set("Content-Type", contentType)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestActionSubmitIdempotencyKeyHeaderFallback(t *testing.T) {
	var got services.SubmitActionRequest
	router := newActionRouter(t, &fakeActionService{
		submitFn: func(ctx context.Context, req services.SubmitActionRequest) (*types.RecycleAction, error) {
			got = req
			return &types.RecycleAction{ID: uuid.New()}, nil
		},
	}, uuid.New(), "USER")

	metadata := map[string]any{"point_id": uuid.New().String(), "material": "glass"}
	body, contentType := submitForm(t, metadata, true)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/actions", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Idempotency-Key", "header-key")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if got.IdempotencyKey != "header-key" {
		t.Fatalf("expected header fallback, got %q", got.IdempotencyKey)
	}
}

func TestActionGetForwardsServiceStatus(t *testing.T) {
	router := newActionRouter(t, &fakeActionService{
		getFn: func(ctx context.Context, userID uuid.UUID, isAdmin bool, actionID uuid.UUID) (*types.RecycleAction, error) {
			return nil, apierr.New(http.StatusForbidden, "FORBIDDEN", fmt.Errorf("not yours"))
		},
	}, uuid.New(), "USER")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/actions/"+uuid.New().String(), nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestActionListParsesFilter(t *testing.T) {
	pointID := uuid.New()
	var got repos.ActionListFilter
	router := newActionRouter(t, &fakeActionService{
		listFn: func(ctx context.Context, userID uuid.UUID, filter repos.ActionListFilter) ([]*types.RecycleAction, int64, error) {
			got = filter
			return nil, 0, nil
		},
	}, uuid.New(), "USER")

	w := httptest.NewRecorder()
	url := "/actions?status=verified&material=GLASS&point_id=" + pointID.String() +
		"&from=2026-03-01T00:00:00Z&limit=10&offset=20"
	req := httptest.NewRequest(http.MethodGet, url, nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got.Status != types.ActionStatusVerified {
		t.Fatalf("expected status normalized to VERIFIED, got %q", got.Status)
	}
	if got.Material != types.MaterialGlass {
		t.Fatalf("expected material normalized to glass, got %q", got.Material)
	}
	if got.PointID == nil || *got.PointID != pointID {
		t.Fatalf("expected point filter %s, got %v", pointID, got.PointID)
	}
	if got.Limit != 10 || got.Offset != 20 {
		t.Fatalf("expected limit/offset 10/20, got %d/%d", got.Limit, got.Offset)
	}
	if got.From == nil || !got.From.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected from filter parsed, got %v", got.From)
	}
}
