package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillstage/quillstage-api/internal/dto"
	"github.com/quillstage/quillstage-api/internal/middleware"
	"github.com/quillstage/quillstage-api/internal/models"
)

type resourceServiceMock struct {
	createResp *models.Resource
	createErr  error
	listResp   []models.Resource
	listErr    error
	lastQuery  dto.ResourceQuery
	ledger     []models.ReviewLedgerEntry
	marks      []models.ReviewAssignmentMark
}

func (m *resourceServiceMock) Create(ctx context.Context, req dto.CreateResourceRequest, actor *models.JWTClaims) (*models.Resource, error) {
	return m.createResp, m.createErr
}

func (m *resourceServiceMock) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Resource, error) {
	return m.createResp, m.createErr
}

func (m *resourceServiceMock) List(ctx context.Context, query dto.ResourceQuery, actor *models.JWTClaims) ([]models.Resource, error) {
	m.lastQuery = query
	return m.listResp, m.listErr
}

func (m *resourceServiceMock) Update(ctx context.Context, id string, req dto.UpdateResourceRequest, actor *models.JWTClaims) (*models.Resource, error) {
	return m.createResp, m.createErr
}

func (m *resourceServiceMock) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	return m.createErr
}

func (m *resourceServiceMock) ActiveReviewers(ctx context.Context, resourceID string, actor *models.JWTClaims) ([]models.ReviewAssignmentMark, error) {
	return m.marks, nil
}

func (m *resourceServiceMock) Ledger(ctx context.Context, resourceID string, query dto.ReviewQuery, actor *models.JWTClaims) ([]models.ReviewLedgerEntry, error) {
	return m.ledger, nil
}

func (m *resourceServiceMock) MyReviews(ctx context.Context, actor *models.JWTClaims) ([]models.ReviewAssignmentMark, error) {
	return m.marks, nil
}

func resourceTestContext(t *testing.T, method, target string, body []byte) (*httptest.ResponseRecorder, *gin.Context) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var req *http.Request
	if body != nil {
		req, _ = http.NewRequest(method, target, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, target, nil)
	}
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "author-1", Role: models.RoleAuthor, OrganizationID: "org-1"})
	return w, c
}

func TestResourceHandlerCreate(t *testing.T) {
	mockSvc := &resourceServiceMock{
		createResp: &models.Resource{ID: "res-1", Status: models.ResourceStatusDraft},
	}
	handler := NewResourceHandler(mockSvc)

	body := []byte(`{"type":"project","title":"Q3 launch plan"}`)
	w, c := resourceTestContext(t, http.MethodPost, "/resources", body)
	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestResourceHandlerCreateInvalidBody(t *testing.T) {
	handler := NewResourceHandler(&resourceServiceMock{})

	w, c := resourceTestContext(t, http.MethodPost, "/resources", []byte(`{"title":`))
	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResourceHandlerListParsesStatuses(t *testing.T) {
	mockSvc := &resourceServiceMock{
		listResp: []models.Resource{{ID: "res-1"}},
	}
	handler := NewResourceHandler(mockSvc)

	w, c := resourceTestContext(t, http.MethodGet, "/resources?status=in_review,published&type=project&limit=10", nil)
	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []models.ResourceStatus{models.ResourceStatusInReview, models.ResourceStatusPublished}, mockSvc.lastQuery.Status)
	assert.Equal(t, "project", mockSvc.lastQuery.Type)
	assert.Equal(t, 10, mockSvc.lastQuery.Limit)
}

func TestResourceHandlerLedger(t *testing.T) {
	mockSvc := &resourceServiceMock{
		ledger: []models.ReviewLedgerEntry{{ID: "review-1", Status: models.ReviewStatusApproved}},
	}
	handler := NewResourceHandler(mockSvc)

	w, c := resourceTestContext(t, http.MethodGet, "/resources/res-1/reviews", nil)
	c.Params = gin.Params{{Key: "id", Value: "res-1"}}
	handler.Ledger(c)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestResourceHandlerRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewResourceHandler(&resourceServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/resources", nil)
	c.Request = req
	handler.List(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
