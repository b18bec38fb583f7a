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
	"github.com/quillstage/quillstage-api/internal/workflow"
	appErrors "github.com/quillstage/quillstage-api/pkg/errors"
)

type reviewWorkflowMock struct {
	submitResp *dto.ReviewActionResponse
	submitErr  error
	actResp    *dto.ReviewActionResponse
	actErr     error
	lastAction workflow.Action
	lastReq    dto.ReviewActionRequest
	actCalled  bool
}

func (m *reviewWorkflowMock) Submit(ctx context.Context, resourceID string, actor *models.JWTClaims) (*dto.ReviewActionResponse, error) {
	return m.submitResp, m.submitErr
}

func (m *reviewWorkflowMock) Resubmit(ctx context.Context, resourceID string, actor *models.JWTClaims) (*dto.ReviewActionResponse, error) {
	return m.submitResp, m.submitErr
}

func (m *reviewWorkflowMock) Act(ctx context.Context, resourceID string, action workflow.Action, req dto.ReviewActionRequest, actor *models.JWTClaims) (*dto.ReviewActionResponse, error) {
	m.actCalled = true
	m.lastAction = action
	m.lastReq = req
	return m.actResp, m.actErr
}

func reviewTestContext(t *testing.T, method, target string, body []byte) (*httptest.ResponseRecorder, *gin.Context) {
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
	c.Params = gin.Params{{Key: "id", Value: "res-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "rev-x", Role: models.RoleReviewer, OrganizationID: "org-1"})
	return w, c
}

func TestReviewHandlerSubmit(t *testing.T) {
	mockSvc := &reviewWorkflowMock{
		submitResp: &dto.ReviewActionResponse{
			Resource:  &models.Resource{ID: "res-1", Status: models.ResourceStatusInReview},
			Published: false,
		},
	}
	handler := NewReviewHandler(mockSvc)

	w, c := reviewTestContext(t, http.MethodPost, "/resources/res-1/submit", nil)
	handler.Submit(c)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestReviewHandlerApprovePassesPayload(t *testing.T) {
	mockSvc := &reviewWorkflowMock{
		actResp: &dto.ReviewActionResponse{
			Resource:  &models.Resource{ID: "res-1", Status: models.ResourceStatusPublished},
			Published: true,
		},
	}
	handler := NewReviewHandler(mockSvc)

	body := []byte(`{"notes":"lgtm","comments":[{"text":"clean draft"}]}`)
	w, c := reviewTestContext(t, http.MethodPost, "/resources/res-1/review/approve", body)
	handler.Approve(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.actCalled)
	assert.Equal(t, workflow.ActionApprove, mockSvc.lastAction)
	assert.Equal(t, "lgtm", mockSvc.lastReq.Notes)
	assert.Len(t, mockSvc.lastReq.Comments, 1)
}

func TestReviewHandlerVerdictsWithoutBody(t *testing.T) {
	mockSvc := &reviewWorkflowMock{
		actResp: &dto.ReviewActionResponse{
			Resource: &models.Resource{ID: "res-1", Status: models.ResourceStatusRejected},
		},
	}
	handler := NewReviewHandler(mockSvc)

	w, c := reviewTestContext(t, http.MethodPost, "/resources/res-1/review/reject", nil)
	handler.Reject(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, workflow.ActionReject, mockSvc.lastAction)
}

func TestReviewHandlerConflictStatus(t *testing.T) {
	mockSvc := &reviewWorkflowMock{actErr: appErrors.ErrIllegalTransition}
	handler := NewReviewHandler(mockSvc)

	w, c := reviewTestContext(t, http.MethodPost, "/resources/res-1/review/start", nil)
	handler.Start(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestReviewHandlerConcurrencyConflictStatus(t *testing.T) {
	mockSvc := &reviewWorkflowMock{actErr: appErrors.ErrConcurrencyConflict}
	handler := NewReviewHandler(mockSvc)

	w, c := reviewTestContext(t, http.MethodPost, "/resources/res-1/review/approve", nil)
	handler.Approve(c)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReviewHandlerRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReviewHandler(&reviewWorkflowMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/resources/res-1/submit", nil)
	c.Request = req
	handler.Submit(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
