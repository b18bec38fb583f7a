package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/quillstage/quillstage-api/internal/models"
	appErrors "github.com/quillstage/quillstage-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateUserRequest is the admin payload for provisioning an account.
// ReviewRole is the stage role the account votes under in sequential
// reviews, empty for authors and admins.
type CreateUserRequest struct {
	Email          string          `json:"email" validate:"required,email"`
	FullName       string          `json:"full_name" validate:"required"`
	Role           models.UserRole `json:"role" validate:"required,oneof=ADMIN AUTHOR REVIEWER"`
	ReviewRole     string          `json:"review_role"`
	OrganizationID string          `json:"organization_id" validate:"required"`
	Active         bool            `json:"active"`
	Password       string          `json:"password" validate:"required,min=6"`
}

// UpdateUserRequest is the admin payload for editing an account.
// Nil pointer fields are left unchanged.
type UpdateUserRequest struct {
	FullName   string          `json:"full_name" validate:"required"`
	Role       models.UserRole `json:"role" validate:"required,oneof=ADMIN AUTHOR REVIEWER"`
	ReviewRole *string         `json:"review_role"`
	Active     *bool           `json:"active"`
}

// UserService implements admin account management.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
}

func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, validator: validate, logger: logger}
}

func normalizeReviewRole(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}

func (s *UserService) recordAudit(ctx context.Context, actorID, action, targetID string, oldValues, newValues interface{}, meta models.LoginRequest) {
	var oldPayload, newPayload []byte
	if oldValues != nil {
		oldPayload, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		newPayload, _ = json.Marshal(newValues)
	}
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "users",
		ResourceID: &targetID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record user audit log",
			zap.String("action", action), zap.Error(err))
	}
}

// List returns a page of users with pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	return users, &models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
	}, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create provisions a new account. Emails are stored lowercased and
// must be unique, review roles are stored uppercased.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest, actorID string, meta models.LoginRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		ID:             uuid.NewString(),
		Email:          strings.ToLower(req.Email),
		FullName:       req.FullName,
		Role:           req.Role,
		ReviewRole:     normalizeReviewRole(req.ReviewRole),
		OrganizationID: req.OrganizationID,
		Active:         req.Active,
		PasswordHash:   string(passwordHash),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.recordAudit(ctx, actorID, models.AuditActionUserCreate, user.ID, nil,
		map[string]interface{}{"id": user.ID, "email": user.Email, "role": user.Role}, meta)

	return user, nil
}

// Update edits the mutable account fields.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest, actorID string, meta models.LoginRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	before := map[string]interface{}{"role": user.Role, "review_role": user.ReviewRole, "active": user.Active}

	user.FullName = req.FullName
	user.Role = req.Role
	if req.ReviewRole != nil {
		user.ReviewRole = normalizeReviewRole(*req.ReviewRole)
	}
	if req.Active != nil {
		user.Active = *req.Active
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	s.recordAudit(ctx, actorID, models.AuditActionUserUpdate, user.ID, before,
		map[string]interface{}{"role": user.Role, "review_role": user.ReviewRole, "active": user.Active}, meta)

	return user, nil
}

// Delete soft deletes an account by marking it inactive.
func (s *UserService) Delete(ctx context.Context, id string, actorID string, meta models.LoginRequest) error {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	s.recordAudit(ctx, actorID, models.AuditActionUserDelete, user.ID,
		map[string]interface{}{"active": user.Active},
		map[string]interface{}{"active": false}, meta)

	return nil
}
