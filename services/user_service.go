package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kendall-kelly/usta-go-api/apperrors"
	"github.com/kendall-kelly/usta-go-api/logger"
	"github.com/kendall-kelly/usta-go-api/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// MinPasswordLength applies to locally registered users
const MinPasswordLength = 8

// LocalSubjectPrefix marks auth subjects of users registered with a password
const LocalSubjectPrefix = "local|"

var validate = validator.New()

// UserService manages principals
type UserService struct {
	base
}

// RegisterInput creates a password-authenticated user
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Phone    string
	Role     models.Role
}

// UpdateProfileInput holds the fields a user may change about themselves.
// Nil fields are left alone.
type UpdateProfileInput struct {
	Name  *string
	Email *string
	Phone *string
	Bio   *string
}

// UserFilter narrows the admin user listing
type UserFilter struct {
	Role   models.Role
	Status models.UserStatus
	Page   Page
}

// CreateProfile creates the local record of an externally authenticated user
func (s *UserService) CreateProfile(ctx context.Context, subject string, info *Auth0UserInfo, role models.Role) (*models.User, error) {
	if subject == "" {
		return nil, apperrors.Unauthenticated("Missing token subject")
	}
	if role == "" {
		role = models.RoleCustomer
	}
	if !role.SelfAssignable() {
		return nil, apperrors.Forbidden("This role cannot be self-assigned")
	}
	if strings.TrimSpace(info.Email) == "" {
		return nil, apperrors.InvalidInput("Email not provided by the identity provider")
	}
	if strings.TrimSpace(info.Name) == "" {
		return nil, apperrors.InvalidInput("Name not provided by the identity provider")
	}

	user := models.User{
		AuthSubject: subject,
		Name:        strings.TrimSpace(info.Name),
		Email:       info.Email,
		Role:        role,
		Status:      models.UserActive,
	}
	return s.create(ctx, &user)
}

// Register creates a user that logs in with email and password
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	if in.Role == "" {
		in.Role = models.RoleCustomer
	}
	if !in.Role.SelfAssignable() {
		return nil, apperrors.Forbidden("This role cannot be self-assigned")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperrors.InvalidInput("name is required")
	}
	if !validEmail(in.Email) {
		return nil, apperrors.InvalidInput("email is invalid")
	}
	if len(in.Password) < MinPasswordLength {
		return nil, apperrors.InvalidInput("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		logFailure("Failed to hash password", err)
		return nil, apperrors.Internal(err)
	}

	user := models.User{
		AuthSubject:  LocalSubjectPrefix + uuid.NewString(),
		Name:         name,
		Email:        in.Email,
		PasswordHash: string(hash),
		Phone:        strings.TrimSpace(in.Phone),
		Role:         in.Role,
		Status:       models.UserActive,
	}
	return s.create(ctx, &user)
}

// Authenticate checks an email and password pair.
// Unknown emails and wrong passwords are indistinguishable to the caller.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	err := s.conn(ctx).Where("email = ?", models.NormalizeEmail(email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Unauthenticated("Invalid email or password")
		}
		logFailure("Failed to look up user", err)
		return nil, apperrors.Internal(err)
	}
	if user.PasswordHash == "" {
		return nil, apperrors.Unauthenticated("Invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.Unauthenticated("Invalid email or password")
	}
	if user.IsBanned() {
		return nil, apperrors.Unauthenticated("Account is banned")
	}
	return &user, nil
}

// Resolve maps a verified token subject onto an active principal
func (s *UserService) Resolve(ctx context.Context, subject string) (*models.User, error) {
	var user models.User
	if err := s.conn(ctx).Where("auth_subject = ?", subject).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("User profile not found. Please create a profile first.")
		}
		logFailure("Failed to resolve principal", err)
		return nil, apperrors.Internal(err)
	}
	if user.IsBanned() {
		return nil, apperrors.Unauthenticated("Account is banned")
	}
	return &user, nil
}

// Get returns any user by id
func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.conn(ctx).First(&user, id).Error; err != nil {
		return nil, apperrors.FromDB(err, "User")
	}
	return &user, nil
}

// UpdateProfile changes the caller's own descriptive fields. Role, rating
// and wallet figures are never writable here.
func (s *UserService) UpdateProfile(ctx context.Context, actor *models.User, in UpdateProfileInput) (*models.User, error) {
	updates := make(map[string]interface{})
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperrors.InvalidInput("name must not be empty")
		}
		updates["name"] = name
	}
	if in.Email != nil {
		if !validEmail(*in.Email) {
			return nil, apperrors.InvalidInput("email is invalid")
		}
		updates["email"] = models.NormalizeEmail(*in.Email)
	}
	if in.Phone != nil {
		updates["phone"] = strings.TrimSpace(*in.Phone)
	}
	if in.Bio != nil {
		updates["bio"] = strings.TrimSpace(*in.Bio)
	}

	if len(updates) > 0 {
		err := s.conn(ctx).Model(&models.User{}).Where("id = ?", actor.ID).UpdateColumns(updates).Error
		if err != nil {
			if apperrors.IsUniqueViolation(err) {
				return nil, apperrors.Conflict("A user with this email already exists")
			}
			logFailure("Failed to update profile", err, zap.Uint("user_id", actor.ID))
			return nil, apperrors.Internal(err)
		}
	}
	return s.Get(ctx, actor.ID)
}

// List returns users for administration
func (s *UserService) List(ctx context.Context, actor *models.User, f UserFilter) ([]models.User, int64, error) {
	if actor.Role != models.RoleAdmin {
		return nil, 0, apperrors.Forbidden("Admin access required")
	}

	query := s.conn(ctx).Model(&models.User{})
	if f.Role != "" {
		if !f.Role.Valid() {
			return nil, 0, apperrors.InvalidInput("unknown role")
		}
		query = query.Where("role = ?", f.Role)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		logFailure("Failed to count users", err)
		return nil, 0, apperrors.Internal(err)
	}

	page := f.Page.Normalize()
	var users []models.User
	if err := query.Order("id ASC").Offset(page.Offset()).Limit(page.Limit).Find(&users).Error; err != nil {
		logFailure("Failed to list users", err)
		return nil, 0, apperrors.Internal(err)
	}
	return users, total, nil
}

// Ban stops a user from authenticating
func (s *UserService) Ban(ctx context.Context, actor *models.User, id uint) (*models.User, error) {
	if actor.ID == id {
		return nil, apperrors.InvalidInput("Admins cannot ban themselves")
	}
	return s.setStatus(ctx, actor, id, models.UserBanned)
}

// Unban restores a banned user
func (s *UserService) Unban(ctx context.Context, actor *models.User, id uint) (*models.User, error) {
	return s.setStatus(ctx, actor, id, models.UserActive)
}

// Delete removes a user together with every job they took part in, their
// offers, reviews, complaints, messages and ledger. Admin only.
func (s *UserService) Delete(ctx context.Context, actor *models.User, id uint) error {
	if actor.Role != models.RoleAdmin {
		return apperrors.Forbidden("Admin access required")
	}
	if actor.ID == id {
		return apperrors.InvalidInput("Admins cannot delete themselves")
	}
	target, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	var jobIDs []uint
	err = s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Job{}).
			Where("customer_id = ? OR professional_id = ?", target.ID, target.ID).
			Pluck("id", &jobIDs).Error; err != nil {
			return err
		}
		var rated []uint
		if err := tx.Model(&models.Review{}).
			Where("customer_id = ? AND professional_id <> ?", target.ID, target.ID).
			Distinct().
			Pluck("professional_id", &rated).Error; err != nil {
			return err
		}
		if err := deleteJobs(tx, jobIDs); err != nil {
			return err
		}

		cascade := []struct {
			model interface{}
			where string
		}{
			{&models.Offer{}, "professional_id = @id"},
			{&models.Review{}, "customer_id = @id OR professional_id = @id"},
			{&models.Complaint{}, "filer_id = @id OR against_id = @id"},
			{&models.Transaction{}, "user_id = @id"},
		}
		for _, c := range cascade {
			if err := tx.Where(c.where, sql.Named("id", target.ID)).Delete(c.model).Error; err != nil {
				return err
			}
		}
		if err := tx.Unscoped().Where("sender_id = ?", target.ID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := recomputeRatings(tx, rated); err != nil {
			return err
		}
		return tx.Delete(&models.User{}, target.ID).Error
	})
	if err != nil {
		logFailure("Failed to delete user", err, zap.Uint("user_id", id))
		return apperrors.Internal(err)
	}

	logger.Log.Info("User deleted",
		zap.Uint("user_id", id),
		zap.Uint("admin_id", actor.ID),
		zap.Int("jobs", len(jobIDs)),
	)
	return nil
}

// SetRole changes the role of the user with the given email. It backs the
// promote command and bypasses self-assignment rules.
func (s *UserService) SetRole(ctx context.Context, email string, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, apperrors.InvalidInput("unknown role")
	}
	var user models.User
	if err := s.conn(ctx).Where("email = ?", models.NormalizeEmail(email)).First(&user).Error; err != nil {
		return nil, apperrors.FromDB(err, "User")
	}
	if err := s.conn(ctx).Model(&user).UpdateColumn("role", role).Error; err != nil {
		logFailure("Failed to set role", err, zap.Uint("user_id", user.ID))
		return nil, apperrors.Internal(err)
	}
	user.Role = role
	logger.Log.Info("Role changed", zap.Uint("user_id", user.ID), zap.String("role", string(role)))
	return &user, nil
}

func (s *UserService) setStatus(ctx context.Context, actor *models.User, id uint, status models.UserStatus) (*models.User, error) {
	if actor.Role != models.RoleAdmin {
		return nil, apperrors.Forbidden("Admin access required")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Role == models.RoleAdmin && status == models.UserBanned {
		return nil, apperrors.Forbidden("Admins cannot be banned")
	}
	if err := s.conn(ctx).Model(user).UpdateColumn("status", status).Error; err != nil {
		logFailure("Failed to change user status", err, zap.Uint("user_id", id))
		return nil, apperrors.Internal(err)
	}
	user.Status = status
	logger.Log.Info("User status changed", zap.Uint("user_id", id), zap.String("status", string(status)))
	return user, nil
}

func (s *UserService) create(ctx context.Context, user *models.User) (*models.User, error) {
	if err := s.conn(ctx).Create(user).Error; err != nil {
		if apperrors.IsUniqueViolation(err) {
			return nil, apperrors.Conflict("A user with this identity or email already exists")
		}
		logFailure("Failed to create user", err)
		return nil, apperrors.Internal(err)
	}
	logger.Log.Info("User created", zap.Uint("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// validEmail accepts a bare address only, never a display-name form
func validEmail(email string) bool {
	return validate.Var(models.NormalizeEmail(email), "required,email") == nil
}
