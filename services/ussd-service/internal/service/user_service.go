package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/grigta/simgate/pkg/crypto"
	"github.com/grigta/simgate/pkg/database"
	"github.com/grigta/simgate/services/ussd-service/internal/models"
	"github.com/grigta/simgate/services/ussd-service/internal/normalize"
	"github.com/grigta/simgate/services/ussd-service/internal/repository"
)

var ErrInvalidCredentials = errors.New("invalid phone number or password")

type TokenIssuer interface {
	GenerateToken(userID, phone, role string) (string, error)
}

type UserService struct {
	users      repository.UserRepository
	accounting *Accounting
	tokens     TokenIssuer
	logger     *logrus.Logger
}

func NewUserService(users repository.UserRepository, accounting *Accounting, tokens TokenIssuer, logger *logrus.Logger) *UserService {
	return &UserService{users: users, accounting: accounting, tokens: tokens, logger: logger}
}

// Login checks the password of an ACCEPT user and issues a token.
func (s *UserService) Login(ctx context.Context, phone, password string) (string, *models.User, error) {
	user, err := s.users.FindByPhone(ctx, normalize.Phone(phone))
	if err != nil {
		return "", nil, err
	}
	if user == nil || user.PasswordHash == "" || !crypto.CheckPassword(password, user.PasswordHash) {
		return "", nil, ErrInvalidCredentials
	}
	if user.Status != models.UserStatusAccept {
		s.logger.WithField("user_id", user.ID.Hex()).Info("Login refused for non-accepted user")
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateToken(user.ID.Hex(), user.Phone, string(user.Role))
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Create stores a new user with a bcrypt hash of password.
func (s *UserService) Create(ctx context.Context, user *models.User, password string) error {
	user.Phone = normalize.Phone(user.Phone)
	if !normalize.ValidPhone(user.Phone) {
		return models.NewValidationError(models.CodeInvalidPhone, "phone number must contain exactly 10 digits")
	}
	if password == "" {
		return models.NewValidationError(models.CodeInvalidRequest, msgIncomplete)
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash

	user.Role = normalize.Role(user.Role)
	if user.Role == "" {
		user.Role = models.RoleCustomer
	}
	user.Status = normalize.UserStatus(user.Status)
	if user.Status == "" {
		user.Status = models.UserStatusPending
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return models.NewValidationError(models.CodeInvalidPhone, "a user with this phone number already exists")
		}
		return err
	}
	return nil
}

func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	oid, err := parseID(id, "user")
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, oid)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewNotFoundError("user")
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	return s.users.List(ctx)
}

// Update rewrites profile, role, permissions and status. Balance only moves through
// AdjustBalance.
func (s *UserService) Update(ctx context.Context, user *models.User) error {
	user.Phone = normalize.Phone(user.Phone)
	user.Role = normalize.Role(user.Role)
	user.Status = normalize.UserStatus(user.Status)
	return notFoundAs(s.users.Update(ctx, user), "user")
}

func (s *UserService) Delete(ctx context.Context, id string) error {
	oid, err := parseID(id, "user")
	if err != nil {
		return err
	}
	return notFoundAs(s.users.Delete(ctx, oid), "user")
}

// AdjustBalance credits a positive delta or debits a negative one; a debit never takes the
// balance below zero.
func (s *UserService) AdjustBalance(ctx context.Context, id string, delta float64) (*models.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if delta < 0 {
		return s.accounting.Debit(ctx, user, -delta)
	}
	if delta == 0 {
		return user, nil
	}
	return s.accounting.Credit(ctx, user.ID, delta)
}
