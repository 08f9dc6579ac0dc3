package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"blogicum/internal/models"
	"blogicum/internal/observability"
	"blogicum/internal/repository"
	"blogicum/internal/validation"
	"blogicum/internal/visibility"

	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
	userRepo   repository.UserRepository
	bcryptCost int
}

type RegisterInput struct {
	Username        string
	Email           string
	FirstName       string
	LastName        string
	Password        string
	PasswordConfirm string
}

type UpdateProfileInput struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
}

const invalidCredentials = "Please enter a correct username and password."

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo, bcryptCost: bcrypt.DefaultCost}
}

// WithBcryptCost returns a copy using cost for new hashes.
func (s *UserService) WithBcryptCost(cost int) *UserService {
	cp := *s
	cp.bcryptCost = cost
	return &cp
}

func (s *UserService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

func (s *UserService) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.userRepo.GetByUsername(ctx, username)
}

// Register creates an account. Field problems are reported together.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	fields := map[string]string{}
	if err := validation.ValidateUsername(in.Username); err != nil {
		fields["username"] = err.Error()
	}
	if in.Email != "" {
		if err := validation.ValidateEmail(in.Email); err != nil {
			fields["email"] = err.Error()
		}
	}
	if err := validation.ValidatePassword(in.Password, in.Username); err != nil {
		fields["password1"] = err.Error()
	}
	if in.Password != in.PasswordConfirm {
		fields["password2"] = "the two password fields didn't match"
	}
	if len(fields) > 0 {
		return nil, models.NewFieldValidationError(fields)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user := &models.User{
		Username:  in.Username,
		Email:     in.Email,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Password:  string(hashed),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	observability.AuthEvents.WithLabelValues("register").Inc()
	return user, nil
}

// Authenticate checks the credentials. Unknown users and wrong passwords
// produce the same VALIDATION_ERROR.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			observability.AuthEvents.WithLabelValues("login_failed").Inc()
			return nil, models.NewFieldValidationError(map[string]string{"form": invalidCredentials})
		}
		return nil, err
	}
	if cmpErr := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); cmpErr != nil {
		observability.AuthEvents.WithLabelValues("login_failed").Inc()
		return nil, models.NewFieldValidationError(map[string]string{"form": invalidCredentials})
	}
	observability.AuthEvents.WithLabelValues("login_ok").Inc()
	return user, nil
}

// UpdateProfile edits the viewer's own profile.
func (s *UserService) UpdateProfile(ctx context.Context, viewer visibility.Viewer, in UpdateProfileInput) (*models.User, error) {
	if viewer.Anonymous() {
		return nil, models.NewUnauthorizedError("Login required")
	}
	user, err := s.userRepo.GetByID(ctx, viewer.UserID)
	if err != nil {
		return nil, err
	}

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	fields := map[string]string{}
	if err := validation.ValidateUsername(in.Username); err != nil {
		fields["username"] = err.Error()
	} else if in.Username != user.Username {
		existing, err := s.userRepo.GetByUsername(ctx, in.Username)
		switch {
		case err == nil && existing.ID != user.ID:
			fields["username"] = "a user with that username already exists"
		case err != nil && !models.IsCode(err, models.CodeNotFound):
			return nil, err
		}
	}
	if in.Email != "" {
		if err := validation.ValidateEmail(in.Email); err != nil {
			fields["email"] = err.Error()
		}
	}
	if utf8.RuneCountInString(in.FirstName) > 150 {
		fields["first_name"] = "ensure this value has at most 150 characters"
	}
	if utf8.RuneCountInString(in.LastName) > 150 {
		fields["last_name"] = "ensure this value has at most 150 characters"
	}
	if len(fields) > 0 {
		return nil, models.NewFieldValidationError(fields)
	}

	user.Username = in.Username
	user.Email = in.Email
	user.FirstName = strings.TrimSpace(in.FirstName)
	user.LastName = strings.TrimSpace(in.LastName)
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
