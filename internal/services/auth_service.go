package services

import (
	"errors"
	"fmt"

	"eyeclinic_backend/internal/models"
	"eyeclinic_backend/internal/repositories"
	"eyeclinic_backend/pkg/utils"

	"golang.org/x/crypto/bcrypt"
)

// TokenPair is the access/refresh token set returned on login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// RegisterRequest creates a staff account.
type RegisterRequest struct {
	Username string  `json:"username" binding:"required"`
	Password string  `json:"password" binding:"required"`
	Email    *string `json:"email,omitempty"`
	FullName *string `json:"full_name,omitempty"`
	Role     string  `json:"role" binding:"required"`
	ClinicID *int64  `json:"clinic_id,omitempty"`
}

// AuthService handles staff authentication. Its main job here is giving every
// stock mutation a verified actor identity.
type AuthService interface {
	Register(req RegisterRequest) (*models.User, error)
	Login(creds models.Credentials) (*TokenPair, *models.User, error)
	Refresh(refreshToken string) (*TokenPair, error)
	GetProfile(userID int64) (*models.User, error)
}

type authService struct {
	authRepo repositories.AuthRepository
}

// NewAuthService creates a new instance of AuthService.
func NewAuthService(ar repositories.AuthRepository) AuthService {
	return &authService{authRepo: ar}
}

func (s *authService) Register(req RegisterRequest) (*models.User, error) {
	if utils.IsEmpty(req.Username) {
		return nil, fmt.Errorf("%w: username is required", ErrValidation)
	}
	if !utils.IsValidPasswordLength(req.Password, 8) {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}
	switch req.Role {
	case models.RoleAdmin, models.RolePharmacist, models.RoleOptometrist, models.RoleReception:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, req.Role)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &models.User{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Role:     req.Role,
		ClinicID: req.ClinicID,
		IsActive: true,
	}
	userID, err := s.authRepo.CreateUser(nil, user, string(hashed))
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: username %s is taken", ErrValidation, req.Username)
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	user.ID = userID
	return user, nil
}

func (s *authService) Login(creds models.Credentials) (*TokenPair, *models.User, error) {
	user, hashedPassword, err := s.authRepo.FindUserByUsername(creds.Username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("finding user: %w", err)
	}
	if !user.IsActive {
		return nil, nil, ErrAccountDisabled
	}
	if bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(creds.Password)) != nil {
		return nil, nil, ErrInvalidCredentials
	}

	tokens, err := s.issueTokens(user)
	if err != nil {
		return nil, nil, err
	}
	return tokens, user, nil
}

func (s *authService) Refresh(refreshToken string) (*TokenPair, error) {
	claims, err := utils.ValidateToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	user, err := s.authRepo.FindUserByID(claims.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("finding user %d: %w", claims.UserID, err)
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}
	return s.issueTokens(user)
}

func (s *authService) GetProfile(userID int64) (*models.User, error) {
	user, err := s.authRepo.FindUserByID(userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: user ID %d", ErrUserNotFound, userID)
		}
		return nil, fmt.Errorf("finding user %d: %w", userID, err)
	}
	return user, nil
}

func (s *authService) issueTokens(user *models.User) (*TokenPair, error) {
	accessToken, err := utils.GenerateAccessToken(user.ID, user.Username, user.Role, user.ClinicID)
	if err != nil {
		return nil, fmt.Errorf("generating access token: %w", err)
	}
	refreshToken, err := utils.GenerateRefreshToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("generating refresh token: %w", err)
	}
	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}
