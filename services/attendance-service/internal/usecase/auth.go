package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/apperror"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/metrics"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/model"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/repository"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/session"
	"github.com/vasapolrittideah/school-attendance-api/shared/auth"
	"github.com/vasapolrittideah/school-attendance-api/shared/provider"
	"github.com/vasapolrittideah/school-attendance-api/shared/security"
)

// AuthUsecase defines the interface for authentication-related use cases.
type AuthUsecase interface {
	Register(ctx context.Context, params RegisterParams) (*model.User, error)
	Login(ctx context.Context, params LoginParams) (*LoginResult, error)
	GoogleLogin(ctx context.Context, idToken string) (*LoginResult, error)
	Authenticate(ctx context.Context, token string) (*model.User, error)
	ResolveIdentity(ctx context.Context, claims *session.Claims) (*model.User, error)
}

// LoginParams defines the parameters for user login.
type LoginParams struct {
	Email    string
	Password string
}

// RegisterParams defines the parameters for user registration.
type RegisterParams struct {
	Email    string
	Password string
	Role     model.Role
	Name     string
}

// LoginResult is a freshly minted session token and the user it belongs to.
type LoginResult struct {
	Token string
	User  *model.User
}

// GoogleTokenVerifier validates Google ID tokens.
type GoogleTokenVerifier interface {
	ValidateIDToken(ctx context.Context, idToken string) (*provider.GoogleIdentity, error)
}

var (
	ErrUserAlreadyExists     = errors.New("user already exists")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrUnknownRole           = errors.New("unknown user type")
	ErrGoogleSignInDisabled  = errors.New("google sign-in is not configured")
	ErrIdentityNoLongerValid = errors.New("token subject no longer exists")
)

type authUsecase struct {
	userRepo repository.UserRepository
	codec    *session.Codec
	google   GoogleTokenVerifier
	logger   *zerolog.Logger
}

// NewAuthUsecase creates an AuthUsecase. google may be nil, which disables Google sign-in.
func NewAuthUsecase(
	userRepo repository.UserRepository,
	codec *session.Codec,
	google GoogleTokenVerifier,
	logger *zerolog.Logger,
) AuthUsecase {
	return &authUsecase{
		userRepo: userRepo,
		codec:    codec,
		google:   google,
		logger:   logger,
	}
}

func (u *authUsecase) Register(ctx context.Context, params RegisterParams) (*model.User, error) {
	if !params.Role.Valid() {
		return nil, &apperror.Error{Kind: apperror.KindValidation, Message: "Invalid userType", Err: ErrUnknownRole}
	}

	passwordHash, err := security.HashPassword(params.Password)
	if err != nil {
		return nil, apperror.Store(err)
	}

	user, err := u.userRepo.CreateUser(ctx, &model.User{
		Email:        params.Email,
		PasswordHash: passwordHash,
		Role:         params.Role,
		Name:         params.Name,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, apperror.Conflict("User already exists", ErrUserAlreadyExists)
		}

		return nil, apperror.Store(err)
	}

	u.logger.Info().Str("user_id", user.ID.Hex()).Str("user_type", string(user.Role)).Msg("user registered")

	return user, nil
}

func (u *authUsecase) Login(ctx context.Context, params LoginParams) (*LoginResult, error) {
	user, err := u.userRepo.GetUserByEmail(ctx, params.Email)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
			return nil, apperror.Authentication("Invalid credentials", ErrInvalidCredentials)
		}

		return nil, apperror.Store(err)
	}

	if !security.VerifyPassword(params.Password, user.PasswordHash) {
		metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
		return nil, apperror.Authentication("Invalid credentials", ErrInvalidCredentials)
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()

	return u.createSession(user)
}

// GoogleLogin signs in an existing user whose email matches a verified Google identity.
func (u *authUsecase) GoogleLogin(ctx context.Context, idToken string) (*LoginResult, error) {
	if u.google == nil {
		return nil, &apperror.Error{Kind: apperror.KindNotFound, Message: "Resource not found", Err: ErrGoogleSignInDisabled}
	}

	identity, err := u.google.ValidateIDToken(ctx, idToken)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("google_rejected").Inc()
		return nil, apperror.Authentication("Invalid credentials", err)
	}

	user, err := u.userRepo.GetUserByEmail(ctx, identity.Email)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
			return nil, apperror.Authentication("Invalid credentials", ErrInvalidCredentials)
		}

		return nil, apperror.Store(err)
	}

	metrics.LoginAttempts.WithLabelValues("google_success").Inc()

	return u.createSession(user)
}

// Authenticate validates a bearer token and resolves the user it names.
func (u *authUsecase) Authenticate(ctx context.Context, token string) (*model.User, error) {
	claims, err := u.codec.Validate(token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrTokenMissing):
			return nil, apperror.Authentication("Token is missing", err)
		case errors.Is(err, auth.ErrTokenExpired):
			return nil, apperror.Authentication("Token has expired", err)
		default:
			return nil, apperror.Authentication("Invalid token", err)
		}
	}

	return u.ResolveIdentity(ctx, claims)
}

// ResolveIdentity re-fetches the token subject. Only the user id of the claims is trusted.
func (u *authUsecase) ResolveIdentity(ctx context.Context, claims *session.Claims) (*model.User, error) {
	user, err := u.userRepo.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.Authentication("Invalid token", ErrIdentityNoLongerValid)
		}

		return nil, apperror.Store(err)
	}

	return user, nil
}

func (u *authUsecase) createSession(user *model.User) (*LoginResult, error) {
	token, err := u.codec.Mint(user.ID.Hex(), user.Email, user.Role)
	if err != nil {
		return nil, apperror.Store(err)
	}

	return &LoginResult{Token: token, User: user}, nil
}
