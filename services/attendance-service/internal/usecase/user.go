package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/apperror"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/model"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/policy"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/repository"
	"github.com/vasapolrittideah/school-attendance-api/shared/security"
)

// UserUsecase defines the profile management use cases.
type UserUsecase interface {
	ListUsers(ctx context.Context, caller policy.Caller) ([]*model.User, error)
	GetUser(ctx context.Context, caller policy.Caller, id string) (*model.User, error)
	UpdateUser(ctx context.Context, caller policy.Caller, id string, patch policy.UserPatch) (*model.User, error)
	DeleteUser(ctx context.Context, caller policy.Caller, id string) error
}

type userUsecase struct {
	userRepo repository.UserRepository
	policy   *policy.Policy
	logger   *zerolog.Logger
}

// NewUserUsecase creates a UserUsecase that authorizes every call with p.
func NewUserUsecase(userRepo repository.UserRepository, p *policy.Policy, logger *zerolog.Logger) UserUsecase {
	return &userUsecase{
		userRepo: userRepo,
		policy:   p,
		logger:   logger,
	}
}

func (u *userUsecase) ListUsers(ctx context.Context, caller policy.Caller) ([]*model.User, error) {
	if !u.policy.CanListUsers(caller) {
		return nil, apperror.Authorization("Admin privileges required")
	}

	users, err := u.userRepo.ListUsers(ctx, repository.FilterUsersParams{})
	if err != nil {
		return nil, apperror.Store(err)
	}

	return users, nil
}

func (u *userUsecase) GetUser(ctx context.Context, caller policy.Caller, id string) (*model.User, error) {
	if !u.policy.CanReadUser(caller, id) {
		return nil, apperror.Authorization("Unauthorized")
	}

	return u.getUser(ctx, id)
}

// UpdateUser applies the part of patch the caller is allowed to write. Fields the caller
// may not change are dropped without failing the request.
func (u *userUsecase) UpdateUser(
	ctx context.Context,
	caller policy.Caller,
	id string,
	patch policy.UserPatch,
) (*model.User, error) {
	if patch.Empty() {
		return nil, apperror.Validation("No data provided")
	}

	decision := u.policy.CanWriteUser(caller, id, patch)
	if !decision.Allowed {
		return nil, apperror.Authorization("Unauthorized")
	}
	if len(decision.Dropped) > 0 {
		u.logger.Info().
			Str("caller_id", caller.ID).
			Str("target_id", id).
			Strs("dropped", decision.Dropped).
			Msg("ignored fields the caller may not change")
	}

	params := repository.UpdateUserParams{
		Name:       decision.Patch.Name,
		StudentIDs: decision.Patch.StudentIDs,
	}

	if role := decision.Patch.Role; role != nil {
		if !role.Valid() {
			return nil, &apperror.Error{Kind: apperror.KindValidation, Message: "Invalid userType", Err: ErrUnknownRole}
		}
		params.Role = role
	}

	if password := decision.Patch.Password; password != nil {
		if *password == "" {
			return nil, apperror.Validation("Password must not be empty")
		}
		hash, err := security.HashPassword(*password)
		if err != nil {
			return nil, apperror.Store(err)
		}
		params.PasswordHash = &hash
	}

	if params.Name == nil && params.PasswordHash == nil && params.Role == nil && params.StudentIDs == nil {
		return u.getUser(ctx, id)
	}

	user, err := u.userRepo.UpdateUser(ctx, id, params)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("User not found")
		}
		return nil, apperror.Store(err)
	}

	return user, nil
}

// DeleteUser hard-deletes the user. Deleting a user that does not exist succeeds.
func (u *userUsecase) DeleteUser(ctx context.Context, caller policy.Caller, id string) error {
	if !u.policy.CanDeleteUser(caller) {
		return apperror.Authorization("Admin privileges required")
	}

	if err := u.userRepo.DeleteUser(ctx, id); err != nil {
		return apperror.Store(err)
	}

	u.logger.Info().Str("caller_id", caller.ID).Str("user_id", id).Msg("user deleted")

	return nil
}

func (u *userUsecase) getUser(ctx context.Context, id string) (*model.User, error) {
	user, err := u.userRepo.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("User not found")
		}
		return nil, apperror.Store(err)
	}

	return user, nil
}
