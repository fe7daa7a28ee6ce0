package handler

import (
	"time"

	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/model"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/policy"
)

type RegisterRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
	UserType string `json:"userType" validate:"required,oneof=admin teacher parent student"`
	Name     string `json:"name"`
}

type RegisterResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type GoogleLoginRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}

type LoginResponse struct {
	Token string          `json:"token"`
	User  ProfileResponse `json:"user"`
}

type ProfileResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	UserType string `json:"userType"`
}

func newProfileResponse(user *model.User) ProfileResponse {
	return ProfileResponse{
		ID:       user.ID.Hex(),
		Email:    user.Email,
		Name:     user.Name,
		UserType: string(user.Role),
	}
}

type UserResponse struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	UserType   string    `json:"userType"`
	StudentIDs []string  `json:"studentIds,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func newUserResponse(user *model.User) UserResponse {
	return UserResponse{
		ID:         user.ID.Hex(),
		Email:      user.Email,
		Name:       user.Name,
		UserType:   string(user.Role),
		StudentIDs: user.StudentIDs,
		CreatedAt:  user.CreatedAt,
		UpdatedAt:  user.UpdatedAt,
	}
}

// UpdateUserRequest is a partial profile update. The role may be sent as userType or role.
type UpdateUserRequest struct {
	Name       *string   `json:"name"`
	Password   *string   `json:"password"`
	Email      *string   `json:"email"`
	UserType   *string   `json:"userType"`
	Role       *string   `json:"role"`
	StudentIDs *[]string `json:"studentIds"`
}

func (r UpdateUserRequest) patch() policy.UserPatch {
	patch := policy.UserPatch{
		Name:       r.Name,
		Password:   r.Password,
		Email:      r.Email,
		StudentIDs: r.StudentIDs,
	}

	userType := r.UserType
	if userType == nil {
		userType = r.Role
	}
	if userType != nil {
		role := model.Role(*userType)
		patch.Role = &role
	}

	return patch
}

type CreateRecordRequest struct {
	StudentID string `json:"studentId" validate:"required"`
	Subject   string `json:"subject"   validate:"required"`
	Status    string `json:"status"    validate:"required"`
	Date      string `json:"date"      validate:"required"`
	TimeIn    string `json:"timeIn"`
}

type ScanRequest struct {
	StudentID string `json:"studentId" validate:"required"`
	QRCode    string `json:"qrCode"    validate:"required"`
}

type UpdateRecordRequest struct {
	Status string  `json:"status" validate:"required"`
	TimeIn *string `json:"timeIn"`
}

type RecordCreatedResponse struct {
	Message  string `json:"message"`
	RecordID string `json:"recordId"`
}

type RecordResponse struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"studentId"`
	Subject    string    `json:"subject"`
	SubjectID  string    `json:"subjectId,omitempty"`
	Status     string    `json:"status"`
	Date       string    `json:"date"`
	TimeIn     string    `json:"timeIn"`
	Method     string    `json:"method"`
	RecordedBy string    `json:"recordedBy,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func newRecordResponse(record *model.AttendanceRecord) RecordResponse {
	return RecordResponse{
		ID:         record.ID.Hex(),
		StudentID:  record.StudentID,
		Subject:    record.Subject,
		SubjectID:  record.SubjectID,
		Status:     record.Status,
		Date:       record.Date,
		TimeIn:     record.TimeIn,
		Method:     string(record.Method),
		RecordedBy: record.RecordedBy,
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}
}

func newRecordResponses(records []*model.AttendanceRecord) []RecordResponse {
	out := make([]RecordResponse, 0, len(records))
	for _, record := range records {
		out = append(out, newRecordResponse(record))
	}
	return out
}
