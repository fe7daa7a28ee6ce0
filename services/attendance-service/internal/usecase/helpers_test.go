package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/apperror"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/model"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/policy"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/repository"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/session"
	"github.com/vasapolrittideah/school-attendance-api/shared/auth"
	"github.com/vasapolrittideah/school-attendance-api/shared/provider"
)

const testSecret = "usecase-test-secret-0123456789"

type recordingNotifier struct {
	mu      sync.Mutex
	records []model.AttendanceRecord
}

func (n *recordingNotifier) NotifyAttendance(record *model.AttendanceRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.records = append(n.records, *record)
}

type fakeGoogle struct {
	email string
	err   error
}

func (f fakeGoogle) ValidateIDToken(_ context.Context, _ string) (*provider.GoogleIdentity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &provider.GoogleIdentity{Subject: "g-1", Email: f.email}, nil
}

func nopLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

func newTestCodec() *session.Codec {
	return session.NewCodec(auth.NewJWTAuthenticator("school-attendance-api", "school-attendance-api"), testSecret, 24*time.Hour)
}

func newTestPolicy(mode policy.OwnershipMode) *policy.Policy {
	return policy.New(mode, nopLogger())
}

func mustCreateUser(t *testing.T, repo repository.UserRepository, email string, role model.Role) *model.User {
	t.Helper()
	user, err := repo.CreateUser(context.Background(), &model.User{Email: email, Role: role, Name: string(role)})
	if err != nil {
		t.Fatalf("seed user %s: %v", email, err)
	}
	return user
}

func assertKind(t *testing.T, err error, kind apperror.Kind) {
	t.Helper()
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.Error of kind %s, got %v", kind, err)
	}
	if appErr.Kind != kind {
		t.Fatalf("expected kind %s, got %s (%v)", kind, appErr.Kind, err)
	}
}
