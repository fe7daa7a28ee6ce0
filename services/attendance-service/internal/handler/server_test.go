package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/model"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/policy"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/repository"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/session"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/usecase"
	"github.com/vasapolrittideah/school-attendance-api/shared/auth"
	"github.com/vasapolrittideah/school-attendance-api/shared/security"
)

const testSecret = "handler-test-secret-0123456789"

var fixedNow = time.Date(2024, 5, 6, 8, 45, 0, 0, time.UTC)

type nopNotifier struct{}

func (nopNotifier) NotifyAttendance(*model.AttendanceRecord) {}

type testEnv struct {
	handler http.Handler
	users   repository.UserRepository
	codec   *session.Codec
}

type envOptions struct {
	mode        policy.OwnershipMode
	healthCheck func(ctx context.Context) error
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	logger := zerolog.Nop()
	if opts.mode == "" {
		opts.mode = policy.OwnershipPassthrough
	}

	users := repository.NewUserMemoryRepository()
	records := repository.NewAttendanceMemoryRepository()
	codec := session.NewCodec(auth.NewJWTAuthenticator("school-attendance-api", "school-attendance-api"), testSecret, 24*time.Hour)
	p := policy.New(opts.mode, &logger)

	server := NewServer(ServerParams{
		Auth:               usecase.NewAuthUsecase(users, codec, nil, &logger),
		Users:              usecase.NewUserUsecase(users, p, &logger),
		Attendance:         usecase.NewAttendanceUsecase(records, p, nopNotifier{}, time.UTC, func() time.Time { return fixedNow }, &logger),
		Policy:             p,
		HealthCheck:        opts.healthCheck,
		CORSAllowedOrigins: []string{"*"},
		Logger:             &logger,
	})

	return &testEnv{handler: server.Router(), users: users, codec: codec}
}

func (e *testEnv) seedUser(t *testing.T, email string, role model.Role) (*model.User, string) {
	t.Helper()
	hash, err := security.HashPassword("password-123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user, err := e.users.CreateUser(context.Background(), &model.User{Email: email, PasswordHash: hash, Role: role, Name: string(role)})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	token, err := e.codec.Mint(user.ID.Hex(), user.Email, user.Role)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return user, token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	body := decode[errorResponse](t, rec)
	if body.Success || body.Error != status {
		t.Fatalf("unexpected envelope %+v", body)
	}
	if message != "" && body.Message != message {
		t.Fatalf("expected message %q, got %q", message, body.Message)
	}
}

func TestRegisterLoginProfile(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "teach@school.test", "password": "s3cret!", "userType": "teacher", "name": "Tess",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	registered := decode[RegisterResponse](t, rec)
	if registered.UserID == "" {
		t.Fatal("expected user id")
	}

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "teach@school.test", "password": "s3cret!"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	login := decode[LoginResponse](t, rec)
	if login.User.ID != registered.UserID || login.User.UserType != "teacher" || login.User.Name != "Tess" {
		t.Fatalf("unexpected login user %+v", login.User)
	}

	claims, err := env.codec.Validate(login.Token)
	if err != nil || claims.UserID != registered.UserID || claims.UserType != "teacher" {
		t.Fatalf("unexpected claims %+v, %v", claims, err)
	}

	rec = env.do(t, http.MethodGet, "/api/auth/profile", login.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("profile: expected 200, got %d", rec.Code)
	}
	if profile := decode[ProfileResponse](t, rec); profile.Email != "teach@school.test" {
		t.Fatalf("unexpected profile %+v", profile)
	}
}

func TestRegisterFailures(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.seedUser(t, "taken@school.test", model.RoleParent)

	rec := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "taken@school.test", "password": "x", "userType": "parent",
	})
	expectError(t, rec, http.StatusConflict, "User already exists")

	rec = env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": "new@school.test"})
	expectError(t, rec, http.StatusBadRequest, "")

	rec = env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "new@school.test", "password": "x", "userType": "janitor",
	})
	expectError(t, rec, http.StatusBadRequest, "")

	rec = env.do(t, http.MethodPost, "/api/auth/register", "", "{broken")
	expectError(t, rec, http.StatusBadRequest, "Invalid request body")
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.seedUser(t, "a@school.test", model.RoleStudent)

	rec := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@school.test", "password": "nope"})
	expectError(t, rec, http.StatusUnauthorized, "Invalid credentials")

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ghost@school.test", "password": "nope"})
	expectError(t, rec, http.StatusUnauthorized, "Invalid credentials")
}

func TestAuthenticationFailures(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	user, _ := env.seedUser(t, "a@school.test", model.RoleStudent)

	expectError(t, env.do(t, http.MethodGet, "/api/auth/profile", "", nil), http.StatusUnauthorized, "Token is missing")
	expectError(t, env.do(t, http.MethodGet, "/api/auth/profile", "garbage", nil), http.StatusUnauthorized, "Invalid token")

	expired, _ := env.codec.WithClock(func() time.Time { return time.Now().Add(-48 * time.Hour) }).
		Mint(user.ID.Hex(), user.Email, user.Role)
	expectError(t, env.do(t, http.MethodGet, "/api/auth/profile", expired, nil), http.StatusUnauthorized, "Token has expired")
}

func TestDeletedUserTokenIsRejected(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	_, adminToken := env.seedUser(t, "admin@school.test", model.RoleAdmin)
	victim, victimToken := env.seedUser(t, "victim@school.test", model.RoleParent)

	rec := env.do(t, http.MethodDelete, "/api/users/"+victim.ID.Hex(), adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, "/api/users/"+victim.ID.Hex(), adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat delete: expected 200, got %d", rec.Code)
	}

	expectError(t, env.do(t, http.MethodGet, "/api/auth/profile", victimToken, nil), http.StatusUnauthorized, "Invalid token")
}

func TestUserRoutes(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	_, adminToken := env.seedUser(t, "admin@school.test", model.RoleAdmin)
	student, studentToken := env.seedUser(t, "s@school.test", model.RoleStudent)
	other, _ := env.seedUser(t, "o@school.test", model.RoleStudent)

	rec := env.do(t, http.MethodGet, "/api/users/", adminToken, nil)
	if rec.Code != http.StatusOK || len(decode[[]UserResponse](t, rec)) != 3 {
		t.Fatalf("admin list: unexpected %d %s", rec.Code, rec.Body.String())
	}
	expectError(t, env.do(t, http.MethodGet, "/api/users/", studentToken, nil), http.StatusForbidden, "Admin privileges required")

	rec = env.do(t, http.MethodGet, "/api/users/"+student.ID.Hex(), studentToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("self read: expected 200, got %d", rec.Code)
	}
	expectError(t, env.do(t, http.MethodGet, "/api/users/"+other.ID.Hex(), studentToken, nil), http.StatusForbidden, "Unauthorized")
	expectError(t, env.do(t, http.MethodGet, "/api/users/000000000000000000000000", adminToken, nil), http.StatusNotFound, "User not found")

	expectError(t, env.do(t, http.MethodDelete, "/api/users/"+other.ID.Hex(), studentToken, nil), http.StatusForbidden, "Admin privileges required")
}

func TestSelfPatchDropsEmailAndRole(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	student, token := env.seedUser(t, "s@school.test", model.RoleStudent)

	rec := env.do(t, http.MethodPut, "/api/users/"+student.ID.Hex(), token, map[string]string{
		"email": "new@x.com", "role": "admin", "name": "Sam",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	updated := decode[UserResponse](t, rec)
	if updated.Email != "s@school.test" || updated.UserType != "student" || updated.Name != "Sam" {
		t.Fatalf("unexpected user %+v", updated)
	}

	expectError(t, env.do(t, http.MethodPut, "/api/users/"+student.ID.Hex(), token, nil), http.StatusBadRequest, "No data provided")
	expectError(t, env.do(t, http.MethodPut, "/api/users/"+student.ID.Hex(), token, "{}"), http.StatusBadRequest, "No data provided")
}

func TestAdminPatchChangesRole(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	_, adminToken := env.seedUser(t, "admin@school.test", model.RoleAdmin)
	target, _ := env.seedUser(t, "p@school.test", model.RoleStudent)

	rec := env.do(t, http.MethodPut, "/api/users/"+target.ID.Hex(), adminToken, map[string]any{
		"userType": "parent", "studentIds": []string{"S1"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	updated := decode[UserResponse](t, rec)
	if updated.UserType != "parent" || len(updated.StudentIDs) != 1 {
		t.Fatalf("unexpected user %+v", updated)
	}
}

func TestCreateAttendance(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	_, teacherToken := env.seedUser(t, "t@school.test", model.RoleTeacher)
	_, parentToken := env.seedUser(t, "p@school.test", model.RoleParent)

	// Rejected before the body is read.
	expectError(t, env.do(t, http.MethodPost, "/api/attendance/", parentToken, nil), http.StatusForbidden, "Unauthorized")

	for _, date := range []string{"2024-13-40", "2024/01/01"} {
		rec := env.do(t, http.MethodPost, "/api/attendance/", teacherToken, map[string]string{
			"studentId": "S1", "subject": "Math", "status": "present", "date": date,
		})
		expectError(t, rec, http.StatusBadRequest, "Invalid date format. Use YYYY-MM-DD")
	}

	rec := env.do(t, http.MethodPost, "/api/attendance/", teacherToken, map[string]string{"studentId": "S1"})
	expectError(t, rec, http.StatusBadRequest, "")

	rec = env.do(t, http.MethodPost, "/api/attendance/", teacherToken, map[string]string{
		"studentId": "S1", "subject": "Math", "status": "absent", "date": "2024-05-06",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[RecordCreatedResponse](t, rec)

	rec = env.do(t, http.MethodPut, "/api/attendance/"+created.RecordID, teacherToken, map[string]string{"status": "late"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if record := decode[RecordResponse](t, rec); record.Status != "late" || record.TimeIn != "08:45" {
		t.Fatalf("unexpected record %+v", record)
	}

	rec = env.do(t, http.MethodPut, "/api/attendance/"+created.RecordID, teacherToken, map[string]string{"status": "present", "timeIn": ""})
	if rec.Code != http.StatusOK {
		t.Fatalf("update with empty timeIn: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if record := decode[RecordResponse](t, rec); record.Status != "present" || record.TimeIn != "08:45" {
		t.Fatalf("expected stored time in to be kept, got %+v", record)
	}

	expectError(t, env.do(t, http.MethodPut, "/api/attendance/"+created.RecordID, teacherToken, map[string]string{}), http.StatusBadRequest, "")
	expectError(t, env.do(t, http.MethodPut, "/api/attendance/"+created.RecordID, parentToken, map[string]string{"status": "late"}), http.StatusForbidden, "Unauthorized")
	expectError(t, env.do(t, http.MethodPut, "/api/attendance/000000000000000000000000", teacherToken, map[string]string{"status": "late"}), http.StatusNotFound, "")
}

func TestScanWithoutAuthentication(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	_, teacherToken := env.seedUser(t, "t@school.test", model.RoleTeacher)

	rec := env.do(t, http.MethodPost, "/api/attendance/scan", "", map[string]string{
		"studentId": "S1",
		"qrCode":    `{"subjectId":"m1","subjectName":"Math"}`,
		"status":    "absent",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/attendance/date/2024-05-06", teacherToken, nil)
	records := decode[[]RecordResponse](t, rec)
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	if r := records[0]; r.Status != "present" || r.TimeIn != "08:45" || r.Subject != "Math" || r.SubjectID != "m1" || r.Method != "qr_scan" {
		t.Fatalf("unexpected scanned record %+v", r)
	}

	expectError(t, env.do(t, http.MethodPost, "/api/attendance/scan", "", map[string]string{"studentId": "S1", "qrCode": "nope"}), http.StatusBadRequest, "Invalid QR code data")
	expectError(t, env.do(t, http.MethodPost, "/api/attendance/scan", "", map[string]string{"studentId": "S1"}), http.StatusBadRequest, "")
}

func TestAttendanceQueries(t *testing.T) {
	env := newTestEnv(t, envOptions{mode: policy.OwnershipEnforce})
	_, teacherToken := env.seedUser(t, "t@school.test", model.RoleTeacher)
	student, studentToken := env.seedUser(t, "s@school.test", model.RoleStudent)

	env.do(t, http.MethodPost, "/api/attendance/", teacherToken, map[string]string{
		"studentId": student.ID.Hex(), "subject": "Math", "status": "present", "date": "2024-05-06",
	})

	expectError(t, env.do(t, http.MethodGet, "/api/attendance/date/2024-02-30", studentToken, nil), http.StatusBadRequest, "Invalid date format. Use YYYY-MM-DD")

	rec := env.do(t, http.MethodGet, "/api/attendance/student/"+student.ID.Hex(), studentToken, nil)
	if rec.Code != http.StatusOK || len(decode[[]RecordResponse](t, rec)) != 1 {
		t.Fatalf("own records: unexpected %d %s", rec.Code, rec.Body.String())
	}
	expectError(t, env.do(t, http.MethodGet, "/api/attendance/student/someone-else", studentToken, nil), http.StatusForbidden, "Unauthorized")

	rec = env.do(t, http.MethodGet, "/api/attendance/export/2024-05-06", teacherToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("expected workbook bytes")
	}
	expectError(t, env.do(t, http.MethodGet, "/api/attendance/export/2024-05-06", studentToken, nil), http.StatusForbidden, "Teacher privileges required")
}

func TestFrameworkErrors(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	expectError(t, env.do(t, http.MethodGet, "/api/nothing-here", "", nil), http.StatusNotFound, "Resource not found")
	expectError(t, env.do(t, http.MethodPatch, "/api/auth/login", "", nil), http.StatusMethodNotAllowed, "Method not allowed")
	expectError(t, env.do(t, http.MethodPost, "/api/auth/google", "", map[string]string{"idToken": "x"}), http.StatusNotFound, "Resource not found")
}

func TestRecovererHidesPanics(t *testing.T) {
	logger := zerolog.Nop()
	s := &Server{logger: &logger}
	h := s.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	expectError(t, rec, http.StatusInternalServerError, "Internal server error")
	if bytes.Contains(rec.Body.Bytes(), []byte("boom")) {
		t.Fatal("panic value must not leak")
	}
}

func TestHealth(t *testing.T) {
	ok := newTestEnv(t, envOptions{})
	rec := ok.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	down := newTestEnv(t, envOptions{healthCheck: func(context.Context) error { return errors.New("no primary") }})
	expectError(t, down.do(t, http.MethodGet, "/health", "", nil), http.StatusServiceUnavailable, "Store unavailable")
}
