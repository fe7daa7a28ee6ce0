package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/model"
)

const duplicateKeyCode = 11000

// duplicateEmailError mirrors the error the server returns on a unique index violation
// so that mongo.IsDuplicateKeyError holds for both implementations.
func duplicateEmailError() error {
	return mongo.WriteException{
		WriteErrors: []mongo.WriteError{{Code: duplicateKeyCode, Message: "duplicate key: email"}},
	}
}

type userMemoryRepository struct {
	mu    sync.RWMutex
	users []*model.User
}

// NewUserMemoryRepository returns a UserRepository backed by process memory.
func NewUserMemoryRepository() UserRepository {
	return &userMemoryRepository{}
}

func (r *userMemoryRepository) CreateUser(_ context.Context, user *model.User) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.Email == user.Email {
			return nil, duplicateEmailError()
		}
	}

	now := time.Now()
	user.ID = bson.NewObjectID()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users = append(r.users, cloneUser(user))

	return user, nil
}

func (r *userMemoryRepository) GetUser(_ context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i := r.indexOf(id); i >= 0 {
		return cloneUser(r.users[i]), nil
	}
	return nil, mongo.ErrNoDocuments
}

func (r *userMemoryRepository) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if user.Email == email {
			return cloneUser(user), nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (r *userMemoryRepository) UpdateUser(_ context.Context, id string, params UpdateUserParams) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return nil, mongo.ErrNoDocuments
	}
	if params.empty() {
		return nil, ErrNoUserFields
	}

	user := r.users[i]
	if params.Name != nil {
		user.Name = *params.Name
	}
	if params.PasswordHash != nil {
		user.PasswordHash = *params.PasswordHash
	}
	if params.Role != nil {
		user.Role = *params.Role
	}
	if params.StudentIDs != nil {
		user.StudentIDs = slices.Clone(*params.StudentIDs)
	}
	user.UpdatedAt = time.Now()

	return cloneUser(user), nil
}

func (r *userMemoryRepository) DeleteUser(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexOf(id); i >= 0 {
		r.users = slices.Delete(r.users, i, i+1)
	}
	return nil
}

func (r *userMemoryRepository) ListUsers(_ context.Context, params FilterUsersParams) ([]*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := []*model.User{}
	for _, user := range r.users {
		if params.Role != nil && user.Role != *params.Role {
			continue
		}
		if params.StudentID != nil && !slices.Contains(user.StudentIDs, *params.StudentID) {
			continue
		}
		users = append(users, cloneUser(user))
	}

	return users, nil
}

func (r *userMemoryRepository) indexOf(id string) int {
	return slices.IndexFunc(r.users, func(u *model.User) bool { return u.ID.Hex() == id })
}

func cloneUser(u *model.User) *model.User {
	c := *u
	c.StudentIDs = slices.Clone(u.StudentIDs)
	return &c
}

type attendanceMemoryRepository struct {
	mu      sync.RWMutex
	records []*model.AttendanceRecord
}

// NewAttendanceMemoryRepository returns an AttendanceRepository backed by process memory.
func NewAttendanceMemoryRepository() AttendanceRepository {
	return &attendanceMemoryRepository{}
}

func (r *attendanceMemoryRepository) CreateRecord(
	_ context.Context,
	record *model.AttendanceRecord,
) (*model.AttendanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	record.ID = bson.NewObjectID()
	record.CreatedAt = now
	record.UpdatedAt = now

	c := *record
	r.records = append(r.records, &c)

	return record, nil
}

func (r *attendanceMemoryRepository) GetRecord(_ context.Context, id string) (*model.AttendanceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i := r.indexOf(id); i >= 0 {
		c := *r.records[i]
		return &c, nil
	}
	return nil, mongo.ErrNoDocuments
}

func (r *attendanceMemoryRepository) UpdateRecordStatus(
	_ context.Context,
	id string,
	params UpdateRecordParams,
) (*model.AttendanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return nil, mongo.ErrNoDocuments
	}

	record := r.records[i]
	record.Status = params.Status
	if params.TimeIn != nil {
		record.TimeIn = *params.TimeIn
	}
	record.UpdatedAt = time.Now()

	c := *record
	return &c, nil
}

func (r *attendanceMemoryRepository) ListRecordsByDate(
	_ context.Context,
	date string,
) ([]*model.AttendanceRecord, error) {
	return r.filter(func(rec *model.AttendanceRecord) bool { return rec.Date == date }), nil
}

func (r *attendanceMemoryRepository) ListRecordsByStudent(
	_ context.Context,
	studentID string,
) ([]*model.AttendanceRecord, error) {
	return r.filter(func(rec *model.AttendanceRecord) bool { return rec.StudentID == studentID }), nil
}

func (r *attendanceMemoryRepository) filter(match func(*model.AttendanceRecord) bool) []*model.AttendanceRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := []*model.AttendanceRecord{}
	for _, rec := range r.records {
		if match(rec) {
			c := *rec
			records = append(records, &c)
		}
	}
	return records
}

func (r *attendanceMemoryRepository) indexOf(id string) int {
	return slices.IndexFunc(r.records, func(rec *model.AttendanceRecord) bool { return rec.ID.Hex() == id })
}
