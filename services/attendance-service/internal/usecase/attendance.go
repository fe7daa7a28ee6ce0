package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/apperror"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/attendance"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/export"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/metrics"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/model"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/policy"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/repository"
)

// AttendanceUsecase defines the attendance record use cases.
type AttendanceUsecase interface {
	CreateRecord(ctx context.Context, caller policy.Caller, params CreateRecordParams) (*model.AttendanceRecord, error)
	ScanQRCode(ctx context.Context, params ScanParams) (*model.AttendanceRecord, error)
	UpdateStatus(ctx context.Context, caller policy.Caller, id string, params UpdateStatusParams) (*model.AttendanceRecord, error)
	ListByDate(ctx context.Context, date string) ([]*model.AttendanceRecord, error)
	ListByStudent(ctx context.Context, caller policy.Caller, studentID string) ([]*model.AttendanceRecord, error)
	ExportByDate(ctx context.Context, caller policy.Caller, date string) (*export.AttendanceWorkbook, error)
}

// CreateRecordParams defines a manually recorded attendance event. An empty TimeIn defaults to now.
type CreateRecordParams struct {
	StudentID string
	Subject   string
	Status    string
	Date      string
	TimeIn    string
}

// ScanParams defines a QR code check-in.
type ScanParams struct {
	StudentID string
	QRCode    string
}

// UpdateStatusParams changes the status of a record and optionally its time in.
type UpdateStatusParams struct {
	Status string
	TimeIn *string
}

// AttendanceNotifier is told about every created or changed record.
type AttendanceNotifier interface {
	NotifyAttendance(record *model.AttendanceRecord)
}

const invalidDateMessage = "Invalid date format. Use YYYY-MM-DD"

type attendanceUsecase struct {
	recordRepo repository.AttendanceRepository
	policy     *policy.Policy
	notifier   AttendanceNotifier
	location   *time.Location
	now        func() time.Time
	logger     *zerolog.Logger
}

// NewAttendanceUsecase creates an AttendanceUsecase. Default dates and times are taken
// from now in location.
func NewAttendanceUsecase(
	recordRepo repository.AttendanceRepository,
	p *policy.Policy,
	notifier AttendanceNotifier,
	location *time.Location,
	now func() time.Time,
	logger *zerolog.Logger,
) AttendanceUsecase {
	return &attendanceUsecase{
		recordRepo: recordRepo,
		policy:     p,
		notifier:   notifier,
		location:   location,
		now:        now,
		logger:     logger,
	}
}

func (u *attendanceUsecase) CreateRecord(
	ctx context.Context,
	caller policy.Caller,
	params CreateRecordParams,
) (*model.AttendanceRecord, error) {
	if !u.policy.CanCreateAttendance(caller) {
		return nil, apperror.Authorization("Unauthorized")
	}

	if params.StudentID == "" || params.Subject == "" || !attendance.ValidStatus(params.Status) || params.Date == "" {
		return nil, apperror.Validation("Missing required fields")
	}
	if !attendance.ValidDate(params.Date) {
		return nil, apperror.Validation(invalidDateMessage)
	}

	timeIn := params.TimeIn
	if timeIn == "" {
		_, timeIn = attendance.Today(u.now().In(u.location))
	} else if !attendance.ValidTimeIn(timeIn) {
		return nil, apperror.Validation("Invalid timeIn format. Use HH:MM")
	}

	return u.create(ctx, &model.AttendanceRecord{
		StudentID:  params.StudentID,
		Subject:    params.Subject,
		Status:     params.Status,
		Date:       params.Date,
		TimeIn:     timeIn,
		Method:     model.MethodManual,
		RecordedBy: caller.ID,
	})
}

// ScanQRCode records the student present for the subject named by the QR code, today and now.
// It is reachable without a session: holding the physical code stands in for authorization.
func (u *attendanceUsecase) ScanQRCode(ctx context.Context, params ScanParams) (*model.AttendanceRecord, error) {
	if params.StudentID == "" || params.QRCode == "" {
		return nil, apperror.Validation("Missing required fields")
	}

	payload, err := attendance.ParseQRCode(params.QRCode)
	if err != nil {
		return nil, &apperror.Error{Kind: apperror.KindValidation, Message: "Invalid QR code data", Err: err}
	}

	date, timeIn := attendance.Today(u.now().In(u.location))

	return u.create(ctx, &model.AttendanceRecord{
		StudentID: params.StudentID,
		Subject:   payload.SubjectName,
		SubjectID: payload.SubjectID,
		Status:    model.StatusPresent,
		Date:      date,
		TimeIn:    timeIn,
		Method:    model.MethodQRScan,
	})
}

func (u *attendanceUsecase) UpdateStatus(
	ctx context.Context,
	caller policy.Caller,
	id string,
	params UpdateStatusParams,
) (*model.AttendanceRecord, error) {
	if !u.policy.CanUpdateAttendance(caller) {
		return nil, apperror.Authorization("Unauthorized")
	}

	if !attendance.ValidStatus(params.Status) {
		return nil, apperror.Validation("Missing status field")
	}
	// An empty time in keeps the stored one.
	if params.TimeIn != nil && *params.TimeIn == "" {
		params.TimeIn = nil
	}
	if params.TimeIn != nil && !attendance.ValidTimeIn(*params.TimeIn) {
		return nil, apperror.Validation("Invalid timeIn format. Use HH:MM")
	}

	current, err := u.recordRepo.GetRecord(ctx, id)
	if err != nil {
		return nil, recordError(err)
	}

	record, err := u.recordRepo.UpdateRecordStatus(ctx, id, repository.UpdateRecordParams{
		Status: params.Status,
		TimeIn: params.TimeIn,
	})
	if err != nil {
		return nil, recordError(err)
	}

	u.logger.Info().
		Str("record_id", id).
		Str("previous_status", current.Status).
		Str("status", record.Status).
		Str("caller_id", caller.ID).
		Msg("attendance status updated")
	u.notifier.NotifyAttendance(record)

	return record, nil
}

func (u *attendanceUsecase) ListByDate(ctx context.Context, date string) ([]*model.AttendanceRecord, error) {
	if !attendance.ValidDate(date) {
		return nil, apperror.Validation(invalidDateMessage)
	}

	records, err := u.recordRepo.ListRecordsByDate(ctx, date)
	if err != nil {
		return nil, apperror.Store(err)
	}

	return records, nil
}

func (u *attendanceUsecase) ListByStudent(
	ctx context.Context,
	caller policy.Caller,
	studentID string,
) ([]*model.AttendanceRecord, error) {
	if !u.policy.CanViewAttendanceByStudent(caller, studentID) {
		return nil, apperror.Authorization("Unauthorized")
	}

	records, err := u.recordRepo.ListRecordsByStudent(ctx, studentID)
	if err != nil {
		return nil, apperror.Store(err)
	}

	return records, nil
}

func (u *attendanceUsecase) ExportByDate(
	ctx context.Context,
	caller policy.Caller,
	date string,
) (*export.AttendanceWorkbook, error) {
	if !u.policy.CanCreateAttendance(caller) {
		return nil, apperror.Authorization("Teacher privileges required")
	}

	records, err := u.ListByDate(ctx, date)
	if err != nil {
		return nil, err
	}

	workbook, err := export.NewAttendanceWorkbook(date, records)
	if err != nil {
		return nil, apperror.Store(err)
	}

	return workbook, nil
}

func (u *attendanceUsecase) create(ctx context.Context, record *model.AttendanceRecord) (*model.AttendanceRecord, error) {
	created, err := u.recordRepo.CreateRecord(ctx, record)
	if err != nil {
		return nil, apperror.Store(err)
	}

	metrics.RecordsCreated.WithLabelValues(string(created.Method)).Inc()
	u.logger.Info().
		Str("record_id", created.ID.Hex()).
		Str("student_id", created.StudentID).
		Str("status", created.Status).
		Str("method", string(created.Method)).
		Msg("attendance recorded")
	u.notifier.NotifyAttendance(created)

	return created, nil
}

func recordError(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperror.NotFound("Attendance record not found")
	}
	return apperror.Store(err)
}
