package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/apperror"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/model"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/policy"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/repository"
)

var fixedNow = time.Date(2024, 5, 6, 8, 45, 0, 0, time.UTC)

var (
	teacherCaller = policy.Caller{ID: "t1", Role: model.RoleTeacher}
	parentCaller  = policy.Caller{ID: "p1", Role: model.RoleParent, StudentIDs: []string{"S1"}}
	studentCaller = policy.Caller{ID: "S1", Role: model.RoleStudent}
)

func newAttendanceFixture(mode policy.OwnershipMode) (AttendanceUsecase, repository.AttendanceRepository, *recordingNotifier) {
	records := repository.NewAttendanceMemoryRepository()
	notifier := &recordingNotifier{}
	uc := NewAttendanceUsecase(records, newTestPolicy(mode), notifier, time.UTC, func() time.Time { return fixedNow }, nopLogger())
	return uc, records, notifier
}

func TestCreateRecord(t *testing.T) {
	ctx := context.Background()
	uc, _, notifier := newAttendanceFixture(policy.OwnershipPassthrough)

	record, err := uc.CreateRecord(ctx, teacherCaller, CreateRecordParams{
		StudentID: "S1", Subject: "Math", Status: "absent", Date: "2024-05-06",
	})
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	if record.TimeIn != "08:45" {
		t.Fatalf("expected default time in 08:45, got %q", record.TimeIn)
	}
	if record.Method != model.MethodManual || record.RecordedBy != "t1" {
		t.Fatalf("unexpected provenance: %+v", record)
	}
	if len(notifier.records) != 1 || notifier.records[0].Status != "absent" {
		t.Fatalf("expected one notification, got %+v", notifier.records)
	}

	withTime, err := uc.CreateRecord(ctx, teacherCaller, CreateRecordParams{
		StudentID: "S1", Subject: "Math", Status: "excused", Date: "2024-05-06", TimeIn: "07:10",
	})
	if err != nil || withTime.TimeIn != "07:10" || withTime.Status != "excused" {
		t.Fatalf("expected explicit time in and free-form status, got %+v, %v", withTime, err)
	}
}

func TestCreateRecordRejections(t *testing.T) {
	ctx := context.Background()
	uc, _, notifier := newAttendanceFixture(policy.OwnershipPassthrough)

	valid := CreateRecordParams{StudentID: "S1", Subject: "Math", Status: "present", Date: "2024-05-06"}

	_, err := uc.CreateRecord(ctx, parentCaller, valid)
	assertKind(t, err, apperror.KindAuthorization)
	_, err = uc.CreateRecord(ctx, studentCaller, valid)
	assertKind(t, err, apperror.KindAuthorization)

	for _, date := range []string{"2024-13-40", "2024/01/01"} {
		bad := valid
		bad.Date = date
		_, err = uc.CreateRecord(ctx, teacherCaller, bad)
		assertKind(t, err, apperror.KindValidation)
	}

	missing := valid
	missing.Subject = ""
	_, err = uc.CreateRecord(ctx, teacherCaller, missing)
	assertKind(t, err, apperror.KindValidation)

	badTime := valid
	badTime.TimeIn = "8am"
	_, err = uc.CreateRecord(ctx, teacherCaller, badTime)
	assertKind(t, err, apperror.KindValidation)

	if len(notifier.records) != 0 {
		t.Fatal("rejected requests must not notify")
	}
}

func TestScanQRCode(t *testing.T) {
	ctx := context.Background()
	uc, _, notifier := newAttendanceFixture(policy.OwnershipPassthrough)

	record, err := uc.ScanQRCode(ctx, ScanParams{StudentID: "S1", QRCode: `{"subjectId":"m1","subjectName":"Math"}`})
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if record.Status != model.StatusPresent || record.Date != "2024-05-06" || record.TimeIn != "08:45" {
		t.Fatalf("expected present today now, got %+v", record)
	}
	if record.Subject != "Math" || record.SubjectID != "m1" || record.Method != model.MethodQRScan {
		t.Fatalf("unexpected subject or method: %+v", record)
	}
	if len(notifier.records) != 1 {
		t.Fatal("expected scan to notify")
	}

	for _, params := range []ScanParams{
		{StudentID: "", QRCode: `{"subjectId":"m1","subjectName":"Math"}`},
		{StudentID: "S1", QRCode: ""},
		{StudentID: "S1", QRCode: "{not json"},
		{StudentID: "S1", QRCode: `{"subjectId":"m1"}`},
	} {
		_, err := uc.ScanQRCode(ctx, params)
		assertKind(t, err, apperror.KindValidation)
	}
}

func TestScanUsesConfiguredLocation(t *testing.T) {
	records := repository.NewAttendanceMemoryRepository()
	bangkok := time.FixedZone("ICT", 7*60*60)
	lateEvening := time.Date(2024, 5, 6, 20, 30, 0, 0, time.UTC)
	uc := NewAttendanceUsecase(records, newTestPolicy(policy.OwnershipPassthrough), &recordingNotifier{}, bangkok,
		func() time.Time { return lateEvening }, nopLogger())

	record, err := uc.ScanQRCode(context.Background(), ScanParams{StudentID: "S1", QRCode: `{"subjectId":"m1","subjectName":"Math"}`})
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if record.Date != "2024-05-07" || record.TimeIn != "03:30" {
		t.Fatalf("expected local date and time, got %s %s", record.Date, record.TimeIn)
	}
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	uc, _, notifier := newAttendanceFixture(policy.OwnershipPassthrough)

	record, _ := uc.CreateRecord(ctx, teacherCaller, CreateRecordParams{
		StudentID: "S1", Subject: "Math", Status: "absent", Date: "2024-05-06", TimeIn: "08:00",
	})

	updated, err := uc.UpdateStatus(ctx, teacherCaller, record.ID.Hex(), UpdateStatusParams{Status: "late", TimeIn: ptr("08:20")})
	if err != nil {
		t.Fatalf("update error: %v", err)
	}
	if updated.Status != "late" || updated.TimeIn != "08:20" {
		t.Fatalf("unexpected update: %+v", updated)
	}
	if len(notifier.records) != 2 || notifier.records[1].Status != "late" {
		t.Fatalf("expected update notification, got %+v", notifier.records)
	}

	_, err = uc.UpdateStatus(ctx, teacherCaller, record.ID.Hex(), UpdateStatusParams{})
	assertKind(t, err, apperror.KindValidation)

	_, err = uc.UpdateStatus(ctx, parentCaller, record.ID.Hex(), UpdateStatusParams{Status: "present"})
	assertKind(t, err, apperror.KindAuthorization)

	_, err = uc.UpdateStatus(ctx, teacherCaller, "000000000000000000000000", UpdateStatusParams{Status: "present"})
	assertKind(t, err, apperror.KindNotFound)
}

func TestUpdateStatusEmptyTimeInKeepsStored(t *testing.T) {
	ctx := context.Background()
	uc, _, _ := newAttendanceFixture(policy.OwnershipPassthrough)

	record, _ := uc.CreateRecord(ctx, teacherCaller, CreateRecordParams{
		StudentID: "S1", Subject: "Math", Status: "absent", Date: "2024-05-06", TimeIn: "08:00",
	})

	updated, err := uc.UpdateStatus(ctx, teacherCaller, record.ID.Hex(), UpdateStatusParams{Status: "present", TimeIn: ptr("")})
	if err != nil {
		t.Fatalf("update error: %v", err)
	}
	if updated.Status != "present" || updated.TimeIn != "08:00" {
		t.Fatalf("expected time in to be kept, got %+v", updated)
	}

	_, err = uc.UpdateStatus(ctx, teacherCaller, record.ID.Hex(), UpdateStatusParams{Status: "late", TimeIn: ptr("8am")})
	assertKind(t, err, apperror.KindValidation)
}

type countingRecordRepository struct {
	repository.AttendanceRepository
	updates int
}

func (r *countingRecordRepository) UpdateRecordStatus(
	ctx context.Context,
	id string,
	params repository.UpdateRecordParams,
) (*model.AttendanceRecord, error) {
	r.updates++
	return r.AttendanceRepository.UpdateRecordStatus(ctx, id, params)
}

func TestUpdateStatusUnknownRecordDoesNotWrite(t *testing.T) {
	records := &countingRecordRepository{AttendanceRepository: repository.NewAttendanceMemoryRepository()}
	notifier := &recordingNotifier{}
	uc := NewAttendanceUsecase(records, newTestPolicy(policy.OwnershipPassthrough), notifier, time.UTC,
		func() time.Time { return fixedNow }, nopLogger())

	_, err := uc.UpdateStatus(context.Background(), teacherCaller, "000000000000000000000000", UpdateStatusParams{Status: "present"})
	assertKind(t, err, apperror.KindNotFound)
	if records.updates != 0 {
		t.Fatalf("expected no write for an unknown record, got %d", records.updates)
	}
	if len(notifier.records) != 0 {
		t.Fatalf("expected no notification, got %+v", notifier.records)
	}
}

func TestListByDateAndStudent(t *testing.T) {
	ctx := context.Background()
	uc, _, _ := newAttendanceFixture(policy.OwnershipEnforce)

	uc.CreateRecord(ctx, teacherCaller, CreateRecordParams{StudentID: "S1", Subject: "Math", Status: "present", Date: "2024-05-06"})
	uc.CreateRecord(ctx, teacherCaller, CreateRecordParams{StudentID: "S2", Subject: "Math", Status: "absent", Date: "2024-05-06"})

	byDate, err := uc.ListByDate(ctx, "2024-05-06")
	if err != nil || len(byDate) != 2 {
		t.Fatalf("expected 2 records, got %d, %v", len(byDate), err)
	}
	_, err = uc.ListByDate(ctx, "2024-02-30")
	assertKind(t, err, apperror.KindValidation)

	own, err := uc.ListByStudent(ctx, parentCaller, "S1")
	if err != nil || len(own) != 1 {
		t.Fatalf("expected parent to see linked student, got %d, %v", len(own), err)
	}
	_, err = uc.ListByStudent(ctx, parentCaller, "S2")
	assertKind(t, err, apperror.KindAuthorization)
}

func TestListByStudentPassthrough(t *testing.T) {
	uc, _, _ := newAttendanceFixture(policy.OwnershipPassthrough)
	if _, err := uc.ListByStudent(context.Background(), studentCaller, "S9"); err != nil {
		t.Fatalf("expected passthrough to allow, got %v", err)
	}
}

func TestExportByDate(t *testing.T) {
	ctx := context.Background()
	uc, _, _ := newAttendanceFixture(policy.OwnershipPassthrough)
	uc.CreateRecord(ctx, teacherCaller, CreateRecordParams{StudentID: "S1", Subject: "Math", Status: "present", Date: "2024-05-06"})

	workbook, err := uc.ExportByDate(ctx, teacherCaller, "2024-05-06")
	if err != nil {
		t.Fatalf("export error: %v", err)
	}
	rows, err := workbook.File.GetRows("2024-05-06")
	if err != nil || len(rows) != 2 {
		t.Fatalf("expected header plus one row, got %d, %v", len(rows), err)
	}

	_, err = uc.ExportByDate(ctx, parentCaller, "2024-05-06")
	assertKind(t, err, apperror.KindAuthorization)
}
