package model

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
	StatusLate    = "late"
)

// Method records how an attendance record was created.
type Method string

const (
	MethodManual Method = "manual"
	MethodQRScan Method = "qr_scan"
)

// AttendanceRecord represents one attendance event of a student for a subject on a date.
// Status is free-form; the constants above are the canonical values.
type AttendanceRecord struct {
	ID         bson.ObjectID `bson:"_id,omitempty"`
	StudentID  string        `bson:"student_id"`
	Subject    string        `bson:"subject"`
	SubjectID  string        `bson:"subject_id,omitempty"`
	Status     string        `bson:"status"`
	Date       string        `bson:"date"`
	TimeIn     string        `bson:"time_in"`
	Method     Method        `bson:"method"`
	RecordedBy string        `bson:"recorded_by,omitempty"`
	CreatedAt  time.Time     `bson:"created_at"`
	UpdatedAt  time.Time     `bson:"updated_at"`
}
