package notifier

import (
	"fmt"
	"time"

	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/attendance"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/model"
)

// displayDate renders YYYY-MM-DD as "Jan 02, 2006". Anything else is returned as is.
func displayDate(date string) string {
	t, err := time.Parse(attendance.DateLayout, date)
	if err != nil {
		return date
	}
	return t.Format("Jan 02, 2006")
}

// Message is the notification text sent to parents for a status change.
func Message(studentName, status, subject, date string) string {
	when := displayDate(date)

	switch status {
	case model.StatusAbsent:
		return fmt.Sprintf("Attendance Alert: %s was marked absent for %s on %s.", studentName, subject, when)
	case model.StatusLate:
		return fmt.Sprintf("Attendance Alert: %s arrived late for %s on %s.", studentName, subject, when)
	case model.StatusPresent:
		return fmt.Sprintf("Attendance Update: %s was present for %s on %s.", studentName, subject, when)
	default:
		return fmt.Sprintf("Attendance Update: %s's attendance status for %s on %s has been updated.", studentName, subject, when)
	}
}

func subjectLine(status string) string {
	if status == model.StatusAbsent || status == model.StatusLate {
		return "Attendance Alert"
	}
	return "Attendance Update"
}
