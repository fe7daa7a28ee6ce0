package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/metrics"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/model"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/repository"
	"github.com/vasapolrittideah/school-attendance-api/shared/mailer"
)

const deliveryTimeout = 30 * time.Second

// Sender delivers notification emails.
type Sender interface {
	Send(email mailer.Email) error
	SendBulk(emails []mailer.Email) error
}

// AttendanceNotifier emails the parents linked to a student whenever one of the
// student's records is created or changed. Delivery happens in the background.
type AttendanceNotifier struct {
	users  repository.UserRepository
	sender Sender
	logger *zerolog.Logger
	wg     sync.WaitGroup
}

// NewAttendanceNotifier returns a notifier. A nil sender disables delivery.
func NewAttendanceNotifier(users repository.UserRepository, sender Sender, logger *zerolog.Logger) *AttendanceNotifier {
	return &AttendanceNotifier{
		users:  users,
		sender: sender,
		logger: logger,
	}
}

// NotifyAttendance schedules delivery for record and returns immediately.
func (n *AttendanceNotifier) NotifyAttendance(record *model.AttendanceRecord) {
	if n.sender == nil {
		return
	}

	rec := *record
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		defer cancel()

		if err := n.deliver(ctx, &rec); err != nil {
			metrics.Notifications.WithLabelValues("failed").Inc()
			n.logger.Error().Err(err).
				Str("record_id", rec.ID.Hex()).
				Str("student_id", rec.StudentID).
				Msg("failed to notify parents")
		}
	}()
}

// Wait blocks until every scheduled delivery has finished.
func (n *AttendanceNotifier) Wait() {
	n.wg.Wait()
}

func (n *AttendanceNotifier) deliver(ctx context.Context, record *model.AttendanceRecord) error {
	role := model.RoleParent
	parents, err := n.users.ListUsers(ctx, repository.FilterUsersParams{
		Role:      &role,
		StudentID: &record.StudentID,
	})
	if err != nil {
		return err
	}
	if len(parents) == 0 {
		metrics.Notifications.WithLabelValues("no_recipient").Inc()
		return nil
	}

	body := Message(n.studentName(ctx, record.StudentID), record.Status, record.Subject, record.Date)
	emails := make([]mailer.Email, 0, len(parents))
	for _, parent := range parents {
		emails = append(emails, mailer.Email{
			To:      []string{parent.Email},
			Subject: subjectLine(record.Status),
			Body:    body,
		})
	}

	if len(emails) == 1 {
		err = n.sender.Send(emails[0])
	} else {
		err = n.sender.SendBulk(emails)
	}
	if err != nil {
		return err
	}

	metrics.Notifications.WithLabelValues("sent").Add(float64(len(emails)))
	n.logger.Debug().Str("record_id", record.ID.Hex()).Int("recipients", len(emails)).Msg("parents notified")

	return nil
}

func (n *AttendanceNotifier) studentName(ctx context.Context, studentID string) string {
	student, err := n.users.GetUser(ctx, studentID)
	if err != nil || student.Name == "" {
		return studentID
	}
	return student.Name
}
