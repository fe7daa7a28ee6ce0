package attendance

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"
)

const (
	DateLayout   = "2006-01-02"
	TimeInLayout = "15:04"
)

var (
	datePattern   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeInPattern = regexp.MustCompile(`^\d{2}:\d{2}$`)

	ErrInvalidQRCode = errors.New("invalid QR code data")
)

// ValidDate reports whether s is a real calendar date written as YYYY-MM-DD.
func ValidDate(s string) bool {
	if !datePattern.MatchString(s) {
		return false
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// ValidTimeIn reports whether s is a wall-clock time written as HH:MM.
func ValidTimeIn(s string) bool {
	if !timeInPattern.MatchString(s) {
		return false
	}
	_, err := time.Parse(TimeInLayout, s)
	return err == nil
}

// ValidStatus accepts any non-blank status.
func ValidStatus(s string) bool {
	return strings.TrimSpace(s) != ""
}

// QRPayload is the subject information embedded in a classroom QR code.
type QRPayload struct {
	SubjectID   string
	SubjectName string
}

// ParseQRCode decodes the JSON object carried by a QR code. Both subjectId and
// subjectName must be present as non-empty strings.
func ParseQRCode(raw string) (*QRPayload, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, ErrInvalidQRCode
	}

	subjectID, _ := fields["subjectId"].(string)
	subjectName, _ := fields["subjectName"].(string)
	if subjectID == "" || subjectName == "" {
		return nil, ErrInvalidQRCode
	}

	return &QRPayload{SubjectID: subjectID, SubjectName: subjectName}, nil
}

// Today returns the date and time-in stamped on records created at now.
func Today(now time.Time) (date, timeIn string) {
	return now.Format(DateLayout), now.Format(TimeInLayout)
}
