package policy

import (
	"slices"

	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/model"
)

// OwnershipMode decides how parent and student access to attendance by student is checked.
type OwnershipMode string

const (
	// OwnershipPassthrough allows every authenticated caller.
	OwnershipPassthrough OwnershipMode = "passthrough"
	// OwnershipEnforce restricts students to themselves and parents to their linked students.
	OwnershipEnforce OwnershipMode = "enforce"
)

// Caller is the resolved identity a decision is made for.
type Caller struct {
	ID         string
	Email      string
	Role       model.Role
	StudentIDs []string
}

// CallerFromUser builds the Caller of an authenticated user.
func CallerFromUser(user *model.User) Caller {
	return Caller{
		ID:         user.ID.Hex(),
		Email:      user.Email,
		Role:       user.Role,
		StudentIDs: slices.Clone(user.StudentIDs),
	}
}

// UserPatch is a requested partial profile update. Nil fields are absent.
type UserPatch struct {
	Name       *string
	Password   *string
	Email      *string
	Role       *model.Role
	StudentIDs *[]string
}

// Empty reports whether the patch carries no field at all.
func (p UserPatch) Empty() bool {
	return p.Name == nil && p.Password == nil && p.Email == nil && p.Role == nil && p.StudentIDs == nil
}

// PatchDecision is the outcome of CanWriteUser. Patch holds only the fields the caller may apply.
type PatchDecision struct {
	Allowed bool
	Patch   UserPatch
	Dropped []string
}

// Policy holds the pure authorization decisions of the service.
type Policy struct {
	mode   OwnershipMode
	logger *zerolog.Logger
}

// New creates a Policy. Any mode other than OwnershipEnforce is treated as passthrough.
func New(mode OwnershipMode, logger *zerolog.Logger) *Policy {
	if mode != OwnershipEnforce {
		mode = OwnershipPassthrough
	}
	return &Policy{mode: mode, logger: logger}
}

// Mode returns the effective ownership mode.
func (p *Policy) Mode() OwnershipMode {
	return p.mode
}

// CanCreateAttendance allows teachers and admins to record attendance.
func (p *Policy) CanCreateAttendance(c Caller) bool {
	return isStaff(c)
}

// CanUpdateAttendance allows teachers and admins to change a record's status.
func (p *Policy) CanUpdateAttendance(c Caller) bool {
	return isStaff(c)
}

// CanViewAttendanceByStudent allows staff to view any student. In enforce mode a student
// sees only their own records and a parent only those of linked students.
func (p *Policy) CanViewAttendanceByStudent(c Caller, studentID string) bool {
	if isStaff(c) {
		return true
	}

	if p.mode == OwnershipPassthrough {
		p.logger.Debug().
			Str("caller_id", c.ID).
			Str("role", string(c.Role)).
			Str("student_id", studentID).
			Msg("ownership not checked, passthrough mode")
		return true
	}

	switch c.Role {
	case model.RoleStudent:
		return c.ID == studentID
	case model.RoleParent:
		return slices.Contains(c.StudentIDs, studentID)
	default:
		return false
	}
}

// CanListUsers allows admins only.
func (p *Policy) CanListUsers(c Caller) bool {
	return c.Role == model.RoleAdmin
}

// CanReadUser allows admins and the user themself.
func (p *Policy) CanReadUser(c Caller, targetID string) bool {
	return c.Role == model.RoleAdmin || c.ID == targetID
}

// CanWriteUser strips the email always, and the role and linked students unless the caller is an admin.
func (p *Policy) CanWriteUser(c Caller, targetID string, patch UserPatch) PatchDecision {
	if !p.CanReadUser(c, targetID) {
		return PatchDecision{}
	}

	decision := PatchDecision{Allowed: true, Patch: patch}

	if patch.Email != nil {
		decision.Patch.Email = nil
		decision.Dropped = append(decision.Dropped, "email")
	}

	if c.Role != model.RoleAdmin {
		if patch.Role != nil {
			decision.Patch.Role = nil
			decision.Dropped = append(decision.Dropped, "userType")
		}
		if patch.StudentIDs != nil {
			decision.Patch.StudentIDs = nil
			decision.Dropped = append(decision.Dropped, "studentIds")
		}
	}

	return decision
}

// CanDeleteUser allows admins only.
func (p *Policy) CanDeleteUser(c Caller) bool {
	return c.Role == model.RoleAdmin
}

func isStaff(c Caller) bool {
	return c.Role == model.RoleTeacher || c.Role == model.RoleAdmin
}
