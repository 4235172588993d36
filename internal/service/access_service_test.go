package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook-api/internal/authz"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

type assignmentStub struct {
	allowed map[string]bool
	err     error
}

func (a assignmentStub) HasTeacherAccess(ctx context.Context, teacherID, classID, subjectID string) (bool, error) {
	if a.err != nil {
		return false, a.err
	}
	return a.allowed[teacherID+"/"+classID+"/"+subjectID], nil
}

func TestAccessServiceAuthorize(t *testing.T) {
	svc := NewAccessService(assignmentStub{allowed: map[string]bool{"t1/c1/math": true}}, nil)
	admin := authz.Principal{UserID: "a1", Role: models.RoleAdmin}
	teacher := authz.Principal{UserID: "t1", Role: models.RoleTeacher}
	student := authz.Principal{UserID: "s1", Role: models.RoleStudent}

	tests := []struct {
		name      string
		principal authz.Principal
		action    authz.Action
		scope     Scope
		code      string
	}{
		{name: "admin records scores", principal: admin, action: authz.ActionRecordScores, scope: Scope{ClassID: "c9"}},
		{name: "assigned teacher", principal: teacher, action: authz.ActionRecordScores, scope: Scope{ClassID: "c1", SubjectID: "math"}},
		{name: "teacher of other subject", principal: teacher, action: authz.ActionRecordScores, scope: Scope{ClassID: "c1", SubjectID: "art"}, code: appErrors.ErrForbidden.Code},
		{name: "teacher without class scope", principal: teacher, action: authz.ActionViewStudentGrades, scope: Scope{StudentID: "s1"}, code: appErrors.ErrForbidden.Code},
		{name: "student own grades", principal: student, action: authz.ActionViewStudentGrades, scope: Scope{StudentID: "s1"}},
		{name: "student other grades", principal: student, action: authz.ActionViewStudentGrades, scope: Scope{StudentID: "s2"}, code: appErrors.ErrForbidden.Code},
		{name: "student records scores", principal: student, action: authz.ActionRecordScores, scope: Scope{ClassID: "c1"}, code: appErrors.ErrForbidden.Code},
		{name: "anonymous", principal: authz.Principal{}, action: authz.ActionViewClassGrades, code: appErrors.ErrForbidden.Code},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Authorize(context.Background(), tc.principal, tc.action, tc.scope)
			if tc.code == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
		})
	}
}

func TestAccessServiceAssignmentLookupFailure(t *testing.T) {
	svc := NewAccessService(assignmentStub{err: errors.New("db down")}, nil)

	err := svc.Authorize(context.Background(), authz.Principal{UserID: "t1", Role: models.RoleTeacher}, authz.ActionViewClassGrades, Scope{ClassID: "c1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
