package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook-api/internal/authz"
	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/grading"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

type gradeServiceMock struct {
	record    *dto.StudentGradeRecord
	err       error
	principal authz.Principal
	termID    string
}

func (m *gradeServiceMock) StudentRecord(ctx context.Context, p authz.Principal, gradebookID, enrollmentID string) (*dto.StudentGradeRecord, error) {
	m.principal = p
	return m.record, m.err
}

func (m *gradeServiceMock) ClassRoster(ctx context.Context, p authz.Principal, gradebookID string) (*dto.ClassGradeRoster, error) {
	return &dto.ClassGradeRoster{GradebookID: gradebookID}, m.err
}

func (m *gradeServiceMock) ReportCard(ctx context.Context, p authz.Principal, studentID, termID string) (*dto.ReportCard, error) {
	m.termID = termID
	return &dto.ReportCard{StudentID: studentID, TermID: termID, Average: grading.Undefined}, m.err
}

func TestGradeHandlerStudentRecordRendersUndefinedAsNull(t *testing.T) {
	svc := &gradeServiceMock{record: &dto.StudentGradeRecord{
		GradebookID:  "gb-1",
		EnrollmentID: "e1",
		Quarters: []dto.QuarterView{
			{Quarter: 1, Final: grading.Defined(86.5), Expected: grading.Defined(86.5), Complete: true},
			{Quarter: 2, Final: grading.Undefined, Expected: grading.Undefined},
		},
		Overall: dto.OverallView{Grade: grading.Defined(86.5), Provisional: true, Remark: grading.RemarkInProgress},
	}}
	h := NewGradeHandler(svc)

	c, w := newGinContext(http.MethodGet, "/gradebooks/gb-1/students/e1", nil)
	c.Params = gin.Params{{Key: "id", Value: "gb-1"}, {Key: "enrollmentId", Value: "e1"}}
	withUser(c, "student-1", models.RoleStudent)

	h.StudentRecord(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, authz.Principal{UserID: "student-1", Role: models.RoleStudent}, svc.principal)

	var record struct {
		Quarters []struct {
			Final *float64 `json:"final"`
		} `json:"quarters"`
		Overall struct {
			Provisional bool `json:"provisional"`
		} `json:"overall"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &record))
	require.Len(t, record.Quarters, 2)
	require.NotNil(t, record.Quarters[0].Final)
	assert.Equal(t, 86.5, *record.Quarters[0].Final)
	assert.Nil(t, record.Quarters[1].Final)
	assert.True(t, record.Overall.Provisional)
}

func TestGradeHandlerStudentRecordForbidden(t *testing.T) {
	h := NewGradeHandler(&gradeServiceMock{err: appErrors.Clone(appErrors.ErrForbidden, "not your record")})
	c, w := newGinContext(http.MethodGet, "/gradebooks/gb-1/students/e2", nil)
	c.Params = gin.Params{{Key: "id", Value: "gb-1"}, {Key: "enrollmentId", Value: "e2"}}
	withUser(c, "student-1", models.RoleStudent)

	h.StudentRecord(c)

	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestGradeHandlerReportCardRequiresTerm(t *testing.T) {
	svc := &gradeServiceMock{}
	h := NewGradeHandler(svc)

	c, w := newGinContext(http.MethodGet, "/students/s1/report-card", nil)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	withUser(c, "s1", models.RoleStudent)
	h.ReportCard(c)
	require.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodGet, "/students/s1/report-card?termId=2024-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	withUser(c, "s1", models.RoleStudent)
	h.ReportCard(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2024-1", svc.termID)
	assert.Contains(t, w.Body.String(), `"average":null`)
}
