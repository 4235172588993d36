package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook-api/internal/authz"
	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/grading"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/service"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

type gradebookServiceMock struct {
	principal authz.Principal
	created   service.CreateGradebookRequest
	scores    service.RecordScoresRequest
	quarter   int
	err       error
}

func (m *gradebookServiceMock) Create(ctx context.Context, p authz.Principal, req service.CreateGradebookRequest) (*models.Gradebook, error) {
	m.principal, m.created = p, req
	if m.err != nil {
		return nil, m.err
	}
	return &models.Gradebook{ID: "gb-1", ClassID: req.ClassID, SubjectID: req.SubjectID, TermID: req.TermID}, nil
}

func (m *gradebookServiceMock) Get(ctx context.Context, p authz.Principal, id string) (*models.Gradebook, error) {
	return &models.Gradebook{ID: id}, m.err
}

func (m *gradebookServiceMock) List(ctx context.Context, p authz.Principal, filter models.GradebookFilter) ([]models.Gradebook, error) {
	return []models.Gradebook{{ID: "gb-1", ClassID: filter.ClassID}}, m.err
}

func (m *gradebookServiceMock) UpdateCategories(ctx context.Context, p authz.Principal, id string, req service.UpdateCategoriesRequest) (*models.Gradebook, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.Gradebook{ID: id}, nil
}

func (m *gradebookServiceMock) AddTask(ctx context.Context, p authz.Principal, gradebookID string, req service.CreateTaskRequest) (*models.GradebookTask, error) {
	return &models.GradebookTask{ID: "task-1"}, m.err
}

func (m *gradebookServiceMock) ListTasks(ctx context.Context, p authz.Principal, gradebookID string, quarter int) ([]models.GradebookTask, error) {
	m.quarter = quarter
	return nil, m.err
}

func (m *gradebookServiceMock) DeleteTask(ctx context.Context, p authz.Principal, gradebookID, taskID string) error {
	return m.err
}

func (m *gradebookServiceMock) RecordScores(ctx context.Context, p authz.Principal, gradebookID string, req service.RecordScoresRequest) (*service.RecordScoresResult, error) {
	m.scores = req
	if m.err != nil {
		return nil, m.err
	}
	return &service.RecordScoresResult{
		Recorded: 1,
		Cleared:  1,
		Warnings: []grading.Warning{{Code: grading.WarningScoreClamped, TaskID: "task-1", Message: "clamped"}},
	}, nil
}

func (m *gradebookServiceMock) Finalize(ctx context.Context, p authz.Principal, id string) (*dto.ClassGradeRoster, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &dto.ClassGradeRoster{GradebookID: id}, nil
}

func TestGradebookHandlerCreate(t *testing.T) {
	svc := &gradebookServiceMock{}
	h := NewGradebookHandler(svc)

	body := mustJSON(t, map[string]interface{}{
		"class_id": "c1", "subject_id": "s1", "term_id": "t1",
		"categories": []map[string]interface{}{
			{"code": "WW", "label": "Written Works", "weight": 0.4, "kind": "REGULAR"},
			{"code": "QE", "label": "Quarterly Exam", "weight": 0.6, "kind": "QUARTERLY_EXAM"},
		},
	})
	c, w := newGinContext(http.MethodPost, "/gradebooks", body)
	withUser(c, "teacher-1", models.RoleTeacher)

	h.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "teacher-1", svc.principal.UserID)
	assert.Equal(t, models.RoleTeacher, svc.principal.Role)
	assert.Len(t, svc.created.Categories, 2)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestGradebookHandlerRequiresPrincipal(t *testing.T) {
	h := NewGradebookHandler(&gradebookServiceMock{})
	c, w := newGinContext(http.MethodGet, "/gradebooks/gb-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "gb-1"}}

	h.Get(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, decode(t, w).Error.Code)
}

func TestGradebookHandlerInvalidConfigurationIs422(t *testing.T) {
	svc := &gradebookServiceMock{err: appErrors.Clone(appErrors.ErrInvalidConfiguration, "category weights must sum to 1")}
	h := NewGradebookHandler(svc)

	body := mustJSON(t, map[string]interface{}{"categories": []map[string]interface{}{{"code": "WW", "label": "WW", "weight": 0.5, "kind": "REGULAR"}}})
	c, w := newGinContext(http.MethodPut, "/gradebooks/gb-1/categories", body)
	c.Params = gin.Params{{Key: "id", Value: "gb-1"}}
	withUser(c, "admin", models.RoleAdmin)

	h.UpdateCategories(c)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INVALID_CONFIGURATION", decode(t, w).Error.Code)
}

func TestGradebookHandlerRecordScoresKeepsNull(t *testing.T) {
	svc := &gradebookServiceMock{}
	h := NewGradebookHandler(svc)

	body := []byte(`{"scores":[{"task_id":"task-1","enrollment_id":"e1","points_earned":12},{"task_id":"task-1","enrollment_id":"e2","points_earned":null}]}`)
	c, w := newGinContext(http.MethodPost, "/gradebooks/gb-1/scores", body)
	c.Params = gin.Params{{Key: "id", Value: "gb-1"}}
	withUser(c, "teacher-1", models.RoleTeacher)

	h.RecordScores(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, svc.scores.Scores, 2)
	require.NotNil(t, svc.scores.Scores[0].PointsEarned)
	assert.Equal(t, 12.0, *svc.scores.Scores[0].PointsEarned)
	assert.Nil(t, svc.scores.Scores[1].PointsEarned)
	assert.Contains(t, w.Body.String(), "SCORE_CLAMPED")
}

func TestGradebookHandlerListTasksRejectsBadQuarter(t *testing.T) {
	svc := &gradebookServiceMock{}
	h := NewGradebookHandler(svc)

	c, w := newGinContext(http.MethodGet, "/gradebooks/gb-1/tasks?quarter=first", nil)
	c.Params = gin.Params{{Key: "id", Value: "gb-1"}}
	withUser(c, "teacher-1", models.RoleTeacher)
	h.ListTasks(c)
	require.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodGet, "/gradebooks/gb-1/tasks?quarter=2", nil)
	c.Params = gin.Params{{Key: "id", Value: "gb-1"}}
	withUser(c, "teacher-1", models.RoleTeacher)
	h.ListTasks(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, svc.quarter)
}

func TestGradebookHandlerFinalizeConflict(t *testing.T) {
	h := NewGradebookHandler(&gradebookServiceMock{err: appErrors.Clone(appErrors.ErrConflict, "gradebook already finalized")})
	c, w := newGinContext(http.MethodPost, "/gradebooks/gb-1/finalize", nil)
	c.Params = gin.Params{{Key: "id", Value: "gb-1"}}
	withUser(c, "admin", models.RoleAdmin)

	h.Finalize(c)

	require.Equal(t, http.StatusConflict, w.Code)
}
