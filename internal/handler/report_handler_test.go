package handler

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook-api/internal/authz"
	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/service"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

type reportServiceMock struct {
	createReq   dto.ReportRequest
	limit       int
	statusResp  *dto.ReportStatusResponse
	statusErr   error
	download    *service.ReportDownload
	downloadErr error
}

func (m *reportServiceMock) CreateJob(ctx context.Context, p authz.Principal, req dto.ReportRequest) (*dto.ReportJobResponse, error) {
	m.createReq = req
	return &dto.ReportJobResponse{ID: "job-1", Status: models.ReportStatusQueued}, nil
}

func (m *reportServiceMock) GetStatus(ctx context.Context, p authz.Principal, id string) (*dto.ReportStatusResponse, error) {
	return m.statusResp, m.statusErr
}

func (m *reportServiceMock) ListMine(ctx context.Context, p authz.Principal, limit int) ([]dto.ReportStatusResponse, error) {
	m.limit = limit
	return []dto.ReportStatusResponse{}, nil
}

func (m *reportServiceMock) ResolveDownload(ctx context.Context, token string) (*service.ReportDownload, error) {
	return m.download, m.downloadErr
}

func TestReportHandlerCreateAccepted(t *testing.T) {
	svc := &reportServiceMock{}
	h := NewReportHandler(svc)

	body := mustJSON(t, dto.ReportRequest{Type: models.ReportTypeGradeSheet, GradebookID: "gb-1", Format: models.ReportFormatPDF})
	c, w := newGinContext(http.MethodPost, "/reports", body)
	withUser(c, "teacher-1", models.RoleTeacher)

	h.Create(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "gb-1", svc.createReq.GradebookID)
	assert.Equal(t, models.ReportFormatPDF, svc.createReq.Format)
}

func TestReportHandlerListUsesLimit(t *testing.T) {
	svc := &reportServiceMock{}
	h := NewReportHandler(svc)

	c, w := newGinContext(http.MethodGet, "/reports?limit=5", nil)
	withUser(c, "teacher-1", models.RoleTeacher)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, svc.limit)
}

func TestReportHandlerStatusNotFound(t *testing.T) {
	h := NewReportHandler(&reportServiceMock{statusErr: appErrors.Clone(appErrors.ErrNotFound, "report job not found")})

	c, w := newGinContext(http.MethodGet, "/reports/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	withUser(c, "teacher-1", models.RoleTeacher)
	h.Status(c)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestReportHandlerDownloadStreamsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grade-sheet.csv")
	require.NoError(t, os.WriteFile(path, []byte("student,grade\nAna,90.00\n"), 0o600))
	file, err := os.Open(path)
	require.NoError(t, err)

	h := NewReportHandler(&reportServiceMock{download: &service.ReportDownload{
		File:      file,
		Filename:  "grade-sheet.csv",
		Format:    models.ReportFormatCSV,
		ExpiresAt: time.Now().Add(time.Hour),
	}})

	c, w := newGinContext(http.MethodGet, "/export/token", nil)
	c.Params = gin.Params{{Key: "token", Value: "token"}}
	h.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "grade-sheet.csv")
	assert.Equal(t, "student,grade\nAna,90.00\n", w.Body.String())
}

func TestReportHandlerDownloadRejectsBadToken(t *testing.T) {
	h := NewReportHandler(&reportServiceMock{downloadErr: appErrors.Clone(appErrors.ErrUnauthorized, "invalid download token")})

	c, w := newGinContext(http.MethodGet, "/export/bad", nil)
	c.Params = gin.Params{{Key: "token", Value: "bad"}}
	h.Download(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}
