package service

import (
	"context"
	"database/sql"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook-api/internal/authz"
	"github.com/noah-isme/sma-gradebook-api/internal/grading"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/repository"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

type fakeGradebooks struct {
	byID       map[string]*models.Gradebook
	replaced   []models.GradebookCategory
	lastFilter models.GradebookFilter
}

func (f *fakeGradebooks) Create(ctx context.Context, gb *models.Gradebook) error {
	gb.ID = "gb-new"
	for i := range gb.Categories {
		if gb.Categories[i].ID == "" {
			gb.Categories[i].ID = "cat-new-" + gb.Categories[i].Code
		}
	}
	f.byID[gb.ID] = gb
	return nil
}

func (f *fakeGradebooks) FindByID(ctx context.Context, id string) (*models.Gradebook, error) {
	gb, ok := f.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *gb
	clone.Categories = append([]models.GradebookCategory(nil), gb.Categories...)
	return &clone, nil
}

func (f *fakeGradebooks) FindByScope(ctx context.Context, classID, subjectID, termID string) (*models.Gradebook, error) {
	for _, gb := range f.byID {
		if gb.ClassID == classID && gb.SubjectID == subjectID && gb.TermID == termID {
			return f.FindByID(ctx, gb.ID)
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeGradebooks) List(ctx context.Context, filter models.GradebookFilter) ([]models.Gradebook, error) {
	f.lastFilter = filter
	var out []models.Gradebook
	for _, gb := range f.byID {
		if filter.ClassID != "" && gb.ClassID != filter.ClassID {
			continue
		}
		if filter.TermID != "" && gb.TermID != filter.TermID {
			continue
		}
		clone := *gb
		clone.Categories = nil
		out = append(out, clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeGradebooks) ReplaceCategories(ctx context.Context, gradebookID string, categories []models.GradebookCategory) error {
	f.replaced = categories
	f.byID[gradebookID].Categories = categories
	return nil
}

func (f *fakeGradebooks) MarkFinalized(ctx context.Context, id string, at time.Time) (bool, error) {
	gb := f.byID[id]
	if gb.Finalized {
		return false, nil
	}
	gb.Finalized = true
	gb.FinalizedAt = &at
	return true, nil
}

type fakeTasks struct {
	tasks []models.GradebookTask
}

func (f *fakeTasks) Create(ctx context.Context, task *models.GradebookTask) error {
	task.ID = "task-new"
	f.tasks = append(f.tasks, *task)
	return nil
}

func (f *fakeTasks) FindByID(ctx context.Context, id string) (*models.GradebookTask, error) {
	for _, t := range f.tasks {
		if t.ID == id {
			task := t
			return &task, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeTasks) ListByGradebook(ctx context.Context, gradebookID string, quarter int) ([]models.GradebookTask, error) {
	var out []models.GradebookTask
	for _, t := range f.tasks {
		if t.GradebookID == gradebookID && (quarter == 0 || t.Quarter == quarter) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTasks) CountByCategory(ctx context.Context, gradebookID string) (map[string]int, error) {
	counts := make(map[string]int)
	for _, t := range f.tasks {
		if t.GradebookID == gradebookID {
			counts[t.CategoryID]++
		}
	}
	return counts, nil
}

func (f *fakeTasks) Delete(ctx context.Context, id string) error {
	kept := f.tasks[:0]
	for _, t := range f.tasks {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	f.tasks = kept
	return nil
}

type fakeScores struct {
	scores       []models.TaskScore
	tasks        *fakeTasks
	gradebooks   *fakeGradebooks
	beforeUpsert func()
}

func (f *fakeScores) Upsert(ctx context.Context, gradebookID string, scores []models.TaskScore) error {
	if f.beforeUpsert != nil {
		f.beforeUpsert()
	}
	if f.gradebooks != nil {
		if gb, ok := f.gradebooks.byID[gradebookID]; ok && gb.Finalized {
			return repository.ErrGradebookFinalized
		}
	}
	for _, sc := range scores {
		replaced := false
		for i := range f.scores {
			if f.scores[i].TaskID == sc.TaskID && f.scores[i].EnrollmentID == sc.EnrollmentID {
				f.scores[i] = sc
				replaced = true
			}
		}
		if !replaced {
			f.scores = append(f.scores, sc)
		}
	}
	return nil
}

func (f *fakeScores) ListByGradebook(ctx context.Context, gradebookID string) ([]models.TaskScore, error) {
	tasks, _ := f.tasks.ListByGradebook(ctx, gradebookID, 0)
	ids := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		ids[t.ID] = true
	}
	var out []models.TaskScore
	for _, sc := range f.scores {
		if ids[sc.TaskID] {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (f *fakeScores) ListByEnrollment(ctx context.Context, gradebookID, enrollmentID string) ([]models.TaskScore, error) {
	all, _ := f.ListByGradebook(ctx, gradebookID)
	var out []models.TaskScore
	for _, sc := range all {
		if sc.EnrollmentID == enrollmentID {
			out = append(out, sc)
		}
	}
	return out, nil
}

type fakeEnrollments struct {
	roster []models.RosterEntry
}

func (f *fakeEnrollments) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	for _, e := range f.roster {
		if e.ID == id {
			enrollment := e.Enrollment
			return &enrollment, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeEnrollments) ListRoster(ctx context.Context, classID, termID string) ([]models.RosterEntry, error) {
	var out []models.RosterEntry
	for _, e := range f.roster {
		if e.ClassID == classID && e.TermID == termID && e.Status == models.EnrollmentStatusActive {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEnrollments) ListActiveByStudentAndTerm(ctx context.Context, studentID, termID string) ([]models.Enrollment, error) {
	var out []models.Enrollment
	for _, e := range f.roster {
		if e.StudentID == studentID && e.TermID == termID && e.Status == models.EnrollmentStatusActive {
			out = append(out, e.Enrollment)
		}
	}
	return out, nil
}

type fakeClassSubjects struct{}

func (fakeClassSubjects) FindClassSubject(ctx context.Context, classID, subjectID string) (*models.ClassSubject, error) {
	if classID != "c1" || subjectID != "math" {
		return nil, sql.ErrNoRows
	}
	return &models.ClassSubject{ClassID: classID, SubjectID: subjectID, ClassName: "X-A", SubjectName: "Mathematics", SubjectCode: "MATH"}, nil
}

type fakeSubjectGrades struct {
	rows []models.SubjectGrade
}

func (f *fakeSubjectGrades) Upsert(ctx context.Context, grades []models.SubjectGrade) error {
	f.rows = append(f.rows, grades...)
	return nil
}

func points(v float64) *float64 { return &v }

type gradeFixture struct {
	gradebooks    *fakeGradebooks
	tasks         *fakeTasks
	scores        *fakeScores
	enrollments   *fakeEnrollments
	subjectGrades *fakeSubjectGrades
	cache         *memoryCache
	grades        *GradeService
	access        *AccessService
}

// newGradeFixture builds a two quarter gradebook where Ana is graded and Budi
// has no scores yet.
func newGradeFixture() *gradeFixture {
	gb := &models.Gradebook{
		ID:           "gb-1",
		ClassID:      "c1",
		SubjectID:    "math",
		TermID:       "t1",
		QuarterCount: 2,
		PassingGrade: 75,
		Categories: []models.GradebookCategory{
			{ID: "cat-ww", Code: "WW", Label: "Written Work", Weight: 0.4, Kind: models.CategoryKindRegular},
			{ID: "cat-qe", Code: "QE", Label: "Quarterly Exam", Weight: 0.6, Kind: models.CategoryKindQuarterlyExam},
		},
	}
	tasks := &fakeTasks{tasks: []models.GradebookTask{
		{ID: "ww1", GradebookID: "gb-1", CategoryID: "cat-ww", Quarter: 1, Label: "Quiz 1", PointsPossible: 10},
		{ID: "qe1", GradebookID: "gb-1", CategoryID: "cat-qe", Quarter: 1, Label: "Exam 1", PointsPossible: 50},
		{ID: "ww2", GradebookID: "gb-1", CategoryID: "cat-ww", Quarter: 2, Label: "Quiz 2", PointsPossible: 10},
	}}
	f := &gradeFixture{
		gradebooks: &fakeGradebooks{byID: map[string]*models.Gradebook{"gb-1": gb}},
		tasks:      tasks,
		scores: &fakeScores{tasks: tasks, scores: []models.TaskScore{
			{TaskID: "ww1", EnrollmentID: "enr-1", PointsEarned: points(8)},
			{TaskID: "qe1", EnrollmentID: "enr-1", PointsEarned: points(45)},
			{TaskID: "ww2", EnrollmentID: "enr-1", PointsEarned: points(12)},
			{TaskID: "ww1", EnrollmentID: "enr-2", PointsEarned: nil},
		}},
		enrollments: &fakeEnrollments{roster: []models.RosterEntry{
			{Enrollment: models.Enrollment{ID: "enr-1", StudentID: "s1", ClassID: "c1", TermID: "t1", Status: models.EnrollmentStatusActive}, StudentName: "Ana"},
			{Enrollment: models.Enrollment{ID: "enr-2", StudentID: "s2", ClassID: "c1", TermID: "t1", Status: models.EnrollmentStatusActive}, StudentName: "Budi"},
		}},
		subjectGrades: &fakeSubjectGrades{},
		cache:         newMemoryCache(),
	}
	f.scores.gradebooks = f.gradebooks
	f.access = NewAccessService(assignmentStub{allowed: map[string]bool{"t1/c1/math": true, "t1/c1/": true}}, nil)
	f.grades = NewGradeService(GradeServiceParams{
		Gradebooks:    f.gradebooks,
		Tasks:         f.tasks,
		Scores:        f.scores,
		Enrollments:   f.enrollments,
		ClassSubjects: fakeClassSubjects{},
		Users:         usersByIDStub{"s1": {ID: "s1", FullName: "Ana"}},
		SubjectGrades: f.subjectGrades,
		Access:        f.access,
		Cache:         NewCacheService(f.cache, nil, time.Minute, nil, true),
		Metrics:       NewMetricsService(),
	})
	return f
}

var (
	gradeAdmin   = authz.Principal{UserID: "a1", Role: models.RoleAdmin}
	gradeTeacher = authz.Principal{UserID: "t1", Role: models.RoleTeacher}
	gradeOutside = authz.Principal{UserID: "t9", Role: models.RoleTeacher}
	gradeAna     = authz.Principal{UserID: "s1", Role: models.RoleStudent}
	gradeBudi    = authz.Principal{UserID: "s2", Role: models.RoleStudent}
)

func scoreValue(t *testing.T, s grading.Score) float64 {
	t.Helper()
	v, ok := s.Value()
	require.True(t, ok, "expected a defined score")
	return v
}

func TestGradeServiceStudentRecord(t *testing.T) {
	f := newGradeFixture()

	record, err := f.grades.StudentRecord(context.Background(), gradeAna, "gb-1", "enr-1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", record.StudentName)
	assert.False(t, record.Official)
	require.Len(t, record.Quarters, 2)

	q1 := record.Quarters[0]
	assert.True(t, q1.Complete)
	assert.True(t, q1.QuarterlyExamRecorded)
	assert.Equal(t, 86.0, scoreValue(t, q1.Final))
	require.Len(t, q1.Categories, 2)
	assert.Equal(t, "WW", q1.Categories[0].Code)
	assert.Equal(t, 32.0, scoreValue(t, q1.Categories[0].WeightedContribution))
	require.Len(t, q1.Categories[1].Tasks, 1)
	assert.Equal(t, 90.0, scoreValue(t, q1.Categories[1].Tasks[0].Percentage))

	q2 := record.Quarters[1]
	assert.False(t, q2.Complete)
	assert.False(t, q2.QuarterlyExamRecorded)
	assert.Equal(t, 100.0, scoreValue(t, q2.Final))
	require.Len(t, q2.Warnings, 1)
	assert.Equal(t, grading.WarningScoreClamped, q2.Warnings[0].Code)

	assert.Equal(t, 93.0, scoreValue(t, record.Overall.Grade))
	assert.True(t, record.Overall.Provisional)
	assert.Equal(t, grading.RemarkInProgress, record.Overall.Remark)
	assert.Equal(t, 1, record.Overall.CompleteQuarters)

	require.Len(t, f.subjectGrades.rows, 1)
	assert.Equal(t, "enr-1", f.subjectGrades.rows[0].EnrollmentID)
	assert.Contains(t, f.cache.items, "grades:class:c1:gradebook:gb-1:enrollment:enr-1")
}

func TestGradeServiceStudentRecordAccess(t *testing.T) {
	f := newGradeFixture()

	tests := []struct {
		name      string
		principal authz.Principal
		code      string
	}{
		{name: "admin", principal: gradeAdmin},
		{name: "assigned teacher", principal: gradeTeacher},
		{name: "other teacher", principal: gradeOutside, code: appErrors.ErrForbidden.Code},
		{name: "classmate", principal: gradeBudi, code: appErrors.ErrForbidden.Code},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.grades.StudentRecord(context.Background(), tc.principal, "gb-1", "enr-1")
			if tc.code == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
		})
	}
}

func TestGradeServiceStudentRecordNotInGradebook(t *testing.T) {
	f := newGradeFixture()
	f.enrollments.roster = append(f.enrollments.roster, models.RosterEntry{
		Enrollment: models.Enrollment{ID: "enr-x", StudentID: "s1", ClassID: "c2", TermID: "t1", Status: models.EnrollmentStatusActive},
	})

	_, err := f.grades.StudentRecord(context.Background(), gradeAdmin, "gb-1", "enr-x")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = f.grades.StudentRecord(context.Background(), gradeAdmin, "gb-missing", "enr-1")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGradeServiceClassRoster(t *testing.T) {
	f := newGradeFixture()

	roster, err := f.grades.ClassRoster(context.Background(), gradeTeacher, "gb-1")
	require.NoError(t, err)
	assert.Equal(t, "X-A", roster.ClassName)
	assert.Equal(t, "Mathematics", roster.SubjectName)
	require.Len(t, roster.Rows, 2)

	ana, budi := roster.Rows[0], roster.Rows[1]
	assert.Equal(t, 93.0, scoreValue(t, ana.Overall.Grade))
	assert.False(t, budi.Overall.Grade.IsDefined())
	assert.Equal(t, grading.RemarkNoGrades, budi.Overall.Remark)
	require.Len(t, budi.Quarters, 2)
	assert.False(t, budi.Quarters[0].Grade.IsDefined())

	sum := roster.Summary
	assert.Equal(t, 2, sum.Students)
	assert.Equal(t, 1, sum.Graded)
	assert.Equal(t, 0, sum.Complete)
	assert.Equal(t, 93.0, scoreValue(t, sum.Average))
	assert.Equal(t, 93.0, scoreValue(t, sum.Min))
	assert.Len(t, f.subjectGrades.rows, 2)

	_, err = f.grades.ClassRoster(context.Background(), gradeAna, "gb-1")
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestGradeServiceRosterCachedUntilInvalidated(t *testing.T) {
	f := newGradeFixture()
	ctx := context.Background()
	gb, err := f.gradebooks.FindByID(ctx, "gb-1")
	require.NoError(t, err)

	first, err := f.grades.RosterFor(ctx, gb)
	require.NoError(t, err)
	require.NoError(t, f.scores.Upsert(ctx, "gb-1", []models.TaskScore{{TaskID: "qe1", EnrollmentID: "enr-1", PointsEarned: points(25)}}))

	cached, err := f.grades.RosterFor(ctx, gb)
	require.NoError(t, err)
	assert.Equal(t, scoreValue(t, first.Rows[0].Overall.Grade), scoreValue(t, cached.Rows[0].Overall.Grade))

	f.grades.InvalidateGradebook(ctx, gb)
	assert.NotContains(t, f.cache.items, "grades:class:c1:gradebook:gb-1:roster")

	fresh, err := f.grades.RosterFor(ctx, gb)
	require.NoError(t, err)
	// Q1 becomes (80*0.4 + 50*0.6) = 62, overall (62 + 100) / 2 = 81.
	assert.Equal(t, 81.0, scoreValue(t, fresh.Rows[0].Overall.Grade))
}

func TestGradeServiceInvalidConfiguration(t *testing.T) {
	f := newGradeFixture()
	f.gradebooks.byID["gb-1"].Categories[0].Weight = 0.3

	_, err := f.grades.ClassRoster(context.Background(), gradeAdmin, "gb-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidConfiguration.Code, appErrors.FromError(err).Code)
}

func TestGradeServiceFinalRemark(t *testing.T) {
	f := newGradeFixture()
	f.gradebooks.byID["gb-1"].QuarterCount = 1

	record, err := f.grades.StudentRecord(context.Background(), gradeAdmin, "gb-1", "enr-1")
	require.NoError(t, err)
	assert.False(t, record.Overall.Provisional)
	assert.Equal(t, grading.RemarkPassed, record.Overall.Remark)

	f.gradebooks.byID["gb-1"].PassingGrade = 86.01
	f.cache.items = map[string][]byte{}
	record, err = f.grades.StudentRecord(context.Background(), gradeAdmin, "gb-1", "enr-1")
	require.NoError(t, err)
	assert.Equal(t, grading.RemarkFailed, record.Overall.Remark)
}

func TestGradeServiceReportCard(t *testing.T) {
	f := newGradeFixture()

	card, err := f.grades.ReportCard(context.Background(), gradeAna, "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", card.StudentName)
	require.Len(t, card.Subjects, 1)
	assert.Equal(t, "MATH", card.Subjects[0].SubjectCode)
	assert.Equal(t, 93.0, scoreValue(t, card.Average))
	assert.Contains(t, f.cache.items, "grades:term:t1:student:s1:card")

	_, err = f.grades.ReportCard(context.Background(), gradeBudi, "s1", "t1")
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = f.grades.ReportCard(context.Background(), gradeTeacher, "s1", "t1")
	assert.NoError(t, err)

	_, err = f.grades.ReportCard(context.Background(), gradeOutside, "s1", "t1")
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = f.grades.ReportCard(context.Background(), gradeAdmin, "s1", "")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
