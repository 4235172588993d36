package service

import (
	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/grading"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

const gradeDecimals = 2

// scoreIndex maps task id and enrollment id to the recorded points.
type scoreIndex map[string]map[string]*float64

func indexScores(scores []models.TaskScore) scoreIndex {
	idx := make(scoreIndex)
	for _, sc := range scores {
		byEnrollment, ok := idx[sc.EnrollmentID]
		if !ok {
			byEnrollment = make(map[string]*float64)
			idx[sc.EnrollmentID] = byEnrollment
		}
		byEnrollment[sc.TaskID] = sc.PointsEarned
	}
	return idx
}

func (idx scoreIndex) points(enrollmentID, taskID string) *float64 {
	if v := idx[enrollmentID][taskID]; v != nil {
		p := *v
		return &p
	}
	return nil
}

// gradebookLayout groups tasks by quarter and category in display order.
type gradebookLayout struct {
	gradebook *models.Gradebook
	tasks     map[int]map[string][]models.GradebookTask
}

func newGradebookLayout(gb *models.Gradebook, tasks []models.GradebookTask) gradebookLayout {
	layout := gradebookLayout{gradebook: gb, tasks: make(map[int]map[string][]models.GradebookTask)}
	for _, task := range tasks {
		byCategory, ok := layout.tasks[task.Quarter]
		if !ok {
			byCategory = make(map[string][]models.GradebookTask)
			layout.tasks[task.Quarter] = byCategory
		}
		byCategory[task.CategoryID] = append(byCategory[task.CategoryID], task)
	}
	return layout
}

// record builds the grading snapshot of one enrollment. Quarters run from 1
// to the gradebook's quarter count even when a quarter has no tasks yet.
func (l gradebookLayout) record(enrollment models.Enrollment, scores scoreIndex) grading.StudentSubjectRecord {
	gb := l.gradebook
	record := grading.StudentSubjectRecord{
		StudentID: enrollment.StudentID,
		SubjectID: gb.SubjectID,
		Quarters:  make([]grading.QuarterRecord, 0, gb.QuarterCount),
	}
	for q := 1; q <= gb.QuarterCount; q++ {
		quarter := grading.QuarterRecord{Quarter: q, Categories: make([]grading.GradeCategory, 0, len(gb.Categories))}
		for _, cat := range gb.Categories {
			category := grading.GradeCategory{ID: cat.ID, Label: cat.Label, Weight: cat.Weight}
			for _, task := range l.tasks[q][cat.ID] {
				category.Tasks = append(category.Tasks, grading.Task{
					ID:             task.ID,
					Label:          task.Label,
					PointsEarned:   scores.points(enrollment.ID, task.ID),
					PointsPossible: task.PointsPossible,
				})
			}
			if cat.Kind == models.CategoryKindQuarterlyExam && category.HasGradedTask() {
				quarter.QuarterlyExamRecorded = true
			}
			quarter.Categories = append(quarter.Categories, category)
		}
		record.Quarters = append(record.Quarters, quarter)
	}
	return record
}

func clampedCount(result grading.RecordResult) int {
	n := 0
	for _, w := range result.Warnings {
		if w.Code == grading.WarningScoreClamped {
			n++
		}
	}
	return n
}

func overallView(result grading.RecordResult) dto.OverallView {
	return dto.OverallView{
		Grade:            result.Overall.Grade.Round(gradeDecimals),
		Provisional:      result.Overall.Provisional,
		Remark:           result.Remark,
		GradedQuarters:   result.Overall.GradedQuarters,
		CompleteQuarters: result.Overall.CompleteQuarters,
		TotalQuarters:    result.Overall.TotalQuarters,
	}
}

func quarterSummaries(result grading.RecordResult) []dto.QuarterSummary {
	out := make([]dto.QuarterSummary, 0, len(result.Quarters))
	for _, q := range result.Quarters {
		out = append(out, dto.QuarterSummary{Quarter: q.Quarter, Grade: q.Final.Round(gradeDecimals), Complete: q.Complete})
	}
	return out
}

// quarterViews pairs each quarter result with its snapshot for task detail.
func (l gradebookLayout) quarterViews(record grading.StudentSubjectRecord, result grading.RecordResult) []dto.QuarterView {
	categoryMeta := make(map[string]models.GradebookCategory, len(l.gradebook.Categories))
	for _, cat := range l.gradebook.Categories {
		categoryMeta[cat.ID] = cat
	}
	views := make([]dto.QuarterView, 0, len(result.Quarters))
	for i, qr := range result.Quarters {
		snapshot := record.Quarters[i]
		view := dto.QuarterView{
			Quarter:               qr.Quarter,
			Complete:              qr.Complete,
			QuarterlyExamRecorded: snapshot.QuarterlyExamRecorded,
			Final:                 qr.Final.Round(gradeDecimals),
			Expected:              qr.Expected.Round(gradeDecimals),
			Categories:            make([]dto.CategoryView, 0, len(qr.Categories)),
			Warnings:              qr.Warnings,
		}
		for j, cr := range qr.Categories {
			meta := categoryMeta[cr.CategoryID]
			cv := dto.CategoryView{
				CategoryID:           cr.CategoryID,
				Code:                 meta.Code,
				Label:                cr.Label,
				Kind:                 string(meta.Kind),
				Weight:               cr.Weight,
				RawAverage:           cr.RawAverage.Round(gradeDecimals),
				WeightedContribution: cr.WeightedContribution.Round(gradeDecimals),
				GradedTasks:          cr.GradedTasks,
				TotalTasks:           cr.TotalTasks,
			}
			for _, task := range snapshot.Categories[j].Tasks {
				scored, _ := grading.ScoreTask(task)
				cv.Tasks = append(cv.Tasks, dto.TaskView{
					TaskID:         task.ID,
					Label:          task.Label,
					PointsEarned:   task.PointsEarned,
					PointsPossible: task.PointsPossible,
					Percentage:     scored.Percentage.Round(gradeDecimals),
				})
			}
			view.Categories = append(view.Categories, cv)
		}
		views = append(views, view)
	}
	return views
}

// summarize aggregates the unrounded overall grades of a roster.
func summarize(results []grading.RecordResult) dto.ClassSummary {
	summary := dto.ClassSummary{Students: len(results)}
	var sum, lo, hi float64
	for _, r := range results {
		if r.Overall.TotalQuarters > 0 && r.Overall.CompleteQuarters == r.Overall.TotalQuarters {
			summary.Complete++
		}
		switch r.Remark {
		case grading.RemarkPassed:
			summary.Passed++
		case grading.RemarkFailed:
			summary.Failed++
		}
		v, ok := r.Overall.Grade.Value()
		if !ok {
			continue
		}
		if summary.Graded == 0 || v < lo {
			lo = v
		}
		if summary.Graded == 0 || v > hi {
			hi = v
		}
		sum += v
		summary.Graded++
	}
	if summary.Graded > 0 {
		summary.Average = grading.Defined(sum / float64(summary.Graded)).Round(gradeDecimals)
		summary.Min = grading.Defined(lo).Round(gradeDecimals)
		summary.Max = grading.Defined(hi).Round(gradeDecimals)
	}
	return summary
}

func subjectGradeRow(gb *models.Gradebook, enrollmentID string, result grading.RecordResult) models.SubjectGrade {
	quarters := make(models.QuarterGrades, 0, len(result.Quarters))
	for _, q := range result.Quarters {
		quarters = append(quarters, models.QuarterGrade{Quarter: q.Quarter, Grade: q.Final.Round(gradeDecimals).Ptr(), Complete: q.Complete})
	}
	return models.SubjectGrade{
		GradebookID:  gb.ID,
		EnrollmentID: enrollmentID,
		Quarters:     quarters,
		OverallGrade: result.Overall.Grade.Round(gradeDecimals).Ptr(),
		Provisional:  result.Overall.Provisional,
		Remark:       string(result.Remark),
		Official:     gb.Finalized,
	}
}
