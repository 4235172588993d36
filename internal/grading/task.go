package grading

import (
	"fmt"
	"math"
)

// Task is a single scored activity within a category.
type Task struct {
	ID             string   `json:"id"`
	Label          string   `json:"label"`
	PointsEarned   *float64 `json:"points_earned"`
	PointsPossible float64  `json:"points_possible"`
}

// Graded reports whether a score has been recorded for the task.
func (t Task) Graded() bool { return t.PointsEarned != nil }

// TaskScore is the percentage outcome of a task.
type TaskScore struct {
	TaskID     string   `json:"task_id"`
	Percentage Score    `json:"percentage"`
	Warning    *Warning `json:"warning,omitempty"`
}

// ScoreTask converts earned points into a percentage in [0, 100].
// Ungraded tasks yield Undefined rather than zero.
func ScoreTask(task Task) (TaskScore, error) {
	result := TaskScore{TaskID: task.ID}
	if !(task.PointsPossible > 0) || math.IsInf(task.PointsPossible, 1) {
		return result, configErrorf("task "+task.ID, "points possible must be a positive finite number, got %g", task.PointsPossible)
	}
	if task.PointsEarned == nil {
		return result, nil
	}
	earned := *task.PointsEarned
	if math.IsNaN(earned) {
		return result, configErrorf("task "+task.ID, "points earned is not a number")
	}
	pct := 100 * earned / task.PointsPossible
	switch {
	case pct < 0:
		pct = 0
	case pct > 100:
		pct = 100
	}
	if earned < 0 || earned > task.PointsPossible {
		result.Warning = &Warning{
			Code:    WarningScoreClamped,
			TaskID:  task.ID,
			Message: fmt.Sprintf("earned %g outside [0, %g]", earned, task.PointsPossible),
		}
	}
	result.Percentage = Defined(pct)
	return result, nil
}
