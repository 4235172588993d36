package grading

import (
	"math"
)

// WeightTolerance bounds the accepted drift of category weights from 1.0.
const WeightTolerance = 1e-6

// GradeCategory groups tasks under a weighted share of the quarter grade.
type GradeCategory struct {
	ID     string  `json:"id"`
	Label  string  `json:"label"`
	Weight float64 `json:"weight"`
	Tasks  []Task  `json:"tasks"`
}

// HasGradedTask reports whether at least one task carries a score.
func (c GradeCategory) HasGradedTask() bool {
	for _, t := range c.Tasks {
		if t.Graded() {
			return true
		}
	}
	return false
}

// CategoryResult is the aggregated outcome of a category.
type CategoryResult struct {
	CategoryID           string    `json:"category_id"`
	Label                string    `json:"label"`
	Weight               float64   `json:"weight"`
	RawAverage           Score     `json:"raw_average"`
	WeightedContribution Score     `json:"weighted_contribution"`
	GradedTasks          int       `json:"graded_tasks"`
	TotalTasks           int       `json:"total_tasks"`
	Warnings             []Warning `json:"warnings,omitempty"`
}

// AggregateCategory averages the graded tasks of a category and applies its weight.
func AggregateCategory(category GradeCategory) (CategoryResult, error) {
	result := CategoryResult{
		CategoryID: category.ID,
		Label:      category.Label,
		Weight:     category.Weight,
		TotalTasks: len(category.Tasks),
	}
	if err := validateWeight(category); err != nil {
		return result, err
	}
	sum := 0.0
	for _, task := range category.Tasks {
		score, err := ScoreTask(task)
		if err != nil {
			return result, err
		}
		if score.Warning != nil {
			result.Warnings = append(result.Warnings, *score.Warning)
		}
		pct, ok := score.Percentage.Value()
		if !ok {
			continue
		}
		sum += pct
		result.GradedTasks++
	}
	if result.GradedTasks == 0 {
		return result, nil
	}
	avg := sum / float64(result.GradedTasks)
	result.RawAverage = Defined(avg)
	result.WeightedContribution = Defined(avg * category.Weight)
	return result, nil
}

// ValidateWeights checks that each weight lies in [0, 1] and that all weights sum to 1.
func ValidateWeights(categories []GradeCategory) error {
	if len(categories) == 0 {
		return configErrorf("categories", "at least one category required")
	}
	total := 0.0
	for _, c := range categories {
		if err := validateWeight(c); err != nil {
			return err
		}
		total += c.Weight
	}
	if math.Abs(total-1) > WeightTolerance {
		return configErrorf("categories", "weights must sum to 1, got %g", total)
	}
	return nil
}

func validateWeight(c GradeCategory) error {
	if math.IsNaN(c.Weight) || c.Weight < 0 || c.Weight > 1 {
		return configErrorf("category "+c.ID, "weight must be within [0, 1], got %g", c.Weight)
	}
	return nil
}
