package grading

// QuarterRecord is the gradebook snapshot of one grading period.
type QuarterRecord struct {
	Quarter               int             `json:"quarter"`
	Categories            []GradeCategory `json:"categories"`
	QuarterlyExamRecorded bool            `json:"quarterly_exam_recorded"`
}

// QuarterResult bundles every derived value of a quarter.
type QuarterResult struct {
	Quarter    int              `json:"quarter"`
	Complete   bool             `json:"complete"`
	Final      Score            `json:"final_grade"`
	Expected   Score            `json:"expected_grade"`
	Categories []CategoryResult `json:"categories"`
	Warnings   []Warning        `json:"warnings,omitempty"`
}

// IsQuarterComplete reports whether every category has graded work and the
// quarterly exam has been recorded.
func IsQuarterComplete(quarter QuarterRecord) bool {
	if len(quarter.Categories) == 0 || !quarter.QuarterlyExamRecorded {
		return false
	}
	for _, c := range quarter.Categories {
		if !c.HasGradedTask() {
			return false
		}
	}
	return true
}

// CalculateFinalGrade returns the weighted quarter grade renormalized over the
// categories that have graded work. It is the official value once the quarter
// is complete.
func CalculateFinalGrade(quarter QuarterRecord) (Score, error) {
	score, _, err := weightedQuarter(quarter)
	return score, err
}

// CalculateExpectedQuarterlyGrade projects the quarter grade from partial data.
// It uses the same renormalized average as CalculateFinalGrade and may be
// called on incomplete quarters.
func CalculateExpectedQuarterlyGrade(quarter QuarterRecord) (Score, error) {
	score, _, err := weightedQuarter(quarter)
	return score, err
}

// EvaluateQuarter computes completeness, final and expected grades together.
func EvaluateQuarter(quarter QuarterRecord) (QuarterResult, error) {
	result := QuarterResult{Quarter: quarter.Quarter}
	score, categories, err := weightedQuarter(quarter)
	if err != nil {
		return result, err
	}
	result.Complete = IsQuarterComplete(quarter)
	result.Final = score
	result.Expected = score
	result.Categories = categories
	for _, c := range categories {
		result.Warnings = append(result.Warnings, c.Warnings...)
	}
	return result, nil
}

func weightedQuarter(quarter QuarterRecord) (Score, []CategoryResult, error) {
	if err := ValidateWeights(quarter.Categories); err != nil {
		return Undefined, nil, err
	}
	results := make([]CategoryResult, 0, len(quarter.Categories))
	sum, gradedWeight := 0.0, 0.0
	for _, category := range quarter.Categories {
		res, err := AggregateCategory(category)
		if err != nil {
			return Undefined, nil, err
		}
		results = append(results, res)
		contribution, ok := res.WeightedContribution.Value()
		if !ok {
			continue
		}
		sum += contribution
		gradedWeight += category.Weight
	}
	if gradedWeight == 0 {
		return Undefined, results, nil
	}
	return Defined(sum / gradedWeight), results, nil
}
