package grading

// StudentSubjectRecord holds every quarter of one student in one subject.
type StudentSubjectRecord struct {
	StudentID string          `json:"student_id"`
	SubjectID string          `json:"subject_id"`
	Quarters  []QuarterRecord `json:"quarters"`
}

// OverallResult is the subject grade across quarters.
type OverallResult struct {
	Grade            Score `json:"grade"`
	Provisional      bool  `json:"provisional"`
	GradedQuarters   int   `json:"graded_quarters"`
	CompleteQuarters int   `json:"complete_quarters"`
	TotalQuarters    int   `json:"total_quarters"`
}

// Remark classifies an overall result for display.
type Remark string

const (
	RemarkPassed     Remark = "PASSED"
	RemarkFailed     Remark = "FAILED"
	RemarkInProgress Remark = "IN_PROGRESS"
	RemarkNoGrades   Remark = "NO_GRADES"
)

// RecordResult is the full evaluation of a StudentSubjectRecord.
type RecordResult struct {
	StudentID string          `json:"student_id"`
	SubjectID string          `json:"subject_id"`
	Quarters  []QuarterResult `json:"quarters"`
	Overall   OverallResult   `json:"overall"`
	Remark    Remark          `json:"remark"`
	Warnings  []Warning       `json:"warnings,omitempty"`
}

// CalculateOverallFinalGrade averages the defined quarter grades with equal
// weight. The result is provisional while any quarter is incomplete.
func CalculateOverallFinalGrade(quarters []QuarterRecord) (OverallResult, error) {
	result := OverallResult{TotalQuarters: len(quarters)}
	sum := 0.0
	for _, q := range quarters {
		grade, err := CalculateFinalGrade(q)
		if err != nil {
			return OverallResult{TotalQuarters: len(quarters)}, err
		}
		if IsQuarterComplete(q) {
			result.CompleteQuarters++
		}
		v, ok := grade.Value()
		if !ok {
			continue
		}
		sum += v
		result.GradedQuarters++
	}
	result.Provisional = result.TotalQuarters == 0 || result.CompleteQuarters < result.TotalQuarters
	if result.GradedQuarters > 0 {
		result.Grade = Defined(sum / float64(result.GradedQuarters))
	}
	return result, nil
}

// EvaluateRecord evaluates every quarter of the record and derives the remark
// against passingGrade.
func EvaluateRecord(record StudentSubjectRecord, passingGrade float64) (RecordResult, error) {
	result := RecordResult{StudentID: record.StudentID, SubjectID: record.SubjectID}
	result.Quarters = make([]QuarterResult, 0, len(record.Quarters))
	for _, q := range record.Quarters {
		qr, err := EvaluateQuarter(q)
		if err != nil {
			return result, err
		}
		result.Quarters = append(result.Quarters, qr)
		result.Warnings = append(result.Warnings, qr.Warnings...)
	}
	overall, err := CalculateOverallFinalGrade(record.Quarters)
	if err != nil {
		return result, err
	}
	result.Overall = overall
	result.Remark = RemarkFor(overall, passingGrade)
	return result, nil
}

// RemarkFor maps an overall result to a remark.
func RemarkFor(overall OverallResult, passingGrade float64) Remark {
	grade, ok := overall.Grade.Value()
	switch {
	case !ok:
		return RemarkNoGrades
	case overall.Provisional:
		return RemarkInProgress
	case grade >= passingGrade:
		return RemarkPassed
	default:
		return RemarkFailed
	}
}
