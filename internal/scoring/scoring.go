// Package scoring grades a finished answer sheet against its paper.
package scoring

import (
	"math"

	"github.com/proctorly/proctorly-backend/internal/model"
)

// Report is the graded outcome of one attempt.
type Report struct {
	Earned        int
	Total         int
	SectionScores map[model.Category]int
	Percent       int
}

// Grade scores every question on the paper against the selected
// answers, keyed by question id. An absent or out-of-range selection
// earns zero. Questions with no marks value count as one mark.
//
// Major Practical questions earn partial credit by option position:
// the first option is fully correct and later options degrade, so the
// correct index is always 0 for that category. All other categories
// are exact match.
func Grade(paper []model.Question, answers map[string]int) Report {
	r := Report{SectionScores: make(map[model.Category]int, len(model.Categories))}
	for _, cat := range model.Categories {
		r.SectionScores[cat] = 0
	}

	for _, q := range paper {
		marks := q.Marks
		if marks <= 0 {
			marks = 1
		}
		r.Total += marks

		selected, ok := answers[q.ID]
		if !ok || selected < 0 || selected >= len(q.Options) {
			continue
		}

		var earned int
		if q.Category == model.CategoryMajorPractical {
			earned = partialCredit(selected, marks)
		} else if selected == q.CorrectIndex {
			earned = marks
		}

		r.Earned += earned
		r.SectionScores[q.Category] += earned
	}

	r.Percent = percent(r.Earned, r.Total)
	return r
}

// partialCredit maps an option position to a share of the marks.
func partialCredit(selected, marks int) int {
	switch selected {
	case 0:
		return marks
	case 1:
		return int(math.Round(0.75 * float64(marks)))
	case 2:
		return int(math.Round(0.5 * float64(marks)))
	default:
		return 0
	}
}

func percent(earned, total int) int {
	if total < 1 {
		total = 1
	}
	p := int(math.Round(float64(earned) / float64(total) * 100))
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return p
}
