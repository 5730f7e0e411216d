package model

// Category classifies a question into one of the four exam sections.
// The string values are the wire values stored in the question
// documents; they must not change.
type Category string

const (
	CategorySynopsis       Category = "Synopsis"
	CategoryMinorPractical Category = "Minor Practical"
	CategoryMajorPractical Category = "Major Practical"
	CategoryViva           Category = "Viva"
)

// Categories lists the sections in the fixed paper order.
var Categories = []Category{
	CategorySynopsis,
	CategoryMinorPractical,
	CategoryMajorPractical,
	CategoryViva,
}

// Question is a single multiple-choice bank entry. A generated paper
// stores copies, never references, so later bank edits cannot affect
// an in-progress exam.
type Question struct {
	ID           string   `json:"id"`
	Text         string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"answer"`
	Marks        int      `json:"marks"`
	Category     Category `json:"category"`
}

// Clone returns a deep copy of the question.
func (q Question) Clone() Question {
	cp := q
	cp.Options = make([]string, len(q.Options))
	copy(cp.Options, q.Options)
	return cp
}

// QuestionForCandidate is a question as sent to an exam taker: the
// correct index never leaves the server.
type QuestionForCandidate struct {
	ID       string   `json:"id"`
	Text     string   `json:"question"`
	Options  []string `json:"options"`
	Marks    int      `json:"marks"`
	Category Category `json:"category"`
}

// ForCandidate strips the answer key from a question.
func (q Question) ForCandidate() QuestionForCandidate {
	return QuestionForCandidate{
		ID:       q.ID,
		Text:     q.Text,
		Options:  append([]string(nil), q.Options...),
		Marks:    q.Marks,
		Category: q.Category,
	}
}

// SaveQuestionRequest is the admin payload for creating or updating a
// bank question.
type SaveQuestionRequest struct {
	ID           string   `json:"id" binding:"omitempty"`
	Text         string   `json:"question" binding:"required,min=1,max=2000"`
	Options      []string `json:"options" binding:"required,len=4,dive,required"`
	CorrectIndex int      `json:"answer" binding:"min=0,max=3"`
	Marks        int      `json:"marks" binding:"min=0,max=100"`
	Category     Category `json:"category" binding:"required,oneof=Synopsis 'Minor Practical' 'Major Practical' Viva"`
}
