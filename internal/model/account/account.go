package account

// LoginRequest exchanges credentials for a bearer token.
type LoginRequest struct {
	Nick     string `json:"nick" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued token.
type LoginResponse struct {
	Token string `json:"token"`
}

// ModelState describes the model the backend is running.
type ModelState struct {
	Model   string `json:"model"`
	Status  string `json:"status,omitempty"`
	Success bool   `json:"success,omitempty"`
}

// SwitchModelRequest asks the backend to restart with another model.
type SwitchModelRequest struct {
	Model string `json:"model" validate:"required"`
}

// Feedback rates an answer. Corrections are only sent with negative votes.
type Feedback struct {
	Agree      bool   `json:"agree"`
	Vote       string `json:"vote,omitempty"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Correction string `json:"correction,omitempty"`
}

// Feedback votes.
const (
	VoteGood = "good"
	VoteBad  = "bad"
)

// NewFeedback builds the payload the way the page does: a good vote agrees
// and never carries a correction.
func NewFeedback(vote, question, answer, correction string) Feedback {
	fb := Feedback{
		Agree:    vote == VoteGood,
		Vote:     vote,
		Question: question,
		Answer:   answer,
	}
	if vote == VoteBad {
		fb.Correction = correction
	}
	return fb
}

// MemoryDeleteRequest removes conversation memory by time range or keyword.
// Empty fields are not sent.
type MemoryDeleteRequest struct {
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Keyword string `json:"keyword,omitempty"`
}

// Empty reports whether no filter is set.
func (r MemoryDeleteRequest) Empty() bool {
	return r.From == "" && r.To == "" && r.Keyword == ""
}

// MemoryDeleteResponse carries the backend's summary line.
type MemoryDeleteResponse struct {
	Message string `json:"message"`
}

// MemoryEntry is one remembered exchange.
type MemoryEntry struct {
	User        string   `json:"user"`
	Jarvik      string   `json:"jarvik"`
	Context     string   `json:"context,omitempty"`
	Date        string   `json:"date,omitempty"`
	Time        string   `json:"time,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

// MemoryAddRequest stores one exchange in memory. Private entries go to the
// user's own folder, the rest to the shared one.
type MemoryAddRequest struct {
	User        string   `json:"user" validate:"required"`
	Jarvik      string   `json:"jarvik" validate:"required"`
	Private     bool     `json:"private"`
	Context     string   `json:"context,omitempty"`
	Date        string   `json:"date,omitempty"`
	Time        string   `json:"time,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}
