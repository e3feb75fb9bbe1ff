package site

import (
	"github.com/RunningKuma/matrix-on-vscode/jsonv"
)

// Course represents a course the user is enrolled in. Optional string
// fields are empty when the upstream record does not carry them.
type Course struct {
	ID          int          `json:"id"`
	Title       string       `json:"title"`
	Code        string       `json:"code,omitempty"`
	Term        string       `json:"term,omitempty"`
	State       string       `json:"state,omitempty"`
	EndAt       string       `json:"endAt,omitempty"`
	IsOngoing   bool         `json:"isOngoing"`
	Assignments []Assignment `json:"assignments"`
	Raw         jsonv.Value  `json:"raw"`
}

// Assignment represents a problem assigned within a course. Nil numeric
// fields are absent upstream.
type Assignment struct {
	ID          int         `json:"id"`
	CourseID    int         `json:"courseId"`
	Title       string      `json:"title"`
	StartAt     string      `json:"startAt,omitempty"`
	Deadline    string      `json:"deadline,omitempty"`
	Status      string      `json:"status,omitempty"`
	Score       *float64    `json:"score,omitempty"`
	MaxScore    *float64    `json:"maxScore,omitempty"`
	SubmitTimes *float64    `json:"submitTimes,omitempty"`
	IsFinished  bool        `json:"isFinished"`
	IsFullScore bool        `json:"isFullScore"`
	Raw         jsonv.Value `json:"raw"`
}

// Attachment is a file or link attached to an assignment. At least one of
// the fields is non-empty.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
	Code string `json:"code,omitempty"`
}

// AssignmentDetail is an Assignment together with its statement and
// attachments.
type AssignmentDetail struct {
	Assignment
	Description string       `json:"description,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// UserStatus records whether a session is signed in and as whom.
type UserStatus struct {
	SignedIn bool   `json:"isSignedIn"`
	Username string `json:"username,omitempty"`
}

// Partition splits assignments into pending and completed lists, keeping
// input order within each.
func Partition(assignments []Assignment) (pending, completed []Assignment) {
	pending = []Assignment{}
	completed = []Assignment{}
	for _, a := range assignments {
		if a.IsFinished {
			completed = append(completed, a)
		} else {
			pending = append(pending, a)
		}
	}
	return pending, completed
}

// SplitCourses splits courses into ongoing and finished lists.
func SplitCourses(courses []Course) (ongoing, finished []Course) {
	for _, c := range courses {
		if c.IsOngoing {
			ongoing = append(ongoing, c)
		} else {
			finished = append(finished, c)
		}
	}
	return ongoing, finished
}
