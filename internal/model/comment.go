package model

import "time"

// Comment is a rated review embedded in a course's aggregate.
//
// Username is a weak reference to the author: the display nickname is
// resolved at read time, so renaming yourself relabels every comment you
// have ever written. Nickname is therefore populated on reads only and
// never stored alongside the comment.
//
// The three rating dimensions are bounded to 1–5 (enforced at the service
// layer; the database stores plain integers).
type Comment struct {
	ID         string    `json:"id"`
	CourseCode string    `json:"courseCode"`
	Username   string    `json:"username"`
	Nickname   string    `json:"nickname,omitempty"` // resolved at read time, not persisted
	Text       string    `json:"text"`
	Difficulty int       `json:"difficulty"`
	Usefulness int       `json:"usefulness"`
	Workload   int       `json:"workload"`
	CreatedAt  time.Time `json:"createdAt"` // set once; comments have no edit path
}

// RatingSummary is the per-course arithmetic mean of each rating dimension
// across all of that course's comments. Courses with no comments never
// produce a summary, so a zero Count cannot occur.
type RatingSummary struct {
	CourseCode string  `json:"courseCode"`
	Difficulty float64 `json:"difficulty"`
	Usefulness float64 `json:"usefulness"`
	Workload   float64 `json:"workload"`
	Count      int     `json:"-"`
}
