// Package keys builds the colon-delimited cache keys used across the study
// companion backend. The formats are a contract: handlers that invalidate a
// resource by hand must produce the exact same string the caching call site
// stored it under, so any change here is a breaking change.
package keys

import (
	"fmt"
	"strings"
)

// User returns the key for a user profile: "user:<user_id>".
func User(userID string) string {
	return "user:" + userID
}

// Subject returns the key for a subject: "subject:<subject_id>".
func Subject(subjectID string) string {
	return "subject:" + subjectID
}

// StudentGoals returns the key for a student's goal list:
// "goals:student:<student_id>".
func StudentGoals(studentID string) string {
	return "goals:student:" + studentID
}

// StudentSubjectRating returns the key for a student's rating in a subject:
// "rating:student:<student_id>:subject:<subject_id>".
func StudentSubjectRating(studentID, subjectID string) string {
	return fmt.Sprintf("rating:student:%s:subject:%s", studentID, subjectID)
}

// PracticeBank returns the key for a practice question bank filtered by
// difficulty: "practice:bank:subject:<subject_id>:diff:<min>-<max>".
func PracticeBank(subjectID string, minDiff, maxDiff int) string {
	return fmt.Sprintf("practice:bank:subject:%s:diff:%d-%d", subjectID, minDiff, maxDiff)
}

// Join builds a key from a domain and identifiers, colon-delimited:
// Join("nudge", "student", id) == "nudge:student:<id>". It is the escape
// hatch for domains without a dedicated helper.
func Join(domain string, parts ...string) string {
	if len(parts) == 0 {
		return domain
	}
	return domain + ":" + strings.Join(parts, ":")
}
