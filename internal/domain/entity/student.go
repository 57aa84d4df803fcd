package entity

import "time"

// Student is the canonical identity an invoice is billed to.
// StudentCode is unique across all students.
type Student struct {
	ID           string    `json:"id" bson:"_id"`
	StudentCode  string    `json:"studentCode" bson:"studentCode"`
	FullName     string    `json:"fullName" bson:"fullName"`
	GradeYear    string    `json:"gradeYear" bson:"gradeYear"`
	SectionClass string    `json:"sectionClass" bson:"sectionClass"`
	Status       string    `json:"status" bson:"status"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updatedAt"`
}
