package domain

// Role is one of the two actor roles of the workflow.
type Role string

const (
	RoleRequestor  Role = "requestor"
	RoleReviewTeam Role = "review-team"
)
