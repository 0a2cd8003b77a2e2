package domain

// DirectoryUser is the slice of a user-directory record the workflow
// needs: where to send handoff mail and in which language.
type DirectoryUser struct {
	ID       string `json:"id"`
	Mail     string `json:"mail"`
	Language string `json:"language"`
}
