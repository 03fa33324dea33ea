package handler

type ReviewRequest struct {
	ContributorID string `json:"contributor_id"`
	Decision      string `json:"decision"`
	Notes         string `json:"notes"`
}
