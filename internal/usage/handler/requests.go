package handler

// RecordRequest reports one use of a contributor's likeness. ContributorID
// accepts the contributor UUID or the CID.
type RecordRequest struct {
	ContributorID string `json:"contributor_id"`
	UseType       string `json:"use_type"`
	Description   string `json:"description"`
}

type RecordResponse struct {
	ID string `json:"id"`
}
