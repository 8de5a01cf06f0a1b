package api

// TriggerRunRequest is the body of POST /api/entities/:id/run.
type TriggerRunRequest struct {
	DryRun bool `json:"dry_run"`
}

// SignalStateResponse is the body of GET /api/entities/:id/state.
type SignalStateResponse struct {
	EntityID string `json:"entity_id"`
	Signal   string `json:"signal"`
}
