package repository

import (
	"context"
	"fmt"
	"time"

	"SigWatch/internal/domain/models"
	apphttp "SigWatch/pkg/http"
)

// HTTPEvidenceProvider fetches the evidence context for an entity from
// the data service. The payload is opaque to the engine: whatever comes
// back is handed to rule scripts and judgment calls as-is.
type HTTPEvidenceProvider struct {
	httpc   *apphttp.Client
	baseURL string
}

// NewHTTPEvidenceProvider creates an evidence provider.
func NewHTTPEvidenceProvider(baseURL string, timeout time.Duration) *HTTPEvidenceProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPEvidenceProvider{
		httpc:   apphttp.NewClient(apphttp.WithTimeout(timeout)),
		baseURL: baseURL,
	}
}

type evidenceResponse struct {
	Data map[string]interface{} `json:"data"`
}

// Evidence returns the current data context for one entity.
func (p *HTTPEvidenceProvider) Evidence(ctx context.Context, entity *models.Entity) (map[string]interface{}, error) {
	var resp evidenceResponse
	err := p.httpc.SendAndParse(ctx, &apphttp.RequestOptions{
		Method: "GET",
		URL:    fmt.Sprintf("%s/api/evidence/%s", p.baseURL, entity.ID),
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("fetch evidence: %w", err)
	}
	if resp.Data == nil {
		resp.Data = map[string]interface{}{}
	}
	return resp.Data, nil
}
