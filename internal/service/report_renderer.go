package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"church-portal-be/internal/entity"
)

// RenderedReport is the renderer output stored for a completed job.
type RenderedReport struct {
	Content     []byte
	ContentType string
	Extension   string
}

// Renderer turns a claimed job into a document.
type Renderer interface {
	Render(ctx context.Context, job *entity.ReportJob) (*RenderedReport, error)
}

// DocumentRenderer emits the job parameters as a JSON document.
type DocumentRenderer struct {
	now func() time.Time
}

func NewDocumentRenderer() *DocumentRenderer {
	return &DocumentRenderer{now: time.Now}
}

func (r *DocumentRenderer) Render(ctx context.Context, job *entity.ReportJob) (*RenderedReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, err := json.MarshalIndent(map[string]interface{}{
		"report":      job.Type,
		"format":      job.Format,
		"tenantId":    job.TenantId,
		"requestedBy": job.RequesterId,
		"jobId":       job.Id.String(),
		"generatedAt": r.now().UTC().Format(time.RFC3339),
		"params":      job.Params,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report document: %w", err)
	}

	return &RenderedReport{
		Content:     body,
		ContentType: "application/json",
		Extension:   ".json",
	}, nil
}
