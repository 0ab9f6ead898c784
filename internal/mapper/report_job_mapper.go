package mapper

import (
	"encoding/json"

	"church-portal-be/internal/entity"
	"church-portal-be/internal/model"

	"gorm.io/datatypes"
)

type ReportJobMapper struct{}

func NewReportJobMapper() *ReportJobMapper {
	return &ReportJobMapper{}
}

func (m *ReportJobMapper) ToEntity(j *model.ReportJob) *entity.ReportJob {
	if j == nil {
		return nil
	}

	params := map[string]interface{}{}
	if len(j.Params) > 0 {
		// Params are written by ToModel; a decode failure leaves them empty.
		_ = json.Unmarshal(j.Params, &params)
	}

	return &entity.ReportJob{
		Id:           j.Id,
		Type:         j.Type,
		Format:       j.Format,
		RequesterId:  j.RequesterId,
		TenantId:     j.TenantId,
		Status:       entity.ReportJobStatus(j.Status),
		Progress:     j.Progress,
		Params:       params,
		ReportRef:    j.ReportRef,
		ErrorMessage: j.ErrorMessage,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
		CompletedAt:  j.CompletedAt,
	}
}

func (m *ReportJobMapper) ToModel(j *entity.ReportJob) *model.ReportJob {
	if j == nil {
		return nil
	}

	var params datatypes.JSON
	if j.Params != nil {
		if raw, err := json.Marshal(j.Params); err == nil {
			params = datatypes.JSON(raw)
		}
	}

	return &model.ReportJob{
		Id:           j.Id,
		Type:         j.Type,
		Format:       j.Format,
		RequesterId:  j.RequesterId,
		TenantId:     j.TenantId,
		Status:       string(j.Status),
		Progress:     j.Progress,
		Params:       params,
		ReportRef:    j.ReportRef,
		ErrorMessage: j.ErrorMessage,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
		CompletedAt:  j.CompletedAt,
	}
}

func (m *ReportJobMapper) ToEntities(jobs []*model.ReportJob) []*entity.ReportJob {
	out := make([]*entity.ReportJob, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, m.ToEntity(j))
	}
	return out
}
