package dto

import "church-portal-be/internal/model"

type ListNotificationsRequest struct {
	Limit  int `json:"limit" validate:"omitempty,min=1,max=100"`
	Offset int `json:"offset" validate:"omitempty,min=0"`
}

type ListNotificationsResponse struct {
	Items  []model.Notification `json:"items"`
	Total  int64                `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

type MarkNotificationReadRequest struct {
	Id string `json:"id" validate:"required,uuid"`
}

type UnreadCountResponse struct {
	Count int64 `json:"count"`
}

type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}
