package dto

import "church-portal-be/internal/identity"

type AttachRequest struct {
	Token string `json:"token" validate:"required"`
}

type AttachResponse struct {
	Identity *identity.Identity `json:"identity"`
	Groups   []string           `json:"groups"`
}

type GroupRequest struct {
	Group string `json:"group" validate:"required,max=200"`
}

type GroupResponse struct {
	Group  string `json:"group"`
	Joined bool   `json:"joined"`
}

type PingResponse struct {
	Pong bool  `json:"pong"`
	Ts   int64 `json:"ts"`
}
