package dto

type UploadChunkRequest struct {
	UploadId string `json:"uploadId" validate:"required"`
	Data     []byte `json:"data" validate:"required"`
}

type UploadIdRequest struct {
	UploadId string `json:"uploadId" validate:"required"`
}

type DownloadIdRequest struct {
	DownloadId string `json:"downloadId" validate:"required"`
}

type TransferClosedResponse struct {
	Closed bool `json:"closed"`
}
