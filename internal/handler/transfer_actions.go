package handler

import (
	"context"

	"church-portal-be/internal/dto"
	"church-portal-be/internal/rpc"
	"church-portal-be/internal/transfer"
)

// TransferActions exposes the chunked upload and download sessions. Download actions are
// open at dispatch level; the manager authorizes each session itself.
type TransferActions struct {
	manager *transfer.Manager
}

func NewTransferActions(manager *transfer.Manager) *TransferActions {
	return &TransferActions{manager: manager}
}

func (h *TransferActions) Register(reg *rpc.Registry) {
	rpc.Register(reg, "file.upload.init", rpc.AuthAny, h.InitUpload)
	rpc.Register(reg, "file.upload.chunk", rpc.AuthAny, h.UploadChunk)
	rpc.Register(reg, "file.upload.complete", rpc.AuthAny, h.CompleteUpload)
	rpc.Register(reg, "file.upload.abort", rpc.AuthAny, h.AbortUpload)

	rpc.Register(reg, "file.download.init", rpc.AuthNone, h.InitDownload)
	rpc.Register(reg, "file.download.chunk", rpc.AuthNone, h.DownloadChunk)
	rpc.Register(reg, "file.download.complete", rpc.AuthNone, h.CompleteDownload)
	rpc.Register(reg, "file.download.abort", rpc.AuthNone, h.AbortDownload)
}

func (h *TransferActions) InitUpload(ctx context.Context, call *rpc.Call, req transfer.UploadTarget) (*transfer.UploadTicket, error) {
	return h.manager.InitUpload(ctx, call.Conn.ID(), call.Identity, req)
}

func (h *TransferActions) UploadChunk(ctx context.Context, call *rpc.Call, req dto.UploadChunkRequest) (*transfer.ChunkAck, error) {
	return h.manager.Chunk(ctx, call.Conn.ID(), req.UploadId, req.Data)
}

func (h *TransferActions) CompleteUpload(ctx context.Context, call *rpc.Call, req dto.UploadIdRequest) (*transfer.FileDescriptor, error) {
	return h.manager.Complete(ctx, call.Conn.ID(), req.UploadId)
}

func (h *TransferActions) AbortUpload(_ context.Context, call *rpc.Call, req dto.UploadIdRequest) (*dto.TransferClosedResponse, error) {
	if err := h.manager.Abort(call.Conn.ID(), req.UploadId); err != nil {
		return nil, err
	}
	return &dto.TransferClosedResponse{Closed: true}, nil
}

func (h *TransferActions) InitDownload(ctx context.Context, call *rpc.Call, req transfer.DownloadTarget) (*transfer.DownloadTicket, error) {
	return h.manager.InitDownload(ctx, call.Conn.ID(), call.Identity, req)
}

func (h *TransferActions) DownloadChunk(ctx context.Context, call *rpc.Call, req dto.DownloadIdRequest) (*transfer.DownloadChunk, error) {
	return h.manager.NextChunk(ctx, call.Conn.ID(), call.Identity, req.DownloadId)
}

func (h *TransferActions) CompleteDownload(_ context.Context, call *rpc.Call, req dto.DownloadIdRequest) (*dto.TransferClosedResponse, error) {
	if err := h.manager.CompleteDownload(call.Conn.ID(), req.DownloadId); err != nil {
		return nil, err
	}
	return &dto.TransferClosedResponse{Closed: true}, nil
}

func (h *TransferActions) AbortDownload(_ context.Context, call *rpc.Call, req dto.DownloadIdRequest) (*dto.TransferClosedResponse, error) {
	if err := h.manager.AbortDownload(call.Conn.ID(), req.DownloadId); err != nil {
		return nil, err
	}
	return &dto.TransferClosedResponse{Closed: true}, nil
}
