package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

type AzureOptions struct {
	Account   string
	Key       string
	Container string
	Prefix    string
}

// AzureBlobStore writes whole blobs; like S3 it is fed by the buffered upload sink.
type AzureBlobStore struct {
	client    *azblob.Client
	container string
	prefix    string
}

func NewAzureBlobStore(opts AzureOptions) (*AzureBlobStore, error) {
	if opts.Account == "" || opts.Key == "" || opts.Container == "" {
		return nil, errors.New("AZURE_STORAGE_ACCOUNT/AZURE_STORAGE_KEY/AZURE_BLOB_CONTAINER required when STORAGE_BACKEND=azure")
	}
	credential, err := azblob.NewSharedKeyCredential(opts.Account, opts.Key)
	if err != nil {
		return nil, fmt.Errorf("build shared key credential: %w", err)
	}
	url := fmt.Sprintf("https://%s.blob.core.windows.net/", opts.Account)
	client, err := azblob.NewClientWithSharedKeyCredential(url, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}
	return &AzureBlobStore{client: client, container: opts.Container, prefix: opts.Prefix}, nil
}

func (s *AzureBlobStore) Name() string {
	return "azure"
}

func (s *AzureBlobStore) blobName(key string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return joinPrefix(s.prefix, cleaned), nil
}

func (s *AzureBlobStore) Put(ctx context.Context, key string, r io.Reader, _ int64, contentType string) error {
	name, err := s.blobName(key)
	if err != nil {
		return err
	}
	_, err = s.client.UploadStream(ctx, s.container, name, r, &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return fmt.Errorf("upload blob %s: %w", name, err)
	}
	return nil
}

func (s *AzureBlobStore) Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	name, err := s.blobName(key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	resp, err := s.client.DownloadStream(ctx, s.container, name, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, ObjectInfo{}, ErrNotFound
		}
		return nil, ObjectInfo{}, fmt.Errorf("download blob %s: %w", name, err)
	}
	info := ObjectInfo{}
	if resp.ContentLength != nil {
		info.Size = *resp.ContentLength
	}
	if resp.ContentType != nil {
		info.ContentType = *resp.ContentType
	}
	return resp.Body, info, nil
}

func (s *AzureBlobStore) Delete(ctx context.Context, key string) error {
	name, err := s.blobName(key)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteBlob(ctx, s.container, name, nil); err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return fmt.Errorf("delete blob %s: %w", name, err)
	}
	return nil
}
