// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package assetstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

// AzureStore archives assets as blobs in one Azure Storage container.
type AzureStore struct {
	client    *azblob.Client
	account   string
	container string
}

var _ Store = (*AzureStore)(nil)

// NewAzureStore picks the authentication method from the config: a
// connection string, then a shared key, then the default Azure
// credential chain.
func NewAzureStore(cfg Config) (*AzureStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("azure asset store requires a container")
	}

	var client *azblob.Client
	var err error

	switch {
	case cfg.ConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client from connection string: %w", err)
		}
	case cfg.AccountName != "" && cfg.AccountKey != "":
		serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
		cred, credErr := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if credErr != nil {
			return nil, fmt.Errorf("failed to create shared key credential: %w", credErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client: %w", err)
		}
	case cfg.AccountName != "":
		serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
		cred, credErr := azidentity.NewDefaultAzureCredential(nil)
		if credErr != nil {
			return nil, fmt.Errorf("failed to create Azure credential: %w", credErr)
		}
		client, err = azblob.NewClient(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client: %w", err)
		}
	default:
		return nil, errors.New("azure asset store requires a connection string or account name")
	}

	return &AzureStore{
		client:    client,
		account:   cfg.AccountName,
		container: cfg.Bucket,
	}, nil
}

func (s *AzureStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.UploadBuffer(ctx, s.container, key, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: &contentType,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload blob %s: %w", key, err)
	}
	return s.location(key), nil
}

func (s *AzureStore) Get(ctx context.Context, key string) ([]byte, error) {
	blobClient := s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(key)

	response, err := blobClient.DownloadStream(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download blob %s: %w", key, err)
	}

	data, err := io.ReadAll(response.Body)
	closeErr := response.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("failed to close blob stream: %w", closeErr)
	}
	return data, nil
}

func (s *AzureStore) List(ctx context.Context, prefix string) ([]Object, error) {
	containerClient := s.client.ServiceClient().NewContainerClient(s.container)
	pager := containerClient.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{
		Prefix: &prefix,
	})

	var objects []Object
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs under %s: %w", prefix, err)
		}
		for _, item := range page.Segment.BlobItems {
			obj := Object{Key: *item.Name, Location: s.location(*item.Name)}
			if item.Properties != nil {
				if item.Properties.ContentLength != nil {
					obj.Size = *item.Properties.ContentLength
				}
				if item.Properties.LastModified != nil {
					obj.LastModified = *item.Properties.LastModified
				}
			}
			objects = append(objects, obj)
		}
	}
	return objects, nil
}

func (s *AzureStore) Delete(ctx context.Context, key string) error {
	if _, err := s.client.DeleteBlob(ctx, s.container, key, nil); err != nil {
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}

func (s *AzureStore) location(key string) string {
	if s.account != "" {
		return fmt.Sprintf("azblob://%s/%s/%s", s.account, s.container, key)
	}
	return fmt.Sprintf("azblob://%s/%s", s.container, key)
}
