package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"github.com/JaimeStill/sentio/pkg/lifecycle"
)

type azure struct {
	client    *azblob.Client
	container string
	logger    *slog.Logger
}

// newAzure prefers the connection string. Without one it authenticates
// against the account URL with the default Azure credential chain, in which
// case signed URLs are unavailable.
func newAzure(cfg *Config, logger *slog.Logger) (System, error) {
	var (
		client *azblob.Client
		err    error
	)

	if cfg.ConnectionString != "" {
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	} else {
		var cred *azidentity.DefaultAzureCredential
		cred, err = azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("create azure credential: %w", err)
		}
		client, err = azblob.NewClient(cfg.AccountURL, cred, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &azure{
		client:    client,
		container: cfg.ContainerName,
		logger:    logger,
	}, nil
}

func (a *azure) Start(lc *lifecycle.Coordinator) error {
	a.logger.Info("starting storage system")

	lc.OnStartup(func() {
		_, err := a.client.CreateContainer(lc.Context(), a.container, nil)
		if err != nil {
			if !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
				a.logger.Error("storage container initialization failed", "error", err)
				lc.Fail("storage", err)
				return
			}
		}

		a.logger.Info("storage container ready", "container", a.container)
	})

	return nil
}

func (a *azure) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	opts := &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: &contentType,
		},
	}

	if _, err := a.client.UploadStream(ctx, a.container, key, reader, opts); err != nil {
		return fmt.Errorf("upload blob %s: %w", key, err)
	}
	return nil
}

func (a *azure) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	resp, err := a.client.DownloadStream(ctx, a.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("download blob %s: %w", key, err)
	}
	return resp.Body, nil
}

// Move copies through the client with an If-None-Match: * precondition on
// the destination, then deletes the source.
func (a *azure) Move(ctx context.Context, from, to string) error {
	if err := validateKey(from); err != nil {
		return err
	}
	if err := validateKey(to); err != nil {
		return err
	}

	src, err := a.client.DownloadStream(ctx, a.container, from, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("move blob %s: %w", from, err)
	}
	defer src.Body.Close()

	opts := &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: src.ContentType,
		},
		AccessConditions: &blob.AccessConditions{
			ModifiedAccessConditions: &blob.ModifiedAccessConditions{
				IfNoneMatch: toETag(azcore.ETagAny),
			},
		},
	}

	if _, err := a.client.UploadStream(ctx, a.container, to, src.Body, opts); err != nil {
		if bloberror.HasCode(err, bloberror.BlobAlreadyExists, bloberror.ConditionNotMet) {
			return ErrExists
		}
		return fmt.Errorf("move blob %s to %s: %w", from, to, err)
	}

	if _, err := a.client.DeleteBlob(ctx, a.container, from, nil); err != nil {
		a.logger.Warn("move left source behind", "from", from, "to", to, "error", err)
	}
	return nil
}

func (a *azure) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	if _, err := a.client.DeleteBlob(ctx, a.container, key, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}

func (a *azure) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	if _, err := a.blobClient(key).GetProperties(ctx, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("check blob existence %s: %w", key, err)
	}
	return true, nil
}

func (a *azure) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	url, err := a.blobClient(key).GetSASURL(
		sas.BlobPermissions{Read: true},
		time.Now().UTC().Add(ttl),
		nil,
	)
	if err != nil {
		if errors.Is(err, bloberror.MissingSharedKeyCredential) {
			return "", nil
		}
		return "", fmt.Errorf("sign blob url %s: %w", key, err)
	}
	return url, nil
}

func (a *azure) blobClient(key string) *blob.Client {
	return a.client.
		ServiceClient().
		NewContainerClient(a.container).
		NewBlobClient(key)
}

func toETag(etag azcore.ETag) *azcore.ETag {
	return to.Ptr(etag)
}
