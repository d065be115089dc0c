package storage

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// NewClient uses credJSON when given, otherwise Application Default Credentials.
func NewClient(ctx context.Context, credJSON string) (*storage.Client, error) {
	if strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

// Archive writes NACHA files to a bucket. Objects are never overwritten.
type Archive struct {
	client *storage.Client
	bucket string
}

func NewArchive(c *storage.Client, bucket string) *Archive {
	return &Archive{client: c, bucket: bucket}
}

func (a *Archive) Put(ctx context.Context, name string, content []byte) error {
	obj := a.client.Bucket(a.bucket).Object(name).If(storage.Conditions{DoesNotExist: true})
	wc := obj.NewWriter(ctx)
	wc.ContentType = "text/plain"
	wc.ChunkSize = 0
	if _, err := wc.Write(content); err != nil {
		_ = wc.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	return nil
}
