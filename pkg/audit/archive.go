package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archiver persists a serialized ledger snapshot under a name.
type Archiver interface {
	Archive(ctx context.Context, name string, snapshot []byte) error
}

// Snapshot serializes the full chain plus its head hash for archival.
func (l *Ledger) Snapshot() ([]byte, error) {
	payload := struct {
		Head    string  `json:"head"`
		Entries []Entry `json:"entries"`
	}{l.Head(), l.Entries()}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return raw, nil
}

// Export snapshots the ledger and hands it to the archiver. The snapshot
// name embeds the chain length so successive exports never collide.
func (l *Ledger) Export(ctx context.Context, arch Archiver) error {
	snapshot, err := l.Snapshot()
	if err != nil {
		return err
	}
	name := fmt.Sprintf("audit-%08d.json", l.Length())
	return arch.Archive(ctx, name, snapshot)
}

// DirArchiver writes snapshots into a local directory.
type DirArchiver struct {
	dir string
}

// NewDirArchiver creates the directory if needed.
func NewDirArchiver(dir string) (*DirArchiver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &DirArchiver{dir: dir}, nil
}

func (d *DirArchiver) Archive(_ context.Context, name string, snapshot []byte) error {
	path := filepath.Join(d.dir, name)
	if err := os.WriteFile(path, snapshot, 0o644); err != nil {
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	return nil
}

// S3Archiver uploads snapshots to an S3 bucket.
type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Archiver builds an archiver using the ambient AWS credential chain.
func NewS3Archiver(ctx context.Context, bucket, prefix string) (*S3Archiver, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3Archiver{client: s3.NewFromConfig(cfg), bucket: bucket, prefix: prefix}, nil
}

func (a *S3Archiver) Archive(ctx context.Context, name string, snapshot []byte) error {
	key := name
	if a.prefix != "" {
		key = a.prefix + "/" + name
	}
	contentType := "application/json"
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &a.bucket,
		Key:         &key,
		Body:        bytes.NewReader(snapshot),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("upload snapshot %s: %w", key, err)
	}
	return nil
}
