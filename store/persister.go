package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mmdatafocus/shopledger_backend/models"
	"github.com/redis/go-redis/v9"
)

// FilePersister writes the snapshot as one JSON document. Writes go to a temp file in the
// same directory and are renamed over the target, so a crash leaves the previous snapshot.
type FilePersister struct {
	Path string
}

func NewFilePersister(path string) *FilePersister {
	return &FilePersister{Path: path}
}

func (p *FilePersister) Load(ctx context.Context) (*models.Snapshot, error) {
	b, err := os.ReadFile(p.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap := models.NewSnapshot()
	if err := json.Unmarshal(b, snap); err != nil {
		return nil, fmt.Errorf("decode %s: %w", p.Path, err)
	}
	return snap, nil
}

func (p *FilePersister) Save(ctx context.Context, snapshot *models.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(p.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(p.Path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, p.Path)
}

// RedisPersister keeps the snapshot under a single redis key.
type RedisPersister struct {
	client *redis.Client
	key    string
}

func NewRedisPersister(client *redis.Client, key string) *RedisPersister {
	return &RedisPersister{client: client, key: key}
}

func (p *RedisPersister) Load(ctx context.Context) (*models.Snapshot, error) {
	b, err := p.client.Get(ctx, p.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap := models.NewSnapshot()
	if err := json.Unmarshal(b, snap); err != nil {
		return nil, fmt.Errorf("decode redis key %s: %w", p.key, err)
	}
	return snap, nil
}

func (p *RedisPersister) Save(ctx context.Context, snapshot *models.Snapshot) error {
	b, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return p.client.Set(ctx, p.key, b, 0).Err()
}
