package storage

import (
	"context"
	"fmt"

	"github.com/dev-tams/deployprune/internal/config"
	"github.com/dev-tams/deployprune/internal/storage/local"
	miniostore "github.com/dev-tams/deployprune/internal/storage/minio"
	"github.com/dev-tams/deployprune/internal/storage/prunable"
	s3store "github.com/dev-tams/deployprune/internal/storage/s3"
)

// FromConfig builds the storage collaborator for the configured bucket. No request is sent to the
// storage service here.
func FromConfig(ctx context.Context, cfg *config.Config) (prunable.Prunable, error) {
	st := cfg.Storage
	name := st.Type + "://" + cfg.Bucket

	switch st.Type {
	case "local":
		if st.Path == "" {
			return nil, fmt.Errorf("storage %s: path is required", name)
		}
		return local.New(name, st.Path, cfg.Bucket), nil

	case "s3":
		s, err := s3store.New(ctx, s3store.Options{
			Name:      name,
			Bucket:    cfg.Bucket,
			Region:    st.Region,
			Endpoint:  st.Endpoint,
			PathStyle: st.PathStyle,
			AccessKey: st.AccessKey,
			SecretKey: st.SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("storage %s: %w", name, err)
		}
		return s, nil

	case "minio":
		s, err := miniostore.New(miniostore.Options{
			Name:      name,
			Endpoint:  st.Endpoint,
			Bucket:    cfg.Bucket,
			Region:    st.Region,
			AccessKey: st.AccessKey,
			SecretKey: st.SecretKey,
			PathStyle: st.PathStyle,
			Insecure:  st.Insecure,
		})
		if err != nil {
			return nil, fmt.Errorf("storage %s: %w", name, err)
		}
		return s, nil

	default:
		return nil, fmt.Errorf("storage %s: unknown type %q", name, st.Type)
	}
}
