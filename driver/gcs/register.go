package gcs

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/storage"

	"github.com/gobeaver/convkit"
)

func init() {
	convkit.RegisterStore("gcs", func(cfg *convkit.Config) (convkit.Store, error) {
		if cfg.GCSBucket == "" {
			return nil, errors.New("GCS bucket is required")
		}

		// Create client - uses GOOGLE_APPLICATION_CREDENTIALS env var or default credentials
		client, err := storage.NewClient(context.Background())
		if err != nil {
			return nil, err
		}

		options := []AdapterOption{
			WithPollInterval(time.Duration(cfg.PollInterval) * time.Second),
		}
		if cfg.GCSPrefix != "" {
			options = append(options, WithPrefix(cfg.GCSPrefix))
		}

		return New(client, cfg.GCSBucket, options...), nil
	})
}
