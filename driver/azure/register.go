package azure

import (
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/gobeaver/convkit"
)

func init() {
	convkit.RegisterStore("azure", func(cfg *convkit.Config) (convkit.Store, error) {
		if cfg.AzureAccountName == "" || cfg.AzureAccountKey == "" {
			return nil, errors.New("azure account name and key are required")
		}

		if cfg.AzureContainerName == "" {
			return nil, errors.New("azure container name is required")
		}

		// Build service URL
		serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AzureAccountName)
		if cfg.AzureEndpoint != "" {
			serviceURL = cfg.AzureEndpoint
		}

		// Create shared key credential
		cred, err := azblob.NewSharedKeyCredential(cfg.AzureAccountName, cfg.AzureAccountKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure credential: %w", err)
		}

		client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure client: %w", err)
		}

		options := []AdapterOption{
			WithPollInterval(time.Duration(cfg.PollInterval) * time.Second),
		}
		if cfg.AzurePrefix != "" {
			options = append(options, WithPrefix(cfg.AzurePrefix))
		}

		return New(client, cfg.AzureContainerName, options...), nil
	})
}
