package sftp

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gobeaver/convkit"
)

func init() {
	convkit.RegisterStore("sftp", func(cfg *convkit.Config) (convkit.Store, error) {
		if cfg.SFTPHost == "" {
			return nil, errors.New("SFTP host is required")
		}

		sftpConfig := Config{
			Host:         cfg.SFTPHost,
			Port:         cfg.SFTPPort,
			Username:     cfg.SFTPUsername,
			Password:     cfg.SFTPPassword,
			KnownHosts:   cfg.SFTPKnownHosts,
			BasePath:     cfg.SFTPBasePath,
			PollInterval: time.Duration(cfg.PollInterval) * time.Second,
		}

		// Load private key if specified
		if cfg.SFTPPrivateKey != "" {
			keyData, err := os.ReadFile(cfg.SFTPPrivateKey)
			if err != nil {
				return nil, fmt.Errorf("failed to read private key: %w", err)
			}
			sftpConfig.PrivateKey = keyData
		}

		return New(sftpConfig)
	})
}
