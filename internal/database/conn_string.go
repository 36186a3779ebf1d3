package database

import (
	"fmt"
	"net/url"

	"github.com/iotaledger/explorer-sub006/internal/config"
)

// BuildConnString builds a PostgreSQL connection URL for the milestone
// store. The password is escaped; sslmode falls back to prefer.
func BuildConnString(cfg config.DBConfig) string {
	query := url.Values{}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}
	query.Set("sslmode", sslMode)
	if cfg.ApplicationName != "" {
		query.Set("application_name", cfg.ApplicationName)
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?%s",
		cfg.User,
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		cfg.Name,
		query.Encode(),
	)
}
