package database

import (
	"errors"
	"strconv"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func openPostgres(cfg Config) (*gorm.DB, error) {
	dsn, err := buildPostgresDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
}

// buildPostgresDSN assembles a keyword/value DSN from the structured config.
// An explicit cfg.DSN wins verbatim; sslmode defaults to disable unless the
// options override it.
func buildPostgresDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("postgres driver requires a user and database name")
	}

	params := []string{
		"host=" + defaultString(cfg.Host, "localhost"),
		"port=" + strconv.Itoa(defaultPort(cfg.Port, 5432)),
		"user=" + cfg.User,
		"dbname=" + cfg.Name,
	}
	if cfg.Password != "" {
		params = append(params, "password="+cfg.Password)
	}
	params = append(params, mergeOptions(map[string]string{"sslmode": "disable"}, cfg.Options)...)

	return strings.Join(params, " "), nil
}
