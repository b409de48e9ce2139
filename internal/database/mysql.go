package database

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func openMySQL(cfg Config) (*gorm.DB, error) {
	dsn, err := buildMySQLDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
}

// buildMySQLDSN assembles a go-sql-driver DSN from the structured config.
// An explicit cfg.DSN wins verbatim.
func buildMySQLDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("mysql driver requires a user and database name")
	}

	addr := net.JoinHostPort(defaultString(cfg.Host, "127.0.0.1"), strconv.Itoa(defaultPort(cfg.Port, 3306)))

	var b strings.Builder
	b.WriteString(cfg.User)
	if cfg.Password != "" {
		b.WriteByte(':')
		b.WriteString(cfg.Password)
	}
	fmt.Fprintf(&b, "@tcp(%s)/%s?", addr, cfg.Name)

	opts := mergeOptions(map[string]string{
		"charset":   "utf8mb4",
		"parseTime": "True",
		"loc":       "Local",
	}, cfg.Options)
	b.WriteString(strings.Join(opts, "&"))

	return b.String(), nil
}
