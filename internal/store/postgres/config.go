// Package postgres implements store.Store against a PostgreSQL database,
// using database/sql and the lib/pq driver, following the connection
// management conventions of the teacher's own db package.
package postgres

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

// Config holds the Postgres connection parameters. Field-level validation
// mirrors the teacher's db.Config validateConfig: SQL-injection prevention
// by construction, since the DSN is built with fmt.Sprintf rather than a
// parameterized connection API.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

var (
	hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-\.]{0,253}[a-zA-Z0-9])?$`)
	identRegex    = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

func validateConfig(c Config) error {
	if c.Host == "" {
		return fmt.Errorf("store host cannot be empty")
	}
	if net.ParseIP(c.Host) == nil && !hostnameRegex.MatchString(c.Host) {
		return fmt.Errorf("invalid store host: %s", c.Host)
	}

	if c.Port == "" {
		return fmt.Errorf("store port cannot be empty")
	}
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid store port: %s (must be 1-65535)", c.Port)
	}

	if c.User == "" || !identRegex.MatchString(c.User) {
		return fmt.Errorf("invalid store user: %q", c.User)
	}
	if c.DBName == "" || !identRegex.MatchString(c.DBName) {
		return fmt.Errorf("invalid store database name: %q", c.DBName)
	}

	validSSLModes := []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
	if c.SSLMode != "" {
		valid := false
		for _, mode := range validSSLModes {
			if c.SSLMode == mode {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid store SSL mode: %s (must be one of: %s)", c.SSLMode, strings.Join(validSSLModes, ", "))
		}
	}

	return nil
}

func (c Config) dsn() string {
	mode := c.SSLMode
	if mode == "" {
		mode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, mode)
}
