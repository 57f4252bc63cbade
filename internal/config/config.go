package config

import (
	"os"
	"strings"
)

type Config struct {
	HTTPAddr string

	DBDriver string
	DBDSN    string

	AuthSecret string
	// Dev convenience: accept the JWT role claim when the user row is gone.
	AllowClaimRoleFallback bool

	CORSOrigins []string

	// Server-side backstop that finalizes overdue timed attempts.
	EnableSweeper bool
	SweepSpec     string

	AdminUser     string
	AdminPassHash string // bcrypt
}

func FromEnv() Config {
	return Config{
		HTTPAddr:               envOr("HTTP_ADDR", ":8080"),
		DBDriver:               envOr("DB_DRIVER", "sqlite"),
		DBDSN:                  envOr("DB_DSN", ""),
		AuthSecret:             envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		AllowClaimRoleFallback: envBool("ALLOW_CLAIM_ROLE_FALLBACK", true),
		CORSOrigins:            csvOr("CORS_ORIGINS", "http://localhost:3000"),
		EnableSweeper:          envBool("ENABLE_SWEEPER", true),
		SweepSpec:              envOr("SWEEP_SPEC", "@every 1m"),
		AdminUser:              envOr("ADMIN_USER", "admin"),
		AdminPassHash:          envOr("ADMIN_PASS_HASH", ""),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
