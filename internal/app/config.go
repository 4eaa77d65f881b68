package app

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env       string
	HTTPAddr  string
	CORSAllow []string

	// Execution sandbox
	ExecTimeout time.Duration // wall-clock budget per run

	// WebSocket limits
	WSMaxMsgBytes int64   // inbound frame size cap
	WSMsgsPerSec  float64 // per-connection inbound rate
	WSSendBuffer  int     // outbound queue depth per connection

	// HTTP rate limit (requests per minute per IP)
	HTTPRateMax int
}

func LoadConfig() Config {
	cfg := Config{
		Env:      getEnv("APP_ENV", "dev"),
		HTTPAddr: getEnv("HTTP_ADDR", ":5001"),
	}
	cfg.ExecTimeout = time.Duration(getEnvInt("EXEC_TIMEOUT_MS", 1000)) * time.Millisecond
	cfg.WSMaxMsgBytes = int64(getEnvInt("WS_MAX_MSG_BYTES", 1<<20))
	cfg.WSMsgsPerSec = float64(getEnvInt("WS_MSGS_PER_SEC", 50))
	cfg.WSSendBuffer = getEnvInt("WS_SEND_BUFFER", 256)
	cfg.HTTPRateMax = getEnvInt("HTTP_RATE_MAX", 120)

	// CORS allowlist
	allow := getEnv("CORS_ALLOW", "*")
	cfg.CORSAllow = splitCSV(allow)
	log.Printf("config: %+v\n", cfg)
	return cfg
}

// getEnv returns the env var or a default
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// getEnvInt parses a positive int env var with a fallback
func getEnvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return def
}

// splitCSV trims and filters a comma-separated list
func splitCSV(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
