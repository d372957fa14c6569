package config

import (
	"os"
	"strconv"
	"strings"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// StoreConfig holds the on-disk content store locations.
type StoreConfig struct {
	// Root is the directory holding content files named by digest.
	Root string
	// Quarantine is where flagged files are relocated by the scanner.
	Quarantine string
	// XAccelRedirect serves file responses via the nginx X-Accel-Redirect
	// header instead of streaming the bytes directly.
	XAccelRedirect bool
}

// LimitsConfig holds size and naming limits for uploads.
type LimitsConfig struct {
	MaxContentLength  int64
	MaxURLLength      int
	MaxExtLength      int
	SecretBytes       int
	MinExpirationDays int
	MaxExpirationDays int
}

// UploadConfig holds upload screening settings.
type UploadConfig struct {
	// MimeDenylist rejects uploads whose declared or sniffed type matches.
	MimeDenylist []string
	// BlocklistFile is an optional file of banned source addresses, one
	// per line, '#' comments allowed.
	BlocklistFile string
}

// ScanConfig holds the malware scan pipeline settings.
type ScanConfig struct {
	// ClamdAddr is the clamd endpoint, e.g. tcp://127.0.0.1:3310 or
	// /run/clamav/clamd.sock. Empty disables scanning.
	ClamdAddr string
	// IntervalDays is the re-scan staleness window; 0 scans each file once.
	IntervalDays int
	// Allowlist names signatures that are known benign and never quarantined.
	Allowlist []string
}

// NSFWConfig holds the optional NSFW classifier settings.
type NSFWConfig struct {
	// Endpoint is the sidecar classifier URL. Empty disables detection.
	Endpoint  string
	Threshold float64
}

// ExtOverride maps media types to preferred filename extensions,
// overriding platform MIME tables for types where those are unhelpful.
var ExtOverride = map[string]string{
	"audio/flac":               ".flac",
	"image/gif":                ".gif",
	"image/jpeg":               ".jpg",
	"image/png":                ".png",
	"image/svg+xml":            ".svg",
	"video/webm":               ".webm",
	"video/x-matroska":         ".mkv",
	"application/octet-stream": ".bin",
	"text/plain":               ".txt",
	"text/x-diff":              ".diff",
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables and threaded explicitly into
// each component at construction; there is no ambient global state.
type AppConfig struct {
	// BaseURL is the public root of this instance, used in returned
	// links and to reject self-referential shortens.
	BaseURL  string
	Port     string
	Database DatabaseConfig
	Store    StoreConfig
	Limits   LimitsConfig
	Upload   UploadConfig
	Scan     ScanConfig
	NSFW     NSFWConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		BaseURL: getEnv("BASE_URL", "http://localhost:8080"),
		Port:    getEnv("PORT", "8080"),
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		Store: StoreConfig{
			Root:           getEnv("STORE_ROOT", "up"),
			Quarantine:     getEnv("STORE_QUARANTINE", "quarantine"),
			XAccelRedirect: getEnvBool("STORE_X_ACCEL_REDIRECT", false),
		},
		Limits: LimitsConfig{
			MaxContentLength:  getEnvInt64("MAX_CONTENT_LENGTH", 256*1024*1024),
			MaxURLLength:      getEnvInt("MAX_URL_LENGTH", 4096),
			MaxExtLength:      getEnvInt("MAX_EXT_LENGTH", 9),
			SecretBytes:       getEnvInt("SECRET_BYTES", 16),
			MinExpirationDays: getEnvInt("MIN_EXPIRATION_DAYS", 30),
			MaxExpirationDays: getEnvInt("MAX_EXPIRATION_DAYS", 365),
		},
		Upload: UploadConfig{
			MimeDenylist: getEnvList("MIME_DENYLIST", []string{
				"application/x-dosexec",
				"application/java-archive",
				"application/java-vm",
			}),
			BlocklistFile: getEnv("UPLOAD_BLOCKLIST_FILE", ""),
		},
		Scan: ScanConfig{
			ClamdAddr:    getEnv("VSCAN_CLAMD_ADDR", ""),
			IntervalDays: getEnvInt("VSCAN_INTERVAL_DAYS", 7),
			Allowlist: getEnvList("VSCAN_ALLOWLIST", []string{
				"Eicar-Test-Signature",
				"PUA.Win.Packer.XmMusicFile",
			}),
		},
		NSFW: NSFWConfig{
			Endpoint:  getEnv("NSFW_ENDPOINT", ""),
			Threshold: getEnvFloat("NSFW_THRESHOLD", 0.608),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
