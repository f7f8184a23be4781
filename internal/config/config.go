// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/agrilab/quantfarm/internal/ingest"
	"github.com/agrilab/quantfarm/internal/models"
	"github.com/agrilab/quantfarm/internal/quantum/backend"
	"github.com/agrilab/quantfarm/internal/quantum/circuit"
)

// QuantumConfig holds the circuit geometry and execution target shared by all
// models. Values are validated at load time so a bad deployment fails fast
// instead of at first training request.
type QuantumConfig struct {
	Qubits    int
	Depth     int
	Shots     int
	Backend   backend.Kind
	RemoteURL string
	Seed      int64
}

// BackupConfig holds the offsite backup target. Backups are disabled when the
// bucket is empty.
type BackupConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	RetentionDays   int
}

// Config holds application configuration.
type Config struct {
	DataDir  string
	Port     int
	LogLevel string
	DevMode  bool

	OpenWeatherAPIKey  string
	AlphaVantageAPIKey string

	Quantum QuantumConfig
	Backup  BackupConfig

	// Farm locations and commodities warmed by the refresh job and used as
	// defaults by the API.
	Locations   []ingest.Location
	Commodities []string

	// Irrigation problem instance: zone names with requirements in liters,
	// and the total water budget.
	Zones        []models.Zone
	BudgetLiters float64
}

// Load reads configuration from environment variables, with .env support.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("QUANTFARM_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8000),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		OpenWeatherAPIKey:  getEnv("OPENWEATHER_API_KEY", ""),
		AlphaVantageAPIKey: getEnv("ALPHAVANTAGE_API_KEY", ""),

		Quantum: QuantumConfig{
			Qubits:    getEnvAsInt("QUANTUM_QUBITS", 4),
			Depth:     getEnvAsInt("QUANTUM_DEPTH", 3),
			Shots:     getEnvAsInt("QUANTUM_SHOTS", 1024),
			Backend:   backend.Kind(getEnv("QUANTUM_BACKEND", string(backend.KindSimulator))),
			RemoteURL: getEnv("QUANTUM_REMOTE_URL", ""),
			Seed:      int64(getEnvAsInt("QUANTUM_SEED", 42)),
		},

		Backup: BackupConfig{
			Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
			Region:          getEnv("BACKUP_S3_REGION", "auto"),
			Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
			AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
			RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		},

		Locations:   parseLocations(getEnv("FARM_LOCATIONS", "Mumbai:19.0760:72.8777")),
		Commodities: parseList(getEnv("COMMODITIES", "WHEAT,CORN")),

		Zones:        parseZones(getEnv("IRRIGATION_ZONES", "north:1200;east:900;south:600;west:800")),
		BudgetLiters: getEnvAsFloat("IRRIGATION_BUDGET_LITERS", 2800),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BackupEnabled reports whether an offsite backup target is configured.
func (c *Config) BackupEnabled() bool {
	return c.Backup.Bucket != ""
}

// Validate checks ranges and enumerations so misconfiguration surfaces at
// startup.
func (c *Config) Validate() error {
	q := c.Quantum
	if q.Qubits < circuit.MinQubits || q.Qubits > circuit.MaxQubits {
		return fmt.Errorf("QUANTUM_QUBITS %d outside [%d, %d]", q.Qubits, circuit.MinQubits, circuit.MaxQubits)
	}
	if q.Depth < circuit.MinDepth || q.Depth > circuit.MaxDepth {
		return fmt.Errorf("QUANTUM_DEPTH %d outside [%d, %d]", q.Depth, circuit.MinDepth, circuit.MaxDepth)
	}
	if q.Shots < backend.MinShots || q.Shots > backend.MaxShots {
		return fmt.Errorf("QUANTUM_SHOTS %d outside [%d, %d]", q.Shots, backend.MinShots, backend.MaxShots)
	}
	switch q.Backend {
	case backend.KindSimulator, backend.KindFakeDevice, backend.KindRealDevice:
	default:
		return fmt.Errorf("unknown QUANTUM_BACKEND %q", q.Backend)
	}
	if q.Backend == backend.KindRealDevice && q.RemoteURL == "" {
		return fmt.Errorf("QUANTUM_REMOTE_URL required for remote backend")
	}
	if len(c.Locations) == 0 {
		return fmt.Errorf("FARM_LOCATIONS must name at least one location")
	}
	if len(c.Zones) < circuit.MinQubits || len(c.Zones) > circuit.MaxQubits {
		return fmt.Errorf("IRRIGATION_ZONES count %d outside [%d, %d]", len(c.Zones), circuit.MinQubits, circuit.MaxQubits)
	}
	if c.BudgetLiters <= 0 {
		return fmt.Errorf("IRRIGATION_BUDGET_LITERS must be positive")
	}
	return nil
}

// parseLocations parses "Name:lat:lon" triples separated by semicolons.
// Malformed entries are skipped.
func parseLocations(raw string) []ingest.Location {
	var out []ingest.Location
	for _, entry := range strings.Split(raw, ";") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			continue
		}
		lat, errLat := strconv.ParseFloat(parts[1], 64)
		lon, errLon := strconv.ParseFloat(parts[2], 64)
		if errLat != nil || errLon != nil {
			continue
		}
		out = append(out, ingest.Location{Name: parts[0], Lat: lat, Lon: lon})
	}
	return out
}

// parseZones parses "name:liters" pairs separated by semicolons.
func parseZones(raw string) []models.Zone {
	var out []models.Zone
	for _, entry := range strings.Split(raw, ";") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 2 {
			continue
		}
		liters, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			continue
		}
		out = append(out, models.Zone{ID: parts[0], RequirementLiters: liters})
	}
	return out
}

func parseList(raw string) []string {
	var out []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, strings.ToUpper(v))
		}
	}
	return out
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
