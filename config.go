package vortexstats

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/xerrors"
)

// Config holds the aggregator's settings.
type Config struct {
	// ModID is the aggregator's own plugin id; it names the command root.
	ModID string
	// ReservedNamespace is the host's built-in namespace, never attributed.
	ReservedNamespace string
	// LoaderID is the mod loader's id, excluded from unused reports.
	LoaderID string

	ReportLimit int

	ExportDir      string
	ExportBaseName string

	UploadEndpoint string
	ViewerURL      string
	UploadTimeout  time.Duration

	// ExportInterval of zero exports only on shutdown.
	ExportInterval  time.Duration
	ReportName      string
	ClearOnShutdown bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ModID:             "vortex",
		ReservedNamespace: DefaultReservedNamespace,
		LoaderID:          "neoforge",
		ReportLimit:       10,
		ExportDir:         "config/vortex",
		ExportBaseName:    DefaultExportBaseName,
		UploadEndpoint:    DefaultUploadEndpoint,
		ViewerURL:         DefaultViewerURL,
		UploadTimeout:     30 * time.Second,
		ExportInterval:    0,
		ReportName:        DefaultReportName,
		ClearOnShutdown:   false,
	}
}

// FromEnv loads the configuration from VORTEX_* environment variables,
// falling back to defaults for anything unset.
func FromEnv() *Config {
	cfg := DefaultConfig()

	if val := getEnv("VORTEX_MOD_ID"); val != "" {
		cfg.ModID = val
	}
	if val := getEnv("VORTEX_RESERVED_NAMESPACE"); val != "" {
		cfg.ReservedNamespace = val
	}
	if val := getEnv("VORTEX_LOADER_ID"); val != "" {
		cfg.LoaderID = val
	}
	if val := getEnvInt("VORTEX_REPORT_LIMIT"); val > 0 {
		cfg.ReportLimit = val
	}
	if val := getEnv("VORTEX_EXPORT_DIR"); val != "" {
		cfg.ExportDir = val
	}
	if val := getEnv("VORTEX_EXPORT_BASE_NAME"); val != "" {
		cfg.ExportBaseName = val
	}
	if val := getEnv("VORTEX_UPLOAD_ENDPOINT"); val != "" {
		cfg.UploadEndpoint = val
	}
	if val := getEnv("VORTEX_VIEWER_URL"); val != "" {
		cfg.ViewerURL = val
	}
	if val := getEnvDuration("VORTEX_UPLOAD_TIMEOUT"); val > 0 {
		cfg.UploadTimeout = val
	}
	if val := getEnvDuration("VORTEX_EXPORT_INTERVAL"); val > 0 {
		cfg.ExportInterval = val
	}
	if val := getEnv("VORTEX_REPORT_NAME"); val != "" {
		cfg.ReportName = val
	}
	if val, ok := getEnvBool("VORTEX_CLEAR_ON_SHUTDOWN"); ok {
		cfg.ClearOnShutdown = val
	}

	return cfg
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c == nil {
		return xerrors.New("config is nil")
	}
	if strings.TrimSpace(c.ModID) == "" {
		return xerrors.New("mod id is required")
	}
	if strings.TrimSpace(c.ReservedNamespace) == "" {
		return xerrors.New("reserved namespace is required")
	}
	if strings.TrimSpace(c.ExportDir) == "" {
		return xerrors.New("export dir is required")
	}
	if c.ReportLimit <= 0 {
		return xerrors.Errorf("report limit must be positive, got %d", c.ReportLimit)
	}
	for name, raw := range map[string]string{"upload endpoint": c.UploadEndpoint, "viewer url": c.ViewerURL} {
		parsed, err := url.Parse(raw)
		if err != nil {
			return xerrors.Errorf("parse %s: %w", name, err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return xerrors.Errorf("%s must be an absolute url, got %q", name, raw)
		}
	}
	if c.ExportInterval < 0 {
		return xerrors.Errorf("export interval must not be negative, got %s", c.ExportInterval)
	}
	return nil
}

// ExcludedOwners lists the ids removed from a universe before unused owners
// are computed.
func (c *Config) ExcludedOwners() []string {
	return []string{c.ReservedNamespace, c.LoaderID, c.ModID}
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func getEnvInt(key string) int {
	val := getEnv(key)
	if val == "" {
		return 0
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return n
}

func getEnvDuration(key string) time.Duration {
	val := getEnv(key)
	if val == "" {
		return 0
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0
	}
	return d
}

func getEnvBool(key string) (bool, bool) {
	val := getEnv(key)
	if val == "" {
		return false, false
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, false
	}
	return b, true
}
