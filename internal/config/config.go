// Package config resolves the launcher settings from the process
// environment, an optional YAML overlay file, and built-in defaults, in
// that order of precedence. A value counts as supplied only when it is
// non-empty; supplied values are taken verbatim.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Variant string

const (
	// VariantStandard prepares base and cache and honors the chown toggle.
	VariantStandard Variant = "standard"
	// VariantReports also prepares the reports directory and always chowns.
	VariantReports Variant = "reports"
)

const (
	EnvBaseDir    = "MONBOT_BASE_DIR"
	EnvCacheDir   = "MONBOT_CACHE_DIR"
	EnvReportsDir = "MONBOT_REPORTS_DIR"
	EnvDBPath     = "MONBOT_DB_PATH"
	EnvChown      = "MONBOT_CHOWN"
	EnvUser       = "APP_USER"
	EnvUID        = "APP_UID"
	EnvGID        = "APP_GID"

	EnvVariant    = "MONBOT_ENTRYPOINT_VARIANT"
	EnvConfigFile = "MONBOT_ENTRYPOINT_CONFIG"
	EnvLogDir     = "MONBOT_ENTRYPOINT_LOG_DIR"
	EnvJournalDir = "MONBOT_ENTRYPOINT_JOURNAL_DIR"
)

const (
	DefaultBaseDir    = "/data"
	DefaultCacheDir   = "/cache"
	DefaultReportsDir = "/reports"
	DefaultUser       = "app"
	DefaultUID        = "10001"
	DefaultChown      = "1"
	DefaultVariant    = VariantStandard
)

var ErrInvalidVariant = errors.New("invalid entrypoint variant")

// Config is built once at process entry and passed by value.
type Config struct {
	Variant    Variant
	BaseDir    string
	CacheDir   string
	ReportsDir string
	DBPath     string
	ExtraDirs  []string

	User  string
	UID   string
	GID   string
	Chown string

	LogDir     string
	JournalDir string

	// OverlayPath is the overlay file that contributed values, if any.
	OverlayPath string
}

// Overlay is the on-disk YAML shape. Empty fields leave the default in place.
type Overlay struct {
	Variant    string   `yaml:"variant"`
	BaseDir    string   `yaml:"base_dir"`
	CacheDir   string   `yaml:"cache_dir"`
	ReportsDir string   `yaml:"reports_dir"`
	DBPath     string   `yaml:"db_path"`
	ExtraDirs  []string `yaml:"extra_dirs"`
	User       string   `yaml:"user"`
	UID        string   `yaml:"uid"`
	GID        string   `yaml:"gid"`
	Chown      string   `yaml:"chown"`
	LogDir     string   `yaml:"log_dir"`
	JournalDir string   `yaml:"journal_dir"`
}

// Getenv looks up a single variable; os.Getenv satisfies it.
type Getenv func(key string) string

// MapEnv adapts a map to Getenv, mostly for tests and for flag overrides.
func MapEnv(m map[string]string) Getenv {
	return func(key string) string { return m[key] }
}

// Layer returns a Getenv that consults overrides first, then base.
func Layer(overrides map[string]string, base Getenv) Getenv {
	return func(key string) string {
		if v := overrides[key]; v != "" {
			return v
		}
		return base(key)
	}
}

// LoadOverlay reads a YAML overlay file. Unknown keys are rejected.
func LoadOverlay(path string) (Overlay, error) {
	f, err := os.Open(path)
	if err != nil {
		return Overlay{}, err
	}
	defer f.Close()

	var o Overlay
	d := yaml.NewDecoder(f)
	d.KnownFields(true)
	if err := d.Decode(&o); err != nil {
		if errors.Is(err, io.EOF) {
			return Overlay{}, nil
		}
		return Overlay{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return o, nil
}

// Resolve builds a Config from getenv, consulting the overlay file named by
// MONBOT_ENTRYPOINT_CONFIG when present.
func Resolve(getenv Getenv) (Config, error) {
	var o Overlay
	overlayPath := getenv(EnvConfigFile)
	if overlayPath != "" {
		var err error
		o, err = LoadOverlay(overlayPath)
		if err != nil {
			return Config{}, fmt.Errorf("loading overlay: %w", err)
		}
	}

	pick := func(key, overlay, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		if overlay != "" {
			return overlay
		}
		return def
	}

	cfg := Config{
		Variant:     Variant(pick(EnvVariant, o.Variant, string(DefaultVariant))),
		BaseDir:     pick(EnvBaseDir, o.BaseDir, DefaultBaseDir),
		CacheDir:    pick(EnvCacheDir, o.CacheDir, DefaultCacheDir),
		ReportsDir:  pick(EnvReportsDir, o.ReportsDir, DefaultReportsDir),
		DBPath:      pick(EnvDBPath, o.DBPath, ""),
		ExtraDirs:   append([]string(nil), o.ExtraDirs...),
		User:        pick(EnvUser, o.User, DefaultUser),
		UID:         pick(EnvUID, o.UID, DefaultUID),
		Chown:       pick(EnvChown, o.Chown, DefaultChown),
		LogDir:      pick(EnvLogDir, o.LogDir, ""),
		JournalDir:  pick(EnvJournalDir, o.JournalDir, ""),
		OverlayPath: overlayPath,
	}
	// The group follows the user id unless given explicitly.
	cfg.GID = pick(EnvGID, o.GID, cfg.UID)

	if cfg.Variant != VariantStandard && cfg.Variant != VariantReports {
		return Config{}, fmt.Errorf("%w: %q", ErrInvalidVariant, cfg.Variant)
	}
	return cfg, nil
}

// Directories lists the mount points to prepare, in order, without duplicates.
func (c Config) Directories() []string {
	dirs := []string{c.BaseDir, c.CacheDir}
	if c.Variant == VariantReports {
		dirs = append(dirs, c.ReportsDir)
	}
	if c.DBPath != "" && filepath.IsAbs(c.DBPath) {
		dirs = append(dirs, filepath.Dir(c.DBPath))
	}
	dirs = append(dirs, c.ExtraDirs...)

	seen := make(map[string]bool, len(dirs))
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if d == "" {
			continue
		}
		key := filepath.Clean(d)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	return out
}

// ChownEnabled reports whether recursive ownership fixup should run.
// The reports variant has no toggle.
func (c Config) ChownEnabled() bool {
	if c.Variant == VariantReports {
		return true
	}
	return ParseBool(c.Chown)
}

// ParseBool accepts 1, true, yes and on, case-insensitively.
func ParseBool(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// NumericIdentity parses UID and GID.
func (c Config) NumericIdentity() (uid, gid int, err error) {
	uid, err = parseID(EnvUID, c.UID)
	if err != nil {
		return 0, 0, err
	}
	gid, err = parseID(EnvGID, c.GID)
	if err != nil {
		return 0, 0, err
	}
	return uid, gid, nil
}

func parseID(name, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not numeric: %w", name, v, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s=%q must not be negative", name, v)
	}
	return n, nil
}
