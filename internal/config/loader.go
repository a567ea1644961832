package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default site file name.
const DefaultConfigFile = ".sitecrawl"

var (
	// ErrConfigNotFound is returned when the site file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidSiteFile is returned when the site file parses but holds
	// values that cannot be used.
	ErrInvalidSiteFile = errors.New("invalid site file")
)

// LoadConfigFile loads site configurations from a YAML file.
// If the file does not exist, it returns ErrConfigNotFound; callers decide
// whether that matters based on whether the path was given explicitly.
// Unknown keys are rejected so that a typo such as "ignorePattern" does not
// silently disable a filter.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	cf, err := ParseConfigFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cf, nil
}

// ParseConfigFile decodes and checks site file contents.
func ParseConfigFile(data []byte) (*File, error) {
	var cf File

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	if cf.Sites == nil {
		cf.Sites = make(map[string]SiteConfig)
	}

	if err := checkSite("defaults", cf.Defaults); err != nil {
		return nil, err
	}
	for _, host := range cf.Hosts() {
		if strings.Contains(host, "/") {
			return nil, fmt.Errorf("%w: site %q must be a host, not a URL", ErrInvalidSiteFile, host)
		}
		if err := checkSite(host, cf.Sites[host]); err != nil {
			return nil, err
		}
	}

	return &cf, nil
}

func checkSite(name string, sc SiteConfig) error {
	if sc.Depth < 0 {
		return fmt.Errorf("%w: %s: depth must be non-negative", ErrInvalidSiteFile, name)
	}
	for _, p := range slices.Concat(sc.IgnorePatterns, sc.FollowPatterns) {
		if _, err := filepath.Match(p, ""); err != nil {
			return fmt.Errorf("%w: %s: bad pattern %q", ErrInvalidSiteFile, name, p)
		}
	}
	return nil
}

// FindConfigFile searches for the site file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .sitecrawl in the current directory
// 3. Look for .sitecrawl in the user's home directory
// 4. Look for config.yaml in the XDG config directory
//
// Returns the path to the site file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	candidates := make([]string, 0, 3)
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), "config.yaml"))

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}
