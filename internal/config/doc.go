// Package config provides configuration structures and utilities for
// sitecrawl. It defines the crawl bounds, politeness settings, output
// options and the per-site YAML file.
package config
