// Package config provides YAML-based configuration loading for Growgate Core.
//
// Configuration is loaded in three layers: hardcoded defaults, a YAML file,
// and environment variable overrides (GROWGATE_* prefix). The loaded
// configuration is validated before use; a missing or weak JWT secret is a
// hard startup failure.
package config
