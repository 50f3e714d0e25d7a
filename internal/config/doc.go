// Package config manages user-level settings stored at
// ~/.agentpack/config.yaml, such as the bundle source directory and the
// backup retention count.
package config
