// Package config provides the configuration of bebop: defaults, the
// optional YAML file, XDG directories and validation.
package config
