// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// A .env file beside the config file, or in the working directory, is loaded
// first; variables already set in the environment win.
package config
