// Package config provides the explicit configuration values consumed by
// every pipeline component: input schema column names, cleaning-rule
// thresholds, estimator parameters, filesystem paths, and logging/server
// settings. Values come from struct-tag defaults, an optional YAML file,
// and BIBLIO_* environment variables, in increasing precedence.
package config
