// Package config loads and validates the glint client configuration.
//
// Configuration is a YAML file with three sections:
//
//	server:
//	  base_url: https://api.glint.dev
//	  verify_timeout: 5s
//	credentials:
//	  path: ${HOME}/.glint/credentials.db
//	logging:
//	  level: info
//	  format: text
//
// Environment variables in ${VAR_NAME} form are expanded before parsing.
// Duration fields are written as Go duration strings ("5s", "1m30s").
// Default() provides a zero-config setup pointing at the local dev server.
package config
