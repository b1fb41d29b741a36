// Package config loads runtime settings of the preshare CLI.
//
// Sources, later ones winning:
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Environment variables with the PRESHARE_ prefix, optionally seeded from
//     a .env file in the working directory.
//  4. Command-line flags.
//
// # Flags
//
//	-s string    base URL of the REST API
//	-g string    host:port of the re-encryption gateway; "" disables re-keying
//	             and grants or revokes then leave the gateway keys untouched
//	-d string    path of the local SQLite database
//	-o string    directory downloads are written to
//	-m string    selection mode: replace or strict-toggle
//	-t duration  request timeout
//	-k int       re-encryption threshold sent on re-key
//	-l string    log level
//
// # JSON schema
//
// Durations accept strings like "30s" or integer nanoseconds:
//
//	{
//	  "server_url": "http://127.0.0.1:8000",
//	  "gateway_addr": "127.0.0.1:50051",
//	  "database_path": "preshare.db",
//	  "download_dir": "downloads",
//	  "selection_mode": "replace",
//	  "request_timeout": "30s",
//	  "threshold": 1,
//	  "log_level": "warn"
//	}
//
// Environment variables use the upper-cased JSON keys, e.g.
// PRESHARE_SERVER_URL or PRESHARE_REQUEST_TIMEOUT.
package config
