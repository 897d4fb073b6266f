// Package config provides configuration management for museum-dl.
//
// This package handles:
//   - Built-in defaults for every setting
//   - Loading an optional YAML/JSON config file via viper
//   - MUSEUM_DL_* environment variable overrides
//   - Provider API keys from their conventional environment variables
//
// # Default Settings
//
// Use DefaultSettings() to get sensible defaults:
//
//	settings := config.DefaultSettings()
//	// Harvests "cloud", "sky", "weather", ... into ./museum_data
//	// 100 items per term, 5 concurrent workers
//
// # Loading
//
//	settings, err := config.Load("") // ./museum-dl.yaml if present
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Credentials
//
// Provider keys are read from HARVARD_API_KEY, RIJKSMUSEUM_API_KEY,
// EUROPEANA_API_KEY, COOPERHEWITT_ACCESS_TOKEN, and SMITHSONIAN_API_KEY
// (typically via a .env file loaded before Load runs). Use Redact when
// echoing a key anywhere.
package config
