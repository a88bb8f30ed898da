// Package config parses the sync configuration JSON accepted by the sync
// engine: a flat object of recognized keys with defaults applied
// after unmarshal, unknown keys ignored per encoding/json's default
// behavior.
package config
