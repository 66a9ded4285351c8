// Package config handles configuration loading for grimoire.
//
// Configuration is loaded from YAML files with ${VAR} environment
// variable expansion, then defaulted and validated. The zero config is
// not usable; call Default or Load.
package config
