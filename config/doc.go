// Package config loads the capsule configuration.
//
// Values come from a YAML file (capsule.yml, config/config.yml or the user
// configuration directory) read with viper, then from CAPSULE_* environment
// variables, optionally seeded from a .env file:
//
//	cfg, err := config.Load(config.WithConfigFile("capsule.yml"))
//
// CAPSULE_EXECUTION_WORKERS=4 overrides execution.workers.
package config
