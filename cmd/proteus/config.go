// config.go: Extractor configuration for the proteus command line tool.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"sigs.k8s.io/yaml"

	"github.com/agilira/proteus"
)

// envPrefix prefixes every environment override, e.g. PROTEUS_HAMMING_BUDGET.
const envPrefix = "PROTEUS_"

// config mirrors proteus.yaml. Zero values fall back to library defaults.
type config struct {
	Length         int     `json:"length" env:"LENGTH"`
	HammingBudget  int     `json:"hamming_budget" env:"HAMMING_BUDGET"`
	ReproduceError float64 `json:"reproduce_error,omitempty" env:"REPRODUCE_ERROR"`
	Deriver        string  `json:"deriver,omitempty" env:"DERIVER"`
	SecLen         int     `json:"sec_len,omitempty" env:"SEC_LEN"`
	NonceLen       int     `json:"nonce_len,omitempty" env:"NONCE_LEN"`
	Workers        int     `json:"workers,omitempty" env:"WORKERS"`
}

// loadDotEnv loads a .env file into the process environment if one exists.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// loadConfig reads the YAML file at path and applies PROTEUS_* environment
// overrides. A missing file is only an error when required is set.
func loadConfig(path string, required bool) (*config, error) {
	cfg := &config{}

	yamlBytes, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.UnmarshalStrict(yamlBytes, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !required:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if cfg.Length <= 0 {
		return nil, fmt.Errorf("length must be set (config field length or %sLENGTH)", envPrefix)
	}
	if cfg.HammingBudget <= 0 {
		return nil, fmt.Errorf("hamming_budget must be set (config field hamming_budget or %sHAMMING_BUDGET)", envPrefix)
	}
	return cfg, nil
}

// params converts the configuration into extractor parameters.
func (c *config) params() (*fuzzy.Params, error) {
	deriver, err := fuzzy.DeriverByName(c.Deriver)
	if err != nil {
		return nil, err
	}
	return &fuzzy.Params{
		LockerParams: fuzzy.LockerParams{
			Deriver:  deriver,
			SecLen:   c.SecLen,
			NonceLen: c.NonceLen,
		},
		ReproduceError: c.ReproduceError,
		Workers:        c.Workers,
	}, nil
}

// extractor builds the extractor described by the configuration.
func (c *config) extractor() (*fuzzy.Extractor, error) {
	params, err := c.params()
	if err != nil {
		return nil, err
	}
	return fuzzy.NewExtractor(c.Length, c.HammingBudget, params)
}
