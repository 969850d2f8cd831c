// Package config centralizes the engine's tunables into one explicit record
// passed to constructors, rather than scattering os.Getenv reads through the
// storage/index/query layers (Design Notes: "Global configuration via
// environment").
package config

import (
	"os"
	"strconv"
	"time"
)

// Config collects every knob spec.md §6 names.
type Config struct {
	// PageSize is the fixed data page size in bytes. Compile-time constant
	// per spec.md, exposed here only so tests can shrink it.
	PageSize int
	// HeaderPageSize is the fixed header page size (always 4 KiB per spec).
	HeaderPageSize int
	// BTreeOrder is the B+Tree branching factor.
	BTreeOrder int

	// CacheSize is the page cache's maximum resident page count.
	CacheSize int

	// QueryTimeout bounds SQL statement execution wall-clock time.
	QueryTimeout time.Duration
	// MaxRows bounds a single query's result size.
	MaxRows int
	// MaxQueryBytes bounds a single query's input size.
	MaxQueryBytes int

	// HNSW parameters.
	HNSW HNSWConfig

	// RMIRetrainInterval is how many inserts trigger an RMI retrain.
	RMIRetrainInterval int

	// LockTimeout bounds a page lock acquire.
	LockTimeout time.Duration
}

// HNSWConfig holds HNSW construction parameters.
type HNSWConfig struct {
	M             int
	EfConstruction int
	MaxLevel      int
	Ml            float64
	Seed          uint64
}

// Default returns the engine's default configuration.
func Default() Config {
	return Config{
		PageSize:       16 * 1024,
		HeaderPageSize: 4 * 1024,
		BTreeOrder:     256,
		CacheSize:      100_000,
		QueryTimeout:   30 * time.Second,
		MaxRows:        1_000_000,
		MaxQueryBytes:  10 * 1024 * 1024,
		HNSW: HNSWConfig{
			M:              16,
			EfConstruction: 200,
			MaxLevel:       16,
			Ml:             1.0 / ln2,
			Seed:           0xdeadbeef,
		},
		RMIRetrainInterval: 1000,
		LockTimeout:        5 * time.Second,
	}
}

const ln2 = 0.6931471805599453

// FromEnv overlays environment overrides onto the defaults. This is the
// thin environment-parsing boundary the Design Notes call for: the rest of
// the engine only ever sees a Config value, never os.Getenv directly.
func FromEnv() Config {
	cfg := Default()
	if v := os.Getenv("OMENDB_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheSize = n
		}
	}
	if v := os.Getenv("OMENDB_QUERY_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.QueryTimeout = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("OMENDB_MAX_ROWS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxRows = n
		}
	}
	if v := os.Getenv("OMENDB_MAX_QUERY_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxQueryBytes = n
		}
	}
	if v := os.Getenv("OMENDB_RMI_RETRAIN_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RMIRetrainInterval = n
		}
	}
	return cfg
}
