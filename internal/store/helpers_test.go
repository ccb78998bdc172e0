package store

import "quantb/internal/config"

func configFor(backend, path string) config.StoreConfig {
	return config.StoreConfig{Backend: backend, Path: path}
}
