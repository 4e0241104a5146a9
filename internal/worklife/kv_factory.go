package worklife

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
)

type KVFactory func(dsn string) (KVStore, error)

var kvFactoryRegistry = struct {
	mu        sync.RWMutex
	factories map[string]KVFactory
}{
	factories: map[string]KVFactory{},
}

// RegisterKVFactory installs a custom backend for a DSN scheme. Built-in
// schemes (file, memory, postgres, sqlite) can be shadowed by registering
// over them.
func RegisterKVFactory(scheme string, factory KVFactory) {
	scheme = normalizeScheme(scheme)
	if scheme == "" || factory == nil {
		return
	}
	kvFactoryRegistry.mu.Lock()
	defer kvFactoryRegistry.mu.Unlock()
	kvFactoryRegistry.factories[scheme] = factory
}

func lookupKVFactory(scheme string) (KVFactory, bool) {
	scheme = normalizeScheme(scheme)
	kvFactoryRegistry.mu.RLock()
	defer kvFactoryRegistry.mu.RUnlock()
	factory, ok := kvFactoryRegistry.factories[scheme]
	return factory, ok
}

func normalizeScheme(scheme string) string {
	return strings.ToLower(strings.TrimSpace(scheme))
}

// OpenKV builds a KV bridge backend from a DSN. A bare path or file://
// selects the local file backend, memory:// the in-memory one, postgres://
// and sqlite:// the SQL-backed ones.
func OpenKV(dsn string) (KVStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty kv dsn", ErrInvalidInput)
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	scheme := normalizeScheme(parsed.Scheme)
	if factory, ok := lookupKVFactory(scheme); ok {
		return factory(dsn)
	}
	switch scheme {
	case "", "file":
		path, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		return NewFileKV(path)
	case "memory", "mem", "inmem":
		return NewMemoryKV(), nil
	case "postgres", "postgresql":
		return NewPostgresKV(dsn)
	case "sqlite":
		path, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		return NewSQLiteKV(path)
	case "mysql":
		return nil, fmt.Errorf("%w: kv backend %s", ErrNotImplemented, scheme)
	default:
		return nil, fmt.Errorf("unsupported kv backend scheme: %s", scheme)
	}
}

// SelectDSN makes the one-time backend decision at process start: a
// non-empty host session token selects the cloud DSN, its absence the local
// one. The choice never changes during a session.
func SelectDSN(sessionToken, cloudDSN, localDSN string) string {
	if strings.TrimSpace(sessionToken) != "" && strings.TrimSpace(cloudDSN) != "" {
		return strings.TrimSpace(cloudDSN)
	}
	return strings.TrimSpace(localDSN)
}

func dsnPath(parsed *url.URL, raw string) (string, error) {
	if parsed.Scheme == "" {
		return filepath.Clean(raw), nil
	}
	path := parsed.Path
	if parsed.Host != "" {
		path = filepath.Join(parsed.Host, path)
	}
	if parsed.Opaque != "" {
		path = parsed.Opaque
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: dsn %q has no path", ErrInvalidInput, raw)
	}
	return filepath.Clean(path), nil
}
