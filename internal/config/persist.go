package config

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"
)

// WriteTenantHandoff persists a tenant config for worker ingress. The file
// is the only path tenant data takes into a worker process, so it is written
// privately (0600), fsynced, and renamed into place from a .tmp_ sibling to
// keep partial writes invisible. Returns the final path.
func WriteTenantHandoff(dir string, t *Tenant) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create handoff dir: %w", err)
	}

	name := fmt.Sprintf("client_config_%d_%d_%04d.json",
		os.Getpid(), time.Now().UnixNano(), rand.Intn(10000))
	final := filepath.Join(dir, name)
	tmp := filepath.Join(dir, ".tmp_"+name)

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal tenant config: %w", err)
	}

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("open temp handoff: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("write temp handoff: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("fsync temp handoff: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("close temp handoff: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename handoff into place: %w", err)
	}
	return final, nil
}
