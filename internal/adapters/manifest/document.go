package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

func readDocument(path string) (interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeDocument(data)
}

func decodeDocument(data []byte) (interface{}, error) {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode manifest document: %w", err)
	}
	return doc, nil
}

// writeDocument replaces path atomically so a reader never sees a partial document
func writeDocument(path string, doc interface{}) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest document: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write manifest document: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("install manifest document: %w", err)
	}
	return nil
}

// target is the screen a provider selects records for
type target struct {
	mu       sync.RWMutex
	deviceID string
}

// SetDeviceID retargets the provider at another screen
func (t *target) SetDeviceID(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deviceID = id
}

// DeviceID returns the screen the provider currently selects
func (t *target) DeviceID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.deviceID
}
