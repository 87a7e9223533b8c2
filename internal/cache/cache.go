package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const cacheFileName = "firemon_state.json"

// State is the operator-chosen control state that survives a restart:
// transport selection is explicit and user-initiated, so it must not
// silently revert to the config default after a crash.
type State struct {
	Transport    string    `json:"transport"`
	LocalHost    string    `json:"local_host,omitempty"`
	LocalPort    int       `json:"local_port,omitempty"`
	Accumulation bool      `json:"accumulation"`
	SavedAt      time.Time `json:"saved_at"`
}

func Save(state *State) error {
	state.SavedAt = time.Now()
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %v", err)
	}

	cacheDir, err := getCacheDir()
	if err != nil {
		return fmt.Errorf("failed to get cache directory: %v", err)
	}

	err = os.MkdirAll(cacheDir, 0755)
	if err != nil {
		return fmt.Errorf("failed to create cache directory: %v", err)
	}

	err = os.WriteFile(filepath.Join(cacheDir, cacheFileName), data, 0644)
	if err != nil {
		return fmt.Errorf("failed to write state file: %v", err)
	}

	return nil
}

func Load() (*State, error) {
	cacheDir, err := getCacheDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get cache directory: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(cacheDir, cacheFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No saved state, not an error
		}
		return nil, fmt.Errorf("failed to read state file: %v", err)
	}

	var state State
	err = json.Unmarshal(data, &state)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %v", err)
	}

	return &state, nil
}

func Delete() error {
	cacheDir, err := getCacheDir()
	if err != nil {
		return fmt.Errorf("failed to get cache directory: %v", err)
	}

	err = os.Remove(filepath.Join(cacheDir, cacheFileName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete state file: %v", err)
	}

	return nil
}

func getCacheDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %v", err)
	}

	return filepath.Join(homeDir, ".cache", "firemon"), nil
}
