package utils

import (
	"sync"
)

// OptionalMutex is a read/write mutex that locks only when Enabled is set. Objects whose owner
// promised external synchronization leave it unset and skip locking entirely.
type OptionalMutex struct {
	Enabled bool
	mutex   sync.RWMutex
}

func (m *OptionalMutex) Lock() {
	if m.Enabled {
		m.mutex.Lock()
	}
}

func (m *OptionalMutex) Unlock() {
	if m.Enabled {
		m.mutex.Unlock()
	}
}

// RLock takes the lock shared. Writers still exclude every reader.
func (m *OptionalMutex) RLock() {
	if m.Enabled {
		m.mutex.RLock()
	}
}

func (m *OptionalMutex) RUnlock() {
	if m.Enabled {
		m.mutex.RUnlock()
	}
}
