package utils

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOptionalMutexDisabledNeverBlocks(t *testing.T) {
	var mutex OptionalMutex

	mutex.Lock()
	mutex.Lock()
	mutex.RLock()
	mutex.Unlock()
	mutex.Unlock()
	mutex.RUnlock()
}

func TestOptionalMutexEnabledExcludesWriters(t *testing.T) {
	mutex := OptionalMutex{Enabled: true}
	counter := 0

	var group sync.WaitGroup
	for i := 0; i < 50; i++ {
		group.Add(1)
		go func() {
			defer group.Done()
			mutex.Lock()
			defer mutex.Unlock()
			counter++
		}()
	}
	group.Wait()

	mutex.RLock()
	defer mutex.RUnlock()
	require.Equal(t, 50, counter)
}
