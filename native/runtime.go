package native

import (
	"sync"
)

// EngineFactory constructs a process-wide Engine. Factories probe for the
// underlying runtime and return *RuntimeNotFoundError when it is absent.
type EngineFactory func() (Engine, error)

var (
	bootMu     sync.Mutex
	bootDone   bool
	bootEngine Engine
	bootErr    error
)

// Initialize bootstraps the process-wide native runtime exactly once.
// The first call runs the factory and latches its outcome; every later call
// returns the same engine or the same error regardless of the factory
// passed. Callers must handle a *RuntimeNotFoundError by aborting or showing
// its UserMessage and DownloadURL.
func Initialize(factory EngineFactory) (Engine, error) {
	bootMu.Lock()
	defer bootMu.Unlock()

	if bootDone {
		return bootEngine, bootErr
	}
	bootDone = true
	bootEngine, bootErr = factory()
	return bootEngine, bootErr
}

// Current returns the bootstrapped engine, or ErrNotInitialized when
// Initialize has not run or did not succeed.
func Current() (Engine, error) {
	bootMu.Lock()
	defer bootMu.Unlock()

	if !bootDone {
		return nil, ErrNotInitialized
	}
	if bootErr != nil {
		return nil, bootErr
	}
	return bootEngine, nil
}

// resetForTest clears the latched bootstrap state.
func resetForTest() {
	bootMu.Lock()
	defer bootMu.Unlock()
	bootDone = false
	bootEngine = nil
	bootErr = nil
}
