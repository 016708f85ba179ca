package pose

import (
	"fmt"
	"math"
	"sync"
)

// SideLengthMemory holds the last marker side length decoded from a valid
// payload. Frames whose marker cannot be decoded are scaled with it.
//
// Only successfully parsed payloads update it and it is never cleared. A
// single goroutine writes; readers may run concurrently.
type SideLengthMemory struct {
	mu      sync.RWMutex
	sideCM  float64
	updates uint64
}

// NewSideLengthMemory returns a memory seeded with defaultCM.
func NewSideLengthMemory(defaultCM float64) (*SideLengthMemory, error) {
	if !validSide(defaultCM) {
		return nil, fmt.Errorf("%w: default marker side %v cm", ErrInvalidInput, defaultCM)
	}
	return &SideLengthMemory{sideCM: defaultCM}, nil
}

// SideCM returns the remembered side length.
func (m *SideLengthMemory) SideCM() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sideCM
}

// Update stores sideCM and reports whether it was accepted. Non-positive or
// non-finite values are ignored.
func (m *SideLengthMemory) Update(sideCM float64) bool {
	if !validSide(sideCM) {
		return false
	}
	m.mu.Lock()
	m.sideCM = sideCM
	m.updates++
	m.mu.Unlock()
	return true
}

// Updates returns how many payloads have updated the memory.
func (m *SideLengthMemory) Updates() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.updates
}

func validSide(cm float64) bool {
	return cm > 0 && !math.IsInf(cm, 0) && !math.IsNaN(cm)
}
