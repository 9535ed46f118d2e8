package token

import (
	"sync"
	"time"
)

// RevocationList records, per subject, the instant before which every issued token is void.
type RevocationList interface {
	RevokeSubject(subject string, at time.Time)
	IsRevoked(subject string, issuedAt time.Time) bool
	Cleanup(before time.Time) // Remove cutoffs older than before
}

// InMemoryRevocationList is a process-local RevocationList.
type InMemoryRevocationList struct {
	cutoffs map[string]time.Time
	mu      sync.RWMutex
}

func NewInMemoryRevocationList() *InMemoryRevocationList {
	return &InMemoryRevocationList{
		cutoffs: make(map[string]time.Time),
	}
}

// RevokeSubject voids tokens issued before at. A later cutoff is never lowered.
func (l *InMemoryRevocationList) RevokeSubject(subject string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.cutoffs[subject]; ok && existing.After(at) {
		return
	}
	l.cutoffs[subject] = at
}

func (l *InMemoryRevocationList) IsRevoked(subject string, issuedAt time.Time) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cutoff, exists := l.cutoffs[subject]
	if !exists {
		return false
	}
	return issuedAt.Before(cutoff)
}

func (l *InMemoryRevocationList) Cleanup(before time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for subject, cutoff := range l.cutoffs {
		if cutoff.Before(before) {
			delete(l.cutoffs, subject)
		}
	}
}
