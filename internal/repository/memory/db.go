// Package memory is the stub backend's storage: process-local maps behind
// the repository interfaces.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gvafram3/parcel-console/internal/model"
)

// ErrClosed is returned by Ping after Close.
var ErrClosed = errors.New("memory store closed")

type tokenEntry struct {
	userID    string
	expiresAt time.Time
}

// DB holds every record. The repositories built over one DB share its lock.
type DB struct {
	mu        sync.RWMutex
	now       func() time.Time
	closed    bool
	parcels   map[string]model.Parcel
	users     map[string]model.User
	passwords map[string]string // user id -> password
	emails    map[string]string // lower-cased email -> user id
	tokens    map[string]tokenEntry
}

// New returns an empty DB. now may be nil to use time.Now.
func New(now func() time.Time) *DB {
	if now == nil {
		now = time.Now
	}
	return &DB{
		now:       now,
		parcels:   make(map[string]model.Parcel),
		users:     make(map[string]model.User),
		passwords: make(map[string]string),
		emails:    make(map[string]string),
		tokens:    make(map[string]tokenEntry),
	}
}

// Ping implements repository.Pinger.
func (db *DB) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return ErrClosed
	}
	return nil
}

func (db *DB) Close() {
	db.mu.Lock()
	db.closed = true
	db.mu.Unlock()
}
