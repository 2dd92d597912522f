package services

import (
  "sync"

  "github.com/google/uuid"
)

// UserLocker serializes session mutations per user. Telegram can deliver a
// photo, a callback and a text message near-simultaneously; only one may
// touch a user's active session at a time.
type UserLocker struct {
  mu    sync.Mutex
  locks map[uuid.UUID]*userLock
}

type userLock struct {
  mu   sync.Mutex
  refs int
}

func NewUserLocker() *UserLocker {
  return &UserLocker{locks: make(map[uuid.UUID]*userLock)}
}

// Lock blocks until the user's lock is held and returns the unlock func.
func (ul *UserLocker) Lock(userID uuid.UUID) func() {
  ul.mu.Lock()
  l, ok := ul.locks[userID]
  if !ok {
    l = &userLock{}
    ul.locks[userID] = l
  }
  l.refs++
  ul.mu.Unlock()

  l.mu.Lock()
  return func() {
    l.mu.Unlock()
    ul.mu.Lock()
    l.refs--
    if l.refs == 0 {
      delete(ul.locks, userID)
    }
    ul.mu.Unlock()
  }
}
