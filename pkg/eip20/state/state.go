// Package state holds the derived account state of a Kit and publishes its
// changes.
package state

import (
	"math/big"
	"sync"

	"github.com/chainsafe/eip20-kit/pkg/pubsub"
	"github.com/chainsafe/eip20-kit/pkg/token"
)

// Store owns the sync state and last known balance. Setters publish only when
// the new value differs from the current one.
type Store struct {
	mu        sync.Mutex
	syncState token.SyncState
	balance   *big.Int

	syncStates *pubsub.Broadcaster[token.SyncState]
	balances   *pubsub.Broadcaster[*big.Int]
}

// New returns a store in the Syncing state with no balance.
func New() *Store {
	return &Store{
		syncState:  token.Syncing(nil),
		syncStates: pubsub.New[token.SyncState](),
		balances:   pubsub.New[*big.Int](),
	}
}

// SyncState returns the current sync state.
func (s *Store) SyncState() token.SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncState
}

// SetSyncState stores st and notifies subscribers if it changed.
func (s *Store) SetSyncState(st token.SyncState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncState.Equal(st) {
		return
	}
	s.syncState = st
	s.syncStates.Publish(st)
}

// Balance returns a copy of the last known balance, or nil.
func (s *Store) Balance() *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balance == nil {
		return nil
	}
	return new(big.Int).Set(s.balance)
}

// SetBalance stores balance and notifies subscribers if it changed. A nil
// balance is ignored.
func (s *Store) SetBalance(balance *big.Int) {
	if balance == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balance != nil && s.balance.Cmp(balance) == 0 {
		return
	}
	s.balance = new(big.Int).Set(balance)
	s.balances.Publish(new(big.Int).Set(balance))
}

// SubscribeSyncState streams sync state changes.
func (s *Store) SubscribeSyncState() *pubsub.Subscription[token.SyncState] {
	return s.syncStates.Subscribe()
}

// SubscribeBalance streams balance changes.
func (s *Store) SubscribeBalance() *pubsub.Subscription[*big.Int] {
	return s.balances.Subscribe()
}

// Close terminates all subscriptions.
func (s *Store) Close() {
	s.syncStates.Close()
	s.balances.Close()
}
