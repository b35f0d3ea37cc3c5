package agent

import (
	"slices"
	"sync"
)

// DefaultWipeCountdown is how many confirmed wipe requests are absorbed
// before the wipe is performed.
const DefaultWipeCountdown = 8

// Flag names a process-lifetime toggle.
type Flag int

const (
	// FlagNotify raises a host notification for every inbound request.
	FlagNotify Flag = iota
	// FlagSpy mirrors unsolicited inbound messages to the relays.
	FlagSpy
	// FlagAdmin is the admin-mode toggle.
	FlagAdmin
	// FlagIndent formats responses with tab indentation.
	FlagIndent
)

// State is the mutable state shared by every connection: the authorized
// identities, the wipe countdown and the toggles. One mutex guards all of it.
// Nothing here is persisted.
type State struct {
	mu        sync.Mutex
	granted   []string
	countdown int
	flags     map[Flag]bool
}

// NewState returns a fresh state with the given wipe countdown. Response
// indentation starts enabled.
func NewState(countdown int) *State {
	if countdown < 0 {
		countdown = 0
	}
	return &State{
		countdown: countdown,
		flags:     map[Flag]bool{FlagIndent: true},
	}
}

// IsGranted reports whether identity has been authorized.
func (s *State) IsGranted(identity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.granted, identity)
}

// Grant authorizes identity. Granting twice has no further effect.
func (s *State) Grant(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grantLocked(identity)
}

func (s *State) grantLocked(identity string) {
	if !slices.Contains(s.granted, identity) {
		s.granted = append(s.granted, identity)
	}
}

// Revoke removes identity and reports whether it was present.
func (s *State) Revoke(identity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.Index(s.granted, identity)
	if i < 0 {
		return false
	}
	s.granted = slices.Delete(s.granted, i, i+1)
	return true
}

// Granted returns the authorized identities in the order they were granted.
func (s *State) Granted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.granted...)
}

// Flag returns the current value of f.
func (s *State) Flag(f Flag) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags[f]
}

// Toggle flips f and returns its new value.
func (s *State) Toggle(f Flag) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[f] = !s.flags[f]
	return s.flags[f]
}

// Countdown returns the remaining number of confirmations before a wipe.
func (s *State) Countdown() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countdown
}
