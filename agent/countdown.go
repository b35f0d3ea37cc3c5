package agent

// WipeVerdict is the outcome of a confirmed wipe request.
type WipeVerdict int

const (
	// WipeRejected means the master key did not match.
	WipeRejected WipeVerdict = iota
	// WipeArmed means the request was counted but the wipe is not due yet.
	WipeArmed
	// WipeFire means the countdown is exhausted and the wipe must run.
	WipeFire
)

// ConfirmWipe runs one step of the wipe confirmation counter. A request
// whose key differs from masterKey leaves the counter alone. Otherwise, while
// confirmations remain, the counter is decremented and the value it held
// before is returned with WipeArmed. Once it reaches zero every further
// request yields WipeFire; the counter is never reset.
func (s *State) ConfirmWipe(key, masterKey string) (WipeVerdict, int) {
	if key != masterKey {
		return WipeRejected, s.Countdown()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countdown == 0 {
		return WipeFire, 0
	}
	remaining := s.countdown
	s.countdown--
	return WipeArmed, remaining
}
