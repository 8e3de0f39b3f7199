// Package session keeps per-user conversation state: the awaiting-proof flag
// set by the upstream payment flow, the dedup set of seen artifact ids, and
// the message ids the pipeline cleans up later. State is process-local and
// carries no survival guarantee across restarts.
package session

import (
	"sync"
	"time"
)

// Expectation is the awaiting-proof precondition flag plus the claim context
// captured when the upstream flow asked the user for a screenshot.
type Expectation struct {
	PaymentType    string
	ProductCode    string
	UploadPromptID int
	SetAt          time.Time
}

type state struct {
	expect   *Expectation
	seen     map[string]struct{}
	ackMsgID int
	proofID  int
}

// Store is a mutex-guarded session map keyed by user id.
type Store struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[int64]*state

	now func() time.Time
}

// NewStore creates a session store whose awaiting-proof flags expire after
// ttl (the user gets that long to upload after being asked).
func NewStore(ttl time.Duration) *Store {
	return &Store{
		ttl:      ttl,
		sessions: make(map[int64]*state),
		now:      time.Now,
	}
}

func (s *Store) get(userID int64) *state {
	st, ok := s.sessions[userID]
	if !ok {
		st = &state{seen: make(map[string]struct{})}
		s.sessions[userID] = st
	}
	return st
}

// ExpectProof arms the awaiting-proof flag for userID.
func (s *Store) ExpectProof(userID int64, paymentType, productCode string, uploadPromptID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(userID).expect = &Expectation{
		PaymentType:    paymentType,
		ProductCode:    productCode,
		UploadPromptID: uploadPromptID,
		SetAt:          s.now(),
	}
}

// Awaiting returns the active expectation for userID, if any. An expectation
// older than the store TTL is expired and reported as absent.
func (s *Store) Awaiting(userID int64) (Expectation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[userID]
	if !ok || st.expect == nil {
		return Expectation{}, false
	}
	if s.now().Sub(st.expect.SetAt) > s.ttl {
		st.expect = nil
		return Expectation{}, false
	}
	return *st.expect, true
}

// ClearAwaiting drops the awaiting-proof flag.
func (s *Store) ClearAwaiting(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.sessions[userID]; ok {
		st.expect = nil
	}
}

// MarkSeen records an artifact unique id for the conversation and reports
// whether it was new. A false return means the artifact is a duplicate and
// must produce no further side effect.
func (s *Store) MarkSeen(userID int64, uniqueID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.get(userID)
	if _, dup := st.seen[uniqueID]; dup {
		return false
	}
	st.seen[uniqueID] = struct{}{}
	return true
}

// RememberAck stores the ids of the ack and proof messages for later cleanup.
func (s *Store) RememberAck(userID int64, ackMsgID, proofMsgID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(userID)
	st.ackMsgID = ackMsgID
	st.proofID = proofMsgID
}

// TakeAck returns and clears the remembered ack/proof message ids.
func (s *Store) TakeAck(userID int64) (ackMsgID, proofMsgID int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[userID]
	if !ok {
		return 0, 0
	}
	ackMsgID, proofMsgID = st.ackMsgID, st.proofID
	st.ackMsgID, st.proofID = 0, 0
	return ackMsgID, proofMsgID
}
