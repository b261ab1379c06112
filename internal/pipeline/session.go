package pipeline

import "sync"

// Context carries intermediate stage results within and across pipeline
// calls for one user. Fields are nil until the producing stage has run.
// The generate stage reads RecognizedText only indirectly: callers may run
// stages piecewise across separate requests, so the context outlives a
// single HTTP call.
type Context struct {
	UserID         int64
	InputAudioRef  *string
	RecognizedText *string
	GeneratedText  *string
}

// Session owns one user's pipeline context. The mutex serializes every
// pipeline entry point for that user, so two in-flight runs can never feed
// each other's intermediate results.
type Session struct {
	mu  sync.Mutex
	ctx Context
}

// Lock acquires the session for exclusive use.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session.
func (s *Session) Unlock() { s.mu.Unlock() }

// Context returns the session's context. Callers must hold the lock.
func (s *Session) Context() *Context { return &s.ctx }

// Sessions is the registry of per-user pipeline sessions, created lazily.
// Sessions for different users are independent; only the registry map
// itself is guarded here.
type Sessions struct {
	mu sync.Mutex
	m  map[int64]*Session
}

// NewSessions creates an empty session registry.
func NewSessions() *Sessions {
	return &Sessions{m: make(map[int64]*Session)}
}

// Get returns the session for userID, creating it on first use.
func (s *Sessions) Get(userID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[userID]
	if !ok {
		sess = &Session{ctx: Context{UserID: userID}}
		s.m[userID] = sess
	}
	return sess
}
