package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CK6170/gravtie-go/session"
)

type TieRecord struct {
	ID      string
	Created time.Time
	Sess    *session.Session
}

// TieStore keeps ties entered through the API in memory.
type TieStore struct {
	mu sync.RWMutex
	m  map[string]*TieRecord
}

func NewTieStore() *TieStore {
	return &TieStore{m: make(map[string]*TieRecord)}
}

func (s *TieStore) Put(sess *session.Session) *TieRecord {
	rec := &TieRecord{ID: uuid.NewString(), Created: time.Now().UTC(), Sess: sess}
	s.mu.Lock()
	s.m[rec.ID] = rec
	s.mu.Unlock()
	return rec
}

func (s *TieStore) Get(id string) (*TieRecord, bool) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.m[id]
	return r, ok
}

func (s *TieStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[id]
	delete(s.m, id)
	return ok
}

func (s *TieStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
