package store

import (
	"sync"

	"github.com/couchcryptid/hazard-feed/internal/domain"
)

// Subscribe registers for published feeds. The channel holds at most one
// pending feed; a slow subscriber only ever sees the latest. When a feed has
// already been published it is delivered immediately. The returned cancel
// func unregisters and closes the channel; it is safe to call more than once.
func (s *Store) Subscribe() (<-chan domain.Feed, func()) {
	ch := make(chan domain.Feed, 1)

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	if feed, ok := s.publishedFeed(); ok {
		ch <- feed
	}
	s.subsMu.Unlock()

	cancel := sync.OnceFunc(func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		close(ch)
		s.subsMu.Unlock()
	})
	return ch, cancel
}

// Subscribers returns the number of registered subscribers.
func (s *Store) Subscribers() int {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	return len(s.subs)
}

func (s *Store) publishedFeed() (domain.Feed, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feed, s.status.HasData
}

// notify hands feed to every subscriber, replacing any feed still pending.
// Feeds older than one already delivered are dropped.
func (s *Store) notify(feed domain.Feed) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if feed.Version <= s.notified {
		return
	}
	s.notified = feed.Version
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- feed
	}
}
