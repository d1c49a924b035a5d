// Package session tracks who is signed in and verifies the session tokens
// the identity provider issues.
package session

import (
	"errors"
	"sync"

	"github.com/louisbranch/campplanner/internal/services/camps/domain"
)

// Hub fans auth changes out to subscribers. Handlers run synchronously in
// the publisher's goroutine, in subscription order.
type Hub struct {
	mu      sync.Mutex
	nextID  int
	subs    map[int]func(*domain.User)
	order   []int
	current *domain.User
}

// NewHub returns a hub with nobody signed in.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]func(*domain.User))}
}

// Subscribe registers handler and returns a function that removes it.
// Calling the returned function more than once is a no-op.
func (h *Hub) Subscribe(handler func(*domain.User)) func() {
	if handler == nil {
		return func() {}
	}
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = handler
	h.order = append(h.order, id)
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			for i, v := range h.order {
				if v == id {
					h.order = append(h.order[:i], h.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Current returns the signed-in user or nil.
func (h *Hub) Current() *domain.User {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return nil
	}
	u := *h.current
	return &u
}

// SignIn records user and notifies subscribers. Signing in again with the
// same user is a token refresh and notifies as well.
func (h *Hub) SignIn(user domain.User) {
	h.publish(&user)
}

// SignInToken verifies token with v and signs its user in. A rejected token
// signs the current user out and returns the not-authenticated error.
func (h *Hub) SignInToken(v *Verifier, token string) (domain.User, error) {
	if v == nil {
		return domain.User{}, errors.New("session verifier is required")
	}
	user, err := v.Verify(token)
	if err != nil {
		if h.Current() != nil {
			h.SignOut()
		}
		return domain.User{}, err
	}
	h.SignIn(user)
	return user, nil
}

// SignOut clears the user and notifies subscribers with nil.
func (h *Hub) SignOut() {
	h.publish(nil)
}

func (h *Hub) publish(user *domain.User) {
	h.mu.Lock()
	h.current = user
	handlers := make([]func(*domain.User), 0, len(h.order))
	for _, id := range h.order {
		handlers = append(handlers, h.subs[id])
	}
	h.mu.Unlock()

	for _, handler := range handlers {
		if user == nil {
			handler(nil)
			continue
		}
		u := *user
		handler(&u)
	}
}
