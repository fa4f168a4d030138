package apiclient

import "sync"

// Location is an in-process Navigator. It tracks the current path and hands
// every forced navigation to an optional callback.
type Location struct {
	mu         sync.Mutex
	path       string
	last       string
	onNavigate func(target string)
}

func NewLocation(path string, onNavigate func(target string)) *Location {
	return &Location{path: path, onNavigate: onNavigate}
}

func (l *Location) CurrentPath() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// SetPath records a completed navigation.
func (l *Location) SetPath(p string) {
	l.mu.Lock()
	l.path = p
	l.mu.Unlock()
}

func (l *Location) Navigate(target string) {
	l.mu.Lock()
	l.last = target
	cb := l.onNavigate
	l.mu.Unlock()
	if cb != nil {
		cb(target)
	}
}

// LastNavigation returns the most recent forced navigation target.
func (l *Location) LastNavigation() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}
