package app

import "sync"

// Notifier fans out "leaderboard changed" signals per quiz to in-process
// subscribers such as websocket feeds.
type Notifier struct {
	mu          sync.Mutex
	subscribers map[string]map[chan struct{}]struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{subscribers: make(map[string]map[chan struct{}]struct{})}
}

// Subscribe returns a channel signalled after each change to the quiz's
// leaderboard. The caller must invoke the returned cancel function to avoid leaks.
func (n *Notifier) Subscribe(quizID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	subs, ok := n.subscribers[quizID]
	if !ok {
		subs = make(map[chan struct{}]struct{})
		n.subscribers[quizID] = subs
	}
	subs[ch] = struct{}{}
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		subs, ok := n.subscribers[quizID]
		if !ok {
			return
		}
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(n.subscribers, quizID)
		}
	}
	return ch, cancel
}

// Publish never blocks: a subscriber that has not consumed its previous signal
// keeps that single pending signal.
func (n *Notifier) Publish(quizID string) {
	if n == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subscribers[quizID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribers reports the number of live subscriptions for a quiz.
func (n *Notifier) Subscribers(quizID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subscribers[quizID])
}
