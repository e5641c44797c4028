package session

// Pool bounds concurrent transcription work with a token semaphore so a
// burst of sessions cannot pile CPU-bound jobs onto the backend at once.
type Pool struct {
	sem chan struct{}
}

// NewPool builds a pool admitting at most size jobs at a time.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 4
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Go runs fn on its own goroutine once a token is available. A nil pool
// runs everything unbounded.
func (p *Pool) Go(fn func()) {
	if p == nil {
		go fn()
		return
	}
	go func() {
		p.sem <- struct{}{}
		defer func() { <-p.sem }()
		fn()
	}()
}
