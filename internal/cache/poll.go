package cache

import "time"

// poller refetches one entry on a fixed interval.
type poller struct {
	interval time.Duration
	quit     chan struct{}
}

func (p *poller) stop() {
	close(p.quit)
}

// ensurePollerLocked starts or retunes the poller for e.
func (s *Store) ensurePollerLocked(e *entry) {
	if e.poller != nil {
		if e.poller.interval == e.opts.refetchInterval {
			return
		}
		e.poller.stop()
	}
	p := &poller{interval: e.opts.refetchInterval, quit: make(chan struct{})}
	e.poller = p
	go s.poll(e, p)
}

func (s *Store) poll(e *entry, p *poller) {
	t := time.NewTicker(p.interval)
	defer t.Stop()

	for {
		select {
		case <-p.quit:
			return
		case <-s.ctx.Done():
			return
		case <-t.C:
		}

		s.mu.Lock()
		if e.poller != p {
			s.mu.Unlock()
			return
		}
		if !s.closed && e.flight == nil && e.fetcher != nil && e.opts.enabled {
			s.startFetchLocked(e)
		}
		s.mu.Unlock()
		s.notify.drain()
	}
}
