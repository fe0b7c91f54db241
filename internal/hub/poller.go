package hub

import (
	"sync"
	"sync/atomic"
	"time"
)

// Poller runs fn at a fixed interval, single-flight: a tick that fires
// while the previous run is still active is skipped, never queued.
type Poller struct {
	name     string
	interval time.Duration
	fn       func()

	busy atomic.Bool
	stop chan struct{}
	wg   sync.WaitGroup
}

func NewPoller(name string, interval time.Duration, fn func()) *Poller {
	return &Poller{
		name:     name,
		interval: interval,
		fn:       fn,
		stop:     make(chan struct{}),
	}
}

// Start launches the loop. The first run happens after one interval,
// not immediately.
func (p *Poller) Start() {
	p.wg.Add(1)
	go p.loop()
	log.Infof("poller %s started, interval %s", p.name, p.interval)
}

// Stop ends the loop and waits for a run in flight to finish.
func (p *Poller) Stop() {
	close(p.stop)
	p.wg.Wait()
	log.Infof("poller %s stopped", p.name)
}

func (p *Poller) loop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			if !p.busy.CompareAndSwap(false, true) {
				log.Debugf("poller %s tick skipped, previous run still active", p.name)
				continue
			}
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				defer p.busy.Store(false)
				p.fn()
			}()
		}
	}
}
