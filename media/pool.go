package media

import "sync"

// pool is a fixed-size worker pool. Validation fans out one task per
// candidate; the pool caps concurrent fetches against the collaborator.
type pool struct {
	tasks chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

func newPool(size int) *pool {
	if size < 1 {
		size = 1
	}
	p := &pool{tasks: make(chan func(), size*2)}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

func (p *pool) worker() {
	defer p.wg.Done()
	for fn := range p.tasks {
		if fn != nil {
			fn()
		}
	}
}

func (p *pool) submit(fn func()) {
	p.tasks <- fn
}

// stop closes the task channel and joins all workers.
func (p *pool) stop() {
	p.once.Do(func() {
		close(p.tasks)
		p.wg.Wait()
	})
}
