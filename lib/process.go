package lib

import (
	"context"
	"sync"
)

// Job is a long-running task bound to a process context.
type Job func(context.Context)

// Process supervises a set of jobs and coordinates their shutdown.
type Process struct {
	ctx    context.Context
	cancel context.CancelFunc
	doneCh chan struct{}

	jobs          sync.WaitGroup
	terminateOnce sync.Once

	mu          sync.Mutex
	onTerminate []Job
}

func NewProcess(ctx context.Context) *Process {
	ctx, cancel := context.WithCancel(ctx)
	process := &Process{
		ctx:    ctx,
		cancel: cancel,
		doneCh: make(chan struct{}),
	}
	// The main "job" keeps Done from closing before Terminate is called.
	process.jobs.Add(1)
	go func() {
		process.jobs.Wait()
		close(process.doneCh)
	}()
	return process
}

// Spawn runs a goroutine in the process context as a job with waiting for
// its completion on shutdown.
func (p *Process) Spawn(job Job) {
	if p == nil {
		panic("spawning a job on a nil process")
	}
	select {
	case <-p.doneCh:
		panic("spawning a job on a finished process")
	default:
	}
	p.jobs.Add(1)
	go func() {
		defer p.jobs.Done()
		job(p.ctx)
	}()
}

// OnTerminate registers a callback which is run once the process is asked to
// stop. Callbacks are expected to unblock the jobs they are paired with.
func (p *Process) OnTerminate(job Job) {
	p.mu.Lock()
	p.onTerminate = append(p.onTerminate, job)
	p.mu.Unlock()
}

// Terminate signals the process to stop gracefully.
func (p *Process) Terminate() {
	if p == nil {
		return
	}
	p.terminateOnce.Do(func() {
		p.mu.Lock()
		callbacks := p.onTerminate
		p.onTerminate = nil
		p.mu.Unlock()
		for _, job := range callbacks {
			p.Spawn(job)
		}
		p.jobs.Done() // release the main "job"
	})
}

// Done channel is used to wait for jobs completion.
func (p *Process) Done() <-chan struct{} {
	if p == nil {
		return closedChan
	}
	return p.doneCh
}

// Shutdown signals the process to terminate and waits for completion of all jobs.
func (p *Process) Shutdown(ctx context.Context) error {
	p.Terminate()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.Done():
		return nil
	}
}

// Close shuts down all process jobs immediately.
func (p *Process) Close() {
	if p == nil {
		return
	}
	p.Terminate()
	p.cancel()
	<-p.doneCh
}

var closedChan = make(chan struct{})

func init() {
	close(closedChan)
}
