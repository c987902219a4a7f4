package systems

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-hal/engine/core"
)

// JobTask is one unit of work, typically recording a command list.
type JobTask struct {
	Name string
	Run  func() error
}

type queuedJob struct {
	task JobTask
	done chan<- error
}

// JobSystem runs tasks on a fixed set of worker goroutines.
type JobSystem struct {
	numWorkers int
	jobQueue   chan queuedJob
	wg         sync.WaitGroup

	mu       sync.RWMutex
	isClosed bool
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")
var ErrJobSystemClosed = errors.New("job system is shut down")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan queuedJob, channelSize),
	}
	js.start()
	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				err := job.task.Run()
				if err != nil {
					core.LogError("job %q failed: %s", job.task.Name, err)
					err = fmt.Errorf("%s: %w", job.task.Name, err)
				}
				job.done <- err
			}
		}()
	}
}

// Shutdown lets queued jobs finish and stops the workers.
func (js *JobSystem) Shutdown() error {
	js.mu.Lock()
	if js.isClosed {
		js.mu.Unlock()
		return nil
	}
	js.isClosed = true
	close(js.jobQueue)
	js.mu.Unlock()
	js.wg.Wait()
	return nil
}

// Submit queues the task. The returned channel receives its result.
func (js *JobSystem) Submit(jt JobTask) <-chan error {
	done := make(chan error, 1)
	js.mu.RLock()
	defer js.mu.RUnlock()
	if js.isClosed {
		done <- ErrJobSystemClosed
		return done
	}
	js.jobQueue <- queuedJob{task: jt, done: done}
	return done
}

// RunAll runs the tasks concurrently and waits for every one of them.
func (js *JobSystem) RunAll(tasks ...JobTask) error {
	results := make([]<-chan error, len(tasks))
	for i, t := range tasks {
		results[i] = js.Submit(t)
	}
	errs := make([]error, 0, len(tasks))
	for _, r := range results {
		errs = append(errs, <-r)
	}
	return errors.Join(errs...)
}
