package jobs

import (
	"time"
)

// priorityQueues holds four FIFO buffered channels, one per priority level.
// Priority here means queue selection order, not intra-queue ordering: workers
// consult the channels from URGENT down to LOW and take the first job found.
// A nil job sent on any channel is a poison pill and wakes one polling worker.
type priorityQueues struct {
	buffers map[Priority]chan *Job
}

func newPriorityQueues(buffer int) *priorityQueues {
	queues := &priorityQueues{buffers: make(map[Priority]chan *Job, len(prioritiesHighFirst))}
	for _, priority := range prioritiesHighFirst {
		queues.buffers[priority] = make(chan *Job, buffer)
	}
	return queues
}

// push appends a job to the queue matching its priority without blocking.
// The buffers are the bounded rendition of an unbounded FIFO; a saturated
// queue rejects the job instead of stalling the producer.
func (q *priorityQueues) push(job *Job) error {
	select {
	case q.buffers[job.Priority] <- job:
		return nil
	default:
		return jobsError(ErrQueueFull, job.Priority.String()+" queue is saturated")
	}
}

// pushPill sends one poison pill on the given queue. A full queue is skipped:
// a worker polling it will dequeue a real job rather than block forever, and
// observe the stopped flag on its next pass.
func (q *priorityQueues) pushPill(priority Priority) {
	select {
	case q.buffers[priority] <- nil:
	default:
	}
}

// poll checks the queues in strict priority order, waiting up to timeout on
// each, and returns the first job found. pill is true when a poison pill was
// consumed. Both results are zero when every queue stayed empty for the full
// pass.
func (q *priorityQueues) poll(timeout time.Duration) (job *Job, pill bool) {
	for _, priority := range prioritiesHighFirst {
		timer := time.NewTimer(timeout)
		select {
		case job := <-q.buffers[priority]:
			timer.Stop()
			if job == nil {
				return nil, true
			}
			return job, false
		case <-timer.C:
		}
	}
	return nil, false
}

// depth reports the number of buffered jobs for one priority level. Poison
// pills in flight are counted; the value is a snapshot, not a guarantee.
func (q *priorityQueues) depth(priority Priority) int {
	return len(q.buffers[priority])
}
