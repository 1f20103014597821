package jobs

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestRetryBackoffProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("backoff never exceeds the cap", prop.ForAll(
		func(maxRetries, remaining int) bool {
			got := retryBackoff(maxRetries, remaining, DefaultRetryBackoffBase, DefaultRetryBackoffMax)
			return got > 0 && got <= DefaultRetryBackoffMax
		},
		gen.IntRange(1, 100),
		gen.IntRange(0, 100),
	))

	properties.Property("backoff is non-decreasing across consecutive retries", prop.ForAll(
		func(maxRetries int) bool {
			previous := time.Duration(0)
			for remaining := maxRetries - 1; remaining >= 1; remaining-- {
				current := retryBackoff(maxRetries, remaining, DefaultRetryBackoffBase, DefaultRetryBackoffMax)
				if current < previous {
					return false
				}
				previous = current
			}
			return true
		},
		gen.IntRange(2, 64),
	))

	properties.Property("early retries double the base until the cap", prop.ForAll(
		func(consumed int) bool {
			got := retryBackoff(consumed+1, 1, DefaultRetryBackoffBase, DefaultRetryBackoffMax)
			expected := DefaultRetryBackoffBase << uint(consumed)
			if expected > DefaultRetryBackoffMax {
				expected = DefaultRetryBackoffMax
			}
			return got == expected
		},
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}

func TestQueueDrainOrderProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.MaxSize = 16

	properties := gopter.NewProperties(parameters)

	properties.Property("polling drains strictly by priority, FIFO within a level", prop.ForAll(
		func(levels []int) bool {
			queues := newPriorityQueues(len(levels) + 1)
			for seq, level := range levels {
				job := newJob("probe", map[string]any{"seq": seq}, EnqueueOptions{
					Priority:   Priority(level),
					RetryCount: 1,
				})
				if err := queues.push(job); err != nil {
					return false
				}
			}

			lastPriority := PriorityUrgent
			lastSeq := map[Priority]int{}
			for range levels {
				job, pill := queues.poll(time.Millisecond)
				if pill || job == nil {
					return false
				}
				if job.Priority > lastPriority {
					return false
				}
				seq := job.TaskData["seq"].(int)
				if prev, ok := lastSeq[job.Priority]; ok && seq < prev {
					return false
				}
				lastSeq[job.Priority] = seq
				lastPriority = job.Priority
			}
			job, _ := queues.poll(time.Millisecond)
			return job == nil
		},
		gen.SliceOf(gen.IntRange(int(PriorityLow), int(PriorityUrgent))),
	))

	properties.TestingRun(t)
}
