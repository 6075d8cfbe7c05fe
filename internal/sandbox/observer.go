package sandbox

import "time"

// Observer receives pool events. Implementations must be safe for concurrent use.
type Observer interface {
	ExecutionFinished(errorType string, duration time.Duration)
	QueueWait(duration time.Duration)
	QueueRejected()
	PoolChanged(stats Stats)
	BridgeCalled(resourceType ResourceType, status string)
}

type nopObserver struct{}

func (nopObserver) ExecutionFinished(string, time.Duration) {}
func (nopObserver) QueueWait(time.Duration)                 {}
func (nopObserver) QueueRejected()                          {}
func (nopObserver) PoolChanged(Stats)                       {}
func (nopObserver) BridgeCalled(ResourceType, string)       {}
