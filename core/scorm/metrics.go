package scorm

// Metrics receives runtime observations.
type Metrics interface {
	ObserveResolve(outcome string)
	ObserveCommit(err error)
	ObserveCall(dialect Version, function string, errorCode int)
	ObserveInteractionFlush(count int, err error)
	SetPendingInteractions(n int)
	SetActiveLaunches(n int)
}

// Resolve outcomes
const (
	ResolveResumed  = "resumed"
	ResolveCreated  = "created"
	ResolveConflict = "conflict"
)

// NopMetrics discards every observation.
type NopMetrics struct{}

var _ Metrics = NopMetrics{}

func (NopMetrics) ObserveResolve(string)              {}
func (NopMetrics) ObserveCommit(error)                {}
func (NopMetrics) ObserveCall(Version, string, int)   {}
func (NopMetrics) ObserveInteractionFlush(int, error) {}
func (NopMetrics) SetPendingInteractions(int)         {}
func (NopMetrics) SetActiveLaunches(int)              {}
