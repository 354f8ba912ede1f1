package chat

import "time"

// Recorder receives pipeline measurements. metrics.Collector is the
// production implementation.
type Recorder interface {
	StageCompleted(stage string, duration time.Duration, err error)
	Transition(from, to, condition string)
	DocumentsGraded(retained, total int)
	RunCompleted(route, outcome string, duration time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) StageCompleted(string, time.Duration, error) {}
func (nopRecorder) Transition(string, string, string) {}
func (nopRecorder) DocumentsGraded(int, int) {}
func (nopRecorder) RunCompleted(string, string, time.Duration, error) {}
