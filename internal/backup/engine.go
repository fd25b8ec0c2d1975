package backup

// AbortCode is the status a poll callback returns to ask the engine to stop,
// and the code the engine reports back when it stopped for that reason.
// It matches the server's ER_ABORTING_CONNECTION.
const AbortCode = 1152

// PollFunc receives progress in [0,1] and a status message from the engine.
// Any non-zero return asks the engine to stop.
type PollFunc func(progress float64, message string) int

// ErrorFunc receives the code and message of an engine failure. It is called
// before BeginBackup returns the same non-zero code.
type ErrorFunc func(code int, message string)

// Engine copies the source trees into the destinations as one consistent
// snapshot. sources and destinations are paired by index. The engine owns
// consistency across the trees and calls poll at intervals of its choosing
// on the calling goroutine.
type Engine interface {
	BeginBackup(sources, destinations []string, poll PollFunc, report ErrorFunc) int
}

// Throttler is implemented by engines that can cap their copy rate
type Throttler interface {
	Throttle(bytesPerSecond uint64)
}

// Versioner is implemented by engines that report a version string
type Versioner interface {
	Version() string
}

// EngineVersion returns the engine's version, or "unknown"
func EngineVersion(engine Engine) string {
	if v, ok := engine.(Versioner); ok {
		return v.Version()
	}
	return "unknown"
}
