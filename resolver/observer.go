package resolver

import "time"

// Path names the rule that produced a resolution.
type Path string

const (
	PathCache    Path = "cache"
	PathProbe    Path = "probe"
	PathStorage  Path = "storage"
	PathExternal Path = "external"
	PathUpload   Path = "upload"
)

// Observer receives telemetry from the resolver.
type Observer interface {
	ObserveResolution(path Path, duration time.Duration, err error)
	ObserveUpload(sizeBytes int64, duration time.Duration, err error)
	ObserveProbeMiss()
}

type nopObserver struct{}

func (nopObserver) ObserveResolution(Path, time.Duration, error) {}

func (nopObserver) ObserveUpload(int64, time.Duration, error) {}

func (nopObserver) ObserveProbeMiss() {}
