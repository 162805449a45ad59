package resolver

import "sync"

// Callbacks observe a single Resolve call. Nil fields are skipped.
type Callbacks struct {
	// OnProgress receives upload progress in [0,100], never decreasing.
	OnProgress func(percent int)
	// OnUploadingChanged is called with true before an upload starts and with
	// false when the upload path exits, whether it succeeded or not.
	OnUploadingChanged func(uploading bool)
}

func (cb Callbacks) uploading(on bool) {
	if cb.OnUploadingChanged != nil {
		cb.OnUploadingChanged(on)
	}
}

// monotonic drops progress values that would move a subscriber backwards.
type monotonic struct {
	mu   sync.Mutex
	last int
	fn   func(int)
}

func newMonotonic(fn func(int)) *monotonic {
	return &monotonic{last: -1, fn: fn}
}

func (m *monotonic) report(percent int) {
	if m.fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if percent <= m.last {
		return
	}
	m.last = percent
	m.fn(percent)
}

// flight fans progress of one shared upload out to every waiting caller.
type flight struct {
	mu   sync.Mutex
	last int
	subs map[*monotonic]struct{}
}

func newFlight() *flight {
	return &flight{last: -1, subs: make(map[*monotonic]struct{})}
}

func (f *flight) report(percent int) {
	f.mu.Lock()
	if percent > f.last {
		f.last = percent
	}
	subs := make([]*monotonic, 0, len(f.subs))
	for s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()

	for _, s := range subs {
		s.report(percent)
	}
}

// subscribe adds s and replays the latest progress to it.
func (f *flight) subscribe(s *monotonic) (unsubscribe func()) {
	f.mu.Lock()
	f.subs[s] = struct{}{}
	last := f.last
	f.mu.Unlock()

	if last >= 0 {
		s.report(last)
	}
	return func() {
		f.mu.Lock()
		delete(f.subs, s)
		f.mu.Unlock()
	}
}
