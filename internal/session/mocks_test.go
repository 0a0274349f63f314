package session

import (
	"context"
	"sync"
)

// fakeEngine is a scriptable Engine for session tests.
type fakeEngine struct {
	mu sync.Mutex

	ticket      string
	startErr    error
	stopErr     error
	receiveErr  error
	fileSize    int64
	fileSizeErr error

	// When set, FileSize announces itself on fileSizeStarted and then waits
	// for fileSizeRelease, letting tests interleave calls mid-query.
	fileSizeStarted chan struct{}
	fileSizeRelease chan struct{}

	startCalls   int
	stopCalls    int
	receiveCalls int
	lastPath     string
	lastTicket   string
	lastDest     string
}

func (f *fakeEngine) StartSharing(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	f.lastPath = path
	if f.startErr != nil {
		return "", f.startErr
	}
	return f.ticket, nil
}

func (f *fakeEngine) StopSharing(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return f.stopErr
}

func (f *fakeEngine) Receive(_ context.Context, ticket, outputPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receiveCalls++
	f.lastTicket = ticket
	f.lastDest = outputPath
	return f.receiveErr
}

func (f *fakeEngine) FileSize(context.Context, string) (int64, error) {
	if f.fileSizeStarted != nil {
		f.fileSizeStarted <- struct{}{}
		<-f.fileSizeRelease
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fileSizeErr != nil {
		return 0, f.fileSizeErr
	}
	return f.fileSize, nil
}

// fakeClipboard records writes and optionally fails.
type fakeClipboard struct {
	mu     sync.Mutex
	err    error
	writes []string
}

func (f *fakeClipboard) WriteText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, text)
	return nil
}

// fakePicker returns a scripted selection.
type fakePicker struct {
	dir string
	err error
}

func (f *fakePicker) BrowseFolder(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.dir, nil
}

// fakeReporter records analytics observations.
type fakeReporter struct {
	mu           sync.Mutex
	observations []int64
}

func (f *fakeReporter) TransferCompleted(totalBytes int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observations = append(f.observations, totalBytes)
}

func (f *fakeReporter) recorded() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.observations...)
}
