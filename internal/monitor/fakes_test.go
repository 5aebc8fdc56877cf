package monitor

import (
	"context"
	"os"
)

// fakePanesStub is a no-op core.PaneController base for tests that only
// care about overriding one method (embed and override).
type fakePanesStub struct{}

func (fakePanesStub) EnsureSession(ctx context.Context, name string) error { return nil }
func (fakePanesStub) NewWindow(ctx context.Context, session, name, cwd string) (int, error) {
	return 0, nil
}
func (fakePanesStub) KillWindow(ctx context.Context, session string, index int) error { return nil }
func (fakePanesStub) WindowExists(ctx context.Context, session string, index int) (bool, error) {
	return true, nil
}
func (fakePanesStub) SendKeys(ctx context.Context, session string, index int, keys string, enter bool) error {
	return nil
}
func (fakePanesStub) CapturePane(ctx context.Context, session string, index int, lines int) (string, error) {
	return "", nil
}
func (fakePanesStub) SelectWindow(ctx context.Context, session string, index int) error { return nil }
func (fakePanesStub) ListWindows(ctx context.Context, session string) ([]int, error)    { return nil, nil }

type fakeFS struct {
	files map[string][]byte
}

func (f *fakeFS) WriteAtomic(path string, data []byte, perm uint32) error {
	f.files[path] = data
	return nil
}
func (f *fakeFS) ReadFile(path string) ([]byte, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}
func (f *fakeFS) AppendLine(path, line string, writeHeaderIfNew func() string) error {
	if f.files == nil {
		f.files = map[string][]byte{}
	}
	if _, ok := f.files[path]; !ok && writeHeaderIfNew != nil {
		f.files[path] = append(f.files[path], []byte(writeHeaderIfNew()+"\n")...)
	}
	f.files[path] = append(f.files[path], []byte(line+"\n")...)
	return nil
}
