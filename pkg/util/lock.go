package util

import (
	"fmt"

	"github.com/alexflint/go-filemutex"
	"k8s.io/klog/v2"
)

// InstanceLock serializes agent invocations on one host. The lock is advisory
// and released when the process exits.
type InstanceLock struct {
	path string
	fm   *filemutex.FileMutex
}

func NewInstanceLock(path string) *InstanceLock {
	return &InstanceLock{path: path}
}

// Lock blocks until no other instance holds the lock
func (l *InstanceLock) Lock() error {
	fm, err := filemutex.New(l.path)
	if err != nil {
		return fmt.Errorf("failed to open lock file %s: %w", l.path, err)
	}
	klog.V(5).Infof("Waiting for instance lock %s", l.path)
	if err := fm.Lock(); err != nil {
		_ = fm.Close()
		return fmt.Errorf("failed to acquire lock %s: %w", l.path, err)
	}
	l.fm = fm
	return nil
}

// TryLock fails immediately when another instance holds the lock
func (l *InstanceLock) TryLock() error {
	fm, err := filemutex.New(l.path)
	if err != nil {
		return fmt.Errorf("failed to open lock file %s: %w", l.path, err)
	}
	if err := fm.TryLock(); err != nil {
		_ = fm.Close()
		return fmt.Errorf("another vnic-agent instance holds %s: %w", l.path, err)
	}
	l.fm = fm
	return nil
}

func (l *InstanceLock) Unlock() {
	if l.fm == nil {
		return
	}
	if err := l.fm.Unlock(); err != nil {
		klog.Warningf("Failed to release lock %s: %v", l.path, err)
	}
	_ = l.fm.Close()
	l.fm = nil
}
