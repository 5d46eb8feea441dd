package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/vishvananda/netlink"

	"github.com/oci-utils/vnic-agent/pkg/vnic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type countingReconciler struct {
	passes atomic.Int32
	err    error
}

func (c *countingReconciler) Reconcile(context.Context) (*vnic.Result, error) {
	c.passes.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &vnic.Result{
		Records:  []*vnic.InterfaceRecord{{MAC: "AA:BB:CC:00:00:01", ConfState: vnic.StateOK}},
		Outcomes: []vnic.Outcome{{Action: vnic.ActionConfigure, Err: errors.New("boom")}},
	}, nil
}

type fakePrefs struct {
	reloads atomic.Int32
	err     error
}

func (f *fakePrefs) Reload() error {
	f.reloads.Add(1)
	return f.err
}

type fakeLock struct {
	mu   sync.Mutex
	held bool
}

func (l *fakeLock) TryLock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return errors.New("another vnic-agent instance holds the lock")
	}
	l.held = true
	return nil
}

func (l *fakeLock) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
}

var _ = Describe("Daemon", func() {
	const prefsPath = "/var/lib/oci-utils/vnic_info"

	var (
		rec        *countingReconciler
		prefs      *fakePrefs
		lock       *fakeLock
		linkEvents chan netlink.LinkUpdate
		fileEvents chan fsnotify.Event
		fileErrors chan error
		cancel     context.CancelFunc
		stopped    chan struct{}
		prevSettle time.Duration
	)

	start := func(period time.Duration) {
		d := &daemon{
			reconciler: rec,
			prefs:      prefs,
			prefsPath:  prefsPath,
			lock:       lock,
			period:     period,
		}
		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		stopped = make(chan struct{})
		go func() {
			defer GinkgoRecover()
			defer close(stopped)
			d.run(ctx, linkEvents, fileEvents, fileErrors)
		}()
	}

	BeforeEach(func() {
		prevSettle = settleDelay
		settleDelay = 50 * time.Millisecond
		rec = &countingReconciler{}
		prefs = &fakePrefs{}
		lock = &fakeLock{}
		linkEvents = make(chan netlink.LinkUpdate)
		fileEvents = make(chan fsnotify.Event)
		fileErrors = make(chan error)
	})

	AfterEach(func() {
		cancel()
		Eventually(stopped).Should(BeClosed())
		settleDelay = prevSettle
	})

	linkEvent := func(name string) netlink.LinkUpdate {
		return netlink.LinkUpdate{Link: &netlink.Device{LinkAttrs: netlink.LinkAttrs{Name: name}}}
	}

	It("runs a pass at start and on every period", func() {
		start(30 * time.Millisecond)
		Eventually(rec.passes.Load).Should(BeNumerically(">=", 3))
	})

	It("coalesces a burst of link events into one pass", func() {
		start(time.Hour)
		Eventually(rec.passes.Load).Should(BeEquivalentTo(1))
		for _, name := range []string{"ens4", "ens4", "ens4.5", "ens4v5"} {
			linkEvents <- linkEvent(name)
		}
		Eventually(rec.passes.Load).Should(BeEquivalentTo(2))
		Consistently(rec.passes.Load, 150*time.Millisecond).Should(BeEquivalentTo(2))
	})

	It("reloads the preferences when their file changes", func() {
		start(time.Hour)
		Eventually(rec.passes.Load).Should(BeEquivalentTo(1))
		Expect(prefs.reloads.Load()).To(BeEquivalentTo(1))

		fileEvents <- fsnotify.Event{Name: "/var/lib/oci-utils/other", Op: fsnotify.Write}
		fileEvents <- fsnotify.Event{Name: prefsPath + ".tmp", Op: fsnotify.Create}
		fileEvents <- fsnotify.Event{Name: prefsPath, Op: fsnotify.Chmod}
		Consistently(prefs.reloads.Load, 150*time.Millisecond).Should(BeEquivalentTo(1))

		fileEvents <- fsnotify.Event{Name: prefsPath, Op: fsnotify.Rename}
		Eventually(prefs.reloads.Load).Should(BeEquivalentTo(2))
		Eventually(rec.passes.Load).Should(BeEquivalentTo(2))
	})

	It("skips the pass when the preferences can't be reloaded", func() {
		prefs.err = errors.New("failed to parse preferences")
		start(time.Hour)
		Eventually(prefs.reloads.Load).Should(BeEquivalentTo(1))

		fileEvents <- fsnotify.Event{Name: prefsPath, Op: fsnotify.Write}
		Eventually(prefs.reloads.Load).Should(BeEquivalentTo(2))
		Consistently(rec.passes.Load, 150*time.Millisecond).Should(BeEquivalentTo(0))
	})

	It("keeps running after an aborted pass and closed event sources", func() {
		rec.err = errors.New("instance metadata unavailable")
		start(30 * time.Millisecond)
		close(linkEvents)
		close(fileEvents)
		close(fileErrors)
		Eventually(rec.passes.Load).Should(BeNumerically(">=", 3))
	})

	It("skips passes while another invocation holds the lock", func() {
		Expect(lock.TryLock()).To(Succeed())
		start(30 * time.Millisecond)
		Consistently(rec.passes.Load, 150*time.Millisecond).Should(BeEquivalentTo(0))
		Expect(prefs.reloads.Load()).To(BeEquivalentTo(0))

		lock.Unlock()
		Eventually(rec.passes.Load).Should(BeNumerically(">=", 1))
	})
})
