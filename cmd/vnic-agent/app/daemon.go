package app

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v2"
	"github.com/vishvananda/netlink"
	"k8s.io/klog/v2"

	"github.com/oci-utils/vnic-agent/pkg/config"
	"github.com/oci-utils/vnic-agent/pkg/metrics"
	"github.com/oci-utils/vnic-agent/pkg/util"
	"github.com/oci-utils/vnic-agent/pkg/vnic"
)

// settleDelay coalesces the bursts of link events a VNIC attachment causes
var settleDelay = 2 * time.Second

type reconciler interface {
	Reconcile(ctx context.Context) (*vnic.Result, error)
}

type locker interface {
	TryLock() error
	Unlock()
}

// daemon runs reconciliation passes one at a time: periodically, after link
// events settle and after the preferences file changed
type daemon struct {
	reconciler reconciler
	prefs      interface{ Reload() error }
	prefsPath  string
	lock       locker
	period     time.Duration
}

func (d *daemon) pass(ctx context.Context) {
	// a running command reconciles anyway, the next trigger catches up
	if err := d.lock.TryLock(); err != nil {
		klog.V(4).Infof("Skipping reconciliation pass: %v", err)
		return
	}
	defer d.lock.Unlock()

	// commands save the preferences under the lock
	if err := d.prefs.Reload(); err != nil {
		klog.Warningf("Skipping reconciliation pass: %v", err)
		return
	}

	start := time.Now()
	res, err := d.reconciler.Reconcile(ctx)
	failed := false
	if res != nil {
		byState := map[string]int{}
		for _, r := range res.Records {
			byState[string(r.ConfState)]++
		}
		metrics.SetInterfaces(byState)
		for _, o := range res.Outcomes {
			metrics.RecordAction(string(o.Action), o.Err)
		}
		failed = len(res.Failed()) > 0
	}
	metrics.RecordPass(err != nil, failed, time.Since(start))
	if err != nil {
		klog.Errorf("Reconciliation pass aborted: %v", err)
		return
	}
	klog.V(4).Infof("Reconciliation pass done in %v", time.Since(start))
}

func (d *daemon) run(ctx context.Context, linkEvents <-chan netlink.LinkUpdate, fsnotifyEvents <-chan fsnotify.Event,
	fsnotifyErrors <-chan error) {
	klog.Infof("Starting reconciliation every %v", d.period)
	defer klog.Infof("Stopping reconciliation")

	d.pass(ctx)

	ticker := time.NewTicker(d.period)
	defer ticker.Stop()
	var settled <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			d.pass(ctx)

		case <-settled:
			settled = nil
			d.pass(ctx)

		case update, ok := <-linkEvents:
			if !ok {
				klog.Warningf("Link event subscription closed, relying on periodic passes")
				linkEvents = nil
				continue
			}
			klog.V(5).Infof("Link event for %s", update.Attrs().Name)
			settled = time.After(settleDelay)

		case event, ok := <-fsnotifyEvents:
			if !ok {
				fsnotifyEvents = nil
				continue
			}
			// the parent folder is watched, skip the events of other files
			if filepath.Clean(event.Name) != d.prefsPath || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) {
				continue
			}
			klog.Infof("Preferences changed, scheduling a pass")
			settled = time.After(settleDelay)

		case err, ok := <-fsnotifyErrors:
			if !ok {
				fsnotifyErrors = nil
				continue
			}
			klog.Errorf("Error watching for %s changes: %v", d.prefsPath, err)
		}
	}
}

var DaemonCommand = cli.Command{
	Name:  "daemon",
	Usage: "keep the host configuration in line with the attached VNICs",
	Flags: config.DaemonFlags,
	Action: withAgent(func(ctx *cli.Context, a *agent) error {
		innerCtx, cancel := context.WithCancel(ctx.Context)
		defer cancel()

		if a.cfg.Daemon.MetricsBindAddress != "" {
			server := metrics.NewMetricServer(a.cfg.Daemon.MetricsBindAddress)
			go server.Run(innerCtx.Done())
		}

		var linkEvents chan netlink.LinkUpdate
		done := make(chan struct{})
		defer close(done)
		updates := make(chan netlink.LinkUpdate, 64)
		if err := util.GetNetLinkOps().LinkSubscribe(updates, done); err != nil {
			klog.Warningf("Can't subscribe to link events, hot-plugged VNICs wait for the next periodic pass: %v", err)
		} else {
			linkEvents = updates
		}

		var fsnotifyEvents chan fsnotify.Event
		var fsnotifyErrors chan error
		prefsPath := filepath.Clean(a.prefs.Path())
		// watch the parent folder, the file is replaced on every save
		if err := util.AppFs.MkdirAll(filepath.Dir(prefsPath), 0o755); err != nil {
			klog.Warningf("Can't create %s: %v", filepath.Dir(prefsPath), err)
		}
		watcher, err := fsnotify.NewWatcher()
		if err == nil {
			err = watcher.Add(filepath.Dir(prefsPath))
		}
		if err != nil {
			klog.Warningf("Can't watch %s, preference changes apply on the next periodic pass: %v", prefsPath, err)
		} else {
			fsnotifyEvents = watcher.Events
			fsnotifyErrors = watcher.Errors
		}
		if watcher != nil {
			defer watcher.Close()
		}

		d := &daemon{
			reconciler: a.engine,
			prefs:      a.prefs,
			prefsPath:  prefsPath,
			lock:       a.lock,
			period:     a.cfg.SyncPeriod(),
		}
		d.run(innerCtx, linkEvents, fsnotifyEvents, fsnotifyErrors)
		return nil
	}),
}
