package vnic

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"
	utilnet "k8s.io/utils/net"

	"github.com/oci-utils/vnic-agent/pkg/config"
	"github.com/oci-utils/vnic-agent/pkg/inventory"
	"github.com/oci-utils/vnic-agent/pkg/metadata"
	"github.com/oci-utils/vnic-agent/pkg/preferences"
	"github.com/oci-utils/vnic-agent/pkg/util"
)

// InventorySource enumerates the kernel devices of every namespace
type InventorySource interface {
	Collect() (inventory.Inventory, error)
}

// Action names what the engine did, or tried to do, to an interface
type Action string

const (
	ActionCorrelate       Action = "correlate"
	ActionConfigure       Action = "configure"
	ActionDeconfigure     Action = "deconfigure"
	ActionAddSecondary    Action = "add-secondary"
	ActionRemoveSecondary Action = "remove-secondary"
)

// Outcome is the result of one action on one interface
type Outcome struct {
	Action    Action
	Interface string
	MAC       string
	VNICID    string
	// Err is nil on success
	Err error
	// Message explains why nothing was done, if so
	Message string
}

// Result collects the per interface outcomes of a pass. A pass completes even
// when some interfaces fail.
type Result struct {
	Records  []*InterfaceRecord
	Outcomes []Outcome
}

// Failed returns the outcomes carrying an error
func (r *Result) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

func (r *Result) record(action Action, rec *InterfaceRecord, err error) {
	switch {
	case IsNoDeviceError(err):
		klog.Infof("Cannot %s %s yet: %v", action, rec, err)
	case err != nil:
		klog.Warningf("Cannot %s %s: %v", action, rec, err)
	default:
		klog.Infof("%s %s: done", action, rec)
	}
	r.Outcomes = append(r.Outcomes, Outcome{
		Action:    action,
		Interface: rec.String(),
		MAC:       rec.MAC,
		VNICID:    rec.VNICID,
		Err:       err,
	})
}

// Engine reconciles the kernel network configuration with the VNICs attached
// to the instance. Passes must not run concurrently.
type Engine struct {
	cfg       *config.Config
	metadata  metadata.Source
	inventory InventorySource
	prefs     *preferences.Store
	nsOps     util.NamespaceOps
	tables    *util.RouteTables
	nm        *util.NMConfig
}

func NewEngine(cfg *config.Config, source metadata.Source, inv InventorySource, prefs *preferences.Store,
	nsOps util.NamespaceOps, tables *util.RouteTables, nm *util.NMConfig) *Engine {
	return &Engine{
		cfg:       cfg,
		metadata:  source,
		inventory: inv,
		prefs:     prefs,
		nsOps:     nsOps,
		tables:    tables,
		nm:        nm,
	}
}

// pass is the state one invocation works on. It is never reused.
type pass struct {
	snap    *metadata.Snapshot
	records []*InterfaceRecord
	// records torn down so far
	removed map[*InterfaceRecord]bool
}

func (e *Engine) correlate(ctx context.Context) (*pass, error) {
	snap, err := e.metadata.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch instance metadata: %w", err)
	}
	inv, err := e.inventory.Collect()
	if err != nil {
		return nil, fmt.Errorf("failed to collect network devices: %w", err)
	}
	return &pass{
		snap:    snap,
		records: Correlate(snap, inv, e.prefs.Excluded()),
		removed: map[*InterfaceRecord]bool{},
	}, nil
}

// nicDevice is the physical device of a NIC
type nicDevice struct {
	name      string
	namespace string
}

// deviceByNICIndex maps a physical NIC index to the device known for it
func (p *pass) deviceByNICIndex() map[int]nicDevice {
	devices := map[int]nicDevice{}
	for _, r := range p.records {
		if r.Iface != "" && r.NICIndex != nil {
			devices[*r.NICIndex] = nicDevice{name: r.Iface, namespace: r.IfaceNamespace}
		}
	}
	return devices
}

// namespaceInUse tells whether a record other than r still has a device in
// namespace ns
func (p *pass) namespaceInUse(ns string, r *InterfaceRecord) bool {
	for _, o := range p.records {
		if o != r && o.Namespace == ns && !p.removed[o] {
			return true
		}
	}
	return false
}

func (p *pass) findByVNIC(vnicID string) *InterfaceRecord {
	for _, r := range p.records {
		if r.VNICID == vnicID {
			return r
		}
	}
	return nil
}

// NetworkConfig returns the correlated interfaces without changing anything
func (e *Engine) NetworkConfig(ctx context.Context) ([]*InterfaceRecord, error) {
	p, err := e.correlate(ctx)
	if err != nil {
		return nil, err
	}
	return p.records, nil
}

// Reconcile runs one pass: configure the VNICs missing on the host, tear down
// what no VNIC claims and add the missing secondary addresses. Interface
// failures are reported in the result. An error is only returned when the
// pass could not run.
func (e *Engine) Reconcile(ctx context.Context) (*Result, error) {
	p, err := e.correlate(ctx)
	if err != nil {
		return nil, err
	}
	res := &Result{Records: p.records}
	e.pruneSecondaryIPs(p)

	var toConfigure, toDeconfigure, toSecondary []*InterfaceRecord
	for _, r := range p.records {
		if r.Err != nil {
			res.record(ActionCorrelate, r, r.Err)
			continue
		}
		if r.ConfState == StateExcluded {
			continue
		}
		if len(r.MissingSecondaryIPs) > 0 {
			toSecondary = append(toSecondary, r)
		}
		if r.IsPrimary {
			continue
		}
		switch r.ConfState {
		case StateAdd:
			toConfigure = append(toConfigure, r)
		case StateDelete:
			toDeconfigure = append(toDeconfigure, r)
		}
	}

	failed := map[*InterfaceRecord]bool{}
	nicIndex := p.deviceByNICIndex()
	for _, r := range toConfigure {
		err := e.configure(p, r, nicIndex)
		if errors.Is(err, ErrNoMetadata) {
			return res, err
		}
		failed[r] = err != nil
		res.record(ActionConfigure, r, err)
	}

	for _, r := range toDeconfigure {
		err := e.deconfigure(p, r)
		if errors.Is(err, ErrNoMetadata) {
			return res, err
		}
		res.record(ActionDeconfigure, r, err)
	}

	// configured devices may now resolve NIC indexes
	nicIndex = p.deviceByNICIndex()
	for _, r := range toSecondary {
		if failed[r] {
			continue
		}
		err := e.resolveDevice(p, r, nicIndex)
		if err == nil {
			err = e.configureSecondary(p, r)
		}
		if errors.Is(err, ErrNoMetadata) {
			return res, err
		}
		res.record(ActionAddSecondary, r, err)
	}
	return res, nil
}

// pruneSecondaryIPs forgets the recorded secondary IPs of VNICs no longer
// attached
func (e *Engine) pruneSecondaryIPs(p *pass) {
	stale := sets.New[string]()
	for _, sip := range e.prefs.SecondaryIPs() {
		if _, ok := p.snap.VNIC(sip.VNICID); !ok {
			stale.Insert(sip.VNICID)
		}
	}
	for _, vnicID := range sets.List(stale) {
		klog.Infof("Forgetting secondary IPs of detached VNIC %s", vnicID)
		if err := e.prefs.DeleteAllSecondaryIPs(vnicID); err != nil {
			klog.Warningf("Failed to forget secondary IPs of VNIC %s: %v", vnicID, err)
		}
	}
}

func (e *Engine) configure(p *pass, r *InterfaceRecord, nicIndex map[int]nicDevice) error {
	if err := e.resolveDevice(p, r, nicIndex); err != nil {
		return err
	}
	place, err := e.setup(p, r)
	if err != nil {
		return err
	}
	return e.configureRouting(p, r, place)
}

// Deconfigure tears down the interfaces this agent configured. With no
// secondary addresses given, every interface but the primary, the excluded
// ones and the ones not configured yet is torn down. Otherwise only the given
// secondary addresses are removed.
func (e *Engine) Deconfigure(ctx context.Context, secondary []preferences.SecondaryIP) (*Result, error) {
	p, err := e.correlate(ctx)
	if err != nil {
		return nil, err
	}
	res := &Result{Records: p.records}

	if len(secondary) > 0 {
		for _, sip := range secondary {
			r := p.findByVNIC(sip.VNICID)
			if r == nil {
				res.Outcomes = append(res.Outcomes, Outcome{
					Action:  ActionRemoveSecondary,
					VNICID:  sip.VNICID,
					Message: fmt.Sprintf("VNIC %s is not attached", sip.VNICID),
				})
				continue
			}
			var err error
			if r.IsPrimary {
				err = fmt.Errorf("cannot deconfigure %s on the primary VNIC", sip.IP)
			} else {
				err = e.removeSecondaryAddr(r, sip.IP)
			}
			res.record(ActionRemoveSecondary, r, err)
		}
		return res, nil
	}

	for _, r := range p.records {
		if r.IsPrimary || r.Err != nil || r.ConfState == StateAdd || r.ConfState == StateExcluded {
			continue
		}
		err := e.deconfigure(p, r)
		if errors.Is(err, ErrNoMetadata) {
			return res, err
		}
		res.record(ActionDeconfigure, r, err)
	}
	return res, nil
}

// AddSecondaryAddr records ip as a secondary private IP of vnicID and
// configures it. A message is returned when there was nothing to do.
func (e *Engine) AddSecondaryAddr(ctx context.Context, ip, vnicID string) (string, error) {
	if !utilnet.IsIPv4String(ip) {
		return "", fmt.Errorf("invalid IPv4 address %q", ip)
	}
	p, err := e.correlate(ctx)
	if err != nil {
		return "", err
	}
	r := p.findByVNIC(vnicID)
	if r == nil {
		return "", fmt.Errorf("VNIC %s is not attached", vnicID)
	}
	if r.Err != nil {
		return "", r.Err
	}
	if r.ConfState == StateExcluded {
		return "", fmt.Errorf("%s is excluded from automatic configuration", r)
	}
	if err := e.prefs.AddSecondaryIP(ip, vnicID); err != nil {
		return "", err
	}
	if slices.Contains(r.ObservedAddrs(), ip) {
		return fmt.Sprintf("IP %s is already configured", ip), nil
	}

	nicIndex := p.deviceByNICIndex()
	if r.ConfState == StateAdd && !r.IsPrimary {
		if err := e.configure(p, r, nicIndex); err != nil {
			return "", fmt.Errorf("failed to configure %s: %w", r, err)
		}
	} else if err := e.resolveDevice(p, r, nicIndex); err != nil {
		return "", err
	}
	r.MissingSecondaryIPs = []string{ip}
	if err := e.configureSecondary(p, r); err != nil {
		return "", err
	}
	klog.Infof("Added secondary IP %s to %s", ip, r)
	return "", nil
}

// DelSecondaryAddr removes ip from the interface of vnicID, gives the device
// back to NetworkManager and forgets ip. A message is returned when ip is not
// configured.
func (e *Engine) DelSecondaryAddr(ctx context.Context, ip, vnicID string) (string, error) {
	p, err := e.correlate(ctx)
	if err != nil {
		return "", err
	}
	var r *InterfaceRecord
	for _, candidate := range p.records {
		if candidate.VNICID == vnicID && slices.Contains(candidate.ObservedAddrs(), ip) {
			r = candidate
			break
		}
	}
	if r == nil {
		return fmt.Sprintf("IP %s is not configured", ip), nil
	}
	if r.IsPrimary && ip == r.Addr {
		return "", fmt.Errorf("cannot remove the primary address %s of the primary VNIC", ip)
	}
	if err := e.removeSecondaryAddr(r, ip); err != nil {
		return "", err
	}
	if err := e.nm.Manage(r.MAC); err != nil {
		return "", err
	}
	if err := e.prefs.RemoveSecondaryIP(ip, vnicID); err != nil {
		return "", err
	}
	klog.Infof("Removed secondary IP %s from %s", ip, r)
	return "", nil
}

// Exclude freezes every interface whose device name, VNIC id or address is
// item. It takes effect on the next pass.
func (e *Engine) Exclude(item string) error {
	return e.prefs.Exclude(item)
}

// Include reverts Exclude
func (e *Engine) Include(item string) error {
	return e.prefs.Include(item)
}

// SetNamespace makes the next configured interfaces land in namespace name.
// The empty name derives one namespace per interface from its device name.
func (e *Engine) SetNamespace(name string) error {
	return e.prefs.SetNamespace(name)
}

// ClearNamespace configures the next interfaces in the default namespace
func (e *Engine) ClearNamespace() error {
	return e.prefs.ClearNamespace()
}

func (e *Engine) SetSSHD(start bool) error {
	return e.prefs.SetSSHD(start)
}

// targetNamespace returns the namespace an interface whose outer device is
// dev is configured in, if one is wanted. Derived names follow the outer
// device so VNICs sharing a physical NIC get a namespace each.
func (e *Engine) targetNamespace(dev string) (string, bool) {
	name, ok := e.prefs.Namespace()
	if !ok {
		return "", false
	}
	if name == "" {
		name = e.cfg.Default.NamespacePrefix + dev
	}
	return name, true
}
