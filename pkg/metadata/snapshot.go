package metadata

import (
	"context"
	"fmt"
	"strings"

	"k8s.io/klog/v2"

	"github.com/oci-utils/vnic-agent/pkg/preferences"
	"github.com/oci-utils/vnic-agent/pkg/types"
)

// Snapshot is the cloud reported desired state of the instance
type Snapshot struct {
	Shape string
	// VNICs in metadata order, the first one is the primary VNIC
	VNICs []VNIC
	// PrivateIPs holds every private IP of a VNIC, keyed by VNIC id
	PrivateIPs map[string][]string
}

// IsBareMetal tells whether the instance runs on a bare metal shape
func (s *Snapshot) IsBareMetal() bool {
	return strings.HasPrefix(s.Shape, types.BareMetalShapePrefix)
}

// AllPrivateIPs returns every private IP known for vnicID
func (s *Snapshot) AllPrivateIPs(vnicID string) []string {
	return s.PrivateIPs[vnicID]
}

// VNIC returns the VNIC with the given id
func (s *Snapshot) VNIC(vnicID string) (*VNIC, bool) {
	for i := range s.VNICs {
		if s.VNICs[i].VNICID == vnicID {
			return &s.VNICs[i], true
		}
	}
	return nil, false
}

// Source provides metadata snapshots
type Source interface {
	Fetch(ctx context.Context) (*Snapshot, error)
}

// PrivateIPLister returns every private IP assigned to a VNIC
type PrivateIPLister interface {
	PrivateIPs(ctx context.Context, vnicID string) ([]string, error)
}

// SecondaryIPStore is the persisted secondary IP bookkeeping, used when the
// control-plane API can't be reached
type SecondaryIPStore interface {
	SecondaryIPsOf(vnicID string) []string
	SetSecondaryIPs(ips []preferences.SecondaryIP) error
}

// Fetcher assembles snapshots from the metadata service and, when available,
// the control-plane private IP listing
type Fetcher struct {
	imds   *Client
	lister PrivateIPLister
	store  SecondaryIPStore
}

// NewFetcher returns a Source. lister may be nil, in which case secondary IPs
// come from store only.
func NewFetcher(imds *Client, lister PrivateIPLister, store SecondaryIPStore) *Fetcher {
	return &Fetcher{imds: imds, lister: lister, store: store}
}

func (f *Fetcher) Fetch(ctx context.Context) (*Snapshot, error) {
	instance, err := f.imds.Instance(ctx)
	if err != nil {
		return nil, err
	}
	vnics, err := f.imds.VNICs(ctx)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Shape:      instance.Shape,
		VNICs:      vnics,
		PrivateIPs: make(map[string][]string, len(vnics)),
	}

	fromAPI := f.lister != nil
	if fromAPI {
		for _, v := range vnics {
			ips, err := f.lister.PrivateIPs(ctx, v.VNICID)
			if err != nil {
				klog.Warningf("Failed to list private IPs of VNIC %s, using recorded secondary IPs: %v", v.VNICID, err)
				fromAPI = false
				break
			}
			snap.PrivateIPs[v.VNICID] = ips
		}
	}

	if !fromAPI {
		clear(snap.PrivateIPs)
		if f.store != nil {
			for _, v := range vnics {
				snap.PrivateIPs[v.VNICID] = f.store.SecondaryIPsOf(v.VNICID)
			}
		}
		return snap, nil
	}

	if f.store != nil {
		if err := f.store.SetSecondaryIPs(secondaryIPsOf(snap)); err != nil {
			klog.Warningf("Failed to record secondary private IPs: %v", err)
		}
	}
	return snap, nil
}

func secondaryIPsOf(snap *Snapshot) []preferences.SecondaryIP {
	var sips []preferences.SecondaryIP
	for _, v := range snap.VNICs {
		for _, ip := range snap.PrivateIPs[v.VNICID] {
			if ip == v.PrivateIP {
				continue
			}
			sips = append(sips, preferences.SecondaryIP{IP: ip, VNICID: v.VNICID})
		}
	}
	return sips
}

// Validate checks the fields the correlator relies on
func (v *VNIC) Validate() error {
	if v.MACAddr == "" {
		return fmt.Errorf("VNIC %s has no MAC address", v.VNICID)
	}
	if _, _, found := strings.Cut(v.SubnetCIDRBlock, "/"); !found {
		return fmt.Errorf("VNIC %s has an invalid subnet %q", v.VNICID, v.SubnetCIDRBlock)
	}
	return nil
}
