package metadata

import (
	"context"
	"fmt"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/common/auth"
	"github.com/oracle/oci-go-sdk/v65/core"
	"k8s.io/klog/v2"
)

type privateIPClient interface {
	ListPrivateIps(ctx context.Context, request core.ListPrivateIpsRequest) (core.ListPrivateIpsResponse, error)
}

// APIPrivateIPLister lists VNIC private IPs through the control-plane API,
// authenticated as the instance principal
type APIPrivateIPLister struct {
	client privateIPClient
}

// NewAPIPrivateIPLister fails when the instance principal can't be obtained,
// typically when the instance isn't allowed to call the API
func NewAPIPrivateIPLister() (*APIPrivateIPLister, error) {
	provider, err := auth.InstancePrincipalConfigurationProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get instance principal: %w", err)
	}
	client, err := core.NewVirtualNetworkClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create virtual network client: %w", err)
	}
	return &APIPrivateIPLister{client: client}, nil
}

func (l *APIPrivateIPLister) PrivateIPs(ctx context.Context, vnicID string) ([]string, error) {
	var ips []string
	req := core.ListPrivateIpsRequest{VnicId: common.String(vnicID)}
	for {
		resp, err := l.client.ListPrivateIps(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to list private IPs of %s: %w", vnicID, err)
		}
		for _, p := range resp.Items {
			if p.IpAddress != nil {
				ips = append(ips, *p.IpAddress)
			}
		}
		if resp.OpcNextPage == nil {
			break
		}
		req.Page = resp.OpcNextPage
	}
	klog.V(5).Infof("VNIC %s private IPs: %v", vnicID, ips)
	return ips, nil
}
