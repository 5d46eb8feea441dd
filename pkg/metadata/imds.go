package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"k8s.io/klog/v2"

	"github.com/oci-utils/vnic-agent/pkg/types"
)

// ErrUnavailable is returned when the instance metadata service could not be
// reached after all retries
var ErrUnavailable = errors.New("instance metadata unavailable")

// VNIC is one entry of the metadata vnics document
type VNIC struct {
	VNICID          string `json:"vnicId"`
	PrivateIP       string `json:"privateIp"`
	VLANTag         int    `json:"vlanTag"`
	MACAddr         string `json:"macAddr"`
	VirtualRouterIP string `json:"virtualRouterIp"`
	SubnetCIDRBlock string `json:"subnetCidrBlock"`
	// only reported on bare metal shapes
	NICIndex *int `json:"nicIndex,omitempty"`
}

// Instance holds the fields of the metadata instance document the agent uses
type Instance struct {
	ID            string `json:"id"`
	Shape         string `json:"shape"`
	Region        string `json:"region"`
	CompartmentID string `json:"compartmentId"`
}

// Client reads the instance metadata service v2
type Client struct {
	endpoint        string
	httpClient      *http.Client
	retries         int
	initialInterval time.Duration
}

// NewClient returns a metadata client for endpoint, e.g.
// http://169.254.169.254/opc/v2
func NewClient(endpoint string, timeout time.Duration, retries int) *Client {
	return &Client{
		endpoint:        strings.TrimSuffix(endpoint, "/"),
		httpClient:      &http.Client{Timeout: timeout},
		retries:         retries,
		initialInterval: 500 * time.Millisecond,
	}
}

// Instance returns the instance document
func (c *Client) Instance(ctx context.Context) (*Instance, error) {
	instance := &Instance{}
	if err := c.get(ctx, "/instance/", instance); err != nil {
		return nil, err
	}
	return instance, nil
}

// VNICs returns the attached VNICs, primary first
func (c *Client) VNICs(ctx context.Context) ([]VNIC, error) {
	var vnics []VNIC
	if err := c.get(ctx, "/vnics/", &vnics); err != nil {
		return nil, err
	}
	return vnics, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	url := c.endpoint + path
	attempt := 0
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", types.MetadataAuthHeader)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			klog.V(4).Infof("Metadata request %s failed (attempt %d): %v", url, attempt, err)
			return err
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			klog.V(4).Infof("Metadata request %s returned %s (attempt %d)", url, resp.Status, attempt)
			return fmt.Errorf("unexpected status %s", resp.Status)
		default:
			return backoff.Permanent(fmt.Errorf("unexpected status %s", resp.Status))
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode %s: %w", url, err))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	retries := c.retries
	if retries < 0 {
		retries = 0
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)); err != nil {
		return fmt.Errorf("%w: GET %s: %v", ErrUnavailable, url, err)
	}
	return nil
}
