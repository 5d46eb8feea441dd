package util

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/afero"
	"gopkg.in/ini.v1"
	"k8s.io/klog/v2"
)

const (
	nmKeyfileSection    = "keyfile"
	nmUnmanagedKey      = "unmanaged-devices"
	nmDBusDest          = "org.freedesktop.NetworkManager"
	nmDBusPath          = "/org/freedesktop/NetworkManager"
	nmDBusReloadMethod  = "org.freedesktop.NetworkManager.Reload"
	nmMACSpecifierLabel = "mac:"
)

// NMReloader asks NetworkManager to reread its configuration
type NMReloader interface {
	Reload() error
}

type dbusNMReloader struct{}

// NewDBusNMReloader returns an NMReloader talking to NetworkManager over the
// system bus
func NewDBusNMReloader() NMReloader {
	return &dbusNMReloader{}
}

func (dbusNMReloader) Reload() error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}
	obj := conn.Object(nmDBusDest, dbus.ObjectPath(nmDBusPath))
	// 0 reloads everything
	if call := obj.Call(nmDBusReloadMethod, 0, uint32(0)); call.Err != nil {
		return fmt.Errorf("failed to reload NetworkManager: %w", call.Err)
	}
	return nil
}

// NMConfig maintains the unmanaged-devices list of NetworkManager.conf so
// that NetworkManager leaves the devices configured by the agent alone
type NMConfig struct {
	sync.Mutex
	path     string
	reloader NMReloader
}

func init() {
	// NetworkManager writes key=value
	ini.PrettyFormat = false
}

func NewNMConfig(path string, reloader NMReloader) *NMConfig {
	return &NMConfig{path: path, reloader: reloader}
}

// Unmanage adds mac to the unmanaged devices
func (n *NMConfig) Unmanage(mac string) error {
	return n.update(mac, true)
}

// Manage gives mac back to NetworkManager
func (n *NMConfig) Manage(mac string) error {
	return n.update(mac, false)
}

func (n *NMConfig) load() (*ini.File, error) {
	data, err := afero.ReadFile(AppFs, n.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", n.path, err)
	}
	// NetworkManager has no inline comments and separates list items with ';'
	cfg, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", n.path, err)
	}
	return cfg, nil
}

// unmanagedSpecs returns the device specifiers listed by the unmanaged-devices
// key of sec
func unmanagedSpecs(sec *ini.Section) []string {
	if !sec.HasKey(nmUnmanagedKey) {
		return nil
	}
	var specs []string
	for _, s := range strings.Split(sec.Key(nmUnmanagedKey).String(), ";") {
		if s = strings.TrimSpace(s); s != "" {
			specs = append(specs, s)
		}
	}
	return specs
}

func (n *NMConfig) update(mac string, unmanage bool) error {
	n.Lock()
	defer n.Unlock()
	cfg, err := n.load()
	if err != nil {
		return err
	}
	if cfg == nil {
		klog.V(5).Infof("No NetworkManager configuration at %s, nothing to do for %s", n.path, mac)
		return nil
	}
	entry := nmMACSpecifierLabel + strings.ToLower(mac)
	sec := cfg.Section(nmKeyfileSection)

	var updated []string
	present := false
	for _, s := range unmanagedSpecs(sec) {
		if strings.EqualFold(s, entry) {
			present = true
			if unmanage {
				updated = append(updated, s)
			}
			continue
		}
		updated = append(updated, s)
	}
	if present == unmanage {
		return nil
	}
	if unmanage {
		updated = append(updated, entry)
	}

	value := strings.Join(updated, ";")
	if len(updated) == 0 {
		sec.DeleteKey(nmUnmanagedKey)
	} else {
		sec.Key(nmUnmanagedKey).SetValue(value)
	}

	var buf bytes.Buffer
	if _, err := cfg.WriteTo(&buf); err != nil {
		return fmt.Errorf("failed to render %s: %w", n.path, err)
	}
	if err := afero.WriteFile(AppFs, n.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", n.path, err)
	}
	klog.V(4).Infof("Updated NetworkManager unmanaged devices: %q", value)

	if n.reloader != nil {
		if err := n.reloader.Reload(); err != nil {
			klog.Warningf("NetworkManager configuration updated but not reloaded: %v", err)
		}
	}
	return nil
}
