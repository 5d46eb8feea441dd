package preferences

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/spf13/afero"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"
	"k8s.io/utils/ptr"

	"github.com/oci-utils/vnic-agent/pkg/util"
)

// SecondaryIP is a secondary private IP known to belong to a VNIC
type SecondaryIP struct {
	IP     string
	VNICID string
}

// MarshalJSON encodes the pair as [ip, vnicId]
func (s SecondaryIP) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{s.IP, s.VNICID})
}

func (s *SecondaryIP) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("invalid secondary IP entry %s: %w", string(data), err)
	}
	s.IP, s.VNICID = pair[0], pair[1]
	return nil
}

// state is the persisted layout
type state struct {
	Exclude      []string      `json:"exclude"`
	NS           *string       `json:"ns,omitempty"`
	SSHD         bool          `json:"sshd,omitempty"`
	SecondaryIPs []SecondaryIP `json:"sec_priv_ip"`
}

// Store holds the persistent preferences: exclusion list, target namespace,
// sshd flag and the secondary private IP bookkeeping. Mutations are flushed
// to disk immediately.
type Store struct {
	sync.RWMutex
	path  string
	state state
}

// Load reads the preferences at path. When the file does not exist, an
// exclusion list found at legacyPath is migrated into a new file and the
// legacy file removed.
func Load(path, legacyPath string) (*Store, error) {
	s := &Store{path: path}
	data, err := afero.ReadFile(util.AppFs, path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &s.state); err != nil {
			return nil, fmt.Errorf("failed to parse preferences %s: %w", path, err)
		}
		return s, nil
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read preferences %s: %w", path, err)
	}

	if legacyPath == "" {
		return s, nil
	}
	data, err = afero.ReadFile(util.AppFs, legacyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read legacy exclusion list %s: %w", legacyPath, err)
	}
	var excludes []string
	if err := json.Unmarshal(data, &excludes); err != nil {
		return nil, fmt.Errorf("failed to parse legacy exclusion list %s: %w", legacyPath, err)
	}
	s.state.Exclude = excludes
	if err := s.save(); err != nil {
		return nil, err
	}
	if err := util.AppFs.Remove(legacyPath); err != nil {
		klog.Warningf("Migrated %s but failed to remove it: %v", legacyPath, err)
	}
	klog.Infof("Migrated exclusion list from %s to %s", legacyPath, path)
	return s, nil
}

// save must be called with the store locked
func (s *Store) save() error {
	if s.state.Exclude == nil {
		s.state.Exclude = []string{}
	}
	if s.state.SecondaryIPs == nil {
		s.state.SecondaryIPs = []SecondaryIP{}
	}
	data, err := json.MarshalIndent(&s.state, "", "  ")
	if err != nil {
		return err
	}
	if err := util.AppFs.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(s.path), err)
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(util.AppFs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write preferences %s: %w", tmp, err)
	}
	if err := util.AppFs.Rename(tmp, s.path); err != nil {
		return errors.Join(fmt.Errorf("failed to save preferences %s: %w", s.path, err), util.AppFs.Remove(tmp))
	}
	klog.V(5).Infof("Saved preferences to %s", s.path)
	return nil
}

// Path returns the file backing the store
func (s *Store) Path() string {
	return s.path
}

// Excluded returns a copy of the exclusion set
func (s *Store) Excluded() sets.Set[string] {
	s.RLock()
	defer s.RUnlock()
	return sets.New(s.state.Exclude...)
}

// IsExcluded returns true if any of the non empty items is excluded
func (s *Store) IsExcluded(items ...string) bool {
	s.RLock()
	defer s.RUnlock()
	for _, item := range items {
		if item != "" && slices.Contains(s.state.Exclude, item) {
			return true
		}
	}
	return false
}

// Exclude adds item to the exclusion list and persists it
func (s *Store) Exclude(item string) error {
	s.Lock()
	defer s.Unlock()
	if slices.Contains(s.state.Exclude, item) {
		return nil
	}
	klog.V(4).Infof("Adding %s to the exclusion list", item)
	s.state.Exclude = append(s.state.Exclude, item)
	return s.save()
}

// Include removes item from the exclusion list and persists it
func (s *Store) Include(item string) error {
	s.Lock()
	defer s.Unlock()
	return s.include(item, true)
}

func (s *Store) include(item string, save bool) error {
	i := slices.Index(s.state.Exclude, item)
	if i < 0 {
		return nil
	}
	klog.V(4).Infof("Removing %s from the exclusion list", item)
	s.state.Exclude = slices.Delete(s.state.Exclude, i, i+1)
	if !save {
		return nil
	}
	return s.save()
}

// Namespace returns the target namespace preference. The empty string means
// a name is derived per interface; ok is false when no namespace is wanted.
func (s *Store) Namespace() (name string, ok bool) {
	s.RLock()
	defer s.RUnlock()
	if s.state.NS == nil {
		return "", false
	}
	return *s.state.NS, true
}

// SetNamespace sets the target namespace preference and persists it
func (s *Store) SetNamespace(name string) error {
	s.Lock()
	defer s.Unlock()
	s.state.NS = ptr.To(name)
	return s.save()
}

// ClearNamespace drops the namespace preference and persists it
func (s *Store) ClearNamespace() error {
	s.Lock()
	defer s.Unlock()
	s.state.NS = nil
	return s.save()
}

// StartSSHD tells whether sshd is started inside namespaces
func (s *Store) StartSSHD() bool {
	s.RLock()
	defer s.RUnlock()
	return s.state.SSHD
}

func (s *Store) SetSSHD(start bool) error {
	s.Lock()
	defer s.Unlock()
	s.state.SSHD = start
	return s.save()
}

// SecondaryIPs returns a copy of the recorded secondary IPs
func (s *Store) SecondaryIPs() []SecondaryIP {
	s.RLock()
	defer s.RUnlock()
	return slices.Clone(s.state.SecondaryIPs)
}

// SecondaryIPsOf returns the recorded secondary IPs of one VNIC
func (s *Store) SecondaryIPsOf(vnicID string) []string {
	s.RLock()
	defer s.RUnlock()
	var ips []string
	for _, sip := range s.state.SecondaryIPs {
		if sip.VNICID == vnicID {
			ips = append(ips, sip.IP)
		}
	}
	return ips
}

// AddSecondaryIP records ip as a secondary IP of vnicID
func (s *Store) AddSecondaryIP(ip, vnicID string) error {
	s.Lock()
	defer s.Unlock()
	entry := SecondaryIP{IP: ip, VNICID: vnicID}
	if slices.Contains(s.state.SecondaryIPs, entry) {
		return nil
	}
	s.state.SecondaryIPs = append(s.state.SecondaryIPs, entry)
	return s.save()
}

// RemoveSecondaryIP forgets ip and puts it back in automatic configuration
func (s *Store) RemoveSecondaryIP(ip, vnicID string) error {
	s.Lock()
	defer s.Unlock()
	s.state.SecondaryIPs = slices.DeleteFunc(s.state.SecondaryIPs, func(e SecondaryIP) bool {
		return e.IP == ip && e.VNICID == vnicID
	})
	if err := s.include(ip, false); err != nil {
		return err
	}
	return s.save()
}

// SetSecondaryIPs replaces the recorded secondary IPs, typically with the
// control-plane view
func (s *Store) SetSecondaryIPs(ips []SecondaryIP) error {
	s.Lock()
	defer s.Unlock()
	if slices.Equal(s.state.SecondaryIPs, ips) {
		return nil
	}
	s.state.SecondaryIPs = slices.Clone(ips)
	return s.save()
}

// DeleteAllSecondaryIPs forgets every secondary IP of vnicID and includes
// them back
func (s *Store) DeleteAllSecondaryIPs(vnicID string) error {
	s.Lock()
	defer s.Unlock()
	var kept []SecondaryIP
	for _, e := range s.state.SecondaryIPs {
		if e.VNICID != vnicID {
			kept = append(kept, e)
			continue
		}
		if err := s.include(e.IP, false); err != nil {
			return err
		}
	}
	s.state.SecondaryIPs = kept
	return s.save()
}

// Reload rereads the file backing the store, picking up changes made by
// another process. A missing file resets the preferences.
func (s *Store) Reload() error {
	s.Lock()
	defer s.Unlock()
	data, err := afero.ReadFile(util.AppFs, s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.state = state{}
			return nil
		}
		return fmt.Errorf("failed to read preferences %s: %w", s.path, err)
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("failed to parse preferences %s: %w", s.path, err)
	}
	s.state = st
	klog.V(5).Infof("Reloaded preferences from %s", s.path)
	return nil
}
