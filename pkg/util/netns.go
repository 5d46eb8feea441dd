package util

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
	kexec "k8s.io/utils/exec"
)

// NamespaceOps manages named network namespaces and the processes they host
type NamespaceOps interface {
	Exists(name string) bool
	Add(name string) error
	Delete(name string) error
	KillProcesses(name string) error
	StartSSHD(name string) error
}

type namespaceOps struct {
	exec     kexec.Interface
	ipPath   string
	sshdPath string
}

// NewNamespaceOps returns NamespaceOps running helper binaries through exec
func NewNamespaceOps(exec kexec.Interface, ipPath, sshdPath string) NamespaceOps {
	return &namespaceOps{exec: exec, ipPath: ipPath, sshdPath: sshdPath}
}

func (n *namespaceOps) Exists(name string) bool {
	h, err := netns.GetFromName(name)
	if err != nil {
		return false
	}
	h.Close()
	return true
}

// Add creates the named namespace unless it already exists
func (n *namespaceOps) Add(name string) error {
	if n.Exists(name) {
		return nil
	}
	// creating a namespace switches the calling thread into it
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	origin, err := netns.Get()
	if err != nil {
		return fmt.Errorf("failed to get current namespace: %w", err)
	}
	defer origin.Close()
	created, err := netns.NewNamed(name)
	if err != nil {
		if errors.Is(err, unix.EEXIST) {
			return netns.Set(origin)
		}
		return fmt.Errorf("failed to create namespace %s: %w", name, err)
	}
	created.Close()
	if err := netns.Set(origin); err != nil {
		return fmt.Errorf("failed to return to original namespace after creating %s: %w", name, err)
	}
	klog.V(4).Infof("Created network namespace %s", name)
	return nil
}

// Delete removes the named namespace, a missing namespace is not an error
func (n *namespaceOps) Delete(name string) error {
	if err := netns.DeleteNamed(name); err != nil && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("failed to delete namespace %s: %w", name, err)
	}
	klog.V(4).Infof("Deleted network namespace %s", name)
	return nil
}

// KillProcesses sends SIGKILL to every process attached to the namespace
func (n *namespaceOps) KillProcesses(name string) error {
	out, err := n.exec.Command(n.ipPath, "netns", "pids", name).CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to list processes of namespace %s: %v\n  %q", name, err, string(out))
	}
	var errs []error
	for _, field := range strings.Fields(string(out)) {
		pid, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			errs = append(errs, fmt.Errorf("failed to kill pid %d: %w", pid, err))
			continue
		}
		klog.V(4).Infof("Killed pid %d of namespace %s", pid, name)
	}
	return errors.Join(errs...)
}

// StartSSHD starts an sshd daemon inside the namespace
func (n *namespaceOps) StartSSHD(name string) error {
	out, err := n.exec.Command(n.ipPath, "netns", "exec", name, n.sshdPath).CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to start sshd in namespace %s: %v\n  %q", name, err, string(out))
	}
	klog.Infof("Started sshd in namespace %s", name)
	return nil
}
