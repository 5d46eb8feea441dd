package util

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"
)

// AppFs is the filesystem every file based helper works on. Tests swap it
// for an in-memory one.
var AppFs = afero.NewOsFs()

// RouteTables is the iproute2 rt_tables registry mapping routing table names
// to numeric ids
type RouteTables struct {
	sync.Mutex
	path     string
	min, max int
}

// NewRouteTables returns a registry backed by path handing out ids in [min, max]
func NewRouteTables(path string, min, max int) *RouteTables {
	return &RouteTables{path: path, min: min, max: max}
}

type rtEntry struct {
	id   int
	name string
}

// read returns the raw lines of the registry and the entries parsed from them
func (t *RouteTables) read() ([]string, []rtEntry, error) {
	data, err := afero.ReadFile(AppFs, t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to read %s: %w", t.path, err)
	}
	var lines []string
	var entries []rtEntry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		lines = append(lines, line)
		if e, ok := parseRTLine(line); ok {
			entries = append(entries, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", t.path, err)
	}
	return lines, entries, nil
}

func parseRTLine(line string) (rtEntry, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return rtEntry{}, false
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return rtEntry{}, false
	}
	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return rtEntry{}, false
	}
	return rtEntry{id: id, name: fields[1]}, true
}

func (t *RouteTables) write(lines []string) error {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	if err := afero.WriteFile(AppFs, t.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", t.path, err)
	}
	return nil
}

// Lookup returns the id registered for name
func (t *RouteTables) Lookup(name string) (int, bool, error) {
	t.Lock()
	defer t.Unlock()
	_, entries, err := t.read()
	if err != nil {
		return 0, false, err
	}
	for _, e := range entries {
		if e.name == name {
			return e.id, true, nil
		}
	}
	return 0, false, nil
}

// Ensure registers name unless it already is and returns its id. New names
// get the lowest id of the range no entry uses.
func (t *RouteTables) Ensure(name string) (int, error) {
	t.Lock()
	defer t.Unlock()
	lines, entries, err := t.read()
	if err != nil {
		return 0, err
	}
	used := sets.New[int]()
	for _, e := range entries {
		if e.name == name {
			return e.id, nil
		}
		used.Insert(e.id)
	}
	for id := t.min; id <= t.max; id++ {
		if used.Has(id) {
			continue
		}
		lines = append(lines, fmt.Sprintf("%d\t%s", id, name))
		if err := t.write(lines); err != nil {
			return 0, err
		}
		klog.V(4).Infof("Registered routing table %s with id %d", name, id)
		return id, nil
	}
	return 0, fmt.Errorf("no free routing table id left in range %d-%d for %s", t.min, t.max, name)
}

// Remove unregisters name. Unknown names are ignored.
func (t *RouteTables) Remove(name string) error {
	return t.removeIf(func(e rtEntry) bool { return e.name == name })
}

// RemoveID unregisters whatever name is registered with id, provided it is
// in the managed range
func (t *RouteTables) RemoveID(id int) error {
	if id < t.min || id > t.max {
		return nil
	}
	return t.removeIf(func(e rtEntry) bool { return e.id == id })
}

func (t *RouteTables) removeIf(match func(rtEntry) bool) error {
	t.Lock()
	defer t.Unlock()
	lines, _, err := t.read()
	if err != nil {
		return err
	}
	kept := make([]string, 0, len(lines))
	removed := 0
	for _, l := range lines {
		if e, ok := parseRTLine(l); ok && match(e) {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	if removed == 0 {
		return nil
	}
	return t.write(kept)
}

// NameOf returns the name registered with id
func (t *RouteTables) NameOf(id int) (string, bool, error) {
	t.Lock()
	defer t.Unlock()
	_, entries, err := t.read()
	if err != nil {
		return "", false, err
	}
	for _, e := range entries {
		if e.id == id {
			return e.name, true, nil
		}
	}
	return "", false, nil
}
