package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/five82/vapor-console/internal/kubernetes"
	"github.com/five82/vapor-console/internal/network"
	"github.com/five82/vapor-console/internal/virtualization"
)

// View is a top-level screen.
type View int

const (
	ViewVMs View = iota
	ViewPools
	ViewISOs
	ViewNetworks
	ViewPods
	ViewInterfaces
)

var viewNames = []string{"vms", "pools", "isos", "networks", "pods", "interfaces"}

var viewTitles = []string{"Virtual Machines", "Storage Pools", "ISO Images", "Networks", "Pods", "Host Interfaces"}

// String returns the view's name as used on the command line.
func (v View) String() string {
	if int(v) < 0 || int(v) >= len(viewNames) {
		return "unknown"
	}
	return viewNames[v]
}

// Title is the heading shown above the table.
func (v View) Title() string {
	if int(v) < 0 || int(v) >= len(viewTitles) {
		return ""
	}
	return viewTitles[v]
}

// ParseView resolves a view by name.
func ParseView(name string) (View, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range viewNames {
		if n == name {
			return View(i), true
		}
	}
	return ViewVMs, false
}

type column struct {
	title string
	width int
}

// row is one table line. id addresses the entity in its collection.
type row struct {
	id        string
	namespace string
	name      string
	state     string
	cells     []string
}

type table struct {
	columns  []column
	rows     []row
	stateCol int // -1 when no column is badge-coloured
}

// tableFor builds the rows for v from the stores. query filters the views
// whose services have no search of their own.
func (m Model) tableFor(v View, query string) table {
	switch v {
	case ViewVMs:
		return vmTable(m.virt.FilteredVMs().Get())
	case ViewPools:
		return poolTable(filterByName(m.virt.Pools().SortedItems().Get(), query, func(p virtualization.StoragePool) string { return p.Name }))
	case ViewISOs:
		return isoTable(filterByName(m.virt.AvailableISOs().Get(), query, func(i virtualization.ISOImage) string { return i.Name }))
	case ViewNetworks:
		return networkTable(filterByName(m.virt.Networks().SortedItems().Get(), query, func(n virtualization.VirtualNetwork) string { return n.Name }))
	case ViewPods:
		if m.kube == nil {
			return podTable(nil, m.now())
		}
		view, ok := m.kube.View(kubernetes.Pods.Resource)
		if !ok {
			return podTable(nil, m.now())
		}
		return podTable(view.Filtered().Get(), m.now())
	case ViewInterfaces:
		if m.net == nil {
			return interfaceTable(nil)
		}
		return interfaceTable(m.net.FilteredInterfaces().Get())
	}
	return table{stateCol: -1}
}

func filterByName[T any](items []T, query string, name func(T) string) []T {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return items
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		if strings.Contains(strings.ToLower(name(item)), query) {
			out = append(out, item)
		}
	}
	return out
}

func vmTable(vms []virtualization.VirtualMachine) table {
	t := table{
		columns: []column{
			{"NAME", 24}, {"STATE", 11}, {"VCPUS", 6}, {"MEMORY", 11}, {"OS", 12}, {"ID", 36},
		},
		stateCol: 1,
	}
	for _, vm := range vms {
		t.rows = append(t.rows, row{
			id:    vm.ID,
			name:  vm.Name,
			state: string(vm.State),
			cells: []string{
				vm.Name,
				string(vm.State),
				strconv.Itoa(vm.VCPUs),
				formatMemory(vm.Memory),
				vm.OSType,
				vm.ID,
			},
		})
	}
	return t
}

func poolTable(pools []virtualization.StoragePool) table {
	t := table{
		columns: []column{
			{"NAME", 20}, {"TYPE", 8}, {"STATE", 10}, {"CAPACITY", 12}, {"AVAILABLE", 12}, {"USED", 6},
		},
		stateCol: 2,
	}
	for _, p := range pools {
		used := "-"
		if p.Capacity > 0 {
			used = fmt.Sprintf("%d%%", p.Allocation*100/p.Capacity)
		}
		t.rows = append(t.rows, row{
			id:    p.Name,
			name:  p.Name,
			state: p.State,
			cells: []string{p.Name, p.Type, p.State, formatBytes(p.Capacity), formatBytes(p.Available), used},
		})
	}
	return t
}

func isoTable(isos []virtualization.ISOImage) table {
	t := table{
		columns: []column{
			{"NAME", 30}, {"SIZE", 12}, {"OS", 12}, {"POOL", 14}, {"UPLOADED", 20},
		},
		stateCol: -1,
	}
	for _, iso := range isos {
		t.rows = append(t.rows, row{
			id:    iso.ID,
			name:  iso.Name,
			cells: []string{iso.Name, formatBytes(iso.Size), iso.OSType, iso.StoragePool, iso.UploadedAt},
		})
	}
	return t
}

func networkTable(networks []virtualization.VirtualNetwork) table {
	t := table{
		columns: []column{
			{"NAME", 20}, {"STATE", 10}, {"BRIDGE", 12}, {"ADDRESS", 18}, {"FORWARD", 10},
		},
		stateCol: 1,
	}
	for _, n := range networks {
		addr := n.IP
		if addr != "" && n.Netmask != "" {
			addr += "/" + n.Netmask
		}
		forward := ""
		if n.Forward != nil {
			forward = n.Forward.Mode
		}
		t.rows = append(t.rows, row{
			id:    n.Name,
			name:  n.Name,
			state: n.State,
			cells: []string{n.Name, n.State, n.Bridge, addr, forward},
		})
	}
	return t
}

func podTable(pods []kubernetes.Object, now time.Time) table {
	t := table{
		columns: []column{
			{"NAMESPACE", 16}, {"NAME", 36}, {"PHASE", 11}, {"AGE", 6},
		},
		stateCol: 2,
	}
	for _, pod := range pods {
		phase := kubernetes.Phase(pod)
		age := "-"
		if ts := pod.GetCreationTimestamp(); !ts.IsZero() {
			age = humanizeDuration(now.Sub(ts.Time))
		}
		t.rows = append(t.rows, row{
			id:        kubernetes.ObjectKey(pod),
			namespace: pod.GetNamespace(),
			name:      pod.GetName(),
			state:     phase,
			cells:     []string{pod.GetNamespace(), pod.GetName(), phase, age},
		})
	}
	return t
}

func interfaceTable(ifaces []network.Interface) table {
	t := table{
		columns: []column{
			{"NAME", 16}, {"TYPE", 10}, {"STATE", 9}, {"MTU", 6}, {"ADDRESSES", 34}, {"RX", 10}, {"TX", 10},
		},
		stateCol: 2,
	}
	for _, i := range ifaces {
		t.rows = append(t.rows, row{
			id:    i.Name,
			name:  i.Name,
			state: i.State,
			cells: []string{
				i.Name,
				i.Type,
				i.State,
				strconv.Itoa(i.MTU),
				strings.Join(i.Addresses, ","),
				formatBytes(i.Statistics.RxBytes),
				formatBytes(i.Statistics.TxBytes),
			},
		})
	}
	return t
}
