package virtualization

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/five82/vapor-console/internal/api"
	"github.com/five82/vapor-console/internal/state"
	"github.com/five82/vapor-console/internal/store"
	"github.com/five82/vapor-console/internal/uistate"
	"github.com/five82/vapor-console/internal/upload"
)

// Persist keys for the cached collections.
const (
	PersistVMs       = "vapor.virtualization.vms"
	PersistISOs      = "vapor.virtualization.isos"
	PersistTemplates = "vapor.virtualization.templates"
)

// Domain validation codes.
const (
	CodeInvalidVM     = "INVALID_VM"
	CodeInvalidMemory = "INVALID_MEMORY"
	CodeInvalidVCPUs  = "INVALID_VCPUS"
)

// MinMemoryMB is the smallest VM the backend accepts.
const MinMemoryMB = 512

// minPoolFree is the free space a pool needs to be offered for new disks.
const minPoolFree = 1 << 30

// Tab selects the VM list subset.
type Tab string

const (
	TabAll       Tab = "all"
	TabRunning   Tab = "running"
	TabStopped   Tab = "stopped"
	TabTemplates Tab = "templates"
)

// FilterState narrows the VM list beyond the active tab.
type FilterState struct {
	States  []VMState
	OSTypes []string
}

// ResourceStats aggregates the VM collection.
type ResourceStats struct {
	TotalVMs      int
	RunningVMs    int
	StoppedVMs    int
	PausedVMs     int
	TotalMemory   int
	TotalVCPUs    int
	TotalDiskSize int
}

// Options configure a Service. A nil Client keeps every collection local.
type Options struct {
	Client   *api.Client
	Storage  store.Storage
	UI       *uistate.Service
	Uploader upload.Uploader
}

// Service owns the virtualization stores: the entity collections, the view
// state of the VM screens and the values derived from both.
type Service struct {
	client    *api.Client
	transport api.Transport
	ui        *uistate.Service
	uploader  upload.Uploader

	vms       *store.Collection[VirtualMachine]
	pools     *store.Collection[StoragePool]
	isos      *store.Collection[ISOImage]
	templates *store.Collection[VMTemplate]
	networks  *store.Collection[VirtualNetwork]
	backups   *store.Collection[VMBackup]

	selectedVMID *state.Atom[string]
	wizard       *state.Atom[WizardState]
	uploadState  *state.Atom[UploadState]
	consoles     *state.Atom[map[string]ConsoleConnection]
	activeTab    *state.Atom[Tab]
	search       *state.Atom[string]
	filter       *state.Atom[FilterState]
	actions      *state.Atom[map[string]ActionStatus]
	live         *state.Atom[bool]

	selectedVM     *state.Computed[*VirtualMachine]
	vmsByState     *state.Computed[map[VMState][]VirtualMachine]
	filteredVMs    *state.Computed[[]VirtualMachine]
	resourceStats  *state.Computed[ResourceStats]
	availablePools *state.Computed[[]StoragePool]
	availableISOs  *state.Computed[[]ISOImage]
	backupsByVM    *state.Computed[map[string][]VMBackup]

	uploadMu sync.Mutex
	pending  *pendingUpload
}

// New builds the service and its collections. Persistent collections restore
// their cached items from opts.Storage.
func New(opts Options) *Service {
	s := &Service{
		client:   opts.Client,
		ui:       opts.UI,
		uploader: opts.Uploader,
	}
	if opts.Client != nil {
		s.transport = opts.Client
		if s.uploader == nil {
			s.uploader = upload.NewTus(opts.Client, 0)
		}
	}

	s.vms = store.New(store.Options[VirtualMachine]{
		Name:       "virtualization-vms",
		Endpoint:   api.VirtualizationPath("virtualmachines"),
		ListKeys:   []string{"vms", "virtual_machines"},
		Transport:  s.transport,
		Transform:  transformVM,
		Validate:   validateVM,
		Comparator: func(a, b VirtualMachine) int { return strings.Compare(a.Name, b.Name) },
		Persistent: true,
		PersistKey: PersistVMs,
		Storage:    opts.Storage,
	})
	s.pools = store.New(store.Options[StoragePool]{
		Name:      "virtualization-storage-pools",
		IDField:   "name",
		Endpoint:  api.VirtualizationPath("storages", "pools"),
		ListKeys:  []string{"pools", "storage_pools"},
		Transport: s.transport,
	})
	s.isos = store.New(store.Options[ISOImage]{
		Name:       "virtualization-isos",
		Endpoint:   api.VirtualizationPath("storages", "isos"),
		ListKeys:   []string{"isos", "images"},
		Transport:  s.transport,
		Persistent: true,
		PersistKey: PersistISOs,
		Storage:    opts.Storage,
	})
	s.templates = store.New(store.Options[VMTemplate]{
		Name:       "virtualization-templates",
		Endpoint:   api.VirtualizationPath("virtualmachines", "templates"),
		ListKeys:   []string{"templates"},
		Transport:  s.transport,
		Persistent: true,
		PersistKey: PersistTemplates,
		Storage:    opts.Storage,
	})
	s.networks = store.New(store.Options[VirtualNetwork]{
		Name:      "virtualization-networks",
		IDField:   "name",
		Endpoint:  api.VirtualizationPath("networks"),
		ListKeys:  []string{"networks"},
		Transport: s.transport,
	})
	s.backups = store.New(store.Options[VMBackup]{
		Name:    "virtualization-backups",
		KeyFunc: backupKey,
	})

	s.selectedVMID = state.NewAtom("")
	s.wizard = state.NewAtom(closedWizard())
	s.uploadState = state.NewAtom(UploadState{})
	s.consoles = state.NewAtom(map[string]ConsoleConnection{})
	s.activeTab = state.NewAtom(TabAll)
	s.search = state.NewAtom("")
	s.filter = state.NewAtom(FilterState{})
	s.actions = state.NewAtom(map[string]ActionStatus{})
	s.live = state.NewAtom(false)

	s.selectedVM = state.Derive2(s.selectedVMID, s.vms.Items(), selectVM)
	s.vmsByState = state.Derive(s.vms.Items(), groupByState)
	s.filteredVMs = state.Derive4(s.vms.Items(), s.search, s.filter, s.activeTab, filterVMs)
	s.resourceStats = state.Derive(s.vms.Items(), func(e store.Entries[VirtualMachine]) ResourceStats {
		return computeStats(e.Values())
	})
	s.availablePools = state.Derive(s.pools.Items(), availablePools)
	s.availableISOs = state.Derive(s.isos.Items(), sortedISOs)
	s.backupsByVM = state.Derive(s.backups.Items(), groupBackups)
	return s
}

// VMs is the virtual machine collection.
func (s *Service) VMs() *store.Collection[VirtualMachine] { return s.vms }

// Pools is the storage pool collection, keyed by name.
func (s *Service) Pools() *store.Collection[StoragePool] { return s.pools }

// ISOs is the ISO image collection.
func (s *Service) ISOs() *store.Collection[ISOImage] { return s.isos }

// Templates is the VM template collection.
func (s *Service) Templates() *store.Collection[VMTemplate] { return s.templates }

// Networks is the virtual network collection, keyed by name.
func (s *Service) Networks() *store.Collection[VirtualNetwork] { return s.networks }

// SelectedVMID is the id of the selected VM, empty when none is.
func (s *Service) SelectedVMID() state.Readable[string] { return s.selectedVMID }

// SelectedVM follows the selected id through the VM collection; nil when absent.
func (s *Service) SelectedVM() state.Readable[*VirtualMachine] { return s.selectedVM }

// VMsByState buckets VMs by lifecycle state.
func (s *Service) VMsByState() state.Readable[map[VMState][]VirtualMachine] { return s.vmsByState }

// FilteredVMs applies the active tab, search query and filter.
func (s *Service) FilteredVMs() state.Readable[[]VirtualMachine] { return s.filteredVMs }

// ResourceStats sums counts and resources over all VMs.
func (s *Service) ResourceStats() state.Readable[ResourceStats] { return s.resourceStats }

// AvailableStoragePools lists active pools with more than 1 GiB free.
func (s *Service) AvailableStoragePools() state.Readable[[]StoragePool] { return s.availablePools }

// AvailableISOs lists ISO images sorted by name.
func (s *Service) AvailableISOs() state.Readable[[]ISOImage] { return s.availableISOs }

// ActiveTab is the VM list tab.
func (s *Service) ActiveTab() state.Readable[Tab] { return s.activeTab }

// SearchQuery is the VM list search text.
func (s *Service) SearchQuery() state.Readable[string] { return s.search }

// Filter is the state and OS type filter of the VM list.
func (s *Service) Filter() state.Readable[FilterState] { return s.filter }

// LiveUpdates reports whether the state-change feed is connected.
func (s *Service) LiveUpdates() state.Readable[bool] { return s.live }

// SelectVM marks id as the selected VM. An empty id clears the selection.
func (s *Service) SelectVM(id string) { s.selectedVMID.Set(id) }

// SetActiveTab switches the VM list tab.
func (s *Service) SetActiveTab(t Tab) { s.activeTab.Set(t) }

// SetSearchQuery matches VMs by name, OS type or state, ignoring case.
func (s *Service) SetSearchQuery(q string) { s.search.Set(q) }

// SetFilter replaces the state and OS type filter.
func (s *Service) SetFilter(f FilterState) { s.filter.Set(f) }

// Initialize fetches every collection in parallel. Each failure is logged and
// recorded in its collection; the combined error is returned.
func (s *Service) Initialize(ctx context.Context) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs error
	)
	fetches := map[string]func(context.Context) error{
		"vms":       s.vms.Refresh,
		"pools":     s.pools.Refresh,
		"isos":      s.isos.Refresh,
		"templates": s.templates.Refresh,
		"networks":  s.networks.Refresh,
	}
	for name, fetch := range fetches {
		g.Go(func() error {
			if err := fetch(ctx); err != nil {
				klog.ErrorS(err, "Initial fetch failed", "collection", name)
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// Refresh re-fetches the collections the console polls. Backups are fetched
// on demand only.
func (s *Service) Refresh(ctx context.Context) error {
	return s.Initialize(ctx)
}

// Cleanup clears every collection and resets the view state.
func (s *Service) Cleanup() {
	s.CancelUpload()
	s.vms.Clear()
	s.pools.Clear()
	s.isos.Clear()
	s.templates.Clear()
	s.networks.Clear()
	s.backups.Clear()

	s.selectedVMID.Set("")
	s.wizard.Set(closedWizard())
	s.uploadState.Set(UploadState{})
	s.consoles.Set(map[string]ConsoleConnection{})
	s.activeTab.Set(TabAll)
	s.search.Set("")
	s.filter.Set(FilterState{})
	s.actions.Set(map[string]ActionStatus{})
}

// Close releases derived values and collection subscriptions.
func (s *Service) Close() {
	s.backupsByVM.Close()
	s.availableISOs.Close()
	s.availablePools.Close()
	s.resourceStats.Close()
	s.filteredVMs.Close()
	s.vmsByState.Close()
	s.selectedVM.Close()
	for _, c := range []interface{ Destroy() }{s.vms, s.pools, s.isos, s.templates, s.networks, s.backups} {
		c.Destroy()
	}
}

// call sends a request and decodes the unwrapped payload into dest.
func (s *Service) call(ctx context.Context, method, path string, body, dest any) error {
	if s.transport == nil {
		return fmt.Errorf("no backend configured")
	}
	raw, err := s.transport.Send(ctx, method, path, body)
	if err != nil {
		return err
	}
	if dest == nil || raw == nil {
		return nil
	}
	payload, err := api.Unwrap(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeInto(raw json.RawMessage, dest any) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty payload")
	}
	return json.Unmarshal(raw, dest)
}

func validateVM(vm VirtualMachine) *store.StoreError {
	switch {
	case strings.TrimSpace(vm.Name) == "":
		return store.NewError(CodeInvalidVM, "VM name is required")
	case vm.Memory < MinMemoryMB:
		return store.NewError(CodeInvalidMemory, "Memory must be at least 512MB")
	case vm.VCPUs < 1:
		return store.NewError(CodeInvalidVCPUs, "At least 1 vCPU required")
	}
	return nil
}

func selectVM(id string, vms store.Entries[VirtualMachine]) *VirtualMachine {
	if id == "" {
		return nil
	}
	vm, ok := vms.Get(id)
	if !ok {
		return nil
	}
	return &vm
}

var stateBuckets = []VMState{StateRunning, StateStopped, StatePaused, StateSuspended, StateUnknown}

func groupByState(vms store.Entries[VirtualMachine]) map[VMState][]VirtualMachine {
	out := make(map[VMState][]VirtualMachine, len(stateBuckets))
	for _, b := range stateBuckets {
		out[b] = []VirtualMachine{}
	}
	for _, vm := range vms.Values() {
		bucket := vm.State
		if _, ok := out[bucket]; !ok {
			bucket = StateUnknown
		}
		out[bucket] = append(out[bucket], vm)
	}
	return out
}

func filterVMs(vms store.Entries[VirtualMachine], query string, f FilterState, tab Tab) []VirtualMachine {
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]VirtualMachine, 0, vms.Len())
	for _, vm := range vms.Values() {
		if tab != TabAll && tab != TabTemplates && vm.State != VMState(tab) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(vm.Name), query) &&
			!strings.Contains(strings.ToLower(vm.OSType), query) &&
			!strings.Contains(strings.ToLower(string(vm.State)), query) {
			continue
		}
		if len(f.States) > 0 && !contains(f.States, vm.State) {
			continue
		}
		if len(f.OSTypes) > 0 && !contains(f.OSTypes, vm.OSType) {
			continue
		}
		out = append(out, vm)
	}
	return out
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func computeStats(vms []VirtualMachine) ResourceStats {
	stats := ResourceStats{TotalVMs: len(vms)}
	for _, vm := range vms {
		switch vm.State {
		case StateRunning:
			stats.RunningVMs++
		case StateStopped:
			stats.StoppedVMs++
		case StatePaused:
			stats.PausedVMs++
		}
		stats.TotalMemory += vm.Memory
		stats.TotalVCPUs += vm.VCPUs
		stats.TotalDiskSize += vm.DiskSize
	}
	return stats
}

func availablePools(pools store.Entries[StoragePool]) []StoragePool {
	out := []StoragePool{}
	for _, p := range pools.Values() {
		if p.State == "active" && p.Available > minPoolFree {
			out = append(out, p)
		}
	}
	return out
}

func sortedISOs(isos store.Entries[ISOImage]) []ISOImage {
	out := isos.Values()
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}
