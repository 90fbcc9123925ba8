package virtualization

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/five82/vapor-console/internal/prefs"
	"github.com/five82/vapor-console/internal/store"
)

func TestResourceStats(t *testing.T) {
	svc := New(Options{})
	defer svc.Close()

	svc.VMs().Replace([]VirtualMachine{
		{ID: "a", Name: "a", State: StateRunning, Memory: 2048, VCPUs: 2},
		{ID: "b", Name: "b", State: StateStopped, Memory: 1024, VCPUs: 1},
	})
	got := svc.ResourceStats().Get()
	want := ResourceStats{TotalVMs: 2, RunningVMs: 1, StoppedVMs: 1, TotalMemory: 3072, TotalVCPUs: 3}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ResourceStats mismatch (-want +got):\n%s", diff)
	}
}

func TestTransformVM(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want VirtualMachine
	}{
		{
			name: "numeric strings and upper case state",
			raw:  `{"id":"1","name":"a","state":"RUNNING","memory":"2048","vcpus":"2","disk_size":"20.0"}`,
			want: VirtualMachine{ID: "1", Name: "a", State: StateRunning, Memory: 2048, VCPUs: 2, DiskSize: 20},
		},
		{
			name: "missing state",
			raw:  `{"id":"2","name":"b","memory":1024,"vcpus":1}`,
			want: VirtualMachine{ID: "2", Name: "b", State: StateUnknown, Memory: 1024, VCPUs: 1},
		},
		{
			name: "garbage numbers become zero",
			raw:  `{"id":"3","name":"c","state":"Paused","memory":"lots","vcpus":null}`,
			want: VirtualMachine{ID: "3", Name: "c", State: StatePaused},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := transformVM(json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("transformVM: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("transformVM mismatch (-want +got):\n%s", diff)
			}
		})
	}
	if _, err := transformVM(json.RawMessage(`[1,2]`)); err == nil {
		t.Fatalf("expected error for non-object")
	}
}

func TestValidateVM(t *testing.T) {
	tests := []struct {
		vm   VirtualMachine
		code string
	}{
		{VirtualMachine{Memory: 1024, VCPUs: 1}, CodeInvalidVM},
		{VirtualMachine{Name: "x", Memory: 256, VCPUs: 1}, CodeInvalidMemory},
		{VirtualMachine{Name: "x", Memory: 512}, CodeInvalidVCPUs},
	}
	for _, tt := range tests {
		se := validateVM(tt.vm)
		if se == nil || se.Code != tt.code {
			t.Fatalf("validateVM(%+v) = %v, want code %s", tt.vm, se, tt.code)
		}
	}
	if se := validateVM(VirtualMachine{Name: "x", Memory: 512, VCPUs: 1}); se != nil {
		t.Fatalf("validateVM(valid) = %v, want nil", se)
	}
}

func TestVMsByState(t *testing.T) {
	svc := New(Options{})
	defer svc.Close()
	svc.VMs().Replace(sampleVMs())

	groups := svc.VMsByState().Get()
	counts := map[VMState]int{}
	for k, v := range groups {
		counts[k] = len(v)
	}
	want := map[VMState]int{StateRunning: 1, StateStopped: 1, StatePaused: 1, StateSuspended: 0, StateUnknown: 1}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Fatalf("bucket sizes mismatch (-want +got):\n%s", diff)
	}
	if groups[StateUnknown][0].ID != "vm-4" {
		t.Fatalf("unknown bucket = %v, want vm-4", groups[StateUnknown])
	}
}

func TestFilteredVMs(t *testing.T) {
	svc := New(Options{})
	defer svc.Close()
	svc.VMs().Replace(sampleVMs())

	ids := func() []string {
		var out []string
		for _, vm := range svc.FilteredVMs().Get() {
			out = append(out, vm.ID)
		}
		return out
	}

	if got := ids(); len(got) != 4 {
		t.Fatalf("all = %v, want 4 vms", got)
	}
	svc.SetActiveTab(TabRunning)
	if diff := cmp.Diff([]string{"vm-1"}, ids()); diff != "" {
		t.Fatalf("running tab (-want +got):\n%s", diff)
	}
	svc.SetActiveTab(TabTemplates)
	svc.SetSearchQuery("WIN")
	if diff := cmp.Diff([]string{"vm-3"}, ids()); diff != "" {
		t.Fatalf("search by name (-want +got):\n%s", diff)
	}
	svc.SetSearchQuery("stopp")
	if diff := cmp.Diff([]string{"vm-2"}, ids()); diff != "" {
		t.Fatalf("search by state (-want +got):\n%s", diff)
	}
	svc.SetSearchQuery("")
	svc.SetFilter(FilterState{OSTypes: []string{"linux"}, States: []VMState{StateStopped, StatePaused}})
	if diff := cmp.Diff([]string{"vm-2"}, ids()); diff != "" {
		t.Fatalf("filter state (-want +got):\n%s", diff)
	}
}

func TestSelectedVMFollowsCollection(t *testing.T) {
	svc := New(Options{})
	defer svc.Close()

	svc.SelectVM("vm-1")
	if svc.SelectedVM().Get() != nil {
		t.Fatalf("SelectedVM before load = %v, want nil", svc.SelectedVM().Get())
	}
	svc.VMs().Replace(sampleVMs())
	if got := svc.SelectedVM().Get(); got == nil || got.Name != "web" {
		t.Fatalf("SelectedVM = %v, want web", got)
	}
}

func TestAvailablePoolsAndISOs(t *testing.T) {
	svc := New(Options{})
	defer svc.Close()

	svc.Pools().Replace([]StoragePool{
		{Name: "default", State: "active", Available: 10 << 30},
		{Name: "tiny", State: "active", Available: 1 << 30},
		{Name: "offline", State: "inactive", Available: 100 << 30},
	})
	pools := svc.AvailableStoragePools().Get()
	if len(pools) != 1 || pools[0].Name != "default" {
		t.Fatalf("AvailableStoragePools = %v, want [default]", pools)
	}

	svc.ISOs().Replace([]ISOImage{{ID: "2", Name: "ubuntu.iso"}, {ID: "1", Name: "alpine.iso"}, {ID: "3", Name: "Debian.iso"}})
	var names []string
	for _, iso := range svc.AvailableISOs().Get() {
		names = append(names, iso.Name)
	}
	if diff := cmp.Diff([]string{"alpine.iso", "Debian.iso", "ubuntu.iso"}, names); diff != "" {
		t.Fatalf("AvailableISOs order (-want +got):\n%s", diff)
	}
}

func TestWizard(t *testing.T) {
	svc := New(Options{})
	defer svc.Close()

	svc.OpenWizard()
	w := svc.Wizard().Get()
	if !w.Open || w.Step != 1 || w.Form.Memory != 2048 || w.Form.VCPUs != 2 {
		t.Fatalf("opened wizard = %+v", w)
	}
	if len(w.Form.Storage.Disks) != 1 || w.Form.Storage.Disks[0].Size != 20 || w.Form.Storage.Disks[0].Format != "qcow2" {
		t.Fatalf("default disks = %+v", w.Form.Storage.Disks)
	}
	if svc.ValidateStep(1) {
		t.Fatalf("step 1 valid without a name")
	}
	if err := svc.UpdateFormData(map[string]any{"name": "web", "storage": map[string]any{"boot_iso": "alpine.iso"}}); err != nil {
		t.Fatalf("UpdateFormData: %v", err)
	}
	form := svc.Wizard().Get().Form
	if form.Name != "web" || form.Storage.BootISO != "alpine.iso" || form.Storage.DefaultPool != "default" {
		t.Fatalf("merged form = %+v", form)
	}
	for step, want := range map[int]bool{1: true, 2: true, 3: true, 4: true, 0: false, 5: false} {
		if got := svc.ValidateStep(step); got != want {
			t.Fatalf("ValidateStep(%d) = %v, want %v", step, got, want)
		}
	}

	for i := 0; i < 6; i++ {
		svc.NextStep()
	}
	if got := svc.Wizard().Get().Step; got != WizardSteps {
		t.Fatalf("step after next = %d, want %d", got, WizardSteps)
	}
	for i := 0; i < 6; i++ {
		svc.PreviousStep()
	}
	if got := svc.Wizard().Get().Step; got != 1 {
		t.Fatalf("step after previous = %d, want 1", got)
	}

	svc.SetWizardError("name", "taken")
	if got := svc.Wizard().Get().Errors["name"]; got != "taken" {
		t.Fatalf("error = %q, want taken", got)
	}
	svc.ClearWizardErrors()
	if n := len(svc.Wizard().Get().Errors); n != 0 {
		t.Fatalf("errors after clear = %d, want 0", n)
	}

	svc.CloseWizard()
	if w := svc.Wizard().Get(); w.Open || w.Form.Name != "" {
		t.Fatalf("closed wizard = %+v", w)
	}
}

func TestBackupsNormalizeAndGroup(t *testing.T) {
	svc := New(Options{})
	defer svc.Close()

	svc.mergeBackups([]VMBackup{
		{BackupID: "b1", VMUUID: "vm-1", Name: "nightly"},
		{ID: "b2", VMID: "vm-1", Name: "weekly"},
		{ID: "b3", Name: "orphan"},
		{Name: "no key"},
	})
	b1, ok := svc.Backups().Get("b1")
	if !ok || b1.ID != "b1" || b1.VMID != "vm-1" {
		t.Fatalf("b1 = %+v, %v", b1, ok)
	}
	b2, _ := svc.Backups().Get("b2")
	if b2.BackupID != "b2" || b2.VMUUID != "vm-1" {
		t.Fatalf("b2 = %+v", b2)
	}
	groups := svc.BackupsByVM().Get()
	if len(groups["vm-1"]) != 2 || len(groups["unknown"]) != 1 {
		t.Fatalf("groups = %v", groups)
	}

	svc.mergeBackups([]VMBackup{{ID: "b1", VMID: "vm-1", Name: "renamed"}})
	if b, _ := svc.Backups().Get("b1"); b.Name != "renamed" {
		t.Fatalf("merged b1 = %+v", b)
	}
	if n := svc.Backups().Items().Get().Len(); n != 3 {
		t.Fatalf("backups = %d, want 3", n)
	}

	svc.replaceBackupsForVM("vm-1", []VMBackup{{ID: "b9", VMID: "vm-1"}})
	if svc.Backups().Exists("b1") || svc.Backups().Exists("b2") || !svc.Backups().Exists("b9") || !svc.Backups().Exists("b3") {
		t.Fatalf("after replace keys = %v", svc.Backups().Items().Get().Keys())
	}
}

func TestVMsPersistAcrossInstances(t *testing.T) {
	storage := prefs.Memory()
	svc := New(Options{Storage: storage})
	svc.VMs().Replace(sampleVMs()[:2])
	svc.Close()

	if _, ok := storage.Get(PersistVMs + ".items"); !ok {
		t.Fatalf("vm cache not written")
	}
	again := New(Options{Storage: storage})
	defer again.Close()
	if n := again.VMs().Count().Get(); n != 2 {
		t.Fatalf("restored vms = %d, want 2", n)
	}
	if again.Pools().Count().Get() != 0 {
		t.Fatalf("pools should not persist")
	}
}

func TestCleanupResetsEverything(t *testing.T) {
	svc := New(Options{})
	defer svc.Close()

	svc.VMs().Replace(sampleVMs())
	svc.ISOs().Replace([]ISOImage{{ID: "1", Name: "a.iso"}})
	svc.SelectVM("vm-1")
	svc.SetActiveTab(TabStopped)
	svc.SetSearchQuery("web")
	svc.OpenWizard()
	svc.SetConsole(ConsoleConnection{VMID: "vm-1", Status: ConsoleConnected})

	svc.Cleanup()

	if svc.VMs().Count().Get() != 0 || svc.ISOs().Count().Get() != 0 {
		t.Fatalf("collections not cleared")
	}
	if svc.SelectedVMID().Get() != "" || svc.ActiveTab().Get() != TabAll || svc.SearchQuery().Get() != "" {
		t.Fatalf("view state not reset")
	}
	if svc.Wizard().Get().Open || len(svc.Consoles().Get()) != 0 {
		t.Fatalf("wizard or consoles not reset")
	}
	if diff := cmp.Diff(ResourceStats{}, svc.ResourceStats().Get()); diff != "" {
		t.Fatalf("stats after cleanup (-want +got):\n%s", diff)
	}
}

func TestConsoleStatus(t *testing.T) {
	svc := New(Options{})
	defer svc.Close()

	svc.SetConsoleStatus("vm-1", ConsoleConnected)
	if len(svc.Consoles().Get()) != 0 {
		t.Fatalf("status update created a session")
	}
	svc.SetConsole(ConsoleConnection{VMID: "vm-1", Status: ConsoleConnecting, Type: "vnc"})
	svc.SetConsoleStatus("vm-1", ConsoleConnected)
	if got := svc.Consoles().Get()["vm-1"].Status; got != ConsoleConnected {
		t.Fatalf("status = %s, want connected", got)
	}
	svc.CloseConsole("vm-1")
	if len(svc.Consoles().Get()) != 0 {
		t.Fatalf("console not closed")
	}
}

var _ store.Storage = (*prefs.Store)(nil)
