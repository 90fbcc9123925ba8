package virtualization

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"k8s.io/klog/v2"

	"github.com/five82/vapor-console/internal/api"
	"github.com/five82/vapor-console/internal/store"
)

// Action is a lifecycle operation on a VM.
type Action string

const (
	ActionStart     Action = "start"
	ActionStop      Action = "stop"
	ActionForceStop Action = "force-stop"
	ActionRestart   Action = "restart"
	ActionPause     Action = "pause"
	ActionResume    Action = "resume"
	ActionDelete    Action = "delete"
)

// Phase tracks one action from request to outcome.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseRequesting Phase = "requesting"
	PhaseApplied    Phase = "applied"
	PhaseRejected   Phase = "rejected"
)

// ActionStatus is the latest action issued for a VM.
type ActionStatus struct {
	Action Action
	Phase  Phase
	Err    *store.StoreError
}

// expectedState is the state a VM is assumed to reach once the backend
// accepts the action.
var expectedState = map[Action]VMState{
	ActionStart:     StateRunning,
	ActionResume:    StateRunning,
	ActionRestart:   StateRunning,
	ActionStop:      StateStopped,
	ActionForceStop: StateStopped,
	ActionPause:     StatePaused,
}

// ActionStatus returns the last action recorded for id; PhaseIdle when none.
func (s *Service) ActionStatus(id string) ActionStatus {
	if st, ok := s.actions.Get()[id]; ok {
		return st
	}
	return ActionStatus{Phase: PhaseIdle}
}

func (s *Service) setPhase(id string, action Action, phase Phase, err *store.StoreError) {
	s.actions.Update(func(cur map[string]ActionStatus) map[string]ActionStatus {
		next := make(map[string]ActionStatus, len(cur)+1)
		for k, v := range cur {
			next[k] = v
		}
		next[id] = ActionStatus{Action: action, Phase: phase, Err: err}
		return next
	})
}

// FetchVMs reloads the VM collection.
func (s *Service) FetchVMs(ctx context.Context) error {
	return s.vms.Refresh(ctx)
}

// CreateVM posts req to the enhanced create endpoint, stores the returned VM
// and selects it. Requests that fail validation are never sent.
func (s *Service) CreateVM(ctx context.Context, req VMCreateRequest) (VirtualMachine, error) {
	if se := s.vms.Validate(VirtualMachine{Name: req.Name, Memory: req.Memory, VCPUs: req.VCPUs}); se != nil {
		return VirtualMachine{}, se
	}
	done := s.vms.Busy()
	defer done()

	var raw json.RawMessage
	if err := s.call(ctx, http.MethodPost, api.VirtualizationPath("virtualmachines", "create-enhanced"), req, &raw); err != nil {
		return VirtualMachine{}, s.vms.Fail(store.CodeCreate, "create", err)
	}
	vm, err := transformVM(raw)
	if err != nil {
		return VirtualMachine{}, s.vms.Fail(store.CodeCreate, "create", err)
	}
	if vm.ID == "" {
		return VirtualMachine{}, s.vms.Fail(store.CodeCreate, "create", fmt.Errorf("created vm has no id"))
	}
	s.vms.Upsert(vm)
	s.vms.ClearError()
	s.SelectVM(vm.ID)
	klog.InfoS("Created VM", "id", vm.ID, "name", vm.Name)
	return vm, nil
}

// Start boots the VM.
func (s *Service) Start(ctx context.Context, id string) error {
	return s.transition(ctx, id, ActionStart, nil)
}

// Stop shuts the VM down; force pulls the plug.
func (s *Service) Stop(ctx context.Context, id string, force bool) error {
	action := ActionStop
	if force {
		action = ActionForceStop
	}
	return s.transition(ctx, id, action, map[string]bool{"force": force})
}

// Restart reboots the VM. It is expected back as running.
func (s *Service) Restart(ctx context.Context, id string) error {
	return s.transition(ctx, id, ActionRestart, nil)
}

// Pause suspends the VM's vCPUs.
func (s *Service) Pause(ctx context.Context, id string) error {
	return s.transition(ctx, id, ActionPause, nil)
}

// Resume continues a paused VM.
func (s *Service) Resume(ctx context.Context, id string) error {
	return s.transition(ctx, id, ActionResume, nil)
}

// transition posts the action and, once accepted, patches the VM's state to
// the expected outcome without waiting for the backend to report it. A later
// state-change push or fetch overrides the guess.
func (s *Service) transition(ctx context.Context, id string, action Action, body any) error {
	verb := string(action)
	if action == ActionForceStop {
		verb = string(ActionStop)
	}
	s.setPhase(id, action, PhaseRequesting, nil)
	done := s.vms.Busy()
	defer done()

	if err := s.call(ctx, http.MethodPost, api.VirtualizationPath("virtualmachines", id, verb), body, nil); err != nil {
		se := s.vms.Fail(store.CodeUpdate, verb, err)
		s.setPhase(id, action, PhaseRejected, se)
		return se
	}
	if next, ok := expectedState[action]; ok && s.vms.Exists(id) {
		if _, err := s.vms.Patch(id, map[string]any{"state": next}); err != nil {
			klog.ErrorS(err, "Patch VM state", "id", id, "action", verb)
		}
	}
	s.setPhase(id, action, PhaseApplied, nil)
	return nil
}

// DeleteVM removes the VM on the backend and locally, clearing the selection
// when it pointed at id.
func (s *Service) DeleteVM(ctx context.Context, id string) error {
	s.setPhase(id, ActionDelete, PhaseRequesting, nil)
	if err := s.vms.Delete(ctx, id); err != nil {
		se, _ := store.AsStoreError(err)
		s.setPhase(id, ActionDelete, PhaseRejected, se)
		return err
	}
	s.selectedVMID.UpdateIf(func(cur string) (string, bool) {
		return "", cur == id
	})
	s.setPhase(id, ActionDelete, PhaseApplied, nil)
	return nil
}

// Perform runs action for id the way the console's controls do: a loading
// entry is shown while the request runs and a failure becomes a sticky error
// notification.
func (s *Service) Perform(ctx context.Context, action Action, id string) error {
	key := "vm:" + id + ":" + string(action)
	if s.ui != nil {
		s.ui.StartLoading(key, fmt.Sprintf("%s %s", actionVerb(action), s.vmName(id)))
		defer s.ui.StopLoading(key)
	}

	var err error
	switch action {
	case ActionStart:
		err = s.Start(ctx, id)
	case ActionStop:
		err = s.Stop(ctx, id, false)
	case ActionForceStop:
		err = s.Stop(ctx, id, true)
	case ActionRestart:
		err = s.Restart(ctx, id)
	case ActionPause:
		err = s.Pause(ctx, id)
	case ActionResume:
		err = s.Resume(ctx, id)
	case ActionDelete:
		err = s.DeleteVM(ctx, id)
	default:
		err = fmt.Errorf("unknown action %q", action)
	}

	if s.ui != nil {
		if err != nil {
			s.ui.Error(fmt.Sprintf("Failed to %s VM", strings.ReplaceAll(string(action), "-", " ")), errorMessage(err))
		} else {
			s.ui.Success(fmt.Sprintf("VM %s", pastTense(action)), s.vmName(id))
		}
	}
	return err
}

// ConsoleInfo fetches connection details for id and records a connecting
// console session.
func (s *Service) ConsoleInfo(ctx context.Context, id string) (ConsoleInfo, error) {
	var info ConsoleInfo
	if err := s.call(ctx, http.MethodGet, api.VirtualizationPath("virtualmachines", id, "console"), nil, &info); err != nil {
		return ConsoleInfo{}, s.vms.Fail(store.CodeRead, "console", err)
	}
	s.SetConsole(ConsoleConnection{
		VMID:   id,
		Status: ConsoleConnecting,
		Type:   info.Type,
		Token:  info.Token,
		WSURL:  info.WSURL,
	})
	return info, nil
}

func (s *Service) vmName(id string) string {
	if vm, ok := s.vms.Get(id); ok && vm.Name != "" {
		return vm.Name
	}
	return id
}

func errorMessage(err error) string {
	if se, ok := store.AsStoreError(err); ok {
		return se.Message
	}
	return err.Error()
}

func actionVerb(a Action) string {
	switch a {
	case ActionStart:
		return "Starting"
	case ActionStop, ActionForceStop:
		return "Stopping"
	case ActionRestart:
		return "Restarting"
	case ActionPause:
		return "Pausing"
	case ActionResume:
		return "Resuming"
	case ActionDelete:
		return "Deleting"
	}
	return string(a)
}

func pastTense(a Action) string {
	switch a {
	case ActionStart:
		return "started"
	case ActionStop, ActionForceStop:
		return "stopped"
	case ActionRestart:
		return "restarted"
	case ActionPause:
		return "paused"
	case ActionResume:
		return "resumed"
	case ActionDelete:
		return "deleted"
	}
	return string(a)
}
