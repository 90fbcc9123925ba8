package virtualization

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/five82/vapor-console/internal/state"
)

// WizardSteps is the number of pages in the create-VM wizard.
const WizardSteps = 4

// WizardState is the create-VM wizard. Errors maps form fields to messages.
type WizardState struct {
	Open   bool
	Step   int
	Form   VMCreateRequest
	Errors map[string]string
}

func closedWizard() WizardState {
	return WizardState{Step: 1, Errors: map[string]string{}}
}

// DefaultCreateRequest is the form the wizard opens with.
func DefaultCreateRequest() VMCreateRequest {
	return VMCreateRequest{
		Memory: 2048,
		VCPUs:  2,
		Storage: StorageConfig{
			DefaultPool: "default",
			Disks:       []DiskConfig{{Action: "create", Size: 20, Format: "qcow2"}},
		},
	}
}

// Wizard is the create-VM wizard state.
func (s *Service) Wizard() state.Readable[WizardState] { return s.wizard }

// OpenWizard resets the wizard to step one with the default form.
func (s *Service) OpenWizard() {
	s.wizard.Set(WizardState{Open: true, Step: 1, Form: DefaultCreateRequest(), Errors: map[string]string{}})
}

// CloseWizard hides the wizard and drops the form.
func (s *Service) CloseWizard() {
	s.wizard.Set(closedWizard())
}

// NextStep advances one step, stopping at the last.
func (s *Service) NextStep() {
	s.wizard.Update(func(cur WizardState) WizardState {
		cur.Step = min(cur.Step+1, WizardSteps)
		return cur
	})
}

// PreviousStep goes back one step, stopping at the first.
func (s *Service) PreviousStep() {
	s.wizard.Update(func(cur WizardState) WizardState {
		cur.Step = max(cur.Step-1, 1)
		return cur
	})
}

// UpdateFormData merges patch into the form as a JSON merge patch.
func (s *Service) UpdateFormData(patch map[string]any) error {
	var mErr error
	s.wizard.UpdateIf(func(cur WizardState) (WizardState, bool) {
		form, err := mergeForm(cur.Form, patch)
		if err != nil {
			mErr = err
			return cur, false
		}
		cur.Form = form
		return cur, true
	})
	return mErr
}

func mergeForm(form VMCreateRequest, patch map[string]any) (VMCreateRequest, error) {
	orig, err := json.Marshal(form)
	if err != nil {
		return form, fmt.Errorf("encode form: %w", err)
	}
	p, err := json.Marshal(patch)
	if err != nil {
		return form, fmt.Errorf("encode patch: %w", err)
	}
	merged, err := jsonpatch.MergePatch(orig, p)
	if err != nil {
		return form, fmt.Errorf("merge form: %w", err)
	}
	var out VMCreateRequest
	if err := json.Unmarshal(merged, &out); err != nil {
		return form, fmt.Errorf("decode form: %w", err)
	}
	return out, nil
}

// SetWizardError records a validation message for field.
func (s *Service) SetWizardError(field, message string) {
	s.wizard.Update(func(cur WizardState) WizardState {
		errs := make(map[string]string, len(cur.Errors)+1)
		for k, v := range cur.Errors {
			errs[k] = v
		}
		errs[field] = message
		cur.Errors = errs
		return cur
	})
}

// ClearWizardErrors drops every validation message.
func (s *Service) ClearWizardErrors() {
	s.wizard.Update(func(cur WizardState) WizardState {
		cur.Errors = map[string]string{}
		return cur
	})
}

// ValidateStep reports whether step is complete. Step one needs a name,
// memory and vcpus; step two a default pool and at least one disk. Unknown
// steps are never valid.
func (s *Service) ValidateStep(step int) bool {
	form := s.wizard.Get().Form
	switch step {
	case 1:
		return strings.TrimSpace(form.Name) != "" && form.Memory > 0 && form.VCPUs > 0
	case 2:
		return form.Storage.DefaultPool != "" && len(form.Storage.Disks) > 0
	case 3, 4:
		return true
	}
	return false
}
