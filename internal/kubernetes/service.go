package kubernetes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/klog/v2"
	"sigs.k8s.io/yaml"

	"github.com/five82/vapor-console/internal/api"
	"github.com/five82/vapor-console/internal/state"
	"github.com/five82/vapor-console/internal/store"
)

// Object is the entity type of every kubernetes collection.
type Object = *unstructured.Unstructured

// Options configure a Service. A nil Client keeps collections local.
type Options struct {
	Client    *api.Client
	Namespace string
	Kinds     []Kind
}

// Service holds one collection per Kind plus the shared list filters.
type Service struct {
	transport api.Transport
	kinds     []Kind
	views     map[string]*View

	namespace *state.Atom[string]
	search    *state.Atom[string]
	selector  *state.Atom[labels.Selector]
}

// View is the collection and derived values for one Kind.
type View struct {
	Kind Kind

	coll        *store.Collection[Object]
	filtered    *state.Computed[[]Object]
	namespaces  *state.Computed[[]string]
	byNamespace *state.Computed[map[string][]Object]
	phases      *state.Computed[map[string]int]
}

// New builds a Service tracking opts.Kinds, or DefaultKinds.
func New(opts Options) *Service {
	s := &Service{
		kinds:     opts.Kinds,
		views:     map[string]*View{},
		namespace: state.NewAtom(opts.Namespace),
		search:    state.NewAtom(""),
		selector:  state.NewAtom(labels.Everything()),
	}
	if len(s.kinds) == 0 {
		s.kinds = DefaultKinds
	}
	if opts.Client != nil {
		s.transport = opts.Client
	}
	for _, k := range s.kinds {
		s.views[k.Resource] = s.newView(k)
	}
	return s
}

func (s *Service) newView(k Kind) *View {
	v := &View{Kind: k}
	v.coll = store.New(store.Options[Object]{
		Name:       "kubernetes-" + k.Resource,
		KeyFunc:    ObjectKey,
		Endpoint:   k.listPath(),
		ListKeys:   []string{k.ListKey, k.Resource},
		Transport:  s.transport,
		Transform:  func(raw json.RawMessage) (Object, error) { return normalize(k, raw) },
		Comparator: compareObjects,
	})
	v.filtered = state.Derive4(v.coll.Items(), s.namespace, s.search, s.selector, filterObjects)
	v.namespaces = state.Derive(v.coll.Items(), namespacesOf)
	v.byNamespace = state.Derive(v.coll.Items(), groupByNamespace)
	v.phases = state.Derive(v.coll.Items(), phaseSummary)
	return v
}

// View returns the view for resource, e.g. "pods".
func (s *Service) View(resource string) (*View, bool) {
	v, ok := s.views[resource]
	return v, ok
}

// Kinds lists the tracked kinds in display order.
func (s *Service) Kinds() []Kind { return s.kinds }

// Namespace is the namespace filter shared by every view.
func (s *Service) Namespace() state.Readable[string] { return s.namespace }

// Search is the name filter shared by every view.
func (s *Service) Search() state.Readable[string] { return s.search }

// SetNamespace scopes namespaced fetches and the filtered views. An empty
// namespace means all.
func (s *Service) SetNamespace(ns string) { s.namespace.Set(ns) }

// SetSearch filters every view by a case-insensitive name match.
func (s *Service) SetSearch(q string) { s.search.Set(q) }

// SetSelector parses a label selector such as "app=web,tier!=cache". An
// invalid expression leaves the current selector in place.
func (s *Service) SetSelector(expr string) error {
	sel, err := labels.Parse(expr)
	if err != nil {
		return fmt.Errorf("parse selector: %w", err)
	}
	s.selector.Set(sel)
	return nil
}

// Selector returns the active label selector.
func (s *Service) Selector() labels.Selector { return s.selector.Get() }

// Fetch reloads one kind, scoped to the current namespace when namespaced.
func (s *Service) Fetch(ctx context.Context, resource string) error {
	v, ok := s.views[resource]
	if !ok {
		return fmt.Errorf("unknown resource %q", resource)
	}
	q := url.Values{}
	if ns := s.namespace.Get(); ns != "" && v.Kind.Namespaced {
		q.Set("namespace", ns)
	}
	return v.coll.Fetch(ctx, &store.QueryParams{Query: q})
}

// Refresh reloads every kind in parallel and returns the combined failures.
func (s *Service) Refresh(ctx context.Context) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs error
	)
	g.SetLimit(4)
	for _, k := range s.kinds {
		g.Go(func() error {
			if err := s.Fetch(ctx, k.Resource); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", k.Resource, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// Delete removes the object immediately and asks the backend to delete it.
// The object is restored when the request fails.
func (s *Service) Delete(ctx context.Context, resource, namespace, name string) error {
	v, ok := s.views[resource]
	if !ok {
		return fmt.Errorf("unknown resource %q", resource)
	}
	key := Key(namespace, name)
	tok, err := v.coll.OptimisticRemove(key)
	if err != nil {
		return err
	}
	if s.transport == nil {
		v.coll.Commit(tok)
		return nil
	}
	if _, err := s.transport.Send(ctx, http.MethodDelete, v.Kind.itemPath(namespace, name), nil); err != nil {
		v.coll.Rollback(tok)
		return v.coll.Fail(store.CodeDelete, "delete", err)
	}
	v.coll.Commit(tok)
	klog.InfoS("Deleted kubernetes resource", "kind", v.Kind.Kind, "namespace", namespace, "name", name)
	return nil
}

// Clear empties every collection and resets the filters.
func (s *Service) Clear() {
	for _, v := range s.views {
		v.coll.Clear()
	}
	s.search.Set("")
	s.selector.Set(labels.Everything())
}

// Close releases derived values.
func (s *Service) Close() {
	for _, v := range s.views {
		v.phases.Close()
		v.byNamespace.Close()
		v.namespaces.Close()
		v.filtered.Close()
		v.coll.Destroy()
	}
}

// Collection is the underlying store.
func (v *View) Collection() *store.Collection[Object] { return v.coll }

// Filtered applies the namespace, search and label selector filters.
func (v *View) Filtered() state.Readable[[]Object] { return v.filtered }

// Namespaces lists the namespaces present, sorted.
func (v *View) Namespaces() state.Readable[[]string] { return v.namespaces }

// ByNamespace groups the view's objects by namespace.
func (v *View) ByNamespace() state.Readable[map[string][]Object] { return v.byNamespace }

// Phases counts objects per phase.
func (v *View) Phases() state.Readable[map[string]int] { return v.phases }

// Get returns the object stored under namespace/name.
func (v *View) Get(namespace, name string) (Object, bool) {
	return v.coll.Get(Key(namespace, name))
}

// Key joins namespace and name; cluster scoped objects use the name alone.
func Key(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "/" + name
}

// ObjectKey is Key for obj.
func ObjectKey(obj Object) string {
	if obj == nil {
		return ""
	}
	return Key(obj.GetNamespace(), obj.GetName())
}

// YAML renders obj for the detail pane.
func YAML(obj Object) (string, error) {
	if obj == nil {
		return "", fmt.Errorf("no object")
	}
	out, err := yaml.Marshal(obj.Object)
	if err != nil {
		return "", fmt.Errorf("render yaml: %w", err)
	}
	return string(out), nil
}

// Phase reports status.phase, status.state or a plain status string, in that
// order, defaulting to "Unknown".
func Phase(obj Object) string {
	if obj == nil {
		return "Unknown"
	}
	switch st := obj.Object["status"].(type) {
	case string:
		if st != "" {
			return st
		}
	case map[string]any:
		for _, field := range []string{"phase", "state"} {
			if p, ok, _ := unstructured.NestedString(st, field); ok && p != "" {
				return p
			}
		}
	}
	return "Unknown"
}

// metadataFields are lifted into metadata on flat list rows.
var metadataFields = []string{"name", "namespace", "labels", "annotations", "uid"}

// normalize decodes raw into an object of kind k. Flat list rows get their
// identity fields copied into metadata, and apiVersion/kind are filled when
// missing.
func normalize(k Kind, raw json.RawMessage) (Object, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode %s: %w", k.Resource, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("decode %s: not an object", k.Resource)
	}
	obj := &unstructured.Unstructured{Object: fields}
	if _, ok := fields["metadata"].(map[string]any); !ok {
		meta := map[string]any{}
		for _, f := range metadataFields {
			if v, ok := fields[f]; ok {
				meta[f] = v
			}
		}
		fields["metadata"] = meta
	}
	if obj.GetAPIVersion() == "" {
		obj.SetAPIVersion(k.APIVersion)
	}
	if obj.GetKind() == "" {
		obj.SetKind(k.Kind)
	}
	return obj, nil
}

func compareObjects(a, b Object) int {
	if c := strings.Compare(a.GetNamespace(), b.GetNamespace()); c != 0 {
		return c
	}
	return strings.Compare(a.GetName(), b.GetName())
}

func filterObjects(items store.Entries[Object], ns, query string, sel labels.Selector) []Object {
	query = strings.ToLower(strings.TrimSpace(query))
	out := []Object{}
	for _, obj := range items.Values() {
		if ns != "" && obj.GetNamespace() != "" && obj.GetNamespace() != ns {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(obj.GetName()), query) &&
			!strings.Contains(strings.ToLower(Phase(obj)), query) {
			continue
		}
		if sel != nil && !sel.Empty() && !sel.Matches(labels.Set(obj.GetLabels())) {
			continue
		}
		out = append(out, obj)
	}
	sort.SliceStable(out, func(i, j int) bool { return compareObjects(out[i], out[j]) < 0 })
	return out
}

func namespacesOf(items store.Entries[Object]) []string {
	seen := map[string]struct{}{}
	for _, obj := range items.Values() {
		if ns := obj.GetNamespace(); ns != "" {
			seen[ns] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for ns := range seen {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

func groupByNamespace(items store.Entries[Object]) map[string][]Object {
	out := map[string][]Object{}
	for _, obj := range items.Values() {
		out[obj.GetNamespace()] = append(out[obj.GetNamespace()], obj)
	}
	return out
}

func phaseSummary(items store.Entries[Object]) map[string]int {
	out := map[string]int{}
	for _, obj := range items.Values() {
		out[Phase(obj)]++
	}
	return out
}
