package network

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
	"k8s.io/klog/v2"

	"github.com/five82/vapor-console/internal/api"
	"github.com/five82/vapor-console/internal/state"
	"github.com/five82/vapor-console/internal/store"
)

// Error codes recorded on the collections by failed mutations.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeOperation      = "OPERATION_ERROR"
)

// Options configure a Service. A nil Client keeps every collection local.
type Options struct {
	Client *api.Client
}

// Service owns the host network stores.
type Service struct {
	transport api.Transport

	interfaces *store.Collection[Interface]
	bridges    *store.Collection[Interface]
	bonds      *store.Collection[Interface]
	vlans      *store.Collection[Interface]

	selected     *state.Atom[string]
	search       *state.Atom[string]
	typeFilter   *state.Atom[string]
	bridgeSearch *state.Atom[string]
	bondSearch   *state.Atom[string]
	vlanSearch   *state.Atom[string]

	selectedInterface *state.Computed[*Interface]
	interfaceTypes    *state.Computed[[]string]
	filtered          *state.Computed[[]Interface]
	filteredBridges   *state.Computed[[]Interface]
	filteredBonds     *state.Computed[[]Interface]
	filteredVLANs     *state.Computed[[]Interface]
	stats             *state.Computed[Stats]
}

// New builds the service. Every collection is keyed by interface name.
func New(opts Options) *Service {
	s := &Service{}
	if opts.Client != nil {
		s.transport = opts.Client
	}
	byName := func(a, b Interface) int { return strings.Compare(a.Name, b.Name) }
	collection := func(name, list string) *store.Collection[Interface] {
		return store.New(store.Options[Interface]{
			Name:       "network-" + name,
			IDField:    "name",
			Endpoint:   api.NetworkPath(list),
			ListKeys:   []string{list},
			Transport:  s.transport,
			Comparator: byName,
		})
	}
	s.interfaces = collection("interfaces", "interfaces")
	s.bridges = collection("bridges", "bridges")
	s.bonds = collection("bonds", "bonds")
	s.vlans = collection("vlans", "vlans")

	s.selected = state.NewAtom("")
	s.search = state.NewAtom("")
	s.typeFilter = state.NewAtom(TypeAll)
	s.bridgeSearch = state.NewAtom("")
	s.bondSearch = state.NewAtom("")
	s.vlanSearch = state.NewAtom("")

	s.selectedInterface = state.Derive2(s.selected, s.interfaces.Items(), selectInterface)
	s.interfaceTypes = state.Derive(s.interfaces.Items(), interfaceTypes)
	s.filtered = state.Derive3(s.interfaces.Items(), s.search, s.typeFilter, filterInterfaces)
	s.filteredBridges = state.Derive2(s.bridges.Items(), s.bridgeSearch, filterByName)
	s.filteredBonds = state.Derive2(s.bonds.Items(), s.bondSearch, filterByName)
	s.filteredVLANs = state.Derive2(s.vlans.Items(), s.vlanSearch, filterByName)
	s.stats = state.DeriveFunc(s.computeStats,
		state.On(s.interfaces.Items()), state.On(s.bridges.Items()),
		state.On(s.bonds.Items()), state.On(s.vlans.Items()))
	return s
}

// Interfaces is the host interface collection.
func (s *Service) Interfaces() *store.Collection[Interface] { return s.interfaces }

// Bridges is the bridge collection.
func (s *Service) Bridges() *store.Collection[Interface] { return s.bridges }

// Bonds is the bond collection.
func (s *Service) Bonds() *store.Collection[Interface] { return s.bonds }

// VLANs is the VLAN collection.
func (s *Service) VLANs() *store.Collection[Interface] { return s.vlans }

// SelectedInterface follows the selected name; nil when absent.
func (s *Service) SelectedInterface() state.Readable[*Interface] { return s.selectedInterface }

// InterfaceTypes lists the distinct non-empty interface types, sorted.
func (s *Service) InterfaceTypes() state.Readable[[]string] { return s.interfaceTypes }

// FilteredInterfaces applies the type filter and the name search.
func (s *Service) FilteredInterfaces() state.Readable[[]Interface] { return s.filtered }

// FilteredBridges applies the bridge search.
func (s *Service) FilteredBridges() state.Readable[[]Interface] { return s.filteredBridges }

// FilteredBonds applies the bond search.
func (s *Service) FilteredBonds() state.Readable[[]Interface] { return s.filteredBonds }

// FilteredVLANs applies the VLAN search.
func (s *Service) FilteredVLANs() state.Readable[[]Interface] { return s.filteredVLANs }

// Stats counts links and sums interface traffic.
func (s *Service) Stats() state.Readable[Stats] { return s.stats }

// SearchQuery is the interface search text.
func (s *Service) SearchQuery() state.Readable[string] { return s.search }

// TypeFilter is the selected interface type, TypeAll when unfiltered.
func (s *Service) TypeFilter() state.Readable[string] { return s.typeFilter }

// SelectInterface marks name as selected. An empty name clears it.
func (s *Service) SelectInterface(name string) { s.selected.Set(name) }

// SetSearchQuery matches interfaces by name, ignoring case.
func (s *Service) SetSearchQuery(q string) { s.search.Set(q) }

// SetTypeFilter narrows interfaces to one type. Empty means TypeAll.
func (s *Service) SetTypeFilter(t string) {
	if t == "" {
		t = TypeAll
	}
	s.typeFilter.Set(t)
}

// SetBridgeSearch matches bridges by name, ignoring case.
func (s *Service) SetBridgeSearch(q string) { s.bridgeSearch.Set(q) }

// SetBondSearch matches bonds by name, ignoring case.
func (s *Service) SetBondSearch(q string) { s.bondSearch.Set(q) }

// SetVLANSearch matches VLANs by name, ignoring case.
func (s *Service) SetVLANSearch(q string) { s.vlanSearch.Set(q) }

// FetchInterfaces reloads the interface collection.
func (s *Service) FetchInterfaces(ctx context.Context) error { return s.interfaces.Refresh(ctx) }

// FetchBridges reloads the bridge collection.
func (s *Service) FetchBridges(ctx context.Context) error { return s.bridges.Refresh(ctx) }

// FetchBonds reloads the bond collection.
func (s *Service) FetchBonds(ctx context.Context) error { return s.bonds.Refresh(ctx) }

// FetchVLANs reloads the VLAN collection.
func (s *Service) FetchVLANs(ctx context.Context) error { return s.vlans.Refresh(ctx) }

// FetchAll loads the four collections in parallel. Each failure is logged and
// recorded in its collection; the combined error is returned.
func (s *Service) FetchAll(ctx context.Context) error {
	return s.fetch(ctx, map[string]func(context.Context) error{
		"interfaces": s.FetchInterfaces,
		"bridges":    s.FetchBridges,
		"bonds":      s.FetchBonds,
		"vlans":      s.FetchVLANs,
	})
}

// Refresh is FetchAll; the poller calls it.
func (s *Service) Refresh(ctx context.Context) error { return s.FetchAll(ctx) }

func (s *Service) fetch(ctx context.Context, fetches map[string]func(context.Context) error) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs error
	)
	for name, fetch := range fetches {
		g.Go(func() error {
			if err := fetch(ctx); err != nil {
				klog.ErrorS(err, "Network fetch failed", "collection", name)
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

// ToggleInterface brings name up or down and reloads the interfaces.
func (s *Service) ToggleInterface(ctx context.Context, name string, up bool) error {
	action := StateDown
	if up {
		action = StateUp
	}
	if err := s.mutate(ctx, s.interfaces, "toggle", http.MethodPut, api.NetworkPath("interfaces", name, action), nil, nil); err != nil {
		return err
	}
	return s.FetchInterfaces(ctx)
}

// AddAddress assigns an address to name and reloads the interfaces.
func (s *Service) AddAddress(ctx context.Context, name string, req AddressRequest) error {
	if err := validateAddress(req); err != nil {
		return s.interfaces.Fail(CodeInvalidRequest, "add address", err)
	}
	if err := s.mutate(ctx, s.interfaces, "add address", http.MethodPost, addressPath(name), req, nil); err != nil {
		return err
	}
	return s.FetchInterfaces(ctx)
}

// UpdateAddress replaces oldAddress on name with req. The old address is
// removed first; if adding the new one fails the interface is left without
// either and the reload shows it.
func (s *Service) UpdateAddress(ctx context.Context, name, oldAddress string, req AddressRequest) error {
	if err := validateAddress(req); err != nil {
		return s.interfaces.Fail(CodeInvalidRequest, "update address", err)
	}
	if err := s.mutate(ctx, s.interfaces, "update address", http.MethodDelete, addressQuery(name, oldAddress), nil, nil); err != nil {
		return err
	}
	err := s.mutate(ctx, s.interfaces, "update address", http.MethodPost, addressPath(name), req, nil)
	return multierr.Append(err, s.FetchInterfaces(ctx))
}

// SetInterfaceAddress replaces every address on name with req in one call.
func (s *Service) SetInterfaceAddress(ctx context.Context, name string, req AddressRequest) error {
	if err := validateAddress(req); err != nil {
		return s.interfaces.Fail(CodeInvalidRequest, "set address", err)
	}
	if err := s.mutate(ctx, s.interfaces, "set address", http.MethodPut, addressPath(name), req, nil); err != nil {
		return err
	}
	return s.FetchInterfaces(ctx)
}

// DeleteAddress removes address from name and reloads the interfaces.
func (s *Service) DeleteAddress(ctx context.Context, name, address string) error {
	if err := s.mutate(ctx, s.interfaces, "delete address", http.MethodDelete, addressQuery(name, address), nil, nil); err != nil {
		return err
	}
	return s.FetchInterfaces(ctx)
}

// CreateBridge creates a bridge and reloads bridges and interfaces.
func (s *Service) CreateBridge(ctx context.Context, req BridgeRequest) (OperationResponse, error) {
	if strings.TrimSpace(req.Name) == "" {
		return OperationResponse{}, s.bridges.Fail(CodeInvalidRequest, "create bridge", fmt.Errorf("bridge name is required"))
	}
	return s.operate(ctx, s.bridges, "create bridge", http.MethodPost, api.NetworkPath("bridge"), req)
}

// UpdateBridge replaces the ports of bridge name.
func (s *Service) UpdateBridge(ctx context.Context, name string, req BridgeUpdate) (OperationResponse, error) {
	return s.operate(ctx, s.bridges, "update bridge", http.MethodPut, api.NetworkPath("bridge", name), req)
}

// DeleteBridge removes bridge name and reloads the bridges.
func (s *Service) DeleteBridge(ctx context.Context, name string) error {
	if err := s.mutate(ctx, s.bridges, "delete bridge", http.MethodDelete, api.NetworkPath("bridge", name), nil, nil); err != nil {
		return err
	}
	return s.FetchBridges(ctx)
}

// CreateBond creates a bond and reloads bonds and interfaces.
func (s *Service) CreateBond(ctx context.Context, req BondRequest) (OperationResponse, error) {
	switch {
	case strings.TrimSpace(req.Name) == "":
		return OperationResponse{}, s.bonds.Fail(CodeInvalidRequest, "create bond", fmt.Errorf("bond name is required"))
	case len(req.Interfaces) == 0:
		return OperationResponse{}, s.bonds.Fail(CodeInvalidRequest, "create bond", fmt.Errorf("a bond needs at least one interface"))
	}
	return s.operate(ctx, s.bonds, "create bond", http.MethodPost, api.NetworkPath("bond"), req)
}

// UpdateBond changes the mode or members of bond name.
func (s *Service) UpdateBond(ctx context.Context, name string, req BondUpdate) (OperationResponse, error) {
	return s.operate(ctx, s.bonds, "update bond", http.MethodPut, api.NetworkPath("bond", name), req)
}

// DeleteBond removes bond name and reloads the bonds.
func (s *Service) DeleteBond(ctx context.Context, name string) error {
	if err := s.mutate(ctx, s.bonds, "delete bond", http.MethodDelete, api.NetworkPath("bond", name), nil, nil); err != nil {
		return err
	}
	return s.FetchBonds(ctx)
}

// CreateVLAN tags an interface and reloads VLANs and interfaces.
func (s *Service) CreateVLAN(ctx context.Context, req VLANRequest) (OperationResponse, error) {
	switch {
	case strings.TrimSpace(req.Interface) == "":
		return OperationResponse{}, s.vlans.Fail(CodeInvalidRequest, "create vlan", fmt.Errorf("parent interface is required"))
	case req.VLANID < 1 || req.VLANID > 4094:
		return OperationResponse{}, s.vlans.Fail(CodeInvalidRequest, "create vlan", fmt.Errorf("VLAN id %d out of range 1-4094", req.VLANID))
	}
	return s.operate(ctx, s.vlans, "create vlan", http.MethodPost, api.NetworkPath("vlan"), req)
}

// UpdateVLAN changes the tag of VLAN name.
func (s *Service) UpdateVLAN(ctx context.Context, name string, req VLANUpdate) (OperationResponse, error) {
	return s.operate(ctx, s.vlans, "update vlan", http.MethodPut, api.NetworkPath("vlan", name), req)
}

// DeleteVLAN removes VLAN name and reloads the VLANs.
func (s *Service) DeleteVLAN(ctx context.Context, name string) error {
	if err := s.mutate(ctx, s.vlans, "delete vlan", http.MethodDelete, api.NetworkPath("vlan", name), nil, nil); err != nil {
		return err
	}
	return s.FetchVLANs(ctx)
}

// operate sends a bridge, bond or VLAN change, then reloads that collection
// and the interfaces together since members change state too.
func (s *Service) operate(ctx context.Context, c *store.Collection[Interface], op, method, path string, body any) (OperationResponse, error) {
	var resp OperationResponse
	if err := s.mutate(ctx, c, op, method, path, body, &resp); err != nil {
		return OperationResponse{}, err
	}
	if len(resp.Failed) > 0 {
		klog.InfoS("Network operation partially applied", "op", op, "failed", len(resp.Failed))
	}
	err := s.fetch(ctx, map[string]func(context.Context) error{
		c.Name():            c.Refresh,
		s.interfaces.Name(): s.interfaces.Refresh,
	})
	return resp, err
}

// mutate sends one request with c marked busy. Failures are recorded on c.
func (s *Service) mutate(ctx context.Context, c *store.Collection[Interface], op, method, path string, body, dest any) error {
	if s.transport == nil {
		return c.Fail(CodeOperation, op, fmt.Errorf("no backend configured"))
	}
	done := c.Busy()
	defer done()
	raw, err := s.transport.Send(ctx, method, path, body)
	if err != nil {
		return c.Fail(CodeOperation, op, err)
	}
	c.ClearError()
	if dest == nil || raw == nil {
		return nil
	}
	payload, err := api.Unwrap(raw)
	if err != nil {
		return c.Fail(CodeOperation, op, err)
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return c.Fail(CodeOperation, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// ClearErrors empties the error slot of every collection.
func (s *Service) ClearErrors() {
	for _, c := range s.collections() {
		c.ClearError()
	}
}

// ResetUI restores the selection, searches and type filter.
func (s *Service) ResetUI() {
	s.selected.Set("")
	s.search.Set("")
	s.typeFilter.Set(TypeAll)
	s.bridgeSearch.Set("")
	s.bondSearch.Set("")
	s.vlanSearch.Set("")
}

// Cleanup clears every collection and resets the view state.
func (s *Service) Cleanup() {
	for _, c := range s.collections() {
		c.Clear()
	}
	s.ResetUI()
}

// Close releases derived values and collection subscriptions.
func (s *Service) Close() {
	s.stats.Close()
	s.filteredVLANs.Close()
	s.filteredBonds.Close()
	s.filteredBridges.Close()
	s.filtered.Close()
	s.interfaceTypes.Close()
	s.selectedInterface.Close()
	for _, c := range s.collections() {
		c.Destroy()
	}
}

func (s *Service) collections() []*store.Collection[Interface] {
	return []*store.Collection[Interface]{s.interfaces, s.bridges, s.bonds, s.vlans}
}

func (s *Service) computeStats() Stats {
	st := Stats{
		TotalBridges: s.bridges.Items().Get().Len(),
		TotalBonds:   s.bonds.Items().Get().Len(),
		TotalVLANs:   s.vlans.Items().Get().Len(),
	}
	for _, iface := range s.interfaces.Items().Get().Values() {
		st.TotalInterfaces++
		if iface.State == StateUp {
			st.UpInterfaces++
		} else {
			st.DownInterfaces++
		}
		st.TotalRxBytes += iface.Statistics.RxBytes
		st.TotalTxBytes += iface.Statistics.TxBytes
	}
	return st
}

func addressPath(name string) string {
	return api.NetworkPath("interfaces", name, "address")
}

func addressQuery(name, address string) string {
	return api.WithQuery(addressPath(name), url.Values{"address": {address}})
}

func validateAddress(req AddressRequest) error {
	switch {
	case strings.TrimSpace(req.Address) == "":
		return fmt.Errorf("address is required")
	case req.Netmask < 0 || req.Netmask > 128:
		return fmt.Errorf("prefix length %d out of range", req.Netmask)
	}
	return nil
}

func selectInterface(name string, items store.Entries[Interface]) *Interface {
	if name == "" {
		return nil
	}
	iface, ok := items.Get(name)
	if !ok {
		return nil
	}
	return &iface
}

func interfaceTypes(items store.Entries[Interface]) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, iface := range items.Values() {
		if iface.Type == "" || seen[iface.Type] {
			continue
		}
		seen[iface.Type] = true
		out = append(out, iface.Type)
	}
	sort.Strings(out)
	return out
}

func filterInterfaces(items store.Entries[Interface], query, typ string) []Interface {
	out := make([]Interface, 0, items.Len())
	for _, iface := range filterByName(items, query) {
		if typ != "" && typ != TypeAll && iface.Type != typ {
			continue
		}
		out = append(out, iface)
	}
	return out
}

func filterByName(items store.Entries[Interface], query string) []Interface {
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]Interface, 0, items.Len())
	for _, iface := range items.Values() {
		if query != "" && !strings.Contains(strings.ToLower(iface.Name), query) {
			continue
		}
		out = append(out, iface)
	}
	return out
}
