// Package network holds the host network stores: physical and virtual
// interfaces, bridges, bonds and VLANs as the backend lists them under
// /network. Each kind is a store.Collection keyed by interface name with its
// own search box; the interface list can also be narrowed to one type.
//
// Mutations go straight to the backend and then re-fetch the collections
// they touch, since the host may rename or re-address interfaces as a side
// effect (enslaving a NIC to a bond changes the NIC too).
package network
