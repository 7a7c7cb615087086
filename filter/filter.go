// Package filter implements the composable Device / Entity / Component
// filters (§4.4) and the selectivity-ordered device iteration strategy
// used by both the one-shot query engine and watcher admission.
package filter

import (
	"time"

	"hubd/component"
	"hubd/tree"
)

// IDFilter selects devices or groups by identity.
type IDFilter struct {
	Is    interface{} // tree.DeviceID / tree.GroupID / tree.ExtensionID, or nil
	OneOf []interface{}
}

func (f *IDFilter) empty() bool { return f == nil || (f.Is == nil && len(f.OneOf) == 0) }

// OwnerFilter selects devices by owning extension.
type OwnerFilter struct {
	Is    tree.ExtensionID
	OneOf []tree.ExtensionID
	set   bool
}

// GroupMembership selects devices by group membership.
type GroupMembership struct {
	In    tree.GroupID
	InAny []tree.GroupID
	InAll []tree.GroupID
	kind  int // 0 none, 1 in, 2 any, 3 all
}

const (
	groupNone = iota
	groupIn
	groupAny
	groupAll
)

// NewGroupIn selects devices that belong to g.
func NewGroupIn(g tree.GroupID) GroupMembership { return GroupMembership{In: g, kind: groupIn} }

// NewGroupInAny selects devices that belong to any of gs.
func NewGroupInAny(gs []tree.GroupID) GroupMembership {
	return GroupMembership{InAny: gs, kind: groupAny}
}

// NewGroupInAll selects devices that belong to every one of gs.
func NewGroupInAll(gs []tree.GroupID) GroupMembership {
	return GroupMembership{InAll: gs, kind: groupAll}
}

// DeviceFilter is the composable predicate over devices. At most one of
// the id/owner/group selectors is used as the iteration *driver*; any
// others present are applied as residual predicates (§4.4).
type DeviceFilter struct {
	ID             *IDFilter
	Owner          *OwnerFilter
	Group          *GroupMembership
	MinEntityCount int
	HasEntityCount bool
	OlderThan      time.Duration
	HasOlderThan   bool

	And []*DeviceFilter
	Or  []*DeviceFilter
	Not *DeviceFilter
}

// Matches applies every predicate on f (not just the driver) to d. Used as
// the residual check after a selective iteration path produced d as a
// candidate, and as the sole check when falling back to a full scan.
func (f *DeviceFilter) Matches(id tree.DeviceID, d *tree.Device) bool {
	if f == nil {
		return true
	}
	if f.Not != nil && f.Not.Matches(id, d) {
		return false
	}
	for _, sub := range f.And {
		if !sub.Matches(id, d) {
			return false
		}
	}
	if len(f.Or) > 0 {
		any := false
		for _, sub := range f.Or {
			if sub.Matches(id, d) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	if f.ID != nil && !f.ID.empty() {
		if !matchDeviceID(f.ID, id) {
			return false
		}
	}
	if f.Owner != nil {
		if f.Owner.Is != "" && d.Owner != f.Owner.Is {
			return false
		}
		if len(f.Owner.OneOf) > 0 && !containsExt(f.Owner.OneOf, d.Owner) {
			return false
		}
	}
	if f.Group != nil {
		if !matchGroup(f.Group, d) {
			return false
		}
	}
	if f.HasEntityCount && len(d.Entities) < f.MinEntityCount {
		return false
	}
	if f.HasOlderThan && time.Since(d.LastUpdated) < f.OlderThan {
		return false
	}
	return true
}

func matchDeviceID(idf *IDFilter, id tree.DeviceID) bool {
	if idf.Is != nil {
		if target, ok := idf.Is.(tree.DeviceID); ok {
			return id == target
		}
	}
	for _, v := range idf.OneOf {
		if target, ok := v.(tree.DeviceID); ok && target == id {
			return true
		}
	}
	return idf.Is == nil && len(idf.OneOf) == 0
}

func containsExt(list []tree.ExtensionID, want tree.ExtensionID) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

func matchGroup(g *GroupMembership, d *tree.Device) bool {
	switch g.kind {
	case groupIn:
		_, ok := d.Groups[g.In]
		return ok
	case groupAny:
		for _, gid := range g.InAny {
			if _, ok := d.Groups[gid]; ok {
				return true
			}
		}
		return false
	case groupAll:
		for _, gid := range g.InAll {
			if _, ok := d.Groups[gid]; !ok {
				return false
			}
		}
		return len(g.InAll) > 0
	}
	return true
}

// EntityFilter narrows to entities of a device.
type EntityFilter struct {
	Name     string
	HasName  bool
	HasComp  bool
	CompType component.Type
}

// Matches reports whether e satisfies f.
func (f *EntityFilter) Matches(idx tree.EntityIndex, e *tree.Entity) bool {
	if f == nil {
		return true
	}
	if f.HasName && e.Name != f.Name {
		return false
	}
	if f.HasComp {
		if _, ok := e.IndexOf(f.CompType); !ok {
			return false
		}
	}
	return true
}

// ComponentFilter narrows GetValue/Set/Apply/Watch actions to one
// component type. A component action without one is a validation error
// (§7).
type ComponentFilter struct {
	Type component.Type
}

// IterDevices walks devices matching f in the selectivity order described
// by §4.4: an exact ID lookup first, then owner-driven iteration, then
// group-driven iteration, falling back to a full arena scan. fn returning
// false stops iteration early (used to honor limits cheaply).
func IterDevices(t *tree.Tree, f *DeviceFilter, fn func(tree.DeviceID, *tree.Device) bool) {
	if f != nil && f.ID != nil {
		if target, ok := f.ID.Is.(tree.DeviceID); ok {
			if d, err := t.GetDevice(target); err == nil && f.Matches(target, d) {
				fn(target, d)
			}
			return
		}
		if len(f.ID.OneOf) > 0 {
			for _, v := range f.ID.OneOf {
				target, ok := v.(tree.DeviceID)
				if !ok {
					continue
				}
				if d, err := t.GetDevice(target); err == nil && f.Matches(target, d) {
					if !fn(target, d) {
						return
					}
				}
			}
			return
		}
	}

	if f != nil && f.Owner != nil && f.Owner.Is != "" {
		if ext, err := t.GetExtensionByID(f.Owner.Is); err == nil {
			for did := range ext.Devices {
				if d, derr := t.GetDevice(did); derr == nil && f.Matches(did, d) {
					if !fn(did, d) {
						return
					}
				}
			}
		}
		return
	}
	if f != nil && f.Owner != nil && len(f.Owner.OneOf) > 0 {
		for _, xid := range f.Owner.OneOf {
			if ext, err := t.GetExtensionByID(xid); err == nil {
				for did := range ext.Devices {
					if d, derr := t.GetDevice(did); derr == nil && f.Matches(did, d) {
						if !fn(did, d) {
							return
						}
					}
				}
			}
		}
		return
	}

	if f != nil && f.Group != nil {
		switch f.Group.kind {
		case groupIn:
			if g, err := t.GetGroup(f.Group.In); err == nil {
				for did := range g.Devices {
					if d, derr := t.GetDevice(did); derr == nil && f.Matches(did, d) {
						if !fn(did, d) {
							return
						}
					}
				}
			}
			return
		case groupAny:
			seen := make(map[tree.DeviceID]struct{})
			for _, gid := range f.Group.InAny {
				if g, err := t.GetGroup(gid); err == nil {
					for did := range g.Devices {
						seen[did] = struct{}{}
					}
				}
			}
			for did := range seen {
				if d, derr := t.GetDevice(did); derr == nil && f.Matches(did, d) {
					if !fn(did, d) {
						return
					}
				}
			}
			return
		case groupAll:
			var sets []map[tree.DeviceID]struct{}
			for _, gid := range f.Group.InAll {
				if g, err := t.GetGroup(gid); err == nil {
					sets = append(sets, g.Devices)
				} else {
					return // missing group: empty intersection
				}
			}
			if len(sets) == 0 {
				return
			}
			for did := range sets[0] {
				inAll := true
				for _, s := range sets[1:] {
					if _, ok := s[did]; !ok {
						inAll = false
						break
					}
				}
				if !inAll {
					continue
				}
				if d, derr := t.GetDevice(did); derr == nil && f.Matches(did, d) {
					if !fn(did, d) {
						return
					}
				}
			}
			return
		}
	}

	// Fallback: scan the device arena.
	t.IterDevices(func(id tree.DeviceID, d *tree.Device) {
		if f.Matches(id, d) {
			fn(id, d)
		}
	})
}

// IterEntities refines within a device: when ef names a specific component
// type, the inverted index (comp_to_entity) is used instead of scanning
// every entity (§4.4).
func IterEntities(d *tree.Device, ef *EntityFilter, fn func(tree.EntityIndex, *tree.Entity) bool) {
	if ef != nil && ef.HasComp {
		for _, idx := range d.CompToEntity(ef.CompType) {
			if int(idx) >= len(d.Entities) {
				continue
			}
			e := d.Entities[idx]
			if ef.Matches(idx, e) {
				if !fn(idx, e) {
					return
				}
			}
		}
		return
	}
	for i, e := range d.Entities {
		idx := tree.EntityIndex(i)
		if ef.Matches(idx, e) {
			if !fn(idx, e) {
				return
			}
		}
	}
}
