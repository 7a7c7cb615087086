package client

import (
	"time"

	"hubd/component"
	"hubd/filter"
	"hubd/query"
	"hubd/tree"
	"hubd/watcher"
)

func toDeviceFilter(w *DeviceFilterWire) *filter.DeviceFilter {
	if w == nil {
		return nil
	}
	f := &filter.DeviceFilter{
		HasEntityCount: w.HasEntityCount,
		MinEntityCount: w.MinEntityCount,
		HasOlderThan:   w.HasOlderThan,
		OlderThan:      time.Duration(w.OlderThanMs) * time.Millisecond,
	}
	if w.DeviceID != nil {
		f.ID = &filter.IDFilter{Is: wireDeviceID(*w.DeviceID)}
	} else if len(w.DeviceIDs) > 0 {
		ids := make([]interface{}, len(w.DeviceIDs))
		for i, d := range w.DeviceIDs {
			ids[i] = wireDeviceID(d)
		}
		f.ID = &filter.IDFilter{OneOf: ids}
	}
	if w.Owner != "" {
		f.Owner = &filter.OwnerFilter{Is: tree.ExtensionID(w.Owner)}
	} else if len(w.Owners) > 0 {
		owners := make([]tree.ExtensionID, len(w.Owners))
		for i, o := range w.Owners {
			owners[i] = tree.ExtensionID(o)
		}
		f.Owner = &filter.OwnerFilter{OneOf: owners}
	}
	if w.GroupIn != nil {
		gm := filter.NewGroupIn(wireGroupID(*w.GroupIn))
		f.Group = &gm
	} else if len(w.GroupInAny) > 0 {
		gm := filter.NewGroupInAny(toGroupIDs(w.GroupInAny))
		f.Group = &gm
	} else if len(w.GroupInAll) > 0 {
		gm := filter.NewGroupInAll(toGroupIDs(w.GroupInAll))
		f.Group = &gm
	}
	for _, sub := range w.And {
		f.And = append(f.And, toDeviceFilter(sub))
	}
	for _, sub := range w.Or {
		f.Or = append(f.Or, toDeviceFilter(sub))
	}
	f.Not = toDeviceFilter(w.Not)
	return f
}

func toGroupIDs(ws []IDWire) []tree.GroupID {
	out := make([]tree.GroupID, len(ws))
	for i, w := range ws {
		out[i] = wireGroupID(w)
	}
	return out
}

func toEntityFilter(w *EntityFilterWire) *filter.EntityFilter {
	if w == nil {
		return nil
	}
	return &filter.EntityFilter{
		Name:     w.Name,
		HasName:  w.HasName,
		HasComp:  w.HasComp,
		CompType: component.Type(w.CompType),
	}
}

func toComponentFilter(w *ComponentFilterWire) *filter.ComponentFilter {
	if w == nil {
		return nil
	}
	return &filter.ComponentFilter{Type: component.Type(w.Type)}
}

var actionKinds = map[string]query.ActionKind{
	"count":       query.ActionCount,
	"get_value":   query.ActionGetValue,
	"set":         query.ActionSet,
	"put":         query.ActionPut,
	"apply":       query.ActionApply,
	"watch_value": query.ActionWatchValue,
	"inherit":     query.ActionInherit,
}

var aggOps = map[string]query.AggOp{
	"":       query.AggNone,
	"mean":   query.AggMean,
	"median": query.AggMedian,
	"min":    query.AggMin,
	"max":    query.AggMax,
	"sum":    query.AggSum,
	"any":    query.AggAny,
	"all":    query.AggAll,
}

var applyOpKinds = map[string]query.ApplyOpKind{
	"negate": query.ApplyNegate,
	"not":    query.ApplyNot,
	"add":    query.ApplyAdd,
	"sub":    query.ApplySub,
	"mul":    query.ApplyMul,
	"div":    query.ApplyDiv,
	"and":    query.ApplyAnd,
	"or":     query.ApplyOr,
}

// ToQuery translates a client-submitted QueryWire into the internal
// query.Query the engine evaluates.
func ToQuery(w *QueryWire) query.Query {
	q := query.Query{
		Device:         toDeviceFilter(w.Device),
		Entity:         toEntityFilter(w.Entity),
		Comp:           toComponentFilter(w.Comp),
		Action:         actionKinds[w.Action],
		Agg:            aggOps[w.Agg],
		IncludeParents: w.IncludeParents,
		Limit:          w.Limit,
		HasLimit:       w.HasLimit,
	}
	if w.SetValue != nil {
		q.SetValue = valueToComponent(wireComponent(*w.SetValue))
	}
	if w.ApplyOp != nil {
		q.ApplyOp = query.ApplyOp{
			Kind:    applyOpKinds[w.ApplyOp.Kind],
			Operand: wireComponent(w.ApplyOp.Operand),
		}
	}
	return q
}

var watchKinds = map[string]query.WatchKind{
	"metadata":  query.WatchMetadata,
	"component": query.WatchComponent,
	"group":     query.WatchGroup,
	"extension": query.WatchExtension,
	"entity":    query.WatchEntity,
}

var groupModes = map[string]watcher.GroupWatchMode{
	"name":       watcher.WatchName,
	"membership": watcher.WatchMembership,
}

// ToWatchRequest translates a client-submitted QueryWire carrying a
// watch_value action into a query.WatchRequest.
func ToWatchRequest(w *QueryWire) query.WatchRequest {
	req := query.WatchRequest{
		Kind:      watchKinds[w.WatchKind],
		Device:    toDeviceFilter(w.Device),
		Entity:    toEntityFilter(w.Entity),
		GroupMode: groupModes[w.GroupMode],
		HasLimit:  w.HasLimit,
	}
	if w.Comp != nil {
		req.CompType = component.Type(w.Comp.Type)
	}
	if w.GroupID != nil {
		req.GroupID = wireGroupID(*w.GroupID)
	}
	for _, x := range w.ExtensionIDs {
		req.ExtensionIDs = append(req.ExtensionIDs, tree.ExtensionID(x))
	}
	return req
}

// ToResultWire translates an evaluated query.Result to its wire shape.
func ToResultWire(r query.Result) *ResultWire {
	out := &ResultWire{Count: r.Count, DispatchedWrites: r.DispatchedWrites}
	for _, v := range r.Values {
		out.Values = append(out.Values, componentWire(v))
	}
	for _, p := range r.Parented {
		out.Parented = append(out.Parented, ParentedWire{
			DeviceID: deviceIDWire(p.DeviceID), EntityIndex: int(p.EntityIndex), Value: componentWire(p.Value),
		})
	}
	if r.Aggregate != nil {
		cw := componentWire(*r.Aggregate)
		out.Aggregate = &cw
	}
	return out
}

var updateKindNames = map[watcher.UpdateKind]string{
	watcher.UpdateMetadataSnapshot:          "metadata_snapshot",
	watcher.UpdateMetadataDeviceCreated:     "device_created",
	watcher.UpdateMetadataDeviceRenamed:     "device_renamed",
	watcher.UpdateMetadataDeviceDeleted:     "device_deleted",
	watcher.UpdateMetadataGroupCreated:      "group_created",
	watcher.UpdateMetadataGroupRenamed:      "group_renamed",
	watcher.UpdateMetadataGroupDeleted:      "group_deleted",
	watcher.UpdateMetadataGroupDeviceAdded:   "group_device_added",
	watcher.UpdateMetadataGroupDeviceRemoved: "group_device_removed",
	watcher.UpdateMetadataExtAttached:       "ext_attached",
	watcher.UpdateMetadataExtDetached:       "ext_detached",
	watcher.UpdateComponentValue:            "component_value",
	watcher.UpdateGroupName:                 "group_name",
	watcher.UpdateGroupMembership:           "group_membership",
	watcher.UpdateExtensionState:            "extension_state",
	watcher.UpdateEntityRegistered:          "entity_registered",
	watcher.UpdateEntityMembershipChanged:   "entity_membership_changed",
}

// ToUpdateWire translates a watcher.Update to its wire shape.
func ToUpdateWire(u watcher.Update) *WatchUpdateWire {
	out := &WatchUpdateWire{
		Kind:          updateKindNames[u.Kind],
		DeviceName:    u.DeviceName,
		EntityIndex:   int(u.EntityIndex),
		EntityName:    u.EntityName,
		ComponentType: uint16(u.ComponentType),
		GroupName:     u.GroupName,
		ExtensionID:   string(u.ExtensionID),
		Attached:      u.Attached,
	}
	if u.DeviceID != (tree.DeviceID{}) {
		d := deviceIDWire(u.DeviceID)
		out.DeviceID = &d
	}
	if u.GroupID != (tree.GroupID{}) {
		g := groupIDWire(u.GroupID)
		out.GroupID = &g
	}
	if val, ok := u.ComponentValue.AsValue(); ok {
		cw := componentWire(val)
		out.ComponentValue = &cw
	}
	if u.Snapshot != nil {
		out.Snapshot = toSnapshotWire(u.Snapshot)
	}
	return out
}

func toSnapshotWire(s *watcher.MetadataSnapshot) *MetadataSnapshotWire {
	out := &MetadataSnapshotWire{}
	for _, d := range s.Devices {
		dm := DeviceMetaWire{ID: deviceIDWire(d.ID), Name: d.Name, Owner: string(d.Owner)}
		for _, g := range d.Groups {
			dm.Groups = append(dm.Groups, groupIDWire(g))
		}
		out.Devices = append(out.Devices, dm)
	}
	for _, g := range s.Groups {
		gm := GroupMetaWire{ID: groupIDWire(g.ID), Name: g.Name}
		for _, d := range g.Devices {
			gm.Devices = append(gm.Devices, deviceIDWire(d))
		}
		out.Groups = append(out.Groups, gm)
	}
	for _, x := range s.Extensions {
		out.Extensions = append(out.Extensions, ExtensionMetaWire{
			ID: string(x.ID), Index: IDWire{Index: x.Index.Index, Generation: x.Index.Generation},
		})
	}
	return out
}

func valueToComponent(v component.Value) component.Component {
	c := component.Component{Type: v.Kind}
	switch v.Kind {
	case component.TypeSwitch, component.TypeBool:
		c.Bool = v.Bool
	case component.TypeDimmer, component.TypeReal:
		c.Real = v.Num
	case component.TypeInt:
		c.Int = int64(v.Num)
	case component.TypeText:
		c.Text = v.Text
	}
	return c
}
