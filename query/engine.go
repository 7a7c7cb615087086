package query

import (
	"fmt"

	"hubd/component"
	"hubd/dispatch"
	"hubd/filter"
	"hubd/ipc"
	"hubd/subscriber"
	"hubd/tree"
	"hubd/treeerr"
	"hubd/watcher"
)

// Engine evaluates one-shot Query actions and admits watchers, sharing the
// tree and dispatcher with the IPC layer (§4.5, §4.6).
type Engine struct {
	tree *tree.Tree
	disp *dispatch.Dispatcher
}

// New constructs an Engine over t and disp.
func New(t *tree.Tree, disp *dispatch.Dispatcher) *Engine {
	return &Engine{tree: t, disp: disp}
}

// needsComponentFilter reports whether action requires q.Comp to be set
// (§7: "component action without a component filter").
func needsComponentFilter(a ActionKind) bool {
	switch a {
	case ActionGetValue, ActionSet, ActionPut, ActionApply:
		return true
	}
	return false
}

// Execute runs a one-shot Query to completion. WatchValue never reaches
// here: it is routed to Admit at admission time (§4.5).
func (e *Engine) Execute(q Query) (Result, error) {
	switch q.Action {
	case ActionInherit:
		return Result{}, treeerr.ErrInheritNotEvaluable
	case ActionWatchValue:
		return Result{}, fmt.Errorf("query: WatchValue must be admitted via Engine.Admit, not Execute")
	}

	if needsComponentFilter(q.Action) && q.Comp == nil {
		return Result{}, treeerr.ErrComponentFilterRequired
	}
	if q.Action == ActionGetValue && q.Agg != AggNone && q.Comp != nil {
		if !aggregatable(q.Agg, q.Comp.Type) {
			return Result{}, treeerr.ErrNotAggregatable
		}
	}

	switch q.Action {
	case ActionCount:
		return e.execCount(q), nil
	case ActionGetValue:
		return e.execGetValue(q), nil
	case ActionSet, ActionPut:
		return e.execWrite(q, q.SetValue), nil
	case ActionApply:
		return e.execApply(q), nil
	}
	return Result{}, fmt.Errorf("query: unknown action %d", q.Action)
}

func (e *Engine) execCount(q Query) Result {
	var res Result
	if q.Comp == nil {
		filter.IterDevices(e.tree, q.Device, func(tree.DeviceID, *tree.Device) bool {
			res.Count++
			return !(q.HasLimit && res.Count >= q.Limit)
		})
		return res
	}

	compEf := mergeEntityFilter(q.Entity, q.Comp.Type)
	filter.IterDevices(e.tree, q.Device, func(did tree.DeviceID, d *tree.Device) bool {
		cont := true
		filter.IterEntities(d, compEf, func(tree.EntityIndex, *tree.Entity) bool {
			res.Count++
			if q.HasLimit && res.Count >= q.Limit {
				cont = false
				return false
			}
			return true
		})
		return cont
	})
	return res
}

func (e *Engine) execGetValue(q Query) Result {
	var res Result
	compEf := mergeEntityFilter(q.Entity, q.Comp.Type)

	filter.IterDevices(e.tree, q.Device, func(did tree.DeviceID, d *tree.Device) bool {
		cont := true
		filter.IterEntities(d, compEf, func(eidx tree.EntityIndex, ent *tree.Entity) bool {
			off, ok := ent.IndexOf(q.Comp.Type)
			if !ok {
				return true
			}
			val, ok := ent.Components[off].AsValue()
			if !ok {
				return true
			}
			if q.IncludeParents {
				res.Parented = append(res.Parented, ParentedValue{DeviceID: did, EntityIndex: eidx, Value: val})
			} else {
				res.Values = append(res.Values, val)
			}
			res.Count++
			if q.HasLimit && res.Count >= q.Limit {
				cont = false
				return false
			}
			return true
		})
		return cont
	})

	if q.Agg != AggNone {
		if agg, ok := aggregate(q.Agg, q.Comp.Type, res.Values); ok {
			res.Aggregate = &agg
		}
	}
	return res
}

// execWrite dispatches val to every matching (device, entity)'s owning
// extension, honoring the write-action failure policy of §4.5: a failing
// extension is detached and skipped for the remainder of this query.
func (e *Engine) execWrite(q Query, val component.Component) Result {
	var res Result
	dead := make(map[tree.ExtensionIndex]bool)
	compEf := mergeEntityFilter(q.Entity, q.Comp.Type)

	filter.IterDevices(e.tree, q.Device, func(did tree.DeviceID, d *tree.Device) bool {
		if d.OwnerRef == nil || dead[*d.OwnerRef] {
			return true
		}
		owner := *d.OwnerRef
		cont := true
		filter.IterEntities(d, compEf, func(eidx tree.EntityIndex, ent *tree.Entity) bool {
			if dead[owner] {
				return false
			}
			e.dispatchWrite(owner, eidx, val, dead, &res)
			if q.HasLimit && res.DispatchedWrites >= q.Limit {
				cont = false
				return false
			}
			return true
		})
		return cont
	})
	res.Count = res.DispatchedWrites
	return res
}

func (e *Engine) execApply(q Query) Result {
	var res Result
	dead := make(map[tree.ExtensionIndex]bool)
	compEf := mergeEntityFilter(q.Entity, q.Comp.Type)

	filter.IterDevices(e.tree, q.Device, func(did tree.DeviceID, d *tree.Device) bool {
		if d.OwnerRef == nil || dead[*d.OwnerRef] {
			return true
		}
		owner := *d.OwnerRef
		cont := true
		filter.IterEntities(d, compEf, func(eidx tree.EntityIndex, ent *tree.Entity) bool {
			if dead[owner] {
				return false
			}
			off, ok := ent.IndexOf(q.Comp.Type)
			if !ok {
				return true
			}
			cur, ok := ent.Components[off].AsValue()
			if !ok {
				return true
			}
			next := applyTo(q.ApplyOp, cur)
			comp := valueToComponent(next)
			e.dispatchWrite(owner, eidx, comp, dead, &res)
			if q.HasLimit && res.DispatchedWrites >= q.Limit {
				cont = false
				return false
			}
			return true
		})
		return cont
	})
	res.Count = res.DispatchedWrites
	return res
}

// dispatchWrite attempts one outbound write to the extension owning idx.
// Every attempt against a still-live extension counts, whether or not it
// succeeds; a failure marks the extension dead for the rest of the query
// and detaches it from the tree.
func (e *Engine) dispatchWrite(idx tree.ExtensionIndex, eidx tree.EntityIndex, c component.Component, dead map[tree.ExtensionIndex]bool, res *Result) {
	ext, err := e.tree.GetExtension(idx)
	if err != nil {
		dead[idx] = true
		return
	}
	res.DispatchedWrites++

	frame := ipc.BuildWriteFrame(uint32(eidx), c)
	if err := ext.Writer.WriteFrame(frame); err != nil {
		dead[idx] = true
		e.tree.DetachExtension(idx)
	}
}

func mergeEntityFilter(ef *filter.EntityFilter, ct component.Type) *filter.EntityFilter {
	out := filter.EntityFilter{HasComp: true, CompType: ct}
	if ef != nil {
		out.Name = ef.Name
		out.HasName = ef.HasName
	}
	return &out
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

// WatchKind discriminates the concrete watcher a WatchRequest admits.
type WatchKind int

const (
	WatchMetadata WatchKind = iota
	WatchComponent
	WatchGroup
	WatchExtension
	WatchEntity
)

// WatchRequest carries the parameters needed to construct any of the
// five watcher kinds (§4.6). Only the fields relevant to Kind are used.
type WatchRequest struct {
	Kind WatchKind

	Device *filter.DeviceFilter
	Entity *filter.EntityFilter

	CompType component.Type

	GroupID   tree.GroupID
	GroupMode watcher.GroupWatchMode

	ExtensionIDs []tree.ExtensionID

	HasLimit bool
}

// Admit constructs and registers the watcher kind named by req, rejecting
// any request carrying a limit (§4.6, §7). It returns the new watcher's
// ID, which the caller uses later to Cancel it.
func (e *Engine) Admit(req WatchRequest, sink watcher.Sink) (subscriber.WatcherID, error) {
	if req.HasLimit {
		return 0, treeerr.ErrWatchLimitForbidden
	}

	id := subscriber.WatcherID(e.tree.NextWatcherID())
	idx := e.disp.Index()

	var w watcher.Watcher
	switch req.Kind {
	case WatchMetadata:
		w = watcher.NewMetadataWatcher(id, e.tree, idx, sink)
	case WatchComponent:
		w = watcher.NewComponentWatcher(id, e.tree, idx, req.Device, req.Entity, req.CompType, sink)
	case WatchGroup:
		w = watcher.NewGroupWatcher(id, idx, req.GroupID, req.GroupMode, sink)
	case WatchExtension:
		w = watcher.NewExtensionWatcher(id, idx, req.ExtensionIDs, sink)
	case WatchEntity:
		w = watcher.NewEntityWatcher(id, e.tree, idx, req.Device, req.Entity, sink)
	default:
		return 0, fmt.Errorf("query: unknown watch kind %d", req.Kind)
	}

	e.disp.Register(w)
	return id, nil
}

// Cancel retracts a previously admitted watcher.
func (e *Engine) Cancel(id subscriber.WatcherID) {
	e.disp.Cancel(id)
}
