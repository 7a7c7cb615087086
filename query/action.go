// Package query implements the one-shot Query Engine (§4.5) and watcher
// admission (§4.6): validating a Query against the error taxonomy of §7,
// resolving its filter through package filter, and either executing a
// one-shot action against the tree or constructing and registering the
// matching watcher kind.
package query

import (
	"hubd/component"
	"hubd/filter"
	"hubd/tree"
)

// ActionKind discriminates the one-shot and watch actions a Query may
// carry (§4.5's action table).
type ActionKind int

const (
	ActionCount ActionKind = iota
	ActionGetValue
	ActionSet
	ActionPut
	ActionApply
	ActionWatchValue
	ActionInherit
)

// Query is the fully-resolved request the engine evaluates: a device/
// entity/component filter, the action to take, and action-specific
// parameters.
type Query struct {
	Device *filter.DeviceFilter
	Entity *filter.EntityFilter
	Comp   *filter.ComponentFilter

	Action ActionKind

	// GetValue parameters.
	Agg            AggOp
	IncludeParents bool

	// Set/Put/Apply parameters.
	SetValue component.Component
	ApplyOp  ApplyOp

	Limit    int
	HasLimit bool
}

// ParentedValue pairs a component value with the (device, entity) it came
// from, for GetValue(include_parents=true).
type ParentedValue struct {
	DeviceID    tree.DeviceID
	EntityIndex tree.EntityIndex
	Value       component.Value
}

// Result is the outcome of a one-shot Query.Execute.
type Result struct {
	Count int

	Values   []component.Value
	Parented []ParentedValue

	// Aggregate is nil when Agg was None, or when the filter matched zero
	// value-bearing components (§9: aggregation on an empty match set
	// yields "no value", not an error).
	Aggregate *component.Value

	// DispatchedWrites is the count of write attempts sent to still-live
	// extensions for Set/Put/Apply (§4.5).
	DispatchedWrites int
}
