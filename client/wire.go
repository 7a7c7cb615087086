// Package client implements the client-facing protocol (§6.2): a
// length-delimited stream of JSON messages. Each client message is a Query
// carrying a request id; each server message carries that id back plus one
// of QueryResult, QueryError, WatchUpdate, or the watch admission reply
// (WatchAdmitWire). JSON keeps the polymorphic
// filter/action shapes self-describing on the wire without a schema
// compiler (see DESIGN.md for why this, and not the extension protocol's
// varint scheme, was used here).
package client

import (
	"hubd/component"
	"hubd/tree"
)

// Request is one client->server message.
type Request struct {
	ID     uint64
	Cancel *CancelWire `json:",omitempty"`
	Query  *QueryWire  `json:",omitempty"`
}

// CancelWire cancels a previously admitted watcher.
type CancelWire struct {
	WatcherID uint64
}

// QueryWire is the wire shape of query.Query: concrete, JSON-friendly
// fields standing in for the richer composable filter types package query
// and package filter use internally.
type QueryWire struct {
	Device *DeviceFilterWire `json:",omitempty"`
	Entity *EntityFilterWire `json:",omitempty"`
	Comp   *ComponentFilterWire `json:",omitempty"`

	Action string // "count", "get_value", "set", "put", "apply", "watch_value", "inherit"

	Agg            string `json:",omitempty"` // "mean","median","min","max","sum","any","all"
	IncludeParents bool   `json:",omitempty"`

	SetValue *ComponentWire `json:",omitempty"`
	ApplyOp  *ApplyOpWire   `json:",omitempty"`

	WatchKind string            `json:",omitempty"` // "metadata","component","group","extension","entity"
	GroupID   *IDWire           `json:",omitempty"`
	GroupMode string            `json:",omitempty"` // "name","membership"
	ExtensionIDs []string       `json:",omitempty"`

	Limit    int  `json:",omitempty"`
	HasLimit bool `json:",omitempty"`
}

// IDWire is the wire shape of any arena-backed handle.
type IDWire struct {
	Index      uint32
	Generation uint32
}

// DeviceFilterWire mirrors the commonly-used subset of filter.DeviceFilter.
type DeviceFilterWire struct {
	DeviceID  *IDWire  `json:",omitempty"`
	DeviceIDs []IDWire `json:",omitempty"`

	Owner    string   `json:",omitempty"`
	Owners   []string `json:",omitempty"`

	GroupIn    *IDWire  `json:",omitempty"`
	GroupInAny []IDWire `json:",omitempty"`
	GroupInAll []IDWire `json:",omitempty"`

	MinEntityCount int  `json:",omitempty"`
	HasEntityCount bool `json:",omitempty"`
	OlderThanMs    int64 `json:",omitempty"`
	HasOlderThan   bool `json:",omitempty"`

	And []*DeviceFilterWire `json:",omitempty"`
	Or  []*DeviceFilterWire `json:",omitempty"`
	Not *DeviceFilterWire   `json:",omitempty"`
}

// EntityFilterWire mirrors filter.EntityFilter.
type EntityFilterWire struct {
	Name     string `json:",omitempty"`
	HasName  bool   `json:",omitempty"`
	HasComp  bool   `json:",omitempty"`
	CompType uint16 `json:",omitempty"`
}

// ComponentFilterWire mirrors filter.ComponentFilter.
type ComponentFilterWire struct {
	Type uint16
}

// ComponentWire is the wire projection of a component.Value (the uniform
// value-bearing shape), used for SetValue and for component values in
// results and watch updates.
type ComponentWire struct {
	Type uint16
	Bool bool    `json:",omitempty"`
	Num  float64 `json:",omitempty"`
	Text string  `json:",omitempty"`
}

// ApplyOpWire mirrors query.ApplyOp.
type ApplyOpWire struct {
	Kind    string // "negate","not","add","sub","mul","div","and","or"
	Operand ComponentWire `json:",omitempty"`
}

// Response is one server->client message.
type Response struct {
	ID     uint64
	Result *ResultWire       `json:",omitempty"`
	Error  *ErrorWire        `json:",omitempty"`
	Update *WatchUpdateWire  `json:",omitempty"`
	Admit  *WatchAdmitWire   `json:",omitempty"`
}

// WatchAdmitWire carries the newly-admitted watcher's id back to the
// client so it can be used in a later CancelWire.
type WatchAdmitWire struct {
	WatcherID uint64
}

// ResultWire is the wire shape of query.Result.
type ResultWire struct {
	Count            int              `json:",omitempty"`
	Values           []ComponentWire  `json:",omitempty"`
	Parented         []ParentedWire   `json:",omitempty"`
	Aggregate        *ComponentWire   `json:",omitempty"`
	DispatchedWrites int              `json:",omitempty"`
}

// ParentedWire mirrors query.ParentedValue.
type ParentedWire struct {
	DeviceID    IDWire
	EntityIndex int
	Value       ComponentWire
}

// ErrorWire reports a query validation or protocol error to the client.
type ErrorWire struct {
	Message string
}

// WatchUpdateWire mirrors watcher.Update.
type WatchUpdateWire struct {
	Kind string

	DeviceID    *IDWire `json:",omitempty"`
	DeviceName  string  `json:",omitempty"`
	EntityIndex int     `json:",omitempty"`
	EntityName  string  `json:",omitempty"`

	ComponentType  uint16         `json:",omitempty"`
	ComponentValue *ComponentWire `json:",omitempty"`

	GroupID   *IDWire `json:",omitempty"`
	GroupName string  `json:",omitempty"`

	ExtensionID string `json:",omitempty"`
	Attached    bool   `json:",omitempty"`

	Snapshot *MetadataSnapshotWire `json:",omitempty"`
}

// MetadataSnapshotWire mirrors watcher.MetadataSnapshot.
type MetadataSnapshotWire struct {
	Devices    []DeviceMetaWire
	Groups     []GroupMetaWire
	Extensions []ExtensionMetaWire
}

// DeviceMetaWire mirrors watcher.DeviceMeta.
type DeviceMetaWire struct {
	ID     IDWire
	Name   string
	Owner  string
	Groups []IDWire
}

// GroupMetaWire mirrors watcher.GroupMeta.
type GroupMetaWire struct {
	ID      IDWire
	Name    string
	Devices []IDWire
}

// ExtensionMetaWire mirrors watcher.ExtensionMeta.
type ExtensionMetaWire struct {
	ID    string
	Index IDWire
}

// deviceIDWire/groupIDWire convert by field since DeviceID/GroupID are
// defined as arena.ID with no exported conversion method.
func deviceIDWire(id tree.DeviceID) IDWire { return IDWire{Index: id.Index, Generation: id.Generation} }
func groupIDWire(id tree.GroupID) IDWire   { return IDWire{Index: id.Index, Generation: id.Generation} }
func wireDeviceID(w IDWire) tree.DeviceID  { return tree.DeviceID{Index: w.Index, Generation: w.Generation} }
func wireGroupID(w IDWire) tree.GroupID    { return tree.GroupID{Index: w.Index, Generation: w.Generation} }

func componentWire(v component.Value) ComponentWire {
	return ComponentWire{Type: uint16(v.Kind), Bool: v.Bool, Num: v.Num, Text: v.Text}
}

func wireComponent(w ComponentWire) component.Value {
	return component.Value{Kind: component.Type(w.Type), Bool: w.Bool, Num: w.Num, Text: w.Text}
}
