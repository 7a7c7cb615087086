package ipc

import "hubd/component"

// CommandTag is the varu16 discriminator that follows a frame's length
// prefix (§6.1).
type CommandTag uint16

// Core command tags. WriteComponentBase is the start of the
// ComponentType-offset range used by WRITE_COMPONENT: a write's tag is
// CmdWriteComponentBase + uint16(component.Type).
const (
	CmdWhatsUpIgloo CommandTag = iota + 1
	CmdHeyBuddyYouAwake
	CmdRegisterDevice
	CmdStartDeviceTransaction
	CmdStartRegistrationTransaction
	CmdRegisterEntity
	CmdSelectEntity
	CmdDeselectEntity
	CmdEndTransaction

	// CmdExtensionLog and CmdCustomCommandError round out the command
	// set from the original igloo/floe protocol (FLOE_LOG,
	// FLOE_CUSTOM_COMMAND_ERROR): an extension forwards its own log lines
	// through the core's logger, and reports a command it can't satisfy
	// without tearing down the connection.
	CmdExtensionLog
	CmdCustomCommandError

	// CmdWriteComponentBase must stay last among fixed tags: every tag
	// from here up encodes a ComponentType offset.
	CmdWriteComponentBase
)

// WriteComponentTag returns the wire command tag for writing a component
// of type t.
func WriteComponentTag(t component.Type) CommandTag {
	return CmdWriteComponentBase + CommandTag(t)
}

// ComponentTypeOf recovers the ComponentType from a WRITE_COMPONENT tag,
// and reports whether tag was in fact in the write-component range.
func ComponentTypeOf(tag CommandTag) (component.Type, bool) {
	if tag < CmdWriteComponentBase {
		return 0, false
	}
	return component.Type(tag - CmdWriteComponentBase), true
}
