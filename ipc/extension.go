package ipc

import (
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"hubd/component"
	"hubd/hubutil"
	"hubd/treeerr"
	"hubd/tree"
)

// Mutator is the subset of the mutation API (§4.3) an extension
// connection drives. *tree.Tree satisfies it directly.
type Mutator interface {
	AttachExtension(id tree.ExtensionID, w tree.Writer, msic uint16, minor uint8) tree.ExtensionIndex
	DetachExtension(idx tree.ExtensionIndex) error
	CreateDevice(owner tree.ExtensionIndex, name string) (tree.DeviceID, error)
	RegisterEntity(id tree.DeviceID, name string, expectedIndex tree.EntityIndex) (tree.EntityIndex, error)
	WriteComponents(id tree.DeviceID, entIdx tree.EntityIndex, comps []component.Component) error
}

// Connection drives one extension's socket: decodes frames in arrival
// order (§5 FIFO-per-extension) and translates them into Mutator calls.
// It owns the transaction/selection state a single extension socket
// carries between frames.
type Connection struct {
	conn     net.Conn
	mutator  Mutator
	extID    tree.ExtensionID
	extIdx   tree.ExtensionIndex
	coreMSIC uint16
	log      *zap.SugaredLogger
	tlog     *hubutil.ThrottledLogger

	devices map[uint32]tree.DeviceID

	inTxn       bool
	hasDevice   bool
	curDevice   uint32
	hasEntity   bool
	curEntity   uint32
}

// Serve drives conn to completion: handshake, then a decode loop until the
// socket closes or a protocol error forces a detach. It always returns
// after the extension has been detached (if it was ever attached).
func Serve(conn net.Conn, extID tree.ExtensionID, mutator Mutator, coreMSIC uint16, log *zap.SugaredLogger) error {
	c := &Connection{
		conn:     conn,
		mutator:  mutator,
		extID:    extID,
		coreMSIC: coreMSIC,
		log:      log,
		tlog:     hubutil.GetThrottledLogger(log, time.Second, time.Minute),
		devices:  make(map[uint32]tree.DeviceID),
	}
	return c.serve()
}

func (c *Connection) serve() error {
	first, err := ReadFrame(c.conn)
	if err != nil {
		return err
	}
	if first.Command != CmdWhatsUpIgloo {
		c.log.Warnw("extension handshake violation", "extension", c.extID)
		return treeerr.ErrHandshakeRequired
	}
	hs, err := DecodeHandshake(first.Payload)
	if err != nil {
		return err
	}

	writer := NewConnWriter(c.conn)
	c.extIdx = c.mutator.AttachExtension(c.extID, writer, hs.MSIC, hs.MinorVersion)

	reply := Frame{Command: CmdHeyBuddyYouAwake, Payload: EncodeHandshake(Handshake{MSIC: c.coreMSIC})}
	if err := WriteFrame(c.conn, reply); err != nil {
		c.mutator.DetachExtension(c.extIdx)
		return err
	}

	for {
		frame, err := ReadFrame(c.conn)
		if err != nil {
			if err == io.EOF {
				c.mutator.DetachExtension(c.extIdx)
				return nil
			}
			c.tlog.Warnf("extension %s protocol error: %v", c.extID, err)
			c.mutator.DetachExtension(c.extIdx)
			return err
		}
		if err := c.handle(frame); err != nil {
			c.tlog.Warnf("extension %s protocol error: %v", c.extID, err)
			c.mutator.DetachExtension(c.extIdx)
			return err
		}
	}
}

func (c *Connection) handle(f Frame) error {
	if ct, ok := ComponentTypeOf(f.Command); ok {
		return c.handleWriteComponent(ct, f.Payload)
	}

	switch f.Command {
	case CmdRegisterDevice:
		return c.handleRegisterDevice(f.Payload)
	case CmdStartDeviceTransaction, CmdStartRegistrationTransaction:
		c.inTxn = true
		return nil
	case CmdEndTransaction:
		if !c.inTxn {
			return treeerr.ErrOutOfOrderTxn
		}
		c.inTxn = false
		return nil
	case CmdRegisterEntity:
		return c.handleRegisterEntity(f.Payload)
	case CmdSelectEntity:
		return c.handleSelectEntity(f.Payload)
	case CmdDeselectEntity:
		c.hasEntity = false
		c.hasDevice = false
		return nil
	case CmdExtensionLog:
		msg, _, err := ReadUint32Prefixed(f.Payload)
		if err != nil {
			return err
		}
		c.log.Infow("extension log", "extension", c.extID, "message", msg)
		return nil
	case CmdCustomCommandError:
		msg, _, err := ReadUint32Prefixed(f.Payload)
		if err != nil {
			return err
		}
		c.log.Warnw("extension reported custom command error", "extension", c.extID, "message", msg)
		return nil
	default:
		return treeerr.ErrUnknownComponentType
	}
}

func (c *Connection) handleRegisterDevice(payload []byte) error {
	rd, err := DecodeRegisterDevice(payload)
	if err != nil {
		return err
	}
	did, err := c.mutator.CreateDevice(c.extIdx, rd.Name)
	if err != nil {
		return err
	}
	localIdx := uint32(len(c.devices))
	c.devices[localIdx] = did

	for i, name := range rd.EntityNames {
		if _, err := c.mutator.RegisterEntity(did, name, tree.EntityIndex(i)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Connection) handleRegisterEntity(payload []byte) error {
	re, err := DecodeRegisterEntity(payload)
	if err != nil {
		return err
	}
	did, ok := c.devices[re.DeviceIndex]
	if !ok {
		return treeerr.ErrDeviceNotFound
	}
	_, err = c.mutator.RegisterEntity(did, re.Name, tree.EntityIndex(re.EntityIndex))
	return err
}

func (c *Connection) handleSelectEntity(payload []byte) error {
	devIdx, n, err := DecodeVarint(payload)
	if err != nil {
		return treeerr.ErrMalformedFrame
	}
	payload = payload[n:]
	entIdx, _, err := DecodeVarint(payload)
	if err != nil {
		return treeerr.ErrMalformedFrame
	}
	if _, ok := c.devices[devIdx]; !ok {
		return treeerr.ErrDeviceNotFound
	}
	c.curDevice = devIdx
	c.hasDevice = true
	c.curEntity = entIdx
	c.hasEntity = true
	return nil
}

func (c *Connection) handleWriteComponent(t component.Type, payload []byte) error {
	if !c.hasDevice || !c.hasEntity {
		return treeerr.ErrEntityNotFound
	}
	if uint16(t) > c.coreMSIC {
		return treeerr.ErrComponentPastMSIC
	}
	comp, err := DecodeComponent(t, payload)
	if err != nil {
		return err
	}
	did := c.devices[c.curDevice]
	return c.mutator.WriteComponents(did, tree.EntityIndex(c.curEntity), []component.Component{comp})
}
