package ipc

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hubd/component"
	"hubd/tree"
)

// fakeMutator records every call a Connection makes against the mutation
// API, so protocol-level tests can assert on translated calls rather than
// spinning up a real Tree.
type fakeMutator struct {
	attached  bool
	detached  bool
	nextDevID tree.DeviceID
	devices   []string
	entities  map[tree.DeviceID][]string
	writes    []component.Component
	writeErr  error
}

func newFakeMutator() *fakeMutator {
	return &fakeMutator{nextDevID: tree.DeviceID{Index: 1}, entities: make(map[tree.DeviceID][]string)}
}

func (m *fakeMutator) AttachExtension(id tree.ExtensionID, w tree.Writer, msic uint16, minor uint8) tree.ExtensionIndex {
	m.attached = true
	return tree.ExtensionIndex{}
}

func (m *fakeMutator) DetachExtension(idx tree.ExtensionIndex) error {
	m.detached = true
	return nil
}

func (m *fakeMutator) CreateDevice(owner tree.ExtensionIndex, name string) (tree.DeviceID, error) {
	id := m.nextDevID
	m.nextDevID.Index++
	m.devices = append(m.devices, name)
	return id, nil
}

func (m *fakeMutator) RegisterEntity(id tree.DeviceID, name string, expectedIndex tree.EntityIndex) (tree.EntityIndex, error) {
	m.entities[id] = append(m.entities[id], name)
	return expectedIndex, nil
}

func (m *fakeMutator) WriteComponents(id tree.DeviceID, entIdx tree.EntityIndex, comps []component.Component) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes = append(m.writes, comps...)
	return nil
}

func encodeRegisterDevice(name string, entityNames ...string) []byte {
	var localID [16]byte
	buf := append([]byte{}, localID[:]...)
	buf = PutUint32Prefixed(buf, name)
	buf = PutVarint(buf, uint32(len(entityNames)))
	for _, n := range entityNames {
		buf = PutUint32Prefixed(buf, n)
	}
	return buf
}

func TestServeHandshakeAttachesExtension(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	mutator := newFakeMutator()
	log := zap.NewNop().Sugar()

	done := make(chan error, 1)
	go func() { done <- Serve(server, "ext-1", mutator, 63, log) }()

	require.NoError(t, WriteFrame(client, Frame{
		Command: CmdWhatsUpIgloo,
		Payload: EncodeHandshake(Handshake{MSIC: 40, MinorVersion: 1}),
	}))

	reply, err := ReadFrame(client)
	require.NoError(t, err)
	assert.Equal(t, CmdHeyBuddyYouAwake, reply.Command)
	hs, err := DecodeHandshake(reply.Payload)
	require.NoError(t, err)
	assert.EqualValues(t, 63, hs.MSIC)

	assert.True(t, mutator.attached)

	client.Close()
	<-done
	assert.True(t, mutator.detached)
}

func TestServeRegisterDeviceAndWriteComponent(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	mutator := newFakeMutator()
	log := zap.NewNop().Sugar()

	done := make(chan error, 1)
	go func() { done <- Serve(server, "ext-1", mutator, 63, log) }()

	require.NoError(t, WriteFrame(client, Frame{Command: CmdWhatsUpIgloo, Payload: EncodeHandshake(Handshake{MSIC: 40})}))
	_, err := ReadFrame(client)
	require.NoError(t, err)

	require.NoError(t, WriteFrame(client, Frame{
		Command: CmdRegisterDevice,
		Payload: encodeRegisterDevice("lamp", "bulb"),
	}))

	selPayload := PutVarint(nil, 0)
	selPayload = PutVarint(selPayload, 0)
	require.NoError(t, WriteFrame(client, Frame{Command: CmdSelectEntity, Payload: selPayload}))

	writeTag := WriteComponentTag(component.TypeSwitch)
	require.NoError(t, WriteFrame(client, Frame{Command: writeTag, Payload: EncodeComponent(component.Component{Type: component.TypeSwitch, Bool: true})}))

	client.Close()
	<-done

	require.Len(t, mutator.devices, 1)
	assert.Equal(t, "lamp", mutator.devices[0])
	require.Len(t, mutator.writes, 1)
	assert.True(t, mutator.writes[0].Bool)
}

func TestServeWriteComponentPastMSICDetaches(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	mutator := newFakeMutator()
	log := zap.NewNop().Sugar()

	done := make(chan error, 1)
	go func() { done <- Serve(server, "ext-1", mutator, 2, log) }()

	require.NoError(t, WriteFrame(client, Frame{Command: CmdWhatsUpIgloo, Payload: EncodeHandshake(Handshake{MSIC: 2})}))
	_, err := ReadFrame(client)
	require.NoError(t, err)

	require.NoError(t, WriteFrame(client, Frame{Command: CmdRegisterDevice, Payload: encodeRegisterDevice("lamp")}))
	selPayload := PutVarint(nil, 0)
	selPayload = PutVarint(selPayload, 0)
	require.NoError(t, WriteFrame(client, Frame{Command: CmdSelectEntity, Payload: selPayload}))

	writeTag := WriteComponentTag(component.TypeTextList)
	require.NoError(t, WriteFrame(client, Frame{Command: writeTag, Payload: nil}))

	err = <-done
	assert.Error(t, err)
	assert.True(t, mutator.detached)
	assert.Empty(t, mutator.writes)
}
