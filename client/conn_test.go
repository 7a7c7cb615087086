package client

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hubd/query"
	"hubd/subscriber"
	"hubd/watcher"
)

type fakeExecutor struct {
	result    query.Result
	execErr   error
	admitID   subscriber.WatcherID
	admitErr  error
	admitSink watcher.Sink
	canceled  []subscriber.WatcherID
}

func (f *fakeExecutor) Execute(q query.Query) (query.Result, error) {
	return f.result, f.execErr
}

func (f *fakeExecutor) Admit(req query.WatchRequest, sink watcher.Sink) (subscriber.WatcherID, error) {
	f.admitSink = sink
	return f.admitID, f.admitErr
}

func (f *fakeExecutor) Cancel(id subscriber.WatcherID) {
	f.canceled = append(f.canceled, id)
}

func TestServeCountRequest(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	exec := &fakeExecutor{result: query.Result{Count: 3}}
	log := zap.NewNop().Sugar()

	done := make(chan error, 1)
	go func() { done <- Serve(server, exec, log) }()

	require.NoError(t, writeMessage(client, Request{ID: 1, Query: &QueryWire{Action: "count"}}))

	var resp Response
	require.NoError(t, readMessage(client, &resp))
	assert.Equal(t, uint64(1), resp.ID)
	require.NotNil(t, resp.Result)
	assert.Equal(t, 3, resp.Result.Count)

	client.Close()
	<-done
}

func TestServeExecuteErrorRepliesWithErrorWire(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	exec := &fakeExecutor{execErr: assertErr("boom")}
	log := zap.NewNop().Sugar()

	done := make(chan error, 1)
	go func() { done <- Serve(server, exec, log) }()

	require.NoError(t, writeMessage(client, Request{ID: 1, Query: &QueryWire{Action: "count"}}))

	var resp Response
	require.NoError(t, readMessage(client, &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "boom", resp.Error.Message)
	assert.Nil(t, resp.Result)

	client.Close()
	<-done
}

func TestServeWatchValueAdmitsAndReturnsWatcherID(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	exec := &fakeExecutor{admitID: 42}
	log := zap.NewNop().Sugar()

	done := make(chan error, 1)
	go func() { done <- Serve(server, exec, log) }()

	require.NoError(t, writeMessage(client, Request{ID: 1, Query: &QueryWire{Action: "watch_value", WatchKind: "metadata"}}))

	var resp Response
	require.NoError(t, readMessage(client, &resp))
	require.NotNil(t, resp.Admit)
	assert.EqualValues(t, 42, resp.Admit.WatcherID)

	client.Close()
	<-done
}

func TestServeWatchUpdateDeliveredThroughSink(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	exec := &fakeExecutor{admitID: 42}
	log := zap.NewNop().Sugar()

	done := make(chan error, 1)
	go func() { done <- Serve(server, exec, log) }()

	require.NoError(t, writeMessage(client, Request{ID: 7, Query: &QueryWire{Action: "watch_value", WatchKind: "metadata"}}))

	var admitResp Response
	require.NoError(t, readMessage(client, &admitResp))
	require.NotNil(t, exec.admitSink)

	exec.admitSink.Send(watcher.Update{Kind: watcher.UpdateMetadataDeviceCreated, DeviceName: "lamp"})

	var upd Response
	require.NoError(t, readMessage(client, &upd))
	assert.Equal(t, uint64(7), upd.ID)
	require.NotNil(t, upd.Update)
	assert.Equal(t, "device_created", upd.Update.Kind)
	assert.Equal(t, "lamp", upd.Update.DeviceName)

	client.Close()
	<-done
}

func TestServeCancelRequestCancelsWatcher(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	exec := &fakeExecutor{admitID: 99}
	log := zap.NewNop().Sugar()

	done := make(chan error, 1)
	go func() { done <- Serve(server, exec, log) }()

	require.NoError(t, writeMessage(client, Request{ID: 1, Query: &QueryWire{Action: "watch_value", WatchKind: "metadata"}}))
	var admitResp Response
	require.NoError(t, readMessage(client, &admitResp))

	require.NoError(t, writeMessage(client, Request{ID: 1, Cancel: &CancelWire{WatcherID: admitResp.Admit.WatcherID}}))
	var cancelResp Response
	require.NoError(t, readMessage(client, &cancelResp))
	require.NotNil(t, cancelResp.Result)

	assert.Equal(t, []subscriber.WatcherID{99}, exec.canceled)

	client.Close()
	<-done
}

func TestServeConnectionCloseCancelsOutstandingWatchers(t *testing.T) {
	server, client := net.Pipe()
	exec := &fakeExecutor{admitID: 7}
	log := zap.NewNop().Sugar()

	done := make(chan error, 1)
	go func() { done <- Serve(server, exec, log) }()

	require.NoError(t, writeMessage(client, Request{ID: 1, Query: &QueryWire{Action: "watch_value", WatchKind: "metadata"}}))
	var admitResp Response
	require.NoError(t, readMessage(client, &admitResp))

	client.Close()
	require.NoError(t, <-done)
	assert.Equal(t, []subscriber.WatcherID{7}, exec.canceled)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
