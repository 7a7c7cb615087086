package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hubd/client"
	"hubd/component"
	"hubd/dispatch"
	"hubd/hubutil"
	"hubd/ipc"
	"hubd/metrics"
	"hubd/persist"
	"hubd/query"
	"hubd/subscriber"
	"hubd/tree"
	"hubd/watcher"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the hub core: extension socket, client socket, diagnostics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

// guardedMutator serializes every extension-driven mutation through mu,
// standing in for the single-threaded event loop (§5) across the
// goroutine-per-connection model Go's net package favors.
type guardedMutator struct {
	mu *sync.Mutex
	t  *tree.Tree
}

func (g *guardedMutator) AttachExtension(id tree.ExtensionID, w tree.Writer, msic uint16, minor uint8) tree.ExtensionIndex {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.t.AttachExtension(id, w, msic, minor)
}

func (g *guardedMutator) DetachExtension(idx tree.ExtensionIndex) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.t.DetachExtension(idx)
}

func (g *guardedMutator) CreateDevice(owner tree.ExtensionIndex, name string) (tree.DeviceID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.t.CreateDevice(owner, name)
}

func (g *guardedMutator) RegisterEntity(id tree.DeviceID, name string, expectedIndex tree.EntityIndex) (tree.EntityIndex, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.t.RegisterEntity(id, name, expectedIndex)
}

func (g *guardedMutator) WriteComponents(id tree.DeviceID, entIdx tree.EntityIndex, comps []component.Component) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.t.WriteComponents(id, entIdx, comps)
}

// guardedEngine serializes client-driven queries through the same mutex,
// so a watch_value admission never races an extension write landing
// between the filter pass and the watcher's registration.
type guardedEngine struct {
	mu  *sync.Mutex
	eng *query.Engine
}

func (g *guardedEngine) Execute(q query.Query) (query.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.eng.Execute(q)
}

func (g *guardedEngine) Admit(req query.WatchRequest, sink watcher.Sink) (subscriber.WatcherID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.eng.Admit(req, sink)
}

func (g *guardedEngine) Cancel(id subscriber.WatcherID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.eng.Cancel(id)
}

func runServe() error {
	log := hubutil.NewLogger("hubd")
	defer log.Sync()
	if err := hubutil.LogSetLevel(logLevel); err != nil {
		log.Warnf("invalid log level %q: %v", logLevel, err)
	}

	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return err
	}
	if err := os.MkdirAll(extensionsDir, 0o750); err != nil {
		return err
	}

	store := persist.NewStore(dataDir)
	disp := dispatch.New()
	t := tree.New(disp, store)

	if err := persist.Restore(t, store); err != nil {
		return err
	}

	var coreMu sync.Mutex
	eng := query.New(t, disp)
	reg := metrics.New()
	disp.OnDispatch = reg.ObserveMutation

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return serveExtensions(gctx, &guardedMutator{mu: &coreMu, t: t}, log)
	})
	group.Go(func() error {
		return serveClients(gctx, eng, &coreMu, log)
	})
	group.Go(func() error {
		return serveDiagnostics(gctx, t, &coreMu, log)
	})

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	group.Go(func() error {
		select {
		case s := <-sig:
			log.Infof("signal %v received, stopping", s)
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	log.Infow("hubd started", "node_id", hubutil.GetNodeID().String())
	return group.Wait()
}

// serveExtensions discovers one working directory per extension under
// extensionsDir and listens for its floe.sock connection (§6.3). An
// extension reconnecting (process restart) gets a fresh ipc.Connection.
func serveExtensions(ctx context.Context, mutator ipc.Mutator, log *zap.SugaredLogger) error {
	entries, err := os.ReadDir(extensionsDir)
	if err != nil {
		return err
	}

	group, gctx := errgroup.WithContext(ctx)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		extID := tree.ExtensionID(e.Name())
		extDir := filepath.Join(extensionsDir, e.Name())
		sockPath := filepath.Join(extDir, "floe.sock")
		spawnExtensionIfLaunchable(extID, extDir, log)
		group.Go(func() error {
			return serveExtensionSocket(gctx, extID, sockPath, mutator, log)
		})
	}
	return group.Wait()
}

// spawnExtensionIfLaunchable starts an extension's child process when its
// working directory carries a "run" executable, so the core itself owns
// the child's lifecycle (§5's "awaiting a child process lifecycle
// transition") rather than expecting some other supervisor to have
// started it before hubd came up. An extension directory with no "run"
// file is assumed externally managed; hubd only listens on its socket.
func spawnExtensionIfLaunchable(extID tree.ExtensionID, extDir string, log *zap.SugaredLogger) {
	runPath := filepath.Join(extDir, "run")
	info, err := os.Stat(runPath)
	if err != nil || info.Mode()&0o111 == 0 {
		return
	}

	extLog, err := hubutil.NewExtensionLogger()
	if err != nil {
		log.Warnw("cannot build extension logger", "extension", extID, "error", err)
		return
	}

	child := hubutil.NewChild(runPath)
	child.Cmd.Dir = extDir
	child.LogOutputTo(string(extID)+": ", extLog)
	if err := child.Start(); err != nil {
		log.Warnw("failed to start extension", "extension", extID, "error", err)
		return
	}

	go func() {
		if err := child.Wait(); err != nil {
			log.Warnw("extension process exited", "extension", extID, "error", err)
		} else {
			log.Infow("extension process exited", "extension", extID)
		}
	}()
}

func serveExtensionSocket(ctx context.Context, extID tree.ExtensionID, sockPath string, mutator ipc.Mutator, log *zap.SugaredLogger) error {
	_ = os.Remove(sockPath)
	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go func() {
			if err := ipc.Serve(conn, extID, mutator, coreMSIC, log); err != nil {
				log.Debugw("extension connection ended", "extension", extID, "error", err)
			}
		}()
	}
}

// serveClients accepts client query connections and drives each with its
// own client.Connection, all fed by the same guardedEngine so queries
// from different sockets still serialize against tree mutations.
func serveClients(ctx context.Context, eng *query.Engine, coreMu *sync.Mutex, log *zap.SugaredLogger) error {
	ln, err := net.Listen("tcp", clientAddr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	exec := &guardedEngine{mu: coreMu, eng: eng}
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go func() {
			if err := client.Serve(conn, exec, log); err != nil {
				log.Debugw("client connection ended", "error", err)
			}
		}()
	}
}

func serveDiagnostics(ctx context.Context, t *tree.Tree, coreMu *sync.Mutex, log *zap.SugaredLogger) error {
	router := mux.NewRouter()
	router.Handle("/metrics", metrics.Handler())
	router.HandleFunc("/debug/tree", func(w http.ResponseWriter, r *http.Request) {
		coreMu.Lock()
		defer coreMu.Unlock()
		debugTreeHandler(t, w)
	})

	srv := &http.Server{Addr: diagAddr, Handler: router}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	log.Infof("diagnostics listening on %s", diagAddr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

type debugDevice struct {
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

func debugTreeHandler(t *tree.Tree, w http.ResponseWriter) {
	var devices []debugDevice
	t.IterDevices(func(id tree.DeviceID, d *tree.Device) {
		devices = append(devices, debugDevice{Name: d.Name, Owner: string(d.Owner)})
	})
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(devices)
}

func newCheckStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-state",
		Short: "load devices.json/groups.json and report whether they parse cleanly",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := persist.NewStore(dataDir)
			disp := dispatch.New()
			t := tree.New(disp, store)
			if err := persist.Restore(t, store); err != nil {
				return err
			}
			n := 0
			t.IterDevices(func(id tree.DeviceID, d *tree.Device) { n++ })
			hubutil.NewLogger("hubd").Infof("restored %d devices", n)
			return nil
		},
	}
}
