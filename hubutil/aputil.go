package hubutil

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"syscall"

	"go.uber.org/zap"
)

// Child tracks a launched extension child process: its command, its pipes,
// and (once it dies) whatever exit state the supervisor needs.
type Child struct {
	Cmd     *exec.Cmd
	Process *os.Process

	pipes  int
	done   chan bool
	logger *zap.SugaredLogger
	prefix string
}

func handlePipe(c *Child, r io.ReadCloser) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if c.logger != nil {
			c.logger.Infof("%s%s", c.prefix, scanner.Text())
		}
	}
	c.done <- true
}

// Start launches a prepared child process.
func (c *Child) Start() error {
	err := c.Cmd.Start()
	if err == nil {
		c.Process = c.Cmd.Process
	}
	return err
}

// Wait blocks until the child's stdout/stderr pipes close and the process
// itself exits.
func (c *Child) Wait() error {
	for c.pipes > 0 {
		<-c.done
		c.pipes--
	}
	return c.Cmd.Wait()
}

// SetUID launches the child under different credentials than the
// supervising daemon.
func (c *Child) SetUID(uid, gid uint32) {
	c.Cmd.SysProcAttr = &syscall.SysProcAttr{
		Credential: &syscall.Credential{Uid: uid, Gid: gid},
	}
}

// LogOutputTo captures the child's stdout/stderr through the given
// extension-tagged logger.
func (c *Child) LogOutputTo(prefix string, logger *zap.SugaredLogger) {
	c.logger = logger
	c.prefix = prefix
	c.pipes = 0
	c.done = make(chan bool)

	if stdout, err := c.Cmd.StdoutPipe(); err == nil {
		c.pipes++
		go handlePipe(c, stdout)
	}
	if stderr, err := c.Cmd.StderrPipe(); err == nil {
		c.pipes++
		go handlePipe(c, stderr)
	}
}

// NewChild instantiates the tracking structure for a child process, ready
// to Start.
func NewChild(execpath string, args ...string) *Child {
	var c Child
	c.Cmd = exec.Command(execpath, args...)
	return &c
}

// FileExists reports whether the path exists.
func FileExists(filename string) bool {
	_, err := os.Stat(filename)
	return !os.IsNotExist(err)
}
