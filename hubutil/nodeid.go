package hubutil

import (
	"fmt"
	"io/ioutil"
	"sync"

	"github.com/satori/uuid"
)

const machineIDFile = "/etc/machine-id"

var (
	nodeID   = uuid.Nil
	nodeLock sync.Mutex
)

// GetNodeID reads /etc/machine-id, a 128-bit randomly generated ID unique to
// this host, and returns it in standard UUID form. Returns the nil UUID on
// any read or parse failure.
func GetNodeID() uuid.UUID {
	nodeLock.Lock()
	defer nodeLock.Unlock()

	if nodeID != uuid.Nil {
		return nodeID
	}

	file, err := ioutil.ReadFile(machineIDFile)
	if err != nil || len(file) < 32 {
		return uuid.Nil
	}

	s := string(file)
	uuidStr := fmt.Sprintf("%8s-%4s-%4s-%4s-%12s",
		s[0:8], s[8:12], s[12:16], s[16:20], s[20:32])
	parsed, err := uuid.FromString(uuidStr)
	if err != nil {
		return uuid.Nil
	}
	nodeID = parsed
	return nodeID
}
