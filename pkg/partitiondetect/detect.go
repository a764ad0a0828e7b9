// Package partitiondetect resolves how many workers make up a run and
// which one this process is, so a worker can build its OwnerLookup
// without a separate coordination service.
package partitiondetect

import (
	"net"
	"os"
	"strconv"
	"strings"

	"golang.org/x/xerrors"

	"github.com/vertexmesh/corestep/pkg/corestep"
)

var (
	getHostname = os.Hostname
	lookupSRV   = net.LookupSRV

	// ErrWorkerCountUnavailable is returned when SRV records for the
	// target application are not yet published.
	ErrWorkerCountUnavailable = xerrors.Errorf("no worker count available yet")
)

// Detector resolves this process's task id and the total worker count
// for the run.
type Detector interface {
	WorkerInfo() (taskID corestep.TaskID, numWorkers int, err error)
}

// FromSRVRecords detects the worker count from a headless service's SRV
// records and this process's ordinal from its StatefulSet pod hostname
// suffix. Meant to be used in conjunction with a Kubernetes StatefulSet.
type FromSRVRecords struct {
	srvName string
}

// DetectFromSRVRecords builds a FromSRVRecords detector for srvName.
func DetectFromSRVRecords(srvName string) FromSRVRecords {
	return FromSRVRecords{srvName: srvName}
}

// WorkerInfo implements Detector.
func (det FromSRVRecords) WorkerInfo() (corestep.TaskID, int, error) {
	hostname, err := getHostname()
	if err != nil {
		return -1, -1, xerrors.Errorf("worker detector: unable to detect host name: %w", err)
	}
	tokens := strings.Split(hostname, "-")
	ordinal, err := strconv.ParseInt(tokens[len(tokens)-1], 10, 32)
	if err != nil {
		return -1, -1, xerrors.Errorf("worker detector: unable to extract task ordinal from host name suffix")
	}
	_, addrs, err := lookupSRV("", "", det.srvName)
	if err != nil {
		return -1, -1, ErrWorkerCountUnavailable
	}
	return corestep.TaskID(ordinal), len(addrs), nil
}

// Fixed is a static Detector for tests and single-process runs.
type Fixed struct {
	TaskID     corestep.TaskID
	NumWorkers int
}

// WorkerInfo implements Detector.
func (det Fixed) WorkerInfo() (corestep.TaskID, int, error) {
	return det.TaskID, det.NumWorkers, nil
}
