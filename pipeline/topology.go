// Package pipeline assembles a linear chain of scaffolds and the worker
// stages between them into a runnable topology, deriving every socket
// address from a stage count the way hpc_pipeline.py derives its ports,
// c_ports and s_ports argument lists from n_exw/n_inw/n_tocsvw and the
// number of intermediate Collators.
package pipeline

import "fmt"

// Topology holds every address a linear pipeline of N worker stages (and
// therefore N-1 Collators between them, plus one Ventilator and one Sink)
// needs. Addresses are 127.0.0.1 loopback TCP ports starting at BasePort,
// assigned in the same relative order hpc_pipeline.py builds its ports,
// c_ports and s_ports slices.
type Topology struct {
	// StageNames labels each worker stage, e.g. "exw", "inw", "tocsvw".
	StageNames []string

	// Ports holds 2*(len(StageNames)-1)+2 data-plane addresses: Ports[0]
	// is the Ventilator's bind address (stage 0's Pull-connect target),
	// Ports[2i+1] and Ports[2i+2] are Collator i's pull-bind and
	// push-bind addresses, and Ports[len(Ports)-1] is the Sink's
	// pull-bind address.
	Ports []string

	// ControlPorts holds len(StageNames) control-plane addresses:
	// ControlPorts[i] is the address stage i's workers subscribe to,
	// which is also the control-pub address of the scaffold immediately
	// downstream of stage i (the Collator receiving its output, or the
	// Sink for the final stage).
	ControlPorts []string

	// CountPorts holds len(StageNames) scaffold-to-scaffold Pair
	// addresses: CountPorts[0] is the Ventilator's bound count Pair,
	// CountPorts[i] for 0<i<len(StageNames) is Collator i-1's bound
	// count Pair, and the Sink connects to CountPorts[len-1].
	CountPorts []string
}

// NewTopology derives a Topology for a chain of len(stageNames) worker
// stages, assigning sequential loopback ports starting at basePort.
func NewTopology(basePort int, stageNames []string) (*Topology, error) {
	if len(stageNames) < 1 {
		return nil, fmt.Errorf("pipeline: topology needs at least one worker stage")
	}

	n := len(stageNames)
	port := basePort

	next := func() string {
		addr := fmt.Sprintf("127.0.0.1:%d", port)
		port++
		return addr
	}

	ports := make([]string, 2*(n-1)+2)
	for i := range ports {
		ports[i] = next()
	}

	controlPorts := make([]string, n)
	for i := range controlPorts {
		controlPorts[i] = next()
	}

	countPorts := make([]string, n)
	for i := range countPorts {
		countPorts[i] = next()
	}

	return &Topology{StageNames: stageNames, Ports: ports, ControlPorts: controlPorts, CountPorts: countPorts}, nil
}

// StagePull is the address worker stage i's Puller connects to.
func (t *Topology) StagePull(i int) string { return t.Ports[2*i] }

// StagePush is the address worker stage i's Pusher connects to.
func (t *Topology) StagePush(i int) string { return t.Ports[2*i+1] }

// StageControl is the address worker stage i's Subscriber connects to.
func (t *Topology) StageControl(i int) string { return t.ControlPorts[i] }

// CollatorPull is the bind address for the Collator following worker
// stage i (there are len(StageNames)-1 Collators, indexed 0..n-2).
func (t *Topology) CollatorPull(i int) string { return t.Ports[2*i+1] }

// CollatorPush is the bind address for the Collator following worker
// stage i.
func (t *Topology) CollatorPush(i int) string { return t.Ports[2*i+2] }

// VentilatorPush is the Ventilator's bind address.
func (t *Topology) VentilatorPush() string { return t.Ports[0] }

// SinkPull is the Sink's bind address.
func (t *Topology) SinkPull() string { return t.Ports[len(t.Ports)-1] }

// VentilatorCount is the Ventilator's bound count Pair address.
func (t *Topology) VentilatorCount() string { return t.CountPorts[0] }

// CollatorCountConnect is the count Pair address Collator i connects to
// (its predecessor's bound count Pair).
func (t *Topology) CollatorCountConnect(i int) string { return t.CountPorts[i] }

// CollatorCountBind is the count Pair address Collator i binds for its
// successor to connect to.
func (t *Topology) CollatorCountBind(i int) string { return t.CountPorts[i+1] }

// SinkCountConnect is the count Pair address the Sink connects to.
func (t *Topology) SinkCountConnect() string { return t.CountPorts[len(t.CountPorts)-1] }
