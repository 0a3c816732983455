// Package monitoring turns a running simulator into a small HTTP server so
// external tools can watch and control the machine while it runs.
package monitoring

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/aquariumsim/aquarium/simulator"
)

// Monitor serves simulator state over HTTP and forwards run control
// requests. Machine state reads go through Simulator methods that hold the
// tick mutex, so those responses describe the machine between ticks.
// Component introspection serializes the registered objects directly and
// does not take the mutex.
type Monitor struct {
	sim        *simulator.Simulator
	portNumber int
	components map[string]any

	running atomic.Bool
	runBar  *ProgressBar
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		components: make(map[string]any),
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterSimulator attaches the simulator the monitor serves.
func (m *Monitor) RegisterSimulator(s *simulator.Simulator) {
	m.sim = s

	m.RegisterComponent("simulator", s)
	m.RegisterComponent("memory", s.Memory())
	m.RegisterComponent("mmu", s.MMU())
	m.RegisterComponent("engine", s.Engine())
}

// RegisterComponent registers a named component for state inspection.
func (m *Monitor) RegisterComponent(name string, c any) {
	m.components[name] = c
}

// StartServer starts the monitor as a web server and returns its base URL.
func (m *Monitor) StartServer() string {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", url)

	go func() {
		err := http.Serve(listener, m.router())
		dieOnErr(err)
	}()

	return url
}

func (m *Monitor) router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/snapshot", m.snapshot)
	r.HandleFunc("/api/stats", m.statistics)
	r.HandleFunc("/api/registers", m.registers)
	r.HandleFunc("/api/pipeline", m.pipeline)
	r.HandleFunc("/api/cache", m.cacheState)
	r.HandleFunc("/api/memory/{addr}/{n}", m.memoryRange)
	r.HandleFunc("/api/disasm/{addr}/{n}", m.disassembly)
	r.HandleFunc("/api/step", m.step)
	r.HandleFunc("/api/run", m.run)
	r.HandleFunc("/api/pause", m.pause)
	r.HandleFunc("/api/list_components", m.listComponents)
	r.HandleFunc("/api/component/{name}", m.listComponentDetails)
	r.HandleFunc("/api/progress", m.listProgress)
	r.HandleFunc("/api/resource", m.listResources)

	return r
}

func (m *Monitor) snapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.sim.Snapshot())
}

func (m *Monitor) statistics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.sim.Stats())
}

func (m *Monitor) registers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.sim.Snapshot().Registers)
}

func (m *Monitor) pipeline(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.sim.Snapshot().Pipeline)
}

type cacheRsp struct {
	Enabled bool    `json:"enabled"`
	Valid   []uint8 `json:"valid"`
	Blocks  any     `json:"blocks"`
}

func (m *Monitor) cacheState(w http.ResponseWriter, _ *http.Request) {
	snap := m.sim.Snapshot()
	writeJSON(w, cacheRsp{
		Enabled: snap.CacheEnabled,
		Valid:   snap.CacheValid,
		Blocks:  snap.CacheBlocks,
	})
}

func (m *Monitor) memoryRange(w http.ResponseWriter, r *http.Request) {
	addr, n, ok := parseRangeVars(w, r)
	if !ok {
		return
	}

	writeJSON(w, m.sim.MemoryRange(addr, n))
}

func (m *Monitor) disassembly(w http.ResponseWriter, r *http.Request) {
	addr, n, ok := parseRangeVars(w, r)
	if !ok {
		return
	}

	writeJSON(w, m.sim.Disassemble(addr, n))
}

func parseRangeVars(
	w http.ResponseWriter,
	r *http.Request,
) (addr uint32, n int, ok bool) {
	vars := mux.Vars(r)

	addr64, err := strconv.ParseUint(vars["addr"], 0, 32)
	if err != nil {
		http.Error(w, "bad address: "+err.Error(), http.StatusBadRequest)
		return 0, 0, false
	}

	count, err := strconv.Atoi(vars["n"])
	if err != nil || count < 0 || count > 1<<20 {
		http.Error(w, "bad count", http.StatusBadRequest)
		return 0, 0, false
	}

	return uint32(addr64), count, true
}

type stepRsp struct {
	Halted  bool   `json:"halted"`
	HaltMsg string `json:"halt_msg,omitempty"`
}

func (m *Monitor) step(w http.ResponseWriter, _ *http.Request) {
	if m.running.Load() {
		http.Error(w, "simulation is running", http.StatusConflict)
		return
	}

	rsp := stepRsp{}
	if err := m.sim.Step(); err != nil {
		rsp.Halted = true
		rsp.HaltMsg = err.Error()
	}

	writeJSON(w, rsp)
}

type runRsp struct {
	StopReason string `json:"stop_reason"`
	HaltMsg    string `json:"halt_msg,omitempty"`
}

func (m *Monitor) run(w http.ResponseWriter, _ *http.Request) {
	if !m.running.CompareAndSwap(false, true) {
		http.Error(w, "simulation is already running", http.StatusConflict)
		return
	}

	m.runBar = newProgressBar("run "+m.sim.RunID(), 0)

	go func() {
		defer m.running.Store(false)

		reason, err := m.sim.RunUntilBreakpointOrExit()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Simulation halted: %v\n", err)
		}

		m.runBar.Finish()
		fmt.Fprintf(os.Stderr, "Simulation stopped: %s\n", reason)
	}()

	w.WriteHeader(http.StatusAccepted)
}

func (m *Monitor) pause(w http.ResponseWriter, _ *http.Request) {
	m.sim.Stop()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) listComponents(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(m.components))
	for name := range m.components {
		names = append(names, name)
	}

	writeJSON(w, names)
}

func (m *Monitor) listComponentDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	component, found := m.components[name]
	if !found {
		http.Error(w, "Component not found", http.StatusNotFound)
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(component)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

func (m *Monitor) listProgress(w http.ResponseWriter, _ *http.Request) {
	bars := []*ProgressBar{}
	if m.runBar != nil {
		m.runBar.SetFinished(m.sim.Stats().Cycles)
		bars = append(bars, m.runBar)
	}

	writeJSON(w, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	proc, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := proc.CPUPercent()
	dieOnErr(err)

	memInfo, err := proc.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memInfo.RSS,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")

	bytes, err := json.Marshal(v)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
