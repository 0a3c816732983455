package aquarium

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/aquariumsim/aquarium/datarecording"
	"github.com/aquariumsim/aquarium/monitoring"
	"github.com/aquariumsim/aquarium/sim"
	"github.com/aquariumsim/aquarium/simulator"
)

var runFlags = struct {
	noCache     bool
	noPipeline  bool
	maxCycles   uint64
	breakpoints []string
	seed        uint32
	record      string
	monitor     bool
	monitorPort int
	open        bool
	freqMHz     float64
}{}

// Environment variables that supply flag defaults, typically via a .env file.
const (
	envSeed        = "AQUARIUM_SEED"
	envMonitorPort = "AQUARIUM_MONITOR_PORT"
	envRecordDB    = "AQUARIUM_RECORD_DB"
)

// sampleInterval is the cycle period of recorded statistics samples.
const sampleInterval = 10000

var runCmd = &cobra.Command{
	Use:   "run <program.asm>",
	Short: "Assemble a program and execute it to completion",
	Long: `Run assembles the given Aquarium assembly source, loads the ` +
		`image into physical memory, and executes it until the program ` +
		`requests exit, a breakpoint fires, or the machine halts on an ` +
		`unhandled fault. With --monitor the run is instead controlled ` +
		`over HTTP.`,
	Args: cobra.ExactArgs(1),
	RunE: runSimulation,
}

func init() {
	f := runCmd.Flags()
	f.BoolVar(&runFlags.noCache, "no-cache", false,
		"bypass the cache, every access pays the full memory latency")
	f.BoolVar(&runFlags.noPipeline, "no-pipeline", false,
		"run one instruction through all five stages at a time")
	f.Uint64Var(&runFlags.maxCycles, "max-cycles", 0,
		"stop after this many cycles, 0 means unbounded")
	f.StringArrayVar(&runFlags.breakpoints, "breakpoint", nil,
		"stop when the instruction at this pc retires (repeatable)")
	f.Uint32Var(&runFlags.seed, "seed", 0,
		"seed of the random MMIO command stream")
	f.StringVar(&runFlags.record, "record", "",
		"record run statistics into this SQLite database")
	f.BoolVar(&runFlags.monitor, "monitor", false,
		"serve simulator state over HTTP and control the run remotely")
	f.IntVar(&runFlags.monitorPort, "monitor-port", 0,
		"port of the monitoring server, 0 picks a free one")
	f.BoolVar(&runFlags.open, "open", false,
		"open the monitoring page in a browser, implies --monitor")
	f.Float64Var(&runFlags.freqMHz, "freq", 1000,
		"clock frequency in MHz used to report simulated time")

	rootCmd.AddCommand(runCmd)
}

func applyEnvDefaults(cmd *cobra.Command) error {
	if s := os.Getenv(envSeed); s != "" && !cmd.Flags().Changed("seed") {
		v, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return fmt.Errorf("bad %s: %w", envSeed, err)
		}
		runFlags.seed = uint32(v)
	}

	if s := os.Getenv(envMonitorPort); s != "" &&
		!cmd.Flags().Changed("monitor-port") {
		v, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("bad %s: %w", envMonitorPort, err)
		}
		runFlags.monitorPort = v
	}

	if s := os.Getenv(envRecordDB); s != "" && !cmd.Flags().Changed("record") {
		runFlags.record = s
	}

	return nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	if err := applyEnvDefaults(cmd); err != nil {
		return err
	}

	image := args[0]

	s := simulator.New()
	s.Configure(simulator.Config{
		CacheEnabled:    !runFlags.noCache,
		PipelineEnabled: !runFlags.noPipeline,
		Seed:            runFlags.seed,
	})
	s.SetMaxCycles(runFlags.maxCycles)

	for _, bp := range runFlags.breakpoints {
		addr, err := strconv.ParseUint(bp, 0, 32)
		if err != nil {
			return fmt.Errorf("bad breakpoint %q: %w", bp, err)
		}
		s.SetBreakpoint(uint32(addr))
	}

	if err := s.LoadImage(image); err != nil {
		return err
	}

	var rec datarecording.DataRecorder
	if runFlags.record != "" {
		rec = datarecording.New(runFlags.record)
		sampler := datarecording.NewSampler(
			rec, s.RunID(), s.Counters(), sampleInterval)
		s.AcceptHook(sampler)
	}

	if runFlags.monitor || runFlags.open {
		return serveMonitor(s)
	}

	reason, err := s.RunUntilBreakpointOrExit()
	printSummary(s, reason)
	recordRun(rec, s, image, reason)

	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		atexit.Exit(1)
	}

	return nil
}

// serveMonitor hands run control to the HTTP monitor and blocks for the
// lifetime of the process.
func serveMonitor(s *simulator.Simulator) error {
	m := monitoring.NewMonitor().WithPortNumber(runFlags.monitorPort)
	m.RegisterSimulator(s)
	url := m.StartServer()

	if runFlags.open {
		if err := browser.OpenURL(url); err != nil {
			fmt.Fprintf(os.Stderr, "cannot open browser: %v\n", err)
		}
	}

	select {}
}

func printSummary(s *simulator.Simulator, reason simulator.StopReason) {
	st := s.Stats()
	freq := sim.Freq(runFlags.freqMHz) * sim.MHz

	fmt.Printf("stopped: %s\n", reason)
	fmt.Printf("cycles: %d (%.6fs at %.0f MHz)\n",
		st.Cycles, float64(freq.Time(st.Cycles)), runFlags.freqMHz)
	fmt.Printf("retired: %d\n", st.Retired)
	fmt.Printf("cache hit rate: %.2f%%\n", st.CacheHitRate*100)
	fmt.Printf("data hazard stalls: %d\n", st.DataHazardStalls)
	fmt.Printf("control hazard squashes: %d\n", st.ControlHazardSquashes)
	fmt.Printf("memory / cpu time: %.1f%% / %.1f%%\n",
		st.MemPercent, st.CPUPercent)

	if text := s.Snapshot().VGAText; text != "" {
		fmt.Print(text)
	}
}

func recordRun(
	rec datarecording.DataRecorder,
	s *simulator.Simulator,
	image string,
	reason simulator.StopReason,
) {
	if rec == nil {
		return
	}

	st := s.Stats()
	datarecording.RecordRun(rec, datarecording.RunRecord{
		RunID:        s.RunID(),
		Image:        image,
		Seed:         runFlags.seed,
		Cycles:       st.Cycles,
		Retired:      st.Retired,
		CacheHitRate: st.CacheHitRate,
		StopReason:   reason.String(),
	})
}
