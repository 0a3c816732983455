package datarecording_test

import (
	"database/sql"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquariumsim/aquarium/asm"
	"github.com/aquariumsim/aquarium/datarecording"
	"github.com/aquariumsim/aquarium/simulator"
)

func TestSamplerRecordsDuringRun(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	rec := datarecording.NewWithDB(db)

	s := simulator.New()
	sampler := datarecording.NewSampler(rec, s.RunID(), s.Counters(), 10)
	s.AcceptHook(sampler)

	prog, err := asm.Assemble(strings.NewReader(`
.load 0x3000
movi r1 0x41
movi r2 0x2000
stb r1 r2 0
.end_section
`))
	require.NoError(t, err)
	s.LoadProgram(prog)

	reason, err := s.RunUntilBreakpointOrExit()
	require.NoError(t, err)
	require.Equal(t, simulator.StopExit, reason)

	datarecording.RecordRun(rec, datarecording.RunRecord{
		RunID:      s.RunID(),
		Cycles:     s.Stats().Cycles,
		Retired:    s.Stats().Retired,
		StopReason: reason.String(),
	})

	var samples int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM cycle_samples WHERE RunID = ?;", s.RunID(),
	).Scan(&samples))
	assert.Greater(t, samples, 0, "periodic samples were recorded")

	var runs int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM runs;").Scan(&runs))
	assert.Equal(t, 1, runs)
}
