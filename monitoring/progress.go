package monitoring

import (
	"sync"
	"time"

	"github.com/aquariumsim/aquarium/sim"
)

// A ProgressBar tracks the progress of one long-running operation, such as
// a free run of the simulator. Total may be zero for unbounded runs.
type ProgressBar struct {
	sync.Mutex
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	Total     uint64    `json:"total"`
	Finished  uint64    `json:"finished"`
	Done      bool      `json:"done"`
}

func newProgressBar(name string, total uint64) *ProgressBar {
	return &ProgressBar{
		ID:        sim.GetIDGenerator().Generate(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}
}

// SetFinished records the amount of completed work.
func (b *ProgressBar) SetFinished(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.Finished = amount
}

// Finish marks the operation complete.
func (b *ProgressBar) Finish() {
	b.Lock()
	defer b.Unlock()

	b.Done = true
}
