package gateway

import (
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"

	"github.com/geovault/geovault/internal/supervisor"
)

// healthResponse reports process liveness plus basic host utilization.
type healthResponse struct {
	Status        string  `json:"status"`
	WorkerState   string  `json:"worker_state,omitempty"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	Goroutines    int     `json:"goroutines"`
}

// StateReporter exposes the supervisor's view of the worker, when the gateway
// runs in isolated mode.
type StateReporter interface {
	State() supervisor.State
}

// Health answers GET /health with host utilization and the worker state.
func (h *Handler) Health(reporter StateReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:     "ok",
			Goroutines: runtime.NumGoroutine(),
		}

		if percentages, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(percentages) > 0 {
			resp.CPUPercent = percentages[0]
		}
		if vm, err := mem.VirtualMemory(); err == nil {
			resp.MemoryPercent = vm.UsedPercent
		}
		if reporter != nil {
			resp.WorkerState = reporter.State().String()
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
