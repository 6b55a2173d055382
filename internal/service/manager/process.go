package manager

import (
	"context"
	"os"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/sing-box-manager/internal/logger"
)

// terminateStrayProcesses kills proxy processes left outside the service
// unit so a binary replacement cannot race a running copy. Best-effort:
// failures are logged and ignored.
func (r *runner) terminateStrayProcesses(ctx context.Context) {
	processList, err := ps.Processes()
	if err != nil {
		logger.WarnKV(ctx, "Could not list processes", "error", err)
		return
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		processID := process.Pid()
		if processID == thisProcessID {
			continue
		}

		if process.Executable() != r.cfg.BinaryName {
			continue
		}

		runningProcess, err := os.FindProcess(processID)
		if err != nil {
			logger.WarnKV(ctx, "Could not look up process", "pid", processID, "error", err)
			continue
		}

		if err = runningProcess.Kill(); err != nil {
			logger.WarnKV(ctx, "Could not terminate process", "pid", processID, "error", err)
			continue
		}

		logger.InfoKV(ctx, "Terminated stray proxy process", "pid", processID)
	}
}
