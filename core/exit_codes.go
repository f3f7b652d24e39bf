package core

// Process exit codes. Signal exits follow the shell convention of 128
// plus the signal number.
const (
	ExitCodeSuccess    = 0   // every job completed
	ExitCodeError      = 1   // the run could not start or aborted
	ExitCodeJobsFailed = 2   // the run finished with failed or cancelled jobs
	ExitCodeConfig     = 3   // invalid configuration
	ExitCodeSIGINT     = 130 // interrupted with Ctrl+C
	ExitCodeSIGTERM    = 143 // terminated
)

var exitCodeNames = map[int]string{
	ExitCodeSuccess:    "success",
	ExitCodeError:      "error",
	ExitCodeJobsFailed: "jobs failed",
	ExitCodeConfig:     "configuration error",
	ExitCodeSIGINT:     "interrupted (SIGINT)",
	ExitCodeSIGTERM:    "terminated (SIGTERM)",
}

// ExitCodeName describes code, or returns "unknown".
func ExitCodeName(code int) string {
	if name, ok := exitCodeNames[code]; ok {
		return name
	}
	return "unknown"
}

// IsSignalExit reports whether code means the process was stopped by a
// signal.
func IsSignalExit(code int) bool {
	return code == ExitCodeSIGINT || code == ExitCodeSIGTERM
}
