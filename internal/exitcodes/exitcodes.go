package exitcodes

// Exit codes for primewrap
// These codes form the contract with scripts and launchers that call the CLI
const (
	Success         = 0 // Successful execution
	InvalidConfig   = 2 // Configuration file invalid or missing
	SafetyViolation = 3 // Safety validator blocked an operation
	RuntimeError    = 4 // Runtime error during execution
	PartialFailure  = 5 // Directory toggle where some entries failed
)
