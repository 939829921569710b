package logger

// Component name constants for standardized logging
const (
	// Core components
	ComponentCore       = "Core"
	ComponentController = "Controller"
	ComponentReporter   = "Reporter"
	ComponentDispatch   = "Dispatch"
	ComponentSCM        = "SCM"

	// State machine
	ComponentFSM = "FSM"

	// Supporting services
	ComponentEventLog    = "EventLog"
	ComponentHostMonitor = "HostMonitor"
	ComponentWatchdog    = "Watchdog"
	ComponentHTTPAPI     = "HTTPAPI"
	ComponentFilesystem  = "Filesystem"

	// Configuration
	ComponentConfigManager = "ConfigManager"
)
