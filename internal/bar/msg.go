package bar

// ControlMsg is a control event consumed by the bar's run loop.
type ControlMsg int

const (
	// MsgRefresh asks the bar to re-emit the body frame if it changed.
	MsgRefresh ControlMsg = iota

	// MsgReload asks the bar to reload its configuration and rebuild
	// the block set.
	MsgReload

	// MsgShutdown asks the bar to stop all blocks and exit the run
	// loop.
	MsgShutdown
)

func (m ControlMsg) String() string {
	switch m {
	case MsgRefresh:
		return "refresh"
	case MsgReload:
		return "reload"
	case MsgShutdown:
		return "shutdown"
	}
	return "unknown"
}
