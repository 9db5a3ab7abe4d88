package app

import (
	"scrubcore.dev/config"
	"scrubcore.dev/ports"
)

// CommandKind tags the variant held by a Command.
type CommandKind uint8

const (
	CommandStartScrub CommandKind = iota
	CommandStopScrub
	CommandForceState
	CommandUpdateConfig
	CommandSaveConfig
)

// Command is an external intent routed through Service.HandleCommand: RPC
// administrative calls, button gestures, or scheduler fires all reduce to
// one of these before reaching the FSM.
type Command struct {
	Kind CommandKind

	// CommandForceState
	State ports.State

	// CommandUpdateConfig
	Config config.SystemConfig
}
