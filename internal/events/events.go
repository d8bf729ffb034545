// Package events defines the event subjects published by the gateway.
package events

// Execution lifecycle subjects.
const (
	ExecutionSpawned   = "execution.spawned"
	ExecutionWarned    = "execution.warned"
	ExecutionCompleted = "execution.completed"
	ExecutionTimeout   = "execution.timeout"
	ExecutionSpawnFail = "execution.spawn_failed"
)
