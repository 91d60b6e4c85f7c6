package types

type AgentStatus string

const (
	StatusIdle       AgentStatus = "idle"
	StatusThinking   AgentStatus = "thinking"
	StatusGenerating AgentStatus = "generating"
	StatusEditing    AgentStatus = "editing"
	StatusAnalyzing  AgentStatus = "analyzing"
	StatusProducing  AgentStatus = "producing"
)
