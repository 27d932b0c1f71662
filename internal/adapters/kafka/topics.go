package kafka

// Topic definitions for Kafka event streaming
const (
	// Analysis lifecycle events
	TopicAnalysisCompleted = "stocksense.analysis.completed"
	TopicDebateCompleted   = "stocksense.debate.completed"

	// Kill criteria alerts
	TopicAlerts = "stocksense.alerts"
)
