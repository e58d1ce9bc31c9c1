package constant

type SessionState string

const (
	SessionStateIdle       SessionState = "IDLE"
	SessionStateCapturing  SessionState = "CAPTURING"
	SessionStatePaused     SessionState = "PAUSED"
	SessionStateFinalizing SessionState = "FINALIZING"
	SessionStateFailed     SessionState = "FAILED"
)

func (s SessionState) String() string {
	return string(s)
}

type RecordingStatus string

const (
	RecordingStatusActive    RecordingStatus = "ACTIVE"
	RecordingStatusFinalized RecordingStatus = "FINALIZED"
	RecordingStatusAtRisk    RecordingStatus = "AT_RISK"
)

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}
