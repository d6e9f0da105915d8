package port

// OperationRecorder counts coordinator outcomes.
type OperationRecorder interface {
	RecordOperation(operation, outcome string)
}
