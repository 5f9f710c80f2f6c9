package persistence

var (
	OperationTotal     = operationTotal
	WriteEntriesTotal  = writeEntriesTotal
	StreamItemsTotal   = streamItemsTotal
	CheckpointLogPages = checkpointLogPages
)
