package events

// Lifecycle event names emitted by the transfer engine. Payloads are plain
// strings: counters are decimal integers, progress ticks are colon-joined
// triples and the receiver file list is a JSON array of relative paths.
const (
	ImportStarted   = "import-started"
	ImportFileCount = "import-file-count"
	ImportProgress  = "import-progress"
	ImportCompleted = "import-completed"

	TransferStarted   = "transfer-started"
	TransferProgress  = "transfer-progress"
	TransferCompleted = "transfer-completed"

	ReceiveStarted   = "receive-started"
	ReceiveResumed   = "receive-resumed"
	ReceiveProgress  = "receive-progress"
	ReceiveFileNames = "receive-file-names"
	ReceiveCompleted = "receive-completed"

	ExportStarted   = "export-started"
	ExportProgress  = "export-progress"
	ExportCompleted = "export-completed"
)
