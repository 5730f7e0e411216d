package config

type WorkerKeyStruct struct {
	ArchiveResultsQueue string
	LockEventsQueue     string
}

var WorkerKey = &WorkerKeyStruct{
	ArchiveResultsQueue: "archive_results_queue",
	LockEventsQueue:     "lock_events_queue",
}
