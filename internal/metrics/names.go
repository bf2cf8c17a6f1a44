package metrics

// Whisper dispatch metric names
const (
	WhispersEnqueued       = "whispers_enqueued_total"
	WhispersDroppedFrozen  = "whispers_dropped_frozen_total"
	WhispersTaken          = "whispers_taken_total"
	WhispersSent           = "whispers_sent_total"
	WhisperSendFailures    = "whisper_send_failures_total"
	WhisperRollovers       = "whisper_rollovers_total"
	WhisperStoreErrors     = "whisper_store_errors_total"
	WhisperQueueFreezes    = "whisper_queue_freezes_total"
	WhisperBacklogSize     = "whisper_backlog_size"
	WhisperSendDuration    = "whisper_send_duration"
	WhisperAdmissionDenied = "whisper_admission_denied_total"
	WhisperTicksSkipped    = "whisper_ticks_skipped_total"
)

// HTTP metric names
const (
	HTTPRequests        = "http_requests_total"
	HTTPResponses       = "http_responses_total"
	HTTPRequestDuration = "http_request_duration"
)
