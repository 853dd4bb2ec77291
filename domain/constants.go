package domain

const (
	// Pub/Sub Channels
	ChannelSchedulerRequests = "scheduler-requests"
	ChannelWorkerResults     = "worker-results"

	// Failed messages are pushed to "<channel>-dlq" lists.
	DeadLetterSuffix = "-dlq"

	// Message Types (request channel)
	MsgAvailabilityRequest        = "availability_request"
	MsgQueueAllAvailabilityChecks = "queue_all_availability_checks"

	// Message Types (result channel)
	MsgAvailabilityResult    = "availability_result"
	MsgCatalogCardNames      = "catalog_card_names_result"
	MsgCatalogSetData        = "catalog_set_data_result"
	MsgCatalogFinishesChunk  = "catalog_finishes_chunk_result"
	MsgCatalogPrintingsChunk = "catalog_printings_chunk_result"
	MsgJobRetryNotice        = "job_retry_notice"

	// Redis Key Patterns
	RedisKeyAvailability  = "availability:%s:%s" // store slug, card name
	RedisKeySnapshot      = "%s_availability"    // context (username or "system")
	RedisKeyLastUpdate    = "last_availability_update"
	RedisKeyCardNames     = "catalog_card_names"
	RedisKeyScheduledJobs = "scheduled-jobs"

	// SystemContext is the shared snapshot context used for system-wide sweeps.
	SystemContext = "system"

	// Task IDs
	TaskUpdateSingleCard  = "update_availability_single_card"
	TaskUpdateWantedCards = "update_wanted_cards_availability"
	TaskUpdateCardCatalog = "update_card_catalog"
	TaskUpdateSetCatalog  = "update_set_catalog"
	TaskUpdateFullCatalog = "update_full_catalog"

	// UI-facing event names (delivered by the Notifier collaborator)
	EventAvailabilityChanged     = "availability_changed"
	EventCardAvailabilityData    = "card_availability_data"
	EventAvailabilityCheckQueued = "availability_check_started"

	// FinishAny is the sentinel that bypasses finish filtering.
	FinishAny = "any"
)
