package domain

import "time"

// ProgressRecord is the durable ingestion position. It is the only
// state that must survive a restart to avoid a full-range rescan.
type ProgressRecord struct {
	LastProcessedBlock uint64    `json:"last_processed_block"`
	TotalProcessed     uint64    `json:"total_processed"`
	StartTime          time.Time `json:"start_time"`
}
