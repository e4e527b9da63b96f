package worker

// CardGenerationNotifyMessage is the websocket payload pushed over redis
// pub/sub when a share-card render finishes. Field names match what the
// frontend parses.
type CardGenerationNotifyMessage struct {
	Status        string `json:"status"`
	ProfileID     uint   `json:"profile_id"`
	CorrelationID string `json:"correlation_id"`
	DownloadURL   string `json:"download_url,omitempty"`
	ErrorCode     int    `json:"error_code"`
	ErrorMessage  string `json:"error_message"`
}
