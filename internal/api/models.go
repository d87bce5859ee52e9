package api

// StatusData is the API projection of a pipeline snapshot.
type StatusData struct {
	State         string  `json:"state" example:"streaming" doc:"Pipeline state"`
	Streaming     bool    `json:"streaming" doc:"True while frames flow to the ingest endpoint"`
	StartTime     *string `json:"start_time" doc:"When streaming began, null when not streaming"`
	UptimeSeconds float64 `json:"uptime_seconds" doc:"Seconds since streaming began"`
	Resolution    string  `json:"resolution" example:"1920x1080" doc:"Active resolution"`
	Framerate     int     `json:"framerate" example:"30" doc:"Active framerate"`
	Bitrate       int     `json:"bitrate" example:"2500000" doc:"Target bitrate in bits per second"`
	Frames        uint64  `json:"frames" doc:"Frames delivered to the encoder since start"`
	DroppedFrames uint64  `json:"dropped_frames" doc:"Frames dropped under backpressure"`
	Restarts      uint64  `json:"restarts" doc:"Automatic restarts since start"`
	LastError     *string `json:"last_error" doc:"Most recent failure cause, null when none"`
}

// StatusResponse wraps StatusData for huma.
type StatusResponse struct {
	Body StatusData
}

// HealthData reports service liveness.
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service health"`
	Version string `json:"version" example:"dev" doc:"Build version"`
}

// HealthResponse wraps HealthData for huma.
type HealthResponse struct {
	Body HealthData
}
