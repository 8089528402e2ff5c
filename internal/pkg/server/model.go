package server

type StatusResponse struct {
	UptimeSeconds    int64 `json:"uptime_seconds"`
	BusConnected     bool  `json:"bus_connected"`
	Discovery        bool  `json:"discovery"`
	ForcechargeBound int   `json:"forcecharge_bound"`
}

type ParameterResponse struct {
	Name        string  `json:"name"`
	Cid         int     `json:"cid"`
	TopicSuffix string  `json:"topic_suffix"`
	Unit        string  `json:"unit_of_measurement,omitempty"`
	Settable    bool    `json:"settable"`
	Implemented bool    `json:"implemented"`
	Max         *int    `json:"max,omitempty"`
	Value       *string `json:"value,omitempty"`
}

type WriteRequest struct {
	Value string `json:"value"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
