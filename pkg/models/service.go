package models

// HealthStatus is the body of GET /health
type HealthStatus struct {
	Status    string  `json:"status"`
	Service   string  `json:"service"`
	Uptime    float64 `json:"uptime"`
	Timestamp string  `json:"timestamp"`
}

// ServiceInfo is the banner served at GET /
type ServiceInfo struct {
	Status    string            `json:"status"`
	Message   string            `json:"message"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Endpoints map[string]string `json:"endpoints"`
}

// HelloResponse is the body of GET /api/hello
type HelloResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}
