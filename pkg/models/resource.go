package models

// ResourceSnapshot captures host health for admission control.
type ResourceSnapshot struct {
	MemoryAvailableBytes uint64  `json:"memory_available_bytes"`
	MemoryTotalBytes     uint64  `json:"memory_total_bytes"`
	CPULoadNormalised    float64 `json:"cpu_load_normalised"`
	TemperatureCelsius   float64 `json:"temperature_celsius"`
}
