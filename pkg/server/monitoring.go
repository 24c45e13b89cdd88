package server

import (
	"sync"
	"time"
)

// MonitoringInfo represents server monitoring data
type MonitoringInfo struct {
	QueriesCurrentHour  int     `json:"queries_current_hour"`
	QueriesLast24H      int     `json:"queries_last_24h"`
	UptimeStart         string  `json:"uptime_start"`
	ResponseTimeAvgMs   float64 `json:"response_time_avg_ms"`
	ErrorRatePercent    float64 `json:"error_rate_percent"`
	ActiveNoiseSessions int     `json:"active_noise_sessions"`
}

// MonitoringTracker tracks server performance metrics
type MonitoringTracker struct {
	mu                 sync.RWMutex
	startTime          time.Time
	queriesCurrentHour int
	queriesLast24H     int
	currentHour        int
	hourlyQueries      [24]int // Rolling 24-hour window
	responseTimes      []float64
	errorCount         int
	totalRequests      int
}

// NewMonitoringTracker creates a new monitoring tracker
func NewMonitoringTracker() *MonitoringTracker {
	return &MonitoringTracker{
		startTime:   time.Now(),
		currentHour: time.Now().Hour(),
	}
}

// RecordRequest records a successful request with response time
func (m *MonitoringTracker) RecordRequest(responseTimeMs float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hour := time.Now().Hour()

	// Check if we've moved to a new hour
	if hour != m.currentHour {
		hoursElapsed := (hour - m.currentHour + 24) % 24
		for i := 0; i < hoursElapsed; i++ {
			m.shiftHourlyQueries()
		}
		m.currentHour = hour
		m.queriesCurrentHour = 0
	}

	m.queriesCurrentHour++
	m.hourlyQueries[hour]++
	m.totalRequests++

	// Track response time (keep last 1000 for average)
	m.responseTimes = append(m.responseTimes, responseTimeMs)
	if len(m.responseTimes) > 1000 {
		m.responseTimes = m.responseTimes[1:]
	}

	// Recalculate 24-hour total
	m.queriesLast24H = 0
	for _, count := range m.hourlyQueries {
		m.queriesLast24H += count
	}
}

// RecordError records an error
func (m *MonitoringTracker) RecordError() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.errorCount++
	m.totalRequests++
}

// GetMonitoringInfo returns current monitoring information
func (m *MonitoringTracker) GetMonitoringInfo() *MonitoringInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var avgResponseTime float64
	if len(m.responseTimes) > 0 {
		sum := 0.0
		for _, rt := range m.responseTimes {
			sum += rt
		}
		avgResponseTime = sum / float64(len(m.responseTimes))
	}

	var errorRate float64
	if m.totalRequests > 0 {
		errorRate = (float64(m.errorCount) / float64(m.totalRequests)) * 100
	}

	return &MonitoringInfo{
		QueriesCurrentHour: m.queriesCurrentHour,
		QueriesLast24H:     m.queriesLast24H,
		UptimeStart:        m.startTime.Format(time.RFC3339),
		ResponseTimeAvgMs:  avgResponseTime,
		ErrorRatePercent:   errorRate,
	}
}

// shiftHourlyQueries shifts the hourly queries array by one hour
func (m *MonitoringTracker) shiftHourlyQueries() {
	copy(m.hourlyQueries[:], m.hourlyQueries[1:])
	m.hourlyQueries[23] = 0
}
