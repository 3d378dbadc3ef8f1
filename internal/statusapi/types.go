package statusapi

import (
	"github.com/gin-gonic/gin"

	"github.com/openferry/ferry/internal/mirror"
)

const (
	CodeOk             string = "OK"
	ErrCodeBadRequest  string = "ERR_BAD_REQUEST"
	ErrCodeUnavailable string = "ERR_UNAVAILABLE"
	ErrCodeStoreError  string = "ERR_STORE_ERROR"
)

type APIError struct {
	ErrorCode string `json:"code"`
	Error     string `json:"error"`
}

func AbortWithError(c *gin.Context, status int, code string, err error) {
	c.Abort()
	c.Error(err)
	c.PureJSON(status, APIError{
		ErrorCode: code,
		Error:     err.Error(),
	})
}

// StatusResponse reports the daemon's health and running totals.
type StatusResponse struct {
	Status    string          `json:"status"`    // health status ("ok").
	Timestamp string          `json:"ts"`        // when the snapshot was taken.
	Version   string          `json:"version"`   // version of the daemon.
	Revision  string          `json:"revision"`  // revision of the daemon.
	BuildDate string          `json:"buildDate"` // build date of the daemon.
	Mirror    mirror.Snapshot `json:"mirror"`
	Process   *ProcessInfo    `json:"process,omitempty"`
}

// ProcessInfo carries resource usage of the daemon's own process.
type ProcessInfo struct {
	PID           int32   `json:"pid"`
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryPercent float32 `json:"memoryPercent"`
	MemoryRSS     uint64  `json:"memoryRss"`
	NumThreads    int32   `json:"numThreads"`
	// How long the process has been running in milliseconds
	Uptime int64 `json:"uptime"`
}

type LedgerResponse struct {
	Count int      `json:"count"`
	Paths []string `json:"paths"`
}

type ActivityResponse struct {
	Count      int                `json:"count"`
	Activities []*mirror.Activity `json:"activities"`
}

type HistoryResponse struct {
	Count   int                `json:"count"`
	Entries []*mirror.Activity `json:"entries"`
}
