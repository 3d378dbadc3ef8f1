package statusapi

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/openferry/ferry/internal/mirror"
	"github.com/openferry/ferry/internal/version"
)

const defaultHistoryLimit = 50

// Source is what the API reads from. *mirror.Manager satisfies it.
type Source interface {
	Status() mirror.Snapshot
	RecentActivity() []*mirror.Activity
	HistoryEntries(limit int) ([]*mirror.Activity, error)
	LedgerPaths() []string
}

// Handler serves the read-only mirror endpoints.
type Handler struct {
	src Source
}

func NewHandler(src Source) *Handler {
	return &Handler{src: src}
}

func (h *Handler) Status(c *gin.Context) {
	if h.src == nil {
		c.PureJSON(http.StatusServiceUnavailable, &APIError{
			ErrorCode: ErrCodeUnavailable,
			Error:     "mirror manager not initialized",
		})
		return
	}

	c.PureJSON(http.StatusOK, &StatusResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   version.Version,
		Revision:  version.Revision,
		BuildDate: version.BuildDate,
		Mirror:    h.src.Status(),
		Process:   selfProcessInfo(),
	})
}

func (h *Handler) Ledger(c *gin.Context) {
	if h.src == nil {
		c.PureJSON(http.StatusServiceUnavailable, &APIError{
			ErrorCode: ErrCodeUnavailable,
			Error:     "mirror manager not initialized",
		})
		return
	}

	paths := h.src.LedgerPaths()
	c.PureJSON(http.StatusOK, &LedgerResponse{
		Count: len(paths),
		Paths: paths,
	})
}

func (h *Handler) Activity(c *gin.Context) {
	if h.src == nil {
		c.PureJSON(http.StatusServiceUnavailable, &APIError{
			ErrorCode: ErrCodeUnavailable,
			Error:     "mirror manager not initialized",
		})
		return
	}

	activities := h.src.RecentActivity()
	c.PureJSON(http.StatusOK, &ActivityResponse{
		Count:      len(activities),
		Activities: activities,
	})
}

func (h *Handler) History(c *gin.Context) {
	if h.src == nil {
		c.PureJSON(http.StatusServiceUnavailable, &APIError{
			ErrorCode: ErrCodeUnavailable,
			Error:     "mirror manager not initialized",
		})
		return
	}

	limitStr := c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit))
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest,
			fmt.Errorf("invalid limit %q", limitStr))
		return
	}

	entries, err := h.src.HistoryEntries(limit)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeStoreError,
			errors.New("history unavailable"))
		return
	}

	c.PureJSON(http.StatusOK, &HistoryResponse{
		Count:   len(entries),
		Entries: entries,
	})
}

// selfProcessInfo reads resource usage for the daemon process. Every stat is
// best effort, a nil result just omits the section from the response.
func selfProcessInfo() *ProcessInfo {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil
	}

	info := &ProcessInfo{PID: p.Pid}

	if cpuPercent, err := p.CPUPercent(); err == nil {
		info.CPUPercent = cpuPercent
	}
	if memPercent, err := p.MemoryPercent(); err == nil {
		info.MemoryPercent = memPercent
	}
	if memInfo, err := p.MemoryInfo(); err == nil && memInfo != nil {
		info.MemoryRSS = memInfo.RSS
	}
	if numThreads, err := p.NumThreads(); err == nil {
		info.NumThreads = numThreads
	}
	if createTime, err := p.CreateTime(); err == nil {
		info.Uptime = time.Now().UnixMilli() - createTime
	}

	return info
}
