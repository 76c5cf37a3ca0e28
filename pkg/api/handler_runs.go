package api

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	defaultJournalTail = 50
	maxJournalTail     = 500
)

// listRuns handles GET /api/v1/runs. Run ids sort chronologically, so
// the newest run comes first.
func (s *Server) listRuns(c *gin.Context) {
	ids, err := s.spaces.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list workspaces: " + err.Error()})
		return
	}

	runs := make([]RunSummary, 0, len(ids))
	for _, id := range ids {
		state, ok, err := s.store.LoadState(id)
		if err != nil {
			s.logger.Warn("Skipping run with unreadable state", "run_id", id, "error", err)
			continue
		}
		if !ok {
			continue
		}
		runs = append(runs, RunSummary{
			RunID:           state.RunID,
			Status:          state.Status,
			Stage:           state.Stage,
			StagesCompleted: len(state.StagesCompleted),
			UpdatedAt:       state.UpdatedAt,
		})
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].RunID > runs[j].RunID })

	c.JSON(http.StatusOK, RunListResponse{Runs: runs})
}

// getRun handles GET /api/v1/runs/:id. The optional tail query bounds
// how many journal lines come back.
func (s *Server) getRun(c *gin.Context) {
	id := c.Param("id")

	state, ok, err := s.store.LoadState(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load run state: " + err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	tail := defaultJournalTail
	if raw := c.Query("tail"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tail must be a positive integer"})
			return
		}
		tail = min(n, maxJournalTail)
	}

	journal, err := s.store.ReadJournal(id, tail)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read journal: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, RunDetailResponse{State: state, Journal: journal})
}
