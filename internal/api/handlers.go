package api

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ajitpratap0/optibot/internal/config"
	"github.com/ajitpratap0/optibot/pkg/optimize"
)

// ParetoMember is one archived non-dominated individual, decoded back into
// a strategy configuration.
type ParetoMember struct {
	W0     float64                  `json:"w_0"`
	W1     float64                  `json:"w_1"`
	Genome []float64                `json:"genome"`
	Config *optimize.StrategyConfig `json:"config,omitempty"`
}

// Root handler
func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "optibot API",
		"version": config.Version,
		"status":  "running",
		"time":    time.Now().UTC(),
	})
}

// handleHealthz returns a simple health check (for load balancers)
func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}

// handleGetStatus returns the run description plus live progress and
// process health
func (s *Server) handleGetStatus(c *gin.Context) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	generation := -1
	evaluations := 0
	if s.logbook != nil {
		entries := s.logbook.Entries()
		for _, e := range entries {
			evaluations += e.Evals
		}
		if len(entries) > 0 {
			generation = entries[len(entries)-1].Gen
		}
	}

	frontSize := 0
	if s.archive != nil {
		frontSize = s.archive.Len()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "running",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.info.StartedAt).Seconds(),
		"version":   config.Version,
		"run": gin.H{
			"symbols":         s.info.Symbols,
			"population_size": s.info.PopulationSize,
			"generations":     s.info.Generations,
			"scoring":         s.info.Scoring,
			"results_path":    s.info.ResultsPath,
			"generation":      generation,
			"evaluations":     evaluations,
			"front_size":      frontSize,
		},
		"system": gin.H{
			"goroutines": runtime.NumGoroutine(),
			"memory": gin.H{
				"alloc_mb":       toMB(memStats.Alloc),
				"total_alloc_mb": toMB(memStats.TotalAlloc),
				"sys_mb":         toMB(memStats.Sys),
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		},
	})
}

// handleGetStats returns recorded generation statistics. The optional
// `since` query skips generations already seen.
func (s *Server) handleGetStats(c *gin.Context) {
	since := 0
	if raw := c.Query("since"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since parameter"})
			return
		}
		since = parsed
	}

	var entries []optimize.GenerationStats
	if s.logbook != nil {
		entries = s.logbook.Entries()
	}
	if since > len(entries) {
		since = len(entries)
	}
	entries = entries[since:]

	c.JSON(http.StatusOK, gin.H{
		"count":   len(entries),
		"entries": entries,
	})
}

// handleGetPareto returns the current non-dominated archive
func (s *Server) handleGetPareto(c *gin.Context) {
	var members []ParetoMember
	if s.archive != nil {
		for _, ind := range s.archive.Snapshot() {
			member := ParetoMember{
				W0:     ind.Fitness.W0,
				W1:     ind.Fitness.W1,
				Genome: ind.Genome,
			}
			if s.template != nil {
				member.Config = optimize.Decode(ind.Genome, s.template)
			}
			members = append(members, member)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(members),
		"members": members,
	})
}

func toMB(b uint64) float64 {
	return float64(b) / 1024 / 1024
}
