package controller

import (
	"log"
	"time"

	"voxpop/config"

	"github.com/gofiber/websocket/v2"
)

// HandleImportProgressWS streams an import job's progress to the client.
// The client sends the job id once; updates are pushed every two seconds
// until the job reaches a terminal state.
func HandleImportProgressWS(c *websocket.Conn) {
	defer c.Close()

	userID, ok := c.Locals("userID").(uint)
	if !ok {
		_ = c.WriteJSON(map[string]string{"error": "unauthorized"})
		return
	}

	var input struct {
		JobID uint `json:"job_id"`
	}

	// Read JSON message
	if err := c.ReadJSON(&input); err != nil {
		log.Printf("Error reading JSON: %v", err)
		return
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		// Scoped to the job's creator, same as GetImport
		job, err := findImportJob(config.DB, input.JobID, userID)
		if err != nil {
			_ = c.WriteJSON(map[string]string{"error": "import job not found"})
			return
		}

		progress := struct {
			JobID         uint    `json:"job_id"`
			Status        string  `json:"status"`
			TotalRows     int     `json:"total_rows"`
			ProcessedRows int     `json:"processed_rows"`
			SuccessCount  int     `json:"success_count"`
			ErrorCount    int     `json:"error_count"`
			SkippedCount  int     `json:"skipped_count"`
			Percent       float64 `json:"percent"`
		}{
			JobID:         job.ID,
			Status:        job.Status,
			TotalRows:     job.TotalRows,
			ProcessedRows: job.ProcessedRows,
			SuccessCount:  job.SuccessCount,
			ErrorCount:    job.ErrorCount,
			SkippedCount:  job.SkippedCount,
			Percent:       job.Progress(),
		}

		// Write JSON message
		if err := c.WriteJSON(progress); err != nil {
			log.Printf("Error writing JSON: %v", err)
			return
		}

		if job.IsTerminal() {
			return
		}
		<-ticker.C
	}
}
