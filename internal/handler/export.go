package handler

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"sentiment-classifier/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const epochSheet = "Epochs"

var exportHeader = []string{
	"epoch", "train_loss", "tp", "tn", "fp", "fn",
	"accuracy", "precision", "recall", "f1", "auc",
}

// ExportRun exports a run's epoch results as csv, json or xlsx
func (h *Handler) ExportRun(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	switch format {
	case "csv", "json", "xlsx":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be csv, json or xlsx"})
		return
	}

	details, ok := h.loadRun(c)
	if !ok {
		return
	}

	filename := fmt.Sprintf("run_%s.%s", details.Run.ID, format)
	c.Header("Content-Disposition", "attachment; filename="+filename)

	var err error
	switch format {
	case "csv":
		c.Header("Content-Type", "text/csv")
		err = writeCSV(c.Writer, details.Epochs)
	case "json":
		c.Header("Content-Type", "application/json")
		encoder := json.NewEncoder(c.Writer)
		encoder.SetIndent("", "  ")
		err = encoder.Encode(details)
	case "xlsx":
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		err = writeXLSX(c.Writer, details)
	}
	if err != nil {
		h.logger.Error("Failed to export run",
			zap.String("run_id", details.Run.ID),
			zap.String("format", format),
			zap.Error(err))
	}
}

func epochRow(e *models.EpochResult) []string {
	auc := ""
	if e.AUC != nil {
		auc = strconv.FormatFloat(*e.AUC, 'f', 3, 64)
	}
	return []string{
		strconv.Itoa(e.Epoch),
		strconv.FormatFloat(e.TrainLoss, 'f', 3, 64),
		strconv.Itoa(e.TP),
		strconv.Itoa(e.TN),
		strconv.Itoa(e.FP),
		strconv.Itoa(e.FN),
		strconv.FormatFloat(100*e.Accuracy, 'f', 2, 64),
		strconv.FormatFloat(100*e.Precision, 'f', 2, 64),
		strconv.FormatFloat(100*e.Recall, 'f', 2, 64),
		strconv.FormatFloat(100*e.F1, 'f', 2, 64),
		auc,
	}
}

func writeCSV(w io.Writer, epochs []*models.EpochResult) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(exportHeader); err != nil {
		return err
	}
	for _, e := range epochs {
		if err := writer.Write(epochRow(e)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeXLSX(w io.Writer, details *models.RunDetails) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", epochSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(epochSheet, "A1", &exportHeader); err != nil {
		return err
	}
	for i, e := range details.Epochs {
		auc := any("")
		if e.AUC != nil {
			auc = *e.AUC
		}
		row := []any{
			e.Epoch, e.TrainLoss, e.TP, e.TN, e.FP, e.FN,
			e.Accuracy, e.Precision, e.Recall, e.F1, auc,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(epochSheet, cell, &row); err != nil {
			return err
		}
	}

	run := details.Run
	if _, err := f.NewSheet("Run"); err != nil {
		return err
	}
	info := [][]any{
		{"id", run.ID},
		{"status", run.Status},
		{"model", run.ModelName},
		{"epochs", run.Epochs},
		{"batch_size", run.BatchSize},
		{"learning_rate", run.LearningRate},
		{"train_size", run.TrainSize},
		{"test_size", run.TestSize},
		{"started_at", run.StartedAt.Format("2006-01-02 15:04:05")},
	}
	for i, row := range info {
		if err := f.SetSheetRow("Run", fmt.Sprintf("A%d", i+1), &row); err != nil {
			return err
		}
	}

	_, err := f.WriteTo(w)
	return err
}
