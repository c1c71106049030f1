package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/responder-tracker/internal/repository"
)

// SheetName is the worksheet holding the mission log.
const SheetName = "Responders"

// MissionLister is the slice of the repository the export needs.
type MissionLister interface {
	ListByMission(ctx context.Context, missionID string) ([]*repository.Record, error)
}

// Service produces XLSX bytes for a mission's interpretation log.
type Service struct {
	repo   MissionLister
	loc    *time.Location
	logger *slog.Logger
}

func NewService(repo MissionLister, loc *time.Location, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, loc: loc, logger: logger}
}

var headers = []string{
	"Received",
	"Sender",
	"Message",
	"Status",
	"Vehicle",
	"ETA",
	"Minutes Out",
	"Status Source",
	"ETA Source",
	"Confidence",
	"Corrected",
	"Evidence",
}

// ExportMissionXLSX returns a workbook with one row per interpreted message,
// in arrival order, times in the deployment's zone.
func (s *Service) ExportMissionXLSX(ctx context.Context, missionID string) ([]byte, error) {
	start := time.Now()

	recs, err := s.repo.ListByMission(ctx, missionID)
	if err != nil {
		return nil, fmt.Errorf("query interpretations: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	// rename the default sheet rather than leaving an empty "Sheet1"
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, err
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(SheetName, 1, 1, style)
	}

	row := 2
	for _, r := range recs {
		res := r.Result
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(SheetName, cell, v)
		}

		write(1, r.ReceivedAt.In(s.loc).Format("2006-01-02 15:04"))
		write(2, r.Sender)
		write(3, truncate(r.Text, 300))
		write(4, string(res.Status))
		write(5, res.Vehicle)
		write(6, res.ETALocal)
		if res.MinutesUntilArrival != nil {
			write(7, *res.MinutesUntilArrival)
		} else {
			write(7, "")
		}
		write(8, string(res.StatusSource))
		write(9, string(res.ETASource))
		write(10, res.Confidence)
		if res.CorrectionApplied {
			write(11, "yes")
		} else {
			write(11, "")
		}
		write(12, truncate(res.Evidence, 140))

		row++
	}

	// Widen a few columns
	_ = f.SetColWidth(SheetName, "A", "A", 17) // received
	_ = f.SetColWidth(SheetName, "B", "B", 18) // sender
	_ = f.SetColWidth(SheetName, "C", "C", 60) // message
	_ = f.SetColWidth(SheetName, "D", "E", 15)
	_ = f.SetColWidth(SheetName, "F", "G", 11)
	_ = f.SetColWidth(SheetName, "H", "I", 24) // provenance
	_ = f.SetColWidth(SheetName, "L", "L", 40) // evidence
	_ = f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"mission_id", missionID,
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// truncate cuts to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
