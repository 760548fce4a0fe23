// Package report renders the front-desk day sheet as an Excel workbook:
// one sheet per provider, one row per slot, open placeholders included.
package report

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"salonbook/internal/models"
)

// Store is the storage slice the report reads.
type Store interface {
	AppointmentsForDate(ctx context.Context, date string, providerID int64) ([]models.Appointment, error)
}

var daySheetColumns = []string{"Time", "Duration", "Status", "Client", "Phone", "Service"}

// DaySheet builds the workbook for a date across the given providers.
type DaySheet struct {
	store Store
}

func NewDaySheet(store Store) *DaySheet {
	return &DaySheet{store: store}
}

// Write renders the day sheet for date into w.
func (d *DaySheet) Write(ctx context.Context, w io.Writer, date string, providers []int64) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, provider := range providers {
		sheet := sheetName(provider)
		if i == 0 {
			f.SetSheetName("Sheet1", sheet)
		} else {
			if _, err := f.NewSheet(sheet); err != nil {
				return fmt.Errorf("create sheet %s: %w", sheet, err)
			}
		}
		if err := d.fillSheet(ctx, f, sheet, date, provider); err != nil {
			return err
		}
	}
	return f.Write(w)
}

func (d *DaySheet) fillSheet(ctx context.Context, f *excelize.File, sheet, date string, provider int64) error {
	for i, col := range daySheetColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, col); err != nil {
			return err
		}
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		start, _ := excelize.CoordinatesToCellName(1, 1)
		end, _ := excelize.CoordinatesToCellName(len(daySheetColumns), 1)
		_ = f.SetCellStyle(sheet, start, end, style)
	}

	appts, err := d.store.AppointmentsForDate(ctx, date, provider)
	if err != nil {
		return fmt.Errorf("day sheet for provider %d: %w", provider, err)
	}

	for row, a := range appts {
		values := []interface{}{
			a.Time,
			fmt.Sprintf("%d min", a.DurationMin),
			statusLabel(&a),
			a.ClientName,
			a.ClientPhone,
			a.ServiceName,
		}
		for col, val := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				return err
			}
		}
	}
	return nil
}

func sheetName(provider int64) string {
	if provider == models.SalonWide {
		return "Salon"
	}
	return fmt.Sprintf("Provider %d", provider)
}

func statusLabel(a *models.Appointment) string {
	if a.IsAvailable {
		return "open"
	}
	return a.Status
}
