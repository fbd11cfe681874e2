package query

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/smartlinks/smartlinks/internal/model"
)

// ExportHeader is the fixed column set of the CSV export.
var ExportHeader = []string{
	"Date",
	"Time",
	"Smart Link Title",
	"Smart Link Status",
	"Smart Link URL",
	"Site",
	"Type",
	"Button",
	"Source",
	"Destination URL",
	"Referrer",
	"Device Type",
	"Device Brand",
	"Device Model",
	"Operating System",
	"OS Version",
	"Browser",
	"Browser Version",
	"Country",
	"City",
	"Language",
	"User Agent",
}

var clickTypeLabels = map[model.ClickType]string{
	model.ClickTypeRedirect: "Redirect",
	model.ClickTypeButton:   "Button Click",
	model.ClickTypeQR:       "QR Scan",
}

// ExportCSV writes one row per matching event. Events of links that are currently
// disabled or expired are skipped unless the export settings include them.
// It returns the number of rows written.
func (e *Engine) ExportCSV(ctx context.Context, w io.Writer, f Filter) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}

	now := e.now()
	rows := 0
	err := e.source.ExportEvents(ctx, e.Criteria(f), func(rec ExportRecord) error {
		status := rec.Link.StatusAt(now)
		if !e.exportable(status) {
			return nil
		}
		if err := cw.Write(e.exportRow(rec, status)); err != nil {
			return err
		}
		rows++
		return nil
	})
	if err != nil {
		return rows, fmt.Errorf("export events: %w", err)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return rows, fmt.Errorf("flush csv: %w", err)
	}
	e.logger.Info("analytics exported", "rows", rows)
	return rows, nil
}

func (e *Engine) exportable(status model.LinkStatus) bool {
	switch status {
	case model.LinkStatusDisabled:
		return e.settings.IncludeDisabledInExport
	case model.LinkStatusExpired:
		return e.settings.IncludeExpiredInExport
	default:
		return true
	}
}

func (e *Engine) exportRow(rec ExportRecord, status model.LinkStatus) []string {
	ev := rec.Event
	at := ev.CreatedAt.In(e.loc)

	button := ""
	if ev.Metadata.ClickType == model.ClickTypeButton {
		button = ev.Metadata.Platform
	}
	clickType, ok := clickTypeLabels[ev.Metadata.ClickType]
	if !ok {
		clickType = string(ev.Metadata.ClickType)
	}

	return []string{
		at.Format(DayLayout),
		at.Format("15:04:05"),
		rec.Link.Title,
		string(status),
		e.linkURL(rec.Link),
		strconv.FormatInt(rec.Link.SiteID, 10),
		clickType,
		button,
		string(ev.Metadata.Source),
		Destination(ev.Metadata),
		ev.Referrer,
		ev.DeviceType,
		ev.DeviceBrand,
		ev.DeviceModel,
		ev.OSName,
		ev.OSVersion,
		ev.BrowserName,
		ev.BrowserVersion,
		deref(ev.Country),
		deref(ev.City),
		ev.Language,
		ev.UserAgent,
	}
}

func (e *Engine) linkURL(l model.Link) string {
	return strings.TrimRight(e.baseURL, "/") + "/" + l.Slug
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
