package tui

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gorilla/websocket"
	"github.com/rivo/tview"
)

type rosterPayload struct {
	Timestamp string       `json:"timestamp"`
	Devices   []deviceInfo `json:"devices"`
	Count     int          `json:"count"`
}

type deviceInfo struct {
	DeviceID              string  `json:"device_id"`
	Status                string  `json:"status"`
	TodayRuntimeSeconds   int64   `json:"today_runtime_seconds"`
	TodayRuntimeFormatted string  `json:"today_runtime_formatted"`
	SessionCountToday     int     `json:"session_count_today"`
	LastActive            *string `json:"last_active"`
}

// Run connects to the tracker's watch websocket and renders the device
// roster until ctx is cancelled or the user quits with q or Ctrl-C.
func Run(ctx context.Context, serverURL string) error {
	wsURL, err := watchURL(serverURL)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial watch websocket: %w", err)
	}
	defer conn.Close()

	app := tview.NewApplication()

	statusView := tview.NewTextView().
		SetDynamicColors(true).
		SetText(fmt.Sprintf("[yellow]connected to %s, waiting for roster", serverURL))
	statusView.SetBorder(true).SetTitle("Tracker")

	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true).SetTitle("Devices")

	helpView := tview.NewTextView().
		SetDynamicColors(true).
		SetText("q quits.")
	helpView.SetBorder(true).SetTitle("Help")

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(statusView, 3, 0, false).
		AddItem(table, 0, 1, true).
		AddItem(helpView, 3, 0, false)

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Rune() == 'q' || event.Key() == tcell.KeyCtrlC {
			app.Stop()
			return nil
		}
		return event
	})

	go func() {
		<-ctx.Done()
		app.Stop()
	}()

	go func() {
		defer app.Stop()
		for {
			var payload rosterPayload
			if err := conn.ReadJSON(&payload); err != nil {
				if ctx.Err() == nil {
					app.QueueUpdateDraw(func() {
						statusView.SetText(fmt.Sprintf("[red]watch stream closed: %v", err))
					})
					time.Sleep(2 * time.Second)
				}
				return
			}
			app.QueueUpdateDraw(func() {
				statusView.SetText(fmt.Sprintf("[green]%d devices as of %s", payload.Count, payload.Timestamp))
				renderRoster(table, payload.Devices)
			})
		}
	}()

	return app.SetRoot(layout, true).Run()
}

func renderRoster(table *tview.Table, devices []deviceInfo) {
	table.Clear()
	headers := []string{"Device", "Status", "Today", "Sessions", "Last Active"}
	for col, h := range headers {
		table.SetCell(0, col, tview.NewTableCell(h).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false).
			SetExpansion(1))
	}

	for row, d := range devices {
		statusColor := tcell.ColorRed
		if d.Status == "running" {
			statusColor = tcell.ColorGreen
		}
		lastActive := "never"
		if d.LastActive != nil {
			lastActive = *d.LastActive
		}
		table.SetCell(row+1, 0, tview.NewTableCell(d.DeviceID))
		table.SetCell(row+1, 1, tview.NewTableCell(d.Status).SetTextColor(statusColor))
		table.SetCell(row+1, 2, tview.NewTableCell(d.TodayRuntimeFormatted))
		table.SetCell(row+1, 3, tview.NewTableCell(fmt.Sprintf("%d", d.SessionCountToday)))
		table.SetCell(row+1, 4, tview.NewTableCell(lastActive))
	}
}

// watchURL maps the server's http base url to its watch websocket url.
func watchURL(serverURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(serverURL), "/"))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path = "/api/watch"
	return u.String(), nil
}
