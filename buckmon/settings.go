package main

import (
	"fmt"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/gobuck/pkg/hal"
	"github.com/itohio/gobuck/pkg/monitor"
	"github.com/itohio/gobuck/pkg/scope"
)

// showSettingsDialog displays a settings dialog with tabs for the monitor options.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createSerialTab(state),
		createDisplayTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(500, 300))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(500, 300))
	d.Show()
}

// createSerialTab creates the Serial configuration tab.
func createSerialTab(state *appState) *container.TabItem {
	ports, err := hal.Ports()
	portOptions := []string{}
	portMap := make(map[string]string) // display name to port name

	if err == nil {
		for _, port := range ports {
			displayName := port.Name
			if port.Description != "" && port.Description != port.Name {
				displayName = fmt.Sprintf("%s (%s)", port.Name, port.Description)
			}
			portOptions = append(portOptions, displayName)
			portMap[displayName] = port.Name
		}
	}

	currentPort := state.cfg.Serial.Port
	currentDisplay := currentPort
	found := false
	for _, opt := range portOptions {
		if portMap[opt] == currentPort {
			currentDisplay = opt
			found = true
			break
		}
	}
	if !found && currentPort != "" {
		portOptions = append(portOptions, currentPort)
		portMap[currentPort] = currentPort
	}

	portSelect := widget.NewSelect(portOptions, nil)
	if currentDisplay != "" {
		portSelect.SetSelected(currentDisplay)
	}

	baudEntry := widget.NewEntry()
	baudEntry.SetText(strconv.Itoa(state.cfg.Serial.BaudRate))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Serial Port", Widget: portSelect},
			{Text: "Baud Rate", Widget: baudEntry},
		},
		OnSubmit: func() {
			changed := false
			if portSelect.Selected != "" {
				selectedPort := portMap[portSelect.Selected]
				if selectedPort == "" {
					selectedPort = portSelect.Selected
				}
				changed = state.cfg.Serial.Port != selectedPort
				state.cfg.Serial.Port = selectedPort
			}
			if baud, err := strconv.Atoi(baudEntry.Text); err == nil && baud > 0 {
				changed = changed || state.cfg.Serial.BaudRate != baud
				state.cfg.Serial.BaudRate = baud
			}
			if !saveConfig(state) {
				return
			}

			// Reconnect to pick up the new port settings.
			serialConnected := state.replay == "" && !state.useMock &&
				state.source != nil && state.source.IsConnected()
			if changed && serialConnected {
				disconnect(state)
				handleConnect(state)
			}
		},
	}

	return container.NewTabItem("Serial", form)
}

// createDisplayTab creates the Display configuration tab.
func createDisplayTab(state *appState) *container.TabItem {
	windowEntry := widget.NewEntry()
	windowEntry.SetText(state.cfg.Monitor.Window.String())

	pointsEntry := widget.NewEntry()
	pointsEntry.SetText(strconv.Itoa(state.cfg.Monitor.MaxDisplayPoints))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Window", Widget: windowEntry},
			{Text: "Max Display Points", Widget: pointsEntry},
		},
		OnSubmit: func() {
			if w, err := time.ParseDuration(windowEntry.Text); err == nil && w > 0 {
				state.cfg.Monitor.Window = w
			}
			if n, err := strconv.Atoi(pointsEntry.Text); err == nil && n > 1 {
				state.cfg.Monitor.MaxDisplayPoints = n
			}
			if !saveConfig(state) {
				return
			}

			// The window only applies to new monitors.
			wasConnected := state.source != nil && state.source.IsConnected()
			if wasConnected {
				disconnect(state)
			}
			old := state.scopeWidget
			state.scopeWidget = scope.New(state.cfg.Monitor)
			replaceContent(state, old)
			attachMonitor(state, monitor.New(state.cfg.Monitor))
			if wasConnected {
				handleConnect(state)
			}
		},
	}

	return container.NewTabItem("Display", form)
}

// replaceContent swaps the old scope for the current one in the window.
func replaceContent(state *appState, old *scope.ScopeWidget) {
	border, ok := state.window.Content().(*fyne.Container)
	if !ok {
		return
	}
	for i, obj := range border.Objects {
		if obj == old {
			border.Objects[i] = state.scopeWidget
		}
	}
	border.Refresh()
}

func saveConfig(state *appState) bool {
	if err := state.cfg.Save(state.configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
		return false
	}
	return true
}
