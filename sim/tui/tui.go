// Package tui renders the simulated front panel in a terminal: an OLED
// mirror, level LED swatches and key-driven button taps, fed from the
// same bus topics the hardware display consumes.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"songbird-go/bus"
	"songbird-go/internal/util"
	"songbird-go/types"
)

// USBPort is the part of the audio engine the panel drives directly.
type USBPort interface {
	SetPresent(present bool)
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#88C0D0"))
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555"))
	barStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A3BE8C"))
	birdStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#EBCB8B"))
	noteStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	offStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#333333"))
)

const (
	oledWidth = 32
	barSlots  = 8
)

type Model struct {
	conn *bus.Connection
	usb  USBPort

	snapSub *bus.Subscription
	hbSub   *bus.Subscription

	snap     types.Snapshot
	haveSnap bool
	hb       types.Heartbeat
	usbOn    bool
	vol      int
	volSteps int
	note     string
	quitting bool
}

// New subscribes to the panel topics. Retained frames paint the first
// view before the next UI tick lands.
func New(conn *bus.Connection, usb USBPort, volumeSteps int) Model {
	if volumeSteps <= 0 {
		volumeSteps = 64
	}
	return Model{
		conn:     conn,
		usb:      usb,
		usbOn:    true,
		vol:      volumeSteps / 2,
		volSteps: volumeSteps,
		snapSub:  conn.Subscribe(bus.Topic{"ui", "snapshot"}),
		hbSub:    conn.Subscribe(bus.Topic{"system", "heartbeat"}),
	}
}

func (m Model) close() {
	m.snapSub.Unsubscribe()
	m.hbSub.Unsubscribe()
}

type snapshotMsg types.Snapshot
type heartbeatMsg types.Heartbeat
type noteMsg string
type volMsg int

func waitSnapshot(sub *bus.Subscription) tea.Cmd {
	return func() tea.Msg {
		for msg := range sub.Channel() {
			var s types.Snapshot
			if err := util.DecodeJSON(msg.Payload, &s); err == nil {
				return snapshotMsg(s)
			}
		}
		return nil
	}
}

func waitHeartbeat(sub *bus.Subscription) tea.Cmd {
	return func() tea.Msg {
		for msg := range sub.Channel() {
			var hb types.Heartbeat
			if err := util.DecodeJSON(msg.Payload, &hb); err == nil {
				return heartbeatMsg(hb)
			}
		}
		return nil
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitSnapshot(m.snapSub), waitHeartbeat(m.hbSub))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "up", "k":
			return m, m.press("up")
		case "down", "j":
			return m, m.press("down")
		case "left", "h":
			return m, m.press("left")
		case "right", "l":
			return m, m.press("right")

		case "p":
			m.usbOn = !m.usbOn
			m.usb.SetPresent(m.usbOn)
			if m.usbOn {
				m.note = "usb plugged"
			} else {
				m.note = "usb pulled"
			}

		case "+", "=":
			if m.vol < m.volSteps-1 {
				m.vol++
			}
			return m, m.setVolume(m.vol)
		case "-", "_":
			if m.vol > 0 {
				m.vol--
			}
			return m, m.setVolume(m.vol)
		}

	case snapshotMsg:
		m.snap = types.Snapshot(msg)
		m.haveSnap = true
		m.usbOn = m.snap.USBPresent
		return m, waitSnapshot(m.snapSub)

	case heartbeatMsg:
		m.hb = types.Heartbeat(msg)
		return m, waitHeartbeat(m.hbSub)

	case noteMsg:
		m.note = string(msg)

	case volMsg:
		m.vol = int(msg)
		m.note = fmt.Sprintf("volume %d/%d", m.vol, m.volSteps)
	}

	return m, nil
}

func (m Model) press(button string) tea.Cmd {
	conn := m.conn
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		req := conn.NewMessage(bus.Topic{"control", "ctl", "press"}, types.PressRequest{Button: button}, false)
		reply, err := conn.RequestWait(ctx, req)
		if err != nil {
			return noteMsg(fmt.Sprintf("press %s: %v", button, err))
		}
		var r types.ErrorReply
		if derr := util.DecodeJSON(reply.Payload, &r); derr == nil && !r.OK && r.Error != "" {
			return noteMsg(fmt.Sprintf("press %s: %s", button, r.Error))
		}
		return noteMsg("pressed " + button)
	}
}

func (m Model) setVolume(steps int) tea.Cmd {
	conn := m.conn
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		req := conn.NewMessage(bus.Topic{"audio", "ctl", "volume"}, map[string]any{"steps": steps}, false)
		reply, err := conn.RequestWait(ctx, req)
		if err != nil {
			return noteMsg(fmt.Sprintf("volume: %v", err))
		}
		var r struct {
			OK       bool   `json:"ok"`
			Error    string `json:"error"`
			Position int    `json:"position"`
		}
		if derr := util.DecodeJSON(reply.Payload, &r); derr != nil || !r.OK {
			return noteMsg("volume: " + r.Error)
		}
		return volMsg(r.Position)
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	b := &strings.Builder{}
	fmt.Fprintln(b, titleStyle.Render("songbird sim"))
	fmt.Fprintln(b, panelStyle.Render(m.oled()))
	fmt.Fprintln(b, m.leds())

	mode := "?"
	if m.haveSnap {
		mode = m.snap.Mode.String()
	}
	usb := "absent"
	if m.usbOn {
		usb = "present"
	}
	fmt.Fprintf(b, "mode %-8s usb %-8s hb %d up %s\n",
		mode, usb, m.hb.Seq, (time.Duration(m.hb.UptimeMs) * time.Millisecond).Round(time.Second))

	if m.note != "" {
		fmt.Fprintln(b, noteStyle.Render(m.note))
	}
	fmt.Fprintln(b, dimStyle.Render("arrows/hjkl buttons  +/- volume  p plug/unplug  q quit"))
	return b.String()
}

// oled mirrors the 128x32 layout: birds in the corners, one bar per
// channel, status bottom-left with the rate label on the right.
func (m Model) oled() string {
	if !m.haveSnap {
		return fmt.Sprintf("%-*s\n%-*s\n%-*s", oledWidth, "", oledWidth, "  waiting for snapshot", oledWidth, "")
	}
	s := m.snap

	birds := bird(s.In.Singing) + strings.Repeat(" ", oledWidth-2) + bird(s.Out.Singing)

	bars := fmt.Sprintf("IN %s  OUT %s",
		barStyle.Render(bar(s.In.Segments)), barStyle.Render(bar(s.Out.Segments)))
	bars += strings.Repeat(" ", oledWidth-25)

	status := s.Status
	if len(status) > oledWidth-8 {
		status = status[:oledWidth-8]
	}
	text := fmt.Sprintf("%-*s%*s", oledWidth-8, status, 8, s.RateLabel)

	return birds + "\n" + bars + "\n" + text
}

func (m Model) leds() string {
	return "LED " + led("IN", m.snap.In.Brightness) + "  " + led("OUT", m.snap.Out.Brightness)
}

func bird(singing bool) string {
	if singing {
		return birdStyle.Render("♪")
	}
	return " "
}

func bar(segments uint8) string {
	filled := int(segments)
	if filled > barSlots {
		filled = barSlots
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", barSlots-filled)
}

func led(label string, brightness uint8) string {
	if brightness == 0 {
		return offStyle.Render("● " + label)
	}
	c := lipgloss.Color(fmt.Sprintf("#00%02x00", 64+int(brightness)*3/4))
	return lipgloss.NewStyle().Foreground(c).Render("● " + label)
}

// Run drives the panel until the user quits or ctx ends.
func Run(ctx context.Context, conn *bus.Connection, usb USBPort, volumeSteps int) error {
	m := New(conn, usb, volumeSteps)
	defer m.close()
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		// Cancellation is a normal shutdown, not a panel failure.
		return nil
	}
	return err
}
