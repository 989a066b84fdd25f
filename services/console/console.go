// services/console/console.go
package console

import (
	"bufio"
	"context"
	"io"
	"time"

	"github.com/google/shlex"

	"songbird-go/bus"
	"songbird-go/hal"
	"songbird-go/internal/util"
	"songbird-go/types"
	"songbird-go/x/fmtx"
	"songbird-go/x/strconvx"
)

// maxGPIO bounds the pin map listing, RP2 bank 0.
const maxGPIO = 30

// retainedWait is how long a read command waits for a retained value
// before declaring it absent.
const retainedWait = 200 * time.Millisecond

// -----------------------------------------------------------------------------
// Entry point
// -----------------------------------------------------------------------------

// Run serves a line-oriented operator console over rw (UART on the board,
// stdio or a socket on the host). It blocks until ctx is cancelled or rw
// reaches EOF.
func Run(ctx context.Context, conn *bus.Connection, reg *hal.Registry, rw io.ReadWriter) {
	c := &console{conn: conn, reg: reg, rw: rw}
	c.loop(ctx)
}

type console struct {
	conn *bus.Connection
	reg  *hal.Registry
	rw   io.ReadWriter
}

func (c *console) loop(ctx context.Context) {
	lines := make(chan string, 4)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.rw)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	c.printf("songbird console; type 'help'\r\n> ")
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			c.handle(ctx, line)
			c.printf("> ")
		}
	}
}

func (c *console) handle(ctx context.Context, line string) {
	args, err := shlex.Split(line)
	if err != nil {
		c.printf("parse error: %s\r\n", err.Error())
		return
	}
	if len(args) == 0 {
		return
	}

	switch args[0] {
	case "help":
		c.cmdHelp()
	case "mode":
		c.cmdMode()
	case "press":
		c.cmdPress(ctx, args)
	case "route":
		c.cmdRoute()
	case "usb":
		c.cmdUSB()
	case "levels":
		c.cmdLevels()
	case "snapshot":
		c.cmdSnapshot()
	case "volume":
		c.cmdVolume(ctx, args)
	case "stats":
		c.cmdStats(ctx)
	case "uptime":
		c.cmdUptime()
	case "pins":
		c.cmdPins()
	default:
		c.printf("unknown command %q; try help\r\n", args[0])
	}
}

// -----------------------------------------------------------------------------
// Commands
// -----------------------------------------------------------------------------

func (c *console) cmdHelp() {
	c.printf("commands:\r\n")
	c.printf("  mode                  current appliance mode\r\n")
	c.printf("  press <up|down|left|right>  synthetic button tap\r\n")
	c.printf("  route                 audio routing flags\r\n")
	c.printf("  usb                   USB audio link state\r\n")
	c.printf("  levels                smoothed meter readings\r\n")
	c.printf("  snapshot              last composed UI frame\r\n")
	c.printf("  volume <steps>        set headphone volume\r\n")
	c.printf("  stats                 audio path counters\r\n")
	c.printf("  uptime                heartbeat beacon\r\n")
	c.printf("  pins                  claimed pin map\r\n")
}

func (c *console) cmdMode() {
	var ms types.ModeState
	if !readRetained(c, bus.Topic{"control", "mode"}, &ms) {
		c.printf("mode: no retained state\r\n")
		return
	}
	c.printf("mode: %s\r\n", ms.Name)
}

func (c *console) cmdPress(ctx context.Context, args []string) {
	if len(args) != 2 {
		c.printf("usage: press <up|down|left|right>\r\n")
		return
	}
	m, err := c.request(ctx, bus.Topic{"control", "ctl", "press"}, types.PressRequest{Button: args[1]})
	if err != nil {
		c.printf("press: %s\r\n", err.Error())
		return
	}
	if m["ok"] == true {
		c.printf("ok\r\n")
	} else {
		c.printf("error: %v\r\n", m["error"])
	}
}

func (c *console) cmdRoute() {
	var rs types.RouteState
	if !readRetained(c, bus.Topic{"control", "route"}, &rs) {
		c.printf("route: no retained state\r\n")
		return
	}
	c.printf("route: enabled=%t muted=%t\r\n", rs.Enabled, rs.Muted)
}

func (c *console) cmdUSB() {
	var st types.USBState
	if !readRetained(c, bus.Topic{"audio", "usb"}, &st) {
		c.printf("usb: no retained state\r\n")
		return
	}
	c.printf("usb: present=%t rate_hz=%d\r\n", st.Present, st.RateHz)
}

func (c *console) cmdLevels() {
	var lv types.Levels
	if !readRetained(c, bus.Topic{"audio", "levels"}, &lv) {
		c.printf("levels: no retained state\r\n")
		return
	}
	c.printLevel("in ", lv.In)
	c.printLevel("out", lv.Out)
}

func (c *console) cmdSnapshot() {
	var sn types.Snapshot
	if !readRetained(c, bus.Topic{"ui", "snapshot"}, &sn) {
		c.printf("snapshot: no retained state\r\n")
		return
	}
	c.printf("mode=%s status=%q rate=%s usb=%t\r\n", sn.Mode.String(), sn.Status, sn.RateLabel, sn.USBPresent)
	c.printLevel("in ", sn.In)
	c.printLevel("out", sn.Out)
}

func (c *console) cmdVolume(ctx context.Context, args []string) {
	if len(args) != 2 {
		c.printf("usage: volume <steps>\r\n")
		return
	}
	steps, err := strconvx.Atoi(args[1])
	if err != nil {
		c.printf("volume: not a number: %q\r\n", args[1])
		return
	}
	m, err := c.request(ctx, bus.Topic{"audio", "ctl", "volume"}, map[string]any{"steps": steps})
	if err != nil {
		c.printf("volume: %s\r\n", err.Error())
		return
	}
	if m["ok"] == true {
		c.printf("position: %v\r\n", m["position"])
	} else {
		c.printf("error: %v\r\n", m["error"])
	}
}

func (c *console) cmdStats(ctx context.Context) {
	m, err := c.request(ctx, bus.Topic{"audio", "ctl", "stats"}, nil)
	if err != nil {
		c.printf("stats: %s\r\n", err.Error())
		return
	}
	for _, k := range []string{"present", "rate_hz", "dropped", "position", "amp_enabled"} {
		if v, ok := m[k]; ok {
			c.printf("%s: %v\r\n", k, v)
		}
	}
}

func (c *console) cmdUptime() {
	var hb types.Heartbeat
	if !readRetained(c, bus.Topic{"system", "heartbeat"}, &hb) {
		c.printf("uptime: no retained beacon\r\n")
		return
	}
	c.printf("uptime_ms=%d seq=%d mode=%s\r\n", hb.UptimeMs, hb.Seq, hb.Mode)
}

func (c *console) cmdPins() {
	found := false
	for pin := 0; pin < maxGPIO; pin++ {
		owner, fn, ok := c.reg.Owner(pin)
		if !ok {
			continue
		}
		found = true
		c.printf("gpio%d: %s (%s)\r\n", pin, owner, fn.String())
	}
	if !found {
		c.printf("no pins claimed\r\n")
	}
}

// -----------------------------------------------------------------------------
// Plumbing
// -----------------------------------------------------------------------------

func (c *console) printf(format string, a ...any) {
	fmtx.Fprintf(c.rw, format, a...)
}

func (c *console) printLevel(tag string, v types.LevelValue) {
	c.printf("%s: level=%s segments=%d brightness=%d singing=%t\r\n",
		tag, strconvx.FormatFloat(float64(v.Level), 'f', 3, 32), v.Segments, v.Brightness, v.Singing)
}

// readRetained fetches one retained value into dst, false when the topic
// has nothing stored or the payload does not decode.
func readRetained[T any](c *console, topic bus.Topic, dst *T) bool {
	sub := c.conn.Subscribe(topic)
	defer c.conn.Unsubscribe(sub)
	select {
	case msg := <-sub.Channel():
		return util.DecodeJSON(msg.Payload, dst) == nil
	case <-time.After(retainedWait):
		return false
	}
}

func (c *console) request(ctx context.Context, topic bus.Topic, payload any) (map[string]any, error) {
	rctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	reply, err := c.conn.RequestWait(rctx, c.conn.NewMessage(topic, payload, false))
	if err != nil {
		return nil, err
	}
	m, ok := reply.Payload.(map[string]any)
	if !ok {
		return nil, fmtx.Errorf("malformed reply: %v", reply.Payload)
	}
	return m, nil
}
