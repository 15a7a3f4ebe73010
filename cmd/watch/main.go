package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"

	"github.com/gdamore/tcell/v2"
	"github.com/gorilla/websocket"

	"riverrun.ai/internal/observerproto"
)

func main() {
	var (
		url   = flag.String("url", "ws://127.0.0.1:8080/admin/v1/observer/ws", "observer ws url")
		every = flag.Int("every", 1, "TRACK message every n ticks")
		scale = flag.Float64("scale", 2, "world units per terminal cell")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[watch] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	v := &view{scale: *scale, every: *every, events: true}
	if err := conn.WriteJSON(v.subscribe()); err != nil {
		logger.Fatalf("send SUBSCRIBE: %v", err)
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		logger.Fatalf("screen: %v", err)
	}
	if err := screen.Init(); err != nil {
		logger.Fatalf("screen init: %v", err)
	}
	defer screen.Fini()

	msgs := make(chan []byte, 64)
	go func() {
		defer close(msgs)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msgs <- b
		}
	}()
	keys := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			keys <- ev
		}
	}()

	v.draw(screen)
	for {
		select {
		case b, ok := <-msgs:
			if !ok {
				return
			}
			v.apply(b)
			v.draw(screen)
		case ev := <-keys:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC || ev.Rune() == 'q' {
					return
				}
				if v.key(ev.Rune()) {
					_ = conn.WriteJSON(v.subscribe())
				}
				v.draw(screen)
			case *tcell.EventResize:
				screen.Sync()
				v.draw(screen)
			}
		}
	}
}

// view is a top-down map of the active window centred on the player, +z pointing up.
type view struct {
	scale  float64
	every  int
	bounds bool
	events bool

	track     observerproto.TrackMsg
	haveTrack bool
	lastEvent string
}

func (v *view) subscribe() observerproto.SubscribeMsg {
	return observerproto.SubscribeMsg{
		Type:            "SUBSCRIBE",
		ProtocolVersion: observerproto.Version,
		EveryTicks:      v.every,
		IncludeBounds:   v.bounds,
		IncludeEvents:   v.events,
	}
}

// key handles a rune and reports whether the subscription changed.
func (v *view) key(r rune) bool {
	switch r {
	case '+', '=':
		v.scale = math.Max(0.25, v.scale/2)
	case '-':
		v.scale = math.Min(64, v.scale*2)
	case 'b':
		v.bounds = !v.bounds
		return true
	case 'e':
		v.events = !v.events
		return true
	}
	return false
}

func (v *view) apply(b []byte) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &base); err != nil {
		return
	}
	switch base.Type {
	case "TRACK":
		var m observerproto.TrackMsg
		if err := json.Unmarshal(b, &m); err == nil {
			v.track = m
			v.haveTrack = true
		}
	case "EVENT":
		var e observerproto.EventMsg
		if err := json.Unmarshal(b, &e); err == nil {
			v.lastEvent = fmt.Sprintf("t=%d %s #%d %s %s", e.Tick, e.Kind, e.Ordinal, e.TemplateID, e.Incident)
		}
	}
}

func (v *view) project(w, h int, p [3]float64) (int, int) {
	pp := v.track.Player.Pos
	dx := (p[0] - pp[0]) / v.scale
	dz := (p[2] - pp[2]) / v.scale
	return w/2 + int(math.Round(dx)), h*3/4 - int(math.Round(dz))
}

func pieceStyle(p observerproto.PieceState) (rune, tcell.Style) {
	switch {
	case p.Forced:
		return '#', tcell.StyleDefault.Foreground(tcell.ColorRed)
	case p.Corrected:
		return '*', tcell.StyleDefault.Foreground(tcell.ColorYellow)
	case p.Archetype == "CURVE_LEFT" || p.Archetype == "CURVE_RIGHT":
		return '~', tcell.StyleDefault.Foreground(tcell.ColorGreen)
	}
	return '|', tcell.StyleDefault.Foreground(tcell.ColorBlue)
}

func (v *view) draw(s tcell.Screen) {
	s.Clear()
	w, h := s.Size()
	if !v.haveTrack {
		drawText(s, 0, 0, tcell.StyleDefault, "waiting for TRACK... (q to quit)")
		s.Show()
		return
	}

	put := func(x, y int, r rune, st tcell.Style) {
		if x >= 0 && x < w && y >= 1 && y < h {
			s.SetContent(x, y, r, nil, st)
		}
	}
	for _, p := range v.track.Pieces {
		r, st := pieceStyle(p)
		if v.bounds && p.Bounds != nil {
			for _, c := range [][3]float64{
				p.Bounds.Min,
				{p.Bounds.Max[0], 0, p.Bounds.Min[2]},
				{p.Bounds.Min[0], 0, p.Bounds.Max[2]},
				p.Bounds.Max,
			} {
				x, y := v.project(w, h, c)
				put(x, y, '+', tcell.StyleDefault.Foreground(tcell.ColorGray))
			}
		}
		dx, dz := p.End[0]-p.Start[0], p.End[2]-p.Start[2]
		n := int(math.Ceil(math.Hypot(dx, dz)/v.scale))*2 + 1
		for i := 0; i <= n; i++ {
			f := float64(i) / float64(n)
			x, y := v.project(w, h, [3]float64{p.Start[0] + dx*f, 0, p.Start[2] + dz*f})
			put(x, y, r, st)
		}
	}
	px, py := v.project(w, h, v.track.Player.Pos)
	put(px, py, '@', tcell.StyleDefault.Foreground(tcell.ColorWhite).Bold(true))

	status := fmt.Sprintf("tick=%d dist=%.1f ahead=%.1f pieces=%d idx=%d scale=%.2f",
		v.track.Tick, v.track.Player.Distance, v.track.Player.Ahead, len(v.track.Pieces), v.track.PlayerIndex, v.scale)
	if v.lastEvent != "" {
		status += "  " + v.lastEvent
	}
	drawText(s, 0, 0, tcell.StyleDefault.Reverse(true), status)
	s.Show()
}

func drawText(s tcell.Screen, x, y int, st tcell.Style, text string) {
	for _, r := range text {
		s.SetContent(x, y, r, nil, st)
		x++
	}
}
