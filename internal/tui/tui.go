// Package tui is the terminal front end: the display rendered as block
// characters in a gocui view, the standard key layout on the home row and a
// portaudio beeper.
package tui

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cosmac/vip8/internal/driver"
	"github.com/cosmac/vip8/internal/vm"
	"github.com/jroimartin/gocui"
)

const (
	displayView = "display"
	statusView  = "status"
)

// TUI runs the gocui main loop on its own goroutine while the driver calls
// in from the frame loop.
type TUI struct {
	gui    *gocui.Gui
	keypad *keypad
	beeper *beeper

	mu      sync.Mutex
	pending error // reboot requested by a keybinding, picked up by ReadInput

	done    chan struct{} // closed when the gocui main loop exits
	loopErr error         // valid once done is closed

	lastFrame time.Time
}

func New() (*TUI, error) {
	gui, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return nil, fmt.Errorf("failed to init terminal ui: %w", err)
	}

	t := &TUI{
		gui:       gui,
		keypad:    &keypad{},
		done:      make(chan struct{}),
		lastFrame: time.Now(),
	}

	gui.SetManagerFunc(layout)

	if err = t.bindKeys(); err != nil {
		gui.Close()
		return nil, err
	}
	slog.Debug("tui: bind keys")

	beeper, err := newBeeper()
	if err != nil {
		gui.Close()
		return nil, err
	}
	t.beeper = beeper
	slog.Debug("tui: open audio stream")

	go func() {
		if err := gui.MainLoop(); err != nil && err != gocui.ErrQuit {
			t.loopErr = fmt.Errorf("terminal ui: %w", err)
		}
		close(t.done)
	}()

	return t, nil
}

func (t *TUI) Shutdown() {
	t.beeper.Close()
	t.gui.Close()
}

func (t *TUI) bindKeys() error {
	quit := func(*gocui.Gui, *gocui.View) error {
		return gocui.ErrQuit
	}
	if err := t.gui.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, quit); err != nil {
		return fmt.Errorf("failed to bind keys: %w", err)
	}

	reboot := func(*gocui.Gui, *gocui.View) error {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.pending = driver.ErrReboot
		return nil
	}
	for _, key := range []gocui.Key{gocui.KeyBackspace, gocui.KeyBackspace2} {
		if err := t.gui.SetKeybinding("", key, gocui.ModNone, reboot); err != nil {
			return fmt.Errorf("failed to bind keys: %w", err)
		}
	}

	for r, key := range runeKeys {
		press := func(*gocui.Gui, *gocui.View) error {
			t.keypad.press(key, time.Now())
			return nil
		}
		if err := t.gui.SetKeybinding("", r, gocui.ModNone, press); err != nil {
			return fmt.Errorf("failed to bind keys: %w", err)
		}
	}

	return nil
}

// ReadInput reports the keypad state tracked from terminal key events. It
// returns ErrQuit once the ui loop has exited and ErrReboot when Backspace
// was hit since the last frame.
func (t *TUI) ReadInput(keyDown func(vm.Key), keyUp func(vm.Key)) error {
	select {
	case <-t.done:
		if t.loopErr != nil {
			return t.loopErr
		}
		slog.Debug("tui: quit requested")
		return driver.ErrQuit
	default:
	}

	t.mu.Lock()
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()

	if pending != nil {
		slog.Debug("tui: reboot requested")
		return pending
	}

	t.keypad.collect(time.Now(), keyDown, keyUp)
	return nil
}

func (t *TUI) Draw(display []uint8) error {
	t.gui.Update(func(g *gocui.Gui) error {
		v, err := g.View(displayView)
		if err != nil {
			// The first frames can arrive before the initial layout pass.
			return nil
		}

		v.Clear()
		var row strings.Builder
		for y := 0; y < vm.ScreenHeight; y++ {
			row.Reset()
			for x := 0; x < vm.ScreenWidth; x++ {
				if display[y*vm.ScreenWidth+x] != 0 {
					row.WriteRune('█')
				} else {
					row.WriteRune(' ')
				}
			}
			fmt.Fprintln(v, row.String())
		}
		return nil
	})

	return nil
}

func (t *TUI) SetBeeping(on bool) error {
	return t.beeper.SetBeeping(on)
}

// WaitForNextFrame paces the loop to the driver's frame rate, measured from
// the end of the previous frame.
func (t *TUI) WaitForNextFrame() error {
	const frameDuration = time.Second / driver.FrameRate

	next := t.lastFrame.Add(frameDuration)
	if d := time.Until(next); d > 0 {
		time.Sleep(d)
	}
	t.lastFrame = time.Now()

	return nil
}

func layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()

	// One terminal cell per pixel, centered when the terminal has room.
	w, h := vm.ScreenWidth+1, vm.ScreenHeight+1
	x0 := (maxX - w) / 2
	y0 := (maxY - h - 2) / 2
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}

	if v, err := g.SetView(displayView, x0, y0, x0+w, y0+h); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "VIP-8"
	}

	if v, err := g.SetView(statusView, x0, y0+h+1, x0+w, y0+h+3); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Frame = false
		fmt.Fprint(v, "keys: 1234 qwer asdf zxcv | backspace: reboot | ctrl-c: quit")
	}

	return nil
}
