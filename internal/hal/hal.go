// Package hal is the SDL2 front end: a scaled window for the display, the
// standard 16-key keyboard mapping and a square-wave beeper.
package hal

import (
	"fmt"
	"log/slog"
	"time"
	"unsafe"

	"github.com/cosmac/vip8/internal/driver"
	"github.com/cosmac/vip8/internal/vm"
	"github.com/veandco/go-sdl2/sdl"
)

const (
	WindowWidth  = 1024
	WindowHeight = 512
)

type HAL struct {
	window          *sdl.Window
	renderer        *sdl.Renderer
	texture         *sdl.Texture
	backBuffer      []uint32
	backBufferPitch int

	beeper    *beeper
	lastFrame time.Time
}

func New() (*HAL, error) {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_AUDIO | sdl.INIT_EVENTS); err != nil {
		return nil, fmt.Errorf("failed to init sdl: %w", err)
	}

	window, err := sdl.CreateWindow("VIP-8", sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, WindowWidth, WindowHeight, sdl.WINDOW_SHOWN)
	if err != nil {
		return nil, fmt.Errorf("failed to create sdl window: %w", err)
	}
	slog.Debug("hal: create window")

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED)
	if err != nil {
		return nil, fmt.Errorf("failed to create sdl renderer: %w", err)
	}
	if err = renderer.SetLogicalSize(WindowWidth, WindowHeight); err != nil {
		return nil, fmt.Errorf("failed to resize sdl renderer: %w", err)
	}
	slog.Debug("hal: create renderer")

	texture, err := renderer.CreateTexture(sdl.PIXELFORMAT_ARGB8888, sdl.TEXTUREACCESS_STREAMING, vm.ScreenWidth, vm.ScreenHeight)
	if err != nil {
		return nil, fmt.Errorf("failed to create sdl texture: %w", err)
	}
	slog.Debug("hal: create texture")

	beeper, err := newBeeper()
	if err != nil {
		return nil, err
	}
	slog.Debug("hal: open audio device")

	return &HAL{
		window:          window,
		renderer:        renderer,
		texture:         texture,
		backBuffer:      make([]uint32, vm.ScreenWidth*vm.ScreenHeight),
		backBufferPitch: vm.ScreenWidth * int(unsafe.Sizeof(uint32(0))),
		beeper:          beeper,
		lastFrame:       time.Now(),
	}, nil
}

func (hal *HAL) Shutdown() {
	hal.beeper.Close()

	if err := hal.texture.Destroy(); err != nil {
		slog.Error("failed to destroy sdl texture", "err", err)
	}

	if err := hal.renderer.Destroy(); err != nil {
		slog.Error("failed to destroy sdl renderer", "err", err)
	}

	if err := hal.window.Destroy(); err != nil {
		slog.Error("failed to destroy sdl window", "err", err)
	}

	sdl.Quit()
}

func (hal *HAL) ReadInput(keyDown func(vm.Key), keyUp func(vm.Key)) error {
	for e := sdl.PollEvent(); e != nil; e = sdl.PollEvent() {
		switch e.GetType() {
		case sdl.QUIT:
			slog.Debug("hal: quit requested")
			return driver.ErrQuit

		case sdl.KEYDOWN:
			ke := e.(*sdl.KeyboardEvent)

			switch ke.Keysym.Scancode {
			case sdl.SCANCODE_ESCAPE:
				slog.Debug("hal: quit requested")
				return driver.ErrQuit
			case sdl.SCANCODE_BACKSPACE:
				slog.Debug("hal: reboot requested")
				return driver.ErrReboot
			}

			if key, ok := scancodes[ke.Keysym.Scancode]; ok {
				keyDown(key)
			}

		case sdl.KEYUP:
			ke := e.(*sdl.KeyboardEvent)

			if key, ok := scancodes[ke.Keysym.Scancode]; ok {
				keyUp(key)
			}
		}
	}

	return nil
}

// Physical                Logical
// ================        =================
// | 1 | 2 | 3 | 4 |       | 1 | 2 | 3 | C |
// | q | w | e | r |       | 4 | 5 | 6 | D |
// | a | s | d | f |  <=>  | 7 | 8 | 9 | E |
// | z | x | c | v |       | A | 0 | B | F |
// ================        =================
var scancodes = map[sdl.Scancode]vm.Key{
	sdl.SCANCODE_1: vm.Key1, sdl.SCANCODE_2: vm.Key2, sdl.SCANCODE_3: vm.Key3, sdl.SCANCODE_4: vm.KeyC,
	sdl.SCANCODE_Q: vm.Key4, sdl.SCANCODE_W: vm.Key5, sdl.SCANCODE_E: vm.Key6, sdl.SCANCODE_R: vm.KeyD,
	sdl.SCANCODE_A: vm.Key7, sdl.SCANCODE_S: vm.Key8, sdl.SCANCODE_D: vm.Key9, sdl.SCANCODE_F: vm.KeyE,
	sdl.SCANCODE_Z: vm.KeyA, sdl.SCANCODE_X: vm.Key0, sdl.SCANCODE_C: vm.KeyB, sdl.SCANCODE_V: vm.KeyF,
}

func (hal *HAL) Draw(display []uint8) error {
	const (
		bgColor = uint32(0x0a0a0a)
		fgColor = uint32(0x00ff66)
	)

	for i, px := range display {
		color := bgColor
		if px != 0 {
			color = fgColor
		}
		hal.backBuffer[i] = color
	}

	backBufferPtr := unsafe.Pointer(&hal.backBuffer[0])
	if err := hal.texture.Update(nil, backBufferPtr, hal.backBufferPitch); err != nil {
		return fmt.Errorf("failed to update sdl texture: %w", err)
	}

	if err := hal.renderer.Clear(); err != nil {
		return fmt.Errorf("failed to clear sdl renderer: %w", err)
	}

	if err := hal.renderer.Copy(hal.texture, nil, nil); err != nil {
		return fmt.Errorf("failed to copy sdl texture to renderer: %w", err)
	}

	hal.renderer.Present()
	return nil
}

func (hal *HAL) SetBeeping(on bool) error {
	return hal.beeper.SetBeeping(on)
}

// WaitForNextFrame paces the loop to the driver's frame rate, measured from
// the end of the previous frame.
func (hal *HAL) WaitForNextFrame() error {
	const frameDuration = time.Second / driver.FrameRate

	next := hal.lastFrame.Add(frameDuration)
	if d := time.Until(next); d > 0 {
		time.Sleep(d)
	}
	hal.lastFrame = time.Now()

	return nil
}
