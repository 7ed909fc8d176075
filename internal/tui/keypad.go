package tui

import (
	"sync"
	"time"

	"github.com/cosmac/vip8/internal/vm"
)

// keyHold is how long a key press counts as held. Terminals report presses
// but never releases, so a held key is kept alive by its repeat events and
// decays this long after the last one.
const keyHold = 200 * time.Millisecond

// keypad tracks key presses seen by the terminal. Presses arrive on the ui
// goroutine and are collected on the driver goroutine.
type keypad struct {
	mu       sync.Mutex
	deadline [vm.KeyCount]time.Time
}

// press marks a key down, restarting its decay deadline.
func (k *keypad) press(key vm.Key, now time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.deadline[key&0x0F] = now.Add(keyHold)
}

// collect reports every key still inside its deadline as down and every key
// whose deadline has passed as up, clearing the latter.
func (k *keypad) collect(now time.Time, keyDown func(vm.Key), keyUp func(vm.Key)) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for i := range k.deadline {
		if k.deadline[i].IsZero() {
			continue
		}

		if now.Before(k.deadline[i]) {
			keyDown(vm.Key(i))
		} else {
			k.deadline[i] = time.Time{}
			keyUp(vm.Key(i))
		}
	}
}
