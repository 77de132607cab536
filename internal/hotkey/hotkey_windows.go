//go:build windows

package hotkey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"syscall"
	"time"
	"unsafe"

	"dictate/internal/keys"
)

// Listen installs a low-level keyboard hook and forwards every key
// transition to out until ctx is done. Keys are observed, never swallowed.
// Events are dropped when out is full so the hook callback never blocks.
func Listen(ctx context.Context, out chan<- keys.Event, log *slog.Logger) error {
	errCh := make(chan error, 1)
	threadCh := make(chan uint32, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		user32 := syscall.NewLazyDLL("user32.dll")
		kernel32 := syscall.NewLazyDLL("kernel32.dll")
		procSetWindowsHookExW := user32.NewProc("SetWindowsHookExW")
		procUnhookWindowsHookEx := user32.NewProc("UnhookWindowsHookEx")
		procCallNextHookEx := user32.NewProc("CallNextHookEx")
		procGetMessageW := user32.NewProc("GetMessageW")
		procGetCurrentThreadId := kernel32.NewProc("GetCurrentThreadId")

		const (
			WH_KEYBOARD_LL = 13
			WM_KEYDOWN     = 0x0100
			WM_KEYUP       = 0x0101
			WM_SYSKEYDOWN  = 0x0104
			WM_SYSKEYUP    = 0x0105
			LLKHF_INJECTED = 0x10
		)

		type KBDLLHOOKSTRUCT struct {
			vkCode      uint32
			scanCode    uint32
			flags       uint32
			time        uint32
			dwExtraInfo uintptr
		}

		callback := syscall.NewCallback(func(nCode, wParam, lParam uintptr) uintptr {
			if int32(nCode) >= 0 {
				k := (*KBDLLHOOKSTRUCT)(unsafe.Pointer(lParam))
				// Injected events include our own simulated Ctrl+V.
				if k.flags&LLKHF_INJECTED == 0 {
					var down, known bool
					switch uint32(wParam) {
					case WM_KEYDOWN, WM_SYSKEYDOWN:
						down, known = true, true
					case WM_KEYUP, WM_SYSKEYUP:
						known = true
					}
					if known {
						ev := keys.Event{Key: VKToKey(k.vkCode), Down: down, Time: time.Now()}
						select {
						case out <- ev:
						default:
							log.Warn("key event dropped", "key", ev.Key.String())
						}
					}
				}
			}
			ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
			return ret
		})

		hook, _, _ := procSetWindowsHookExW.Call(uintptr(WH_KEYBOARD_LL), callback, 0, 0)
		if hook == 0 {
			errCh <- errors.New("SetWindowsHookExW failed")
			return
		}
		tid, _, _ := procGetCurrentThreadId.Call()
		threadCh <- uint32(tid)
		log.Debug("low-level hook installed")
		errCh <- nil

		var msg struct {
			Hwnd    uintptr
			Message uint32
			WParam  uintptr
			LParam  uintptr
			Time    uint32
			Pt_x    int32
			Pt_y    int32
		}
		for {
			ret, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
			if int32(ret) == -1 {
				log.Error("GetMessageW failed; leaving hook loop")
				break
			}
			if ret == 0 {
				break
			}
		}

		procUnhookWindowsHookEx.Call(hook)
		log.Debug("low-level hook uninstalled")
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-time.After(2 * time.Second):
		return fmt.Errorf("timeout installing low-level hook")
	}

	tid := <-threadCh
	<-ctx.Done()

	const WM_QUIT = 0x0012
	procPostThreadMessageW := syscall.NewLazyDLL("user32.dll").NewProc("PostThreadMessageW")
	procPostThreadMessageW.Call(uintptr(tid), WM_QUIT, 0, 0)
	<-done
	return ctx.Err()
}
