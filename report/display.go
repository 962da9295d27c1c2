// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package report

import (
	"fmt"
	"os"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	// App is the Fyne app created by RunMain when a display is available, nil otherwise.
	App fyne.App

	numWindowsOpen int
	muWindows      sync.Mutex
	condWindows    = sync.NewCond(&muWindows)
)

// ErrNoDisplay is returned by Display when there is no graphical display.
var ErrNoDisplay = errors.New("no graphical display available")

// HasDisplay returns whether a graphical display is available.
func HasDisplay() bool {
	return os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != ""
}

// RunMain runs mainFn and returns its error.
//
// If a display is available, the current goroutine (presumably the main one) runs the Fyne
// event loop while mainFn runs in a separate goroutine, and RunMain only returns after every
// window opened by Display is closed. Otherwise, mainFn is simply called.
//
// Example:
//
//	func main() {
//		flag.Parse()
//		err := report.RunMain(mainContinue)
//		...
//	}
func RunMain(mainFn func() error) error {
	if !HasDisplay() {
		return mainFn()
	}
	App = app.New()
	done := make(chan error, 1)
	go func() {
		err := runRecovered(mainFn)
		if err == nil {
			WaitForWindows()
		}
		done <- err
		App.Quit()
	}()
	App.Run()
	return <-done
}

func runRecovered(mainFn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()
	return mainFn()
}

// WaitForWindows blocks until all windows opened by Display are closed.
func WaitForWindows() {
	muWindows.Lock()
	defer muWindows.Unlock()
	if numWindowsOpen > 0 {
		fmt.Println("Waiting for windows to close...")
	}
	for numWindowsOpen > 0 {
		condWindows.Wait()
	}
}

// Display opens a window showing the chart image saved at filePath. It doesn't block: RunMain
// waits for the window to be closed.
//
// It returns ErrNoDisplay if there is no graphical display, and an error if the Fyne app was not
// started with RunMain.
func Display(title, filePath string) error {
	if !HasDisplay() {
		return ErrNoDisplay
	}
	if App == nil {
		return errors.New("displaying chart requires the program to run within report.RunMain")
	}
	muWindows.Lock()
	numWindowsOpen++
	muWindows.Unlock()
	fyne.Do(func() {
		w := App.NewWindow(title)
		img := canvas.NewImageFromFile(filePath)
		img.FillMode = canvas.ImageFillContain
		w.SetContent(img)
		w.Resize(fyne.NewSize(1024, 640))
		w.SetOnClosed(func() {
			muWindows.Lock()
			numWindowsOpen--
			condWindows.Broadcast()
			muWindows.Unlock()
		})
		w.Show()
	})
	klog.V(1).Infof("displaying %q", filePath)
	return nil
}
