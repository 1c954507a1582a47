package authflow

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// BrowserLauncher opens the authorization URL with an external command. The
// command must stay in the foreground until its window is closed, because
// process exit is what the poll detector observes. With no command the URL
// is printed and the window is never reported closed.
type BrowserLauncher struct {
	Command string
	Out     io.Writer
}

// Launch implements Launcher
func (l BrowserLauncher) Launch(_ context.Context, authURL string) (Agent, error) {
	fields := strings.Fields(l.Command)
	if len(fields) == 0 {
		if l.Out != nil {
			fmt.Fprintf(l.Out, "Open this URL to authorize access:\n\n  %s\n\n", authURL)
		}
		return manualAgent{}, nil
	}

	cmd := exec.Command(fields[0], append(fields[1:], authURL)...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", fields[0], err)
	}
	a := &processAgent{cmd: cmd, exited: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(a.exited)
	}()
	return a, nil
}

type processAgent struct {
	cmd    *exec.Cmd
	exited chan struct{}
	once   sync.Once
}

func (a *processAgent) Closed() bool {
	select {
	case <-a.exited:
		return true
	default:
		return false
	}
}

func (a *processAgent) Close() error {
	var err error
	a.once.Do(func() {
		if a.Closed() {
			return
		}
		err = a.cmd.Process.Kill()
		<-a.exited
	})
	return err
}

type manualAgent struct{}

func (manualAgent) Closed() bool { return false }
func (manualAgent) Close() error { return nil }
