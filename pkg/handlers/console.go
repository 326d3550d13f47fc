package handlers

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/hxrts/aura-sub001/pkg/aerr"
)

// StdConsole writes to stdout and reads from stdin.
type StdConsole struct {
	mu     sync.Mutex
	reader *bufio.Reader
}

// NewStdConsole returns the production console handler.
func NewStdConsole() *StdConsole {
	return &StdConsole{reader: bufio.NewReader(os.Stdin)}
}

func (c *StdConsole) Print(ctx context.Context, line string) error {
	_, err := fmt.Println(line)
	return err
}

func (c *StdConsole) ReadLine(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", aerr.Wrap(aerr.CodeInternal, err, "read line")
	}
	return strings.TrimSuffix(line, "\n"), nil
}

// CaptureConsole records output and replays scripted input; tests and
// simulation use it so console traffic is part of the deterministic trace.
type CaptureConsole struct {
	mu     sync.Mutex
	output []string
	input  []string
}

// NewCaptureConsole returns an empty capture console.
func NewCaptureConsole() *CaptureConsole { return &CaptureConsole{} }

func (c *CaptureConsole) Print(ctx context.Context, line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.output = append(c.output, line)
	return nil
}

func (c *CaptureConsole) ReadLine(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.input) == 0 {
		return "", aerr.Internal("no scripted input")
	}
	line := c.input[0]
	c.input = c.input[1:]
	return line, nil
}

// Script enqueues input lines for subsequent ReadLine calls.
func (c *CaptureConsole) Script(lines ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = append(c.input, lines...)
}

// Output returns a copy of everything printed so far.
func (c *CaptureConsole) Output() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.output...)
}
