package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	identityapp "github.com/erp/crm/internal/application/identity"
	"github.com/erp/crm/internal/domain/shared"
	"gopkg.in/yaml.v3"
)

// printer renders command results on stdout
type printer struct {
	format string
	w      io.Writer
	mu     sync.Mutex
}

func newPrinter(format string, w io.Writer) (*printer, error) {
	switch format {
	case "json", "yaml":
		return &printer{format: format, w: w}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q (want json or yaml)", format)
	}
}

// Print writes v in the configured format. Values are encoded as JSON first
// so both formats use the wire field names and decimal strings.
func (p *printer) Print(v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if p.format == "json" {
		_, err = p.w.Write(append(data, '\n'))
		return err
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	enc := yaml.NewEncoder(p.w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// console prints mutation notifications and alerts on stderr
type console struct {
	mu     sync.Mutex
	w      io.Writer
	errors int
}

func newConsole(w io.Writer) *console {
	return &console{w: w}
}

// Success implements optimistic.Notifier
func (c *console) Success(ctx context.Context, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "ok: %s\n", message)
}

// Error implements optimistic.Notifier
func (c *console) Error(ctx context.Context, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors++
	fmt.Fprintf(c.w, "error: %s\n", message)
}

func (c *console) notice(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, message)
}

// alert reports an error that did not go through the notifier, such as a
// failed read or a payload rejected before sending.
func (c *console) alert(err error) {
	msg := err.Error()
	switch {
	case errors.Is(err, identityapp.ErrNotSignedIn):
		msg = "not signed in. Run `crmctl login <email>` first"
	default:
		if apiErr, ok := shared.AsAPIError(err); ok {
			msg = apiErr.Message(err.Error())
		}
	}
	c.Error(context.Background(), msg)
}

func (c *console) errorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errors
}
