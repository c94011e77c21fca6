package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// ServeStdio runs a newline-delimited JSON-RPC session over the given
// reader and writer. Each input line is one message; responses are written
// one per line. The loop stops on EOF or context cancellation. Callers must
// route logs away from out when out is process stdout.
func (d *Dispatcher) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)

	r := bufio.NewReader(in)
	lineCh := make(chan []byte, 16)
	errCh := make(chan error, 1)
	go readLines(ctx, r, lineCh, errCh)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			if err == nil || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case line := <-lineCh:
			resp := d.DispatchRaw(ctx, line)
			if resp == nil {
				continue
			}
			if err := enc.Encode(resp); err != nil {
				return err
			}
		}
	}
}

func readLines(ctx context.Context, r *bufio.Reader, lineCh chan<- []byte, errCh chan<- error) {
	for {
		line, err := r.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			errCh <- err
			return
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) > 0 {
			select {
			case <-ctx.Done():
				return
			case lineCh <- line:
			}
		}

		if errors.Is(err, io.EOF) {
			errCh <- nil
			return
		}
	}
}

// ServeHTTP handles one JSON-RPC message per POST body. Notifications get
// 202 with no body since there is no response envelope to return.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 4<<20))
	if err != nil {
		http.Error(w, "request body too large or unreadable", http.StatusBadRequest)
		return
	}

	resp := d.DispatchRaw(r.Context(), body)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		d.logger.Warn("writing response failed", "error", err)
	}
}
