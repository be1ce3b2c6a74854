package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/oakensoul/aida/internal/phase"
	"github.com/oakensoul/aida/internal/record"
)

func init() {
	rootCmd.AddCommand(inferCmd)
	rootCmd.AddCommand(executeCmd)
}

var inferCmd = &cobra.Command{
	Use:   "infer <operation>",
	Short: "Run the read-only infer phase of an operation",
	Long: `Run the infer phase: read a JSON request from stdin, gather facts and
outstanding questions, and emit them as JSON on stdout. Infer never
writes anything and may be repeated.

Request body: {"context": {"home": "...", "work_dir": "..."}}

Example:
  echo '{"context":{"home":"'$HOME'","work_dir":"'$PWD'"}}' | aida infer memento-create`,
	Args: cobra.ExactArgs(1),
	RunE: runInfer,
}

var executeCmd = &cobra.Command{
	Use:   "execute <operation>",
	Short: "Run the execute phase of an operation",
	Long: `Run the execute phase: read a JSON request carrying the re-supplied
inferred facts and the user's responses from stdin, perform the single
store mutation, and emit the result as JSON on stdout. Failures are
reported inside the result, not as process errors.

Request body:
  {"context": {...}, "inferred": {...}, "responses": {"field": "value"}}`,
	Args: cobra.ExactArgs(1),
	RunE: runExecute,
}

// protocolRequest is the stdin payload for both phases. Execute reads all
// three fields; infer only the context.
type protocolRequest struct {
	Context   phase.Context   `json:"context"`
	Inferred  map[string]any  `json:"inferred,omitempty"`
	Responses phase.Responses `json:"responses,omitempty"`
}

// readRequest decodes a bounded protocol request from r. The payload is
// size- and depth-checked before the typed decode, like every other
// parsed document.
func readRequest(r io.Reader) (*protocolRequest, error) {
	limits := record.DefaultLimits
	data, err := io.ReadAll(io.LimitReader(r, int64(limits.MaxBytes)+1))
	if err != nil {
		return nil, fmt.Errorf("reading request: %w", err)
	}
	if _, err := record.ParseBounded(data, limits); err != nil {
		return nil, err
	}

	var req protocolRequest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: %v", record.ErrMalformed, err)
	}
	return &req, nil
}

func runInfer(cmd *cobra.Command, args []string) error {
	registry := newRegistry()
	h, err := registry.Lookup(args[0])
	if err != nil {
		return err
	}

	req, err := readRequest(os.Stdin)
	if err != nil {
		return err
	}

	ctx, _ := phase.NewRequestContext(context.Background(), h.Name())
	inf, err := h.Infer(ctx, req.Context)
	if err != nil {
		return err
	}
	return emitJSON(inf)
}

func runExecute(cmd *cobra.Command, args []string) error {
	registry := newRegistry()
	h, err := registry.Lookup(args[0])
	if err != nil {
		return err
	}

	req, err := readRequest(os.Stdin)
	if err != nil {
		return err
	}

	ctx, _ := phase.NewRequestContext(context.Background(), h.Name())
	res := h.Execute(ctx, req.Context, req.Inferred, req.Responses)
	return emitJSON(res)
}

// emitJSON writes the protocol response to stdout, unindented. Logs go to
// stderr, so stdout carries exactly one JSON document.
func emitJSON(v any) error {
	return json.NewEncoder(os.Stdout).Encode(v)
}
