package uno

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// ConvertRequest holds the arguments of a single conversion.
// Exactly one of InPath and InData should be set; when OutPath is empty
// the converted document is returned as bytes.
type ConvertRequest struct {
	InPath        string
	InData        []byte
	OutPath       string
	ConvertTo     string
	FilterName    string
	FilterOptions []string
	UpdateIndex   bool
	InFilterName  string
}

// convertResult mirrors the worker's answer to a convert operation.
type convertResult struct {
	Data []byte `json:"data,omitempty"`
	Path string `json:"path,omitempty"`
}

// Converter is the capability client for document conversion. It also
// serves the filter catalog queries used to build the info response.
type Converter struct {
	session *Session
}

// NewConverter establishes the conversion session, dialing addr with the
// given retry policy.
func NewConverter(ctx context.Context, addr string, policy RetryPolicy, logger *slog.Logger) (*Converter, error) {
	conn, err := Connect(ctx, NetDialer(addr), policy, logger)
	if err != nil {
		return nil, err
	}
	return &Converter{session: NewSession(conn, CapabilityConvert)}, nil
}

// NewConverterWithDialer is NewConverter with dialing abstracted for tests.
func NewConverterWithDialer(ctx context.Context, dial DialFunc, policy RetryPolicy, logger *slog.Logger) (*Converter, error) {
	conn, err := Connect(ctx, dial, policy, logger)
	if err != nil {
		return nil, err
	}
	return &Converter{session: NewSession(conn, CapabilityConvert)}, nil
}

// Session exposes the underlying session for disposal on timeout.
func (c *Converter) Session() *Session {
	return c.session
}

// Convert runs one conversion. The returned bytes are nil when the worker
// wrote the result to OutPath instead.
func (c *Converter) Convert(ctx context.Context, req ConvertRequest) ([]byte, error) {
	args := map[string]any{
		"update_index": req.UpdateIndex,
	}
	if req.InPath != "" {
		args["inpath"] = req.InPath
	}
	if len(req.InData) > 0 {
		args["indata"] = req.InData
	}
	if req.OutPath != "" {
		args["outpath"] = req.OutPath
	}
	if req.ConvertTo != "" {
		args["convert_to"] = req.ConvertTo
	}
	if req.FilterName != "" {
		args["filter_name"] = req.FilterName
	}
	if len(req.FilterOptions) > 0 {
		args["filter_options"] = req.FilterOptions
	}
	if req.InFilterName != "" {
		args["in_filter_name"] = req.InFilterName
	}

	raw, err := c.session.call(ctx, opConvert, args)
	if err != nil {
		return nil, err
	}

	var result convertResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode convert result: %w", err)
	}
	return result.Data, nil
}

// AvailableImportFilters returns the worker's import filter identifiers.
func (c *Converter) AvailableImportFilters(ctx context.Context) ([]string, error) {
	return c.stringListOp(ctx, opImportFilters, nil)
}

// AvailableExportFilters returns the worker's export filter identifiers.
func (c *Converter) AvailableExportFilters(ctx context.Context) ([]string, error) {
	return c.stringListOp(ctx, opExportFilters, nil)
}

// FilterNames resolves filter identifiers to their display names,
// preserving order.
func (c *Converter) FilterNames(ctx context.Context, ids []string) ([]string, error) {
	return c.stringListOp(ctx, opFilterNames, map[string]any{"ids": ids})
}

func (c *Converter) stringListOp(ctx context.Context, op string, args map[string]any) ([]string, error) {
	raw, err := c.session.call(ctx, op, args)
	if err != nil {
		return nil, err
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", op, err)
	}
	return list, nil
}
