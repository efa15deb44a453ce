package uno

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// CompareRequest holds the arguments of a single comparison. Old and new
// documents are each given as a path or as bytes; when OutPath is empty the
// comparison result document is returned as bytes.
type CompareRequest struct {
	OldPath  string
	OldData  []byte
	NewPath  string
	NewData  []byte
	OutPath  string
	FileType string
}

// Comparer is the capability client for document comparison.
type Comparer struct {
	session *Session
}

// NewComparer establishes the comparison session, dialing addr with the
// given retry policy.
func NewComparer(ctx context.Context, addr string, policy RetryPolicy, logger *slog.Logger) (*Comparer, error) {
	conn, err := Connect(ctx, NetDialer(addr), policy, logger)
	if err != nil {
		return nil, err
	}
	return &Comparer{session: NewSession(conn, CapabilityCompare)}, nil
}

// NewComparerWithDialer is NewComparer with dialing abstracted for tests.
func NewComparerWithDialer(ctx context.Context, dial DialFunc, policy RetryPolicy, logger *slog.Logger) (*Comparer, error) {
	conn, err := Connect(ctx, dial, policy, logger)
	if err != nil {
		return nil, err
	}
	return &Comparer{session: NewSession(conn, CapabilityCompare)}, nil
}

// Session exposes the underlying session for disposal on timeout.
func (c *Comparer) Session() *Session {
	return c.session
}

// Compare runs one comparison. The returned bytes are nil when the worker
// wrote the result to OutPath instead.
func (c *Comparer) Compare(ctx context.Context, req CompareRequest) ([]byte, error) {
	args := map[string]any{}
	if req.OldPath != "" {
		args["oldpath"] = req.OldPath
	}
	if len(req.OldData) > 0 {
		args["olddata"] = req.OldData
	}
	if req.NewPath != "" {
		args["newpath"] = req.NewPath
	}
	if len(req.NewData) > 0 {
		args["newdata"] = req.NewData
	}
	if req.OutPath != "" {
		args["outpath"] = req.OutPath
	}
	if req.FileType != "" {
		args["file_type"] = req.FileType
	}

	raw, err := c.session.call(ctx, opCompare, args)
	if err != nil {
		return nil, err
	}

	var result convertResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode compare result: %w", err)
	}
	return result.Data, nil
}
