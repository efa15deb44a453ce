package service

import (
	"context"
	"errors"
	"time"

	"github.com/officebridge/officebridge/internal/executor"
	"github.com/officebridge/officebridge/internal/metrics"
	"github.com/officebridge/officebridge/internal/rpc"
	"github.com/officebridge/officebridge/internal/uno"
)

// infoResult is the response of the info method.
type infoResult struct {
	Version       string   `json:"version"`
	APIVersion    string   `json:"apiVersion"`
	ImportFilters []string `json:"importFilters"`
	ExportFilters []string `json:"exportFilters"`
}

// convertParams is the request payload of the convert method. Exactly one
// of inpath/indata must be set; binary document data travels as base64.
type convertParams struct {
	InPath        string   `json:"inpath,omitempty"`
	InData        []byte   `json:"indata,omitempty"`
	OutPath       string   `json:"outpath,omitempty"`
	ConvertTo     string   `json:"convertTo,omitempty"`
	FilterName    string   `json:"filterName,omitempty"`
	FilterOptions []string `json:"filterOptions,omitempty"`
	UpdateIndex   *bool    `json:"updateIndex,omitempty"`
	InFilterName  string   `json:"inFilterName,omitempty"`
}

// compareParams is the request payload of the compare method.
type compareParams struct {
	OldPath  string `json:"oldpath,omitempty"`
	OldData  []byte `json:"olddata,omitempty"`
	NewPath  string `json:"newpath,omitempty"`
	NewData  []byte `json:"newdata,omitempty"`
	OutPath  string `json:"outpath,omitempty"`
	FileType string `json:"fileType,omitempty"`
}

// documentResult carries a converted or comparison document back to the
// client when no outpath was given.
type documentResult struct {
	Data []byte `json:"data,omitempty"`
}

func (c *Controller) registerMethods(registry *rpc.Registry) {
	registry.Register("info", c.instrument("info", c.handleInfo))
	registry.Register("convert", c.instrument("convert", c.handleConvert))
	registry.Register("compare", c.instrument("compare", c.handleCompare))
}

// instrument wraps a handler with request metrics and latency tracking.
func (c *Controller) instrument(method string, h rpc.Handler) rpc.Handler {
	return func(ctx context.Context, req *rpc.Message) (*rpc.Message, error) {
		if c.collector != nil {
			c.collector.RequestStarted()
		}
		start := time.Now()

		resp, err := h(ctx, req)

		elapsed := time.Since(start)
		outcome := metrics.OutcomeOK
		switch {
		case errors.Is(err, executor.ErrTimeout):
			outcome = metrics.OutcomeTimeout
		case err != nil:
			outcome = metrics.OutcomeError
		}
		if c.collector != nil {
			c.collector.RequestFinished(method, outcome, elapsed)
		}
		if err == nil {
			c.latency.Observe(method, elapsed)
		}
		return resp, err
	}
}

func (c *Controller) handleInfo(ctx context.Context, req *rpc.Message) (*rpc.Message, error) {
	importFilters, err := c.converter.AvailableImportFilters(ctx)
	if err != nil {
		return nil, mapEngineError(err)
	}
	exportFilters, err := c.converter.AvailableExportFilters(ctx)
	if err != nil {
		return nil, mapEngineError(err)
	}

	return rpc.NewResponse(req.CorrelationID, infoResult{
		Version:       c.version,
		APIVersion:    APIVersion,
		ImportFilters: importFilters,
		ExportFilters: exportFilters,
	})
}

func (c *Controller) handleConvert(ctx context.Context, req *rpc.Message) (*rpc.Message, error) {
	var params convertParams
	if err := req.UnmarshalParams(&params); err != nil {
		return nil, rpc.Errorf(rpc.CodeBadRequest, "invalid convert params: %v", err)
	}
	if err := validateConvert(params); err != nil {
		return nil, err
	}

	updateIndex := true
	if params.UpdateIndex != nil {
		updateIndex = *params.UpdateIndex
	}

	data, err := c.exec.Run(ctx, "convert",
		func(taskCtx context.Context) ([]byte, error) {
			return c.converter.Convert(taskCtx, uno.ConvertRequest{
				InPath:        params.InPath,
				InData:        params.InData,
				OutPath:       params.OutPath,
				ConvertTo:     params.ConvertTo,
				FilterName:    params.FilterName,
				FilterOptions: params.FilterOptions,
				UpdateIndex:   updateIndex,
				InFilterName:  params.InFilterName,
			})
		},
		executor.Hooks{
			OnSuccess: c.countRequest,
			OnTimeout: func() { c.onTimeout(c.converter.Session()) },
		},
	)
	if err != nil {
		return nil, mapRequestError(err)
	}
	return rpc.NewResponse(req.CorrelationID, documentResult{Data: data})
}

func (c *Controller) handleCompare(ctx context.Context, req *rpc.Message) (*rpc.Message, error) {
	var params compareParams
	if err := req.UnmarshalParams(&params); err != nil {
		return nil, rpc.Errorf(rpc.CodeBadRequest, "invalid compare params: %v", err)
	}
	if err := validateCompare(params); err != nil {
		return nil, err
	}

	data, err := c.exec.Run(ctx, "compare",
		func(taskCtx context.Context) ([]byte, error) {
			return c.comparer.Compare(taskCtx, uno.CompareRequest{
				OldPath:  params.OldPath,
				OldData:  params.OldData,
				NewPath:  params.NewPath,
				NewData:  params.NewData,
				OutPath:  params.OutPath,
				FileType: params.FileType,
			})
		},
		executor.Hooks{
			OnSuccess: c.countRequest,
			OnTimeout: func() { c.onTimeout(c.comparer.Session()) },
		},
	)
	if err != nil {
		return nil, mapRequestError(err)
	}
	return rpc.NewResponse(req.CorrelationID, documentResult{Data: data})
}

func validateConvert(p convertParams) error {
	switch {
	case p.InPath == "" && len(p.InData) == 0:
		return rpc.Errorf(rpc.CodeBadRequest, "one of inpath or indata is required")
	case p.InPath != "" && len(p.InData) > 0:
		return rpc.Errorf(rpc.CodeBadRequest, "inpath and indata are mutually exclusive")
	case p.OutPath == "" && p.ConvertTo == "":
		return rpc.Errorf(rpc.CodeBadRequest, "convertTo is required when no outpath is given")
	}
	return nil
}

func validateCompare(p compareParams) error {
	switch {
	case p.OldPath == "" && len(p.OldData) == 0:
		return rpc.Errorf(rpc.CodeBadRequest, "one of oldpath or olddata is required")
	case p.OldPath != "" && len(p.OldData) > 0:
		return rpc.Errorf(rpc.CodeBadRequest, "oldpath and olddata are mutually exclusive")
	case p.NewPath == "" && len(p.NewData) == 0:
		return rpc.Errorf(rpc.CodeBadRequest, "one of newpath or newdata is required")
	case p.NewPath != "" && len(p.NewData) > 0:
		return rpc.Errorf(rpc.CodeBadRequest, "newpath and newdata are mutually exclusive")
	case p.OutPath == "" && p.FileType == "":
		return rpc.Errorf(rpc.CodeBadRequest, "fileType is required when no outpath is given")
	}
	return nil
}

// mapRequestError translates capability failures to protocol error codes.
func mapRequestError(err error) error {
	if errors.Is(err, executor.ErrTimeout) {
		return rpc.Errorf(rpc.CodeTimeout, "request exceeded the conversion timeout")
	}
	return mapEngineError(err)
}

func mapEngineError(err error) error {
	var engineErr *uno.EngineError
	if errors.As(err, &engineErr) {
		return rpc.Errorf(rpc.CodeEngineError, "%s", engineErr.Message)
	}
	return err
}
