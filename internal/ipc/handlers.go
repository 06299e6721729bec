package ipc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/willibrandon/dbpanel/internal/app"
	"github.com/willibrandon/dbpanel/internal/browser"
	"github.com/willibrandon/dbpanel/internal/db"
	"github.com/willibrandon/dbpanel/internal/db/models"
	"github.com/willibrandon/dbpanel/internal/export"
	"github.com/willibrandon/dbpanel/internal/panel"
	"github.com/willibrandon/dbpanel/internal/registry"
	"github.com/willibrandon/dbpanel/internal/storage"
	"github.com/willibrandon/dbpanel/internal/validation"
)

// ErrorCode maps a core error to its wire code.
func ErrorCode(err error) string {
	var perr *storage.PersistenceError
	switch {
	case validation.IsValidationError(err), errors.Is(err, panel.ErrUnknownKind):
		return ErrCodeValidation
	case errors.Is(err, registry.ErrDuplicateName):
		return ErrCodeDuplicateName
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, browser.ErrTableNotFound), errors.Is(err, panel.ErrNoPanel):
		return ErrCodeNotFound
	case db.IsConnectivity(err):
		return ErrCodeConnectivity
	case db.IsQuery(err):
		return ErrCodeQuery
	case errors.As(err, &perr):
		return ErrCodePersistence
	default:
		return ErrCodeInternalError
	}
}

// RegisterHandlers registers every method served by svc.
func RegisterHandlers(s *Server, svc *app.Service) {
	h := &handlers{svc: svc}

	s.RegisterHandler(MethodConnectionsList, h.connectionsList)
	s.RegisterHandler(MethodConnectionsGet, h.connectionsGet)
	s.RegisterHandler(MethodConnectionsTest, h.connectionsTest)
	s.RegisterHandler(MethodConnectionsAdd, h.connectionsAdd)
	s.RegisterHandler(MethodConnectionsRemove, h.connectionsRemove)
	s.RegisterHandler(MethodConnectionsDeleteByName, h.connectionsDeleteByName)
	s.RegisterHandler(MethodTablesList, h.tablesList)
	s.RegisterHandler(MethodTablesInvalidate, h.tablesInvalidate)
	s.RegisterHandler(MethodTableLoad, h.tableLoad)
	s.RegisterHandler(MethodQueryExecute, h.queryExecute)
	s.RegisterHandler(MethodQueryHistory, h.queryHistory)
	s.RegisterHandler(MethodExportWrite, h.exportWrite)
	s.RegisterHandler(MethodPanelOpen, h.panelOpen)
	s.RegisterHandler(MethodPanelFocus, h.panelFocus)
	s.RegisterHandler(MethodPanelDispose, h.panelDispose)
	s.RegisterHandler(MethodPanelList, h.panelList)
	s.SetEventSource(svc.Subscribe)
}

type handlers struct {
	svc *app.Service
}

// decode strictly decodes params into v and checks its validate tags.
func decode(raw json.RawMessage, v any) error {
	if err := decodeParams(raw, v); err != nil {
		return err
	}
	return validation.Struct(v)
}

func (h *handlers) connectionsList(_ context.Context, raw json.RawMessage) (any, error) {
	var p NoParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return ConnectionsListResult{Connections: h.svc.Connections()}, nil
}

func (h *handlers) connectionsGet(_ context.Context, raw json.RawMessage) (any, error) {
	var p ConnectionRefParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return h.svc.Connection(p.Connection)
}

func (h *handlers) connectionsTest(ctx context.Context, raw json.RawMessage) (any, error) {
	var in models.ConnectionInput
	if err := decodeParams(raw, &in); err != nil {
		return nil, err
	}
	in.ApplyDefaults()
	if err := validation.Struct(in.ConnectionParams); err != nil {
		return nil, err
	}
	if err := h.svc.TestConnection(ctx, in.ConnectionParams); err != nil {
		return nil, err
	}
	return OKResult{OK: true}, nil
}

func (h *handlers) connectionsAdd(ctx context.Context, raw json.RawMessage) (any, error) {
	var in models.ConnectionInput
	if err := decodeParams(raw, &in); err != nil {
		return nil, err
	}
	return h.svc.AddConnection(ctx, in)
}

func (h *handlers) connectionsRemove(ctx context.Context, raw json.RawMessage) (any, error) {
	var p ConnectionRefParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if err := h.svc.RemoveConnection(ctx, p.Connection); err != nil {
		return nil, err
	}
	return OKResult{OK: true}, nil
}

func (h *handlers) connectionsDeleteByName(ctx context.Context, raw json.RawMessage) (any, error) {
	var p DeleteByNameParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if err := h.svc.DeleteConnectionByName(ctx, p.Name); err != nil {
		return nil, err
	}
	return OKResult{OK: true}, nil
}

func (h *handlers) tablesList(ctx context.Context, raw json.RawMessage) (any, error) {
	var p ConnectionRefParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	tables, err := h.svc.Tables(ctx, p.Connection)
	if err != nil {
		return nil, err
	}
	return TablesListResult{Tables: tables}, nil
}

func (h *handlers) tablesInvalidate(_ context.Context, raw json.RawMessage) (any, error) {
	var p ConnectionRefParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	ok, err := h.svc.InvalidateTables(p.Connection)
	if err != nil {
		return nil, err
	}
	return InvalidateResult{Invalidated: ok}, nil
}

func (h *handlers) tableLoad(ctx context.Context, raw json.RawMessage) (any, error) {
	var p TableParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return h.svc.LoadTableData(ctx, p.Connection, p.Schema, p.Table)
}

func (h *handlers) queryExecute(ctx context.Context, raw json.RawMessage) (any, error) {
	var p QueryParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return h.svc.ExecuteQuery(ctx, p.Connection, p.SQL)
}

func (h *handlers) queryHistory(ctx context.Context, raw json.RawMessage) (any, error) {
	var p HistoryParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	entries, err := h.svc.History(ctx, p.Connection, p.Search, p.Limit)
	if err != nil {
		return nil, err
	}
	return HistoryResult{Entries: entries}, nil
}

func (h *handlers) exportWrite(ctx context.Context, raw json.RawMessage) (any, error) {
	var p ExportParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	format, err := export.ParseFormat(p.Format)
	if err != nil {
		return nil, &HandlerError{Code: ErrCodeValidation, Message: err.Error()}
	}
	if len(p.Columns) > 0 {
		return h.svc.ExportRows(p.Path, format, p.Columns, p.Rows)
	}
	return h.svc.ExportTable(ctx, p.Connection, p.Schema, p.Table, p.Path, format)
}

func (h *handlers) panelOpen(_ context.Context, raw json.RawMessage) (any, error) {
	var p PanelOpenParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	kind, err := panel.ParseKind(p.Kind)
	if err != nil {
		return nil, err
	}
	return h.svc.Panels().Open(kind, p.Target)
}

func (h *handlers) panelFocus(_ context.Context, raw json.RawMessage) (any, error) {
	var p PanelKindParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	kind, err := panel.ParseKind(p.Kind)
	if err != nil {
		return nil, err
	}
	return h.svc.Panels().Focus(kind)
}

func (h *handlers) panelDispose(_ context.Context, raw json.RawMessage) (any, error) {
	var p PanelKindParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	kind, err := panel.ParseKind(p.Kind)
	if err != nil {
		return nil, err
	}
	return PanelDisposeResult{Disposed: h.svc.Panels().Dispose(kind)}, nil
}

func (h *handlers) panelList(_ context.Context, raw json.RawMessage) (any, error) {
	var p NoParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return PanelListResult{Panels: h.svc.Panels().List()}, nil
}
