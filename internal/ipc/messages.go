package ipc

import (
	"encoding/json"

	"github.com/willibrandon/dbpanel/internal/db/models"
	"github.com/willibrandon/dbpanel/internal/history"
	"github.com/willibrandon/dbpanel/internal/panel"
)

// Request represents an IPC request from the editor extension.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Outbound message kinds.
const (
	KindResponse = "response"
	KindEvent    = "event"
)

// EventRefresh tells subscribers to re-read connections and tables.
const EventRefresh = "refresh"

// Message is any line written by the server: a response to one request or
// an unsolicited event.
type Message struct {
	Kind   string          `json:"kind"`
	ID     string          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
	Event  string          `json:"event,omitempty"`
}

// Error represents an IPC error response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// Error codes.
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeMethodNotFound = "METHOD_NOT_FOUND"
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeConnectivity   = "CONNECTIVITY_ERROR"
	ErrCodeQuery          = "QUERY_ERROR"
	ErrCodePersistence    = "PERSISTENCE_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeDuplicateName  = "DUPLICATE_NAME"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// Method names.
const (
	MethodConnectionsList         = "connections.list"
	MethodConnectionsGet          = "connections.get"
	MethodConnectionsTest         = "connections.test"
	MethodConnectionsAdd          = "connections.add"
	MethodConnectionsRemove       = "connections.remove"
	MethodConnectionsDeleteByName = "connections.delete_by_name"
	MethodTablesList              = "tables.list"
	MethodTablesInvalidate        = "tables.invalidate"
	MethodTableLoad               = "table.load"
	MethodQueryExecute            = "query.execute"
	MethodQueryHistory            = "query.history"
	MethodExportWrite             = "export.write"
	MethodPanelOpen               = "panel.open"
	MethodPanelFocus              = "panel.focus"
	MethodPanelDispose            = "panel.dispose"
	MethodPanelList               = "panel.list"
	MethodEventsSubscribe         = "events.subscribe"
)

// NoParams is accepted by methods without parameters; anything other than
// an empty object is rejected.
type NoParams struct{}

// ConnectionRefParams identifies a saved connection by id or name.
type ConnectionRefParams struct {
	Connection string `json:"connection" validate:"required"`
}

// DeleteByNameParams are the parameters for connections.delete_by_name.
type DeleteByNameParams struct {
	Name string `json:"name" validate:"required"`
}

// TableParams are the parameters for table.load.
type TableParams struct {
	Connection string `json:"connection" validate:"required"`
	Schema     string `json:"schema" validate:"required"`
	Table      string `json:"table" validate:"required"`
}

// QueryParams are the parameters for query.execute.
type QueryParams struct {
	Connection string `json:"connection" validate:"required"`
	SQL        string `json:"sql" validate:"required"`
}

// HistoryParams are the parameters for query.history.
type HistoryParams struct {
	Connection string `json:"connection" validate:"required"`
	Search     string `json:"search,omitempty"`
	Limit      int    `json:"limit,omitempty" validate:"gte=0,lte=1000"`
}

// ExportParams are the parameters for export.write. Either columns and rows
// are supplied, or connection, schema and table name a table to load.
type ExportParams struct {
	Path       string   `json:"path" validate:"required"`
	Format     string   `json:"format,omitempty"`
	Columns    []string `json:"columns,omitempty"`
	Rows       [][]any  `json:"rows,omitempty"`
	Connection string   `json:"connection,omitempty" validate:"required_without=Columns"`
	Schema     string   `json:"schema,omitempty" validate:"required_with=Connection"`
	Table      string   `json:"table,omitempty" validate:"required_with=Connection"`
}

// PanelOpenParams are the parameters for panel.open.
type PanelOpenParams struct {
	Kind   string       `json:"kind" validate:"required"`
	Target panel.Target `json:"target"`
}

// PanelKindParams are the parameters for panel.focus and panel.dispose.
type PanelKindParams struct {
	Kind string `json:"kind" validate:"required"`
}

// ConnectionsListResult is the result of connections.list.
type ConnectionsListResult struct {
	Connections []models.ConnectionSummary `json:"connections"`
}

// OKResult acknowledges a command with no other output.
type OKResult struct {
	OK bool `json:"ok"`
}

// TablesListResult is the result of tables.list.
type TablesListResult struct {
	Tables []models.TableDescriptor `json:"tables"`
}

// InvalidateResult is the result of tables.invalidate.
type InvalidateResult struct {
	Invalidated bool `json:"invalidated"`
}

// HistoryResult is the result of query.history.
type HistoryResult struct {
	Entries []history.Entry `json:"entries"`
}

// PanelDisposeResult is the result of panel.dispose.
type PanelDisposeResult struct {
	Disposed bool `json:"disposed"`
}

// PanelListResult is the result of panel.list.
type PanelListResult struct {
	Panels []panel.Panel `json:"panels"`
}

// SubscribeResult is the result of events.subscribe.
type SubscribeResult struct {
	Subscribed bool `json:"subscribed"`
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code, message string) Message {
	return Message{
		Kind: KindResponse,
		ID:   id,
		Error: &Error{
			Code:    code,
			Message: message,
		},
	}
}

// NewSuccessResponse creates a success response.
func NewSuccessResponse(id string, result any) (Message, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Kind:   KindResponse,
		ID:     id,
		Result: data,
	}, nil
}

// NewEvent creates an event message.
func NewEvent(event string) Message {
	return Message{Kind: KindEvent, Event: event}
}
