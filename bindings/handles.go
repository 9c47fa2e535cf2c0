package main

import (
	"encoding/json"
	"sync"

	"github.com/nickyhof/orpheusplus"
	"github.com/nickyhof/orpheusplus/config"
	"github.com/nickyhof/orpheusplus/db"
	log "github.com/sirupsen/logrus"
)

// Handle is an open instance with the engine of the configured user.
type Handle struct {
	instance *orpheusplus.Instance
	engine   *db.Engine
	mu       sync.Mutex
}

var (
	handlesMu  sync.Mutex
	handles    = make(map[int]*Handle)
	nextHandle = 1
)

// Response mirrors the server protocol.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Type    string          `json:"type,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

type QueryResponse struct {
	Columns         []string   `json:"columns"`
	Data            [][]string `json:"data"`
	RecordsRead     int        `json:"records_read"`
	ExecutionTimeMs float64    `json:"execution_time_ms"`
}

type CommitResponse struct {
	Table           string  `json:"table,omitempty"`
	Action          string  `json:"action,omitempty"`
	Version         int64   `json:"version"`
	RecordsWritten  int     `json:"records_written,omitempty"`
	RecordsDeleted  int     `json:"records_deleted,omitempty"`
	RowsAffected    int64   `json:"rows_affected,omitempty"`
	ExecutionTimeMs float64 `json:"execution_time_ms"`
}

func open(cfg config.Config) (int, error) {
	instance, err := orpheusplus.OpenConfig(cfg)
	if err != nil {
		log.WithError(err).Error("failed to open instance")
		return -1, err
	}

	handlesMu.Lock()
	defer handlesMu.Unlock()
	handle := nextHandle
	nextHandle++
	handles[handle] = &Handle{instance: instance, engine: instance.Engine(cfg.Identity())}
	return handle, nil
}

func lookup(handle int) (*Handle, bool) {
	handlesMu.Lock()
	defer handlesMu.Unlock()
	h, ok := handles[handle]
	return h, ok
}

func closeHandle(handle int) {
	handlesMu.Lock()
	h, ok := handles[handle]
	delete(handles, handle)
	handlesMu.Unlock()
	if ok {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.instance.Close()
	}
}

// execute runs query on the handle and returns the JSON response.
func execute(handle int, query string) []byte {
	h, ok := lookup(handle)
	if !ok {
		return errorResponse("invalid handle")
	}
	h.mu.Lock()
	result, err := h.engine.Execute(query)
	h.mu.Unlock()
	if err != nil {
		return errorResponse(err.Error())
	}

	var resp Response
	switch r := result.(type) {
	case db.QueryResult:
		data, _ := json.Marshal(QueryResponse{
			Columns:         r.Columns,
			Data:            r.Data,
			RecordsRead:     r.RecordsRead,
			ExecutionTimeMs: r.ExecutionTimeSec * 1000,
		})
		resp = Response{Success: true, Type: "query", Result: data}

	case db.CommitResult:
		data, _ := json.Marshal(CommitResponse{
			Table:           r.Table,
			Action:          r.Action,
			Version:         int64(r.Version),
			RecordsWritten:  r.RecordsWritten,
			RecordsDeleted:  r.RecordsDeleted,
			RowsAffected:    r.RowsAffected,
			ExecutionTimeMs: r.ExecutionTimeSec * 1000,
		})
		resp = Response{Success: true, Type: "commit", Result: data}

	default:
		resp = Response{Success: true, Type: "unknown"}
	}
	data, _ := json.Marshal(resp)
	return data
}

func errorResponse(msg string) []byte {
	data, _ := json.Marshal(Response{Success: false, Error: msg})
	return data
}
