package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/yolkispalkis/hostproxy/pkg/proxy"
)

// Command represents a request sent to the resolve service.
type Command struct {
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Response represents the service's answer to one Command.
type Response struct {
	Status string          `json:"status"`          // "ok" or "error"
	Error  string          `json:"error,omitempty"` // Set when status is "error"
	Data   json.RawMessage `json:"data,omitempty"`
}

// Constants for response status field.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Command names.
const (
	CommandResolve       = "resolve"
	CommandGetStatus     = "get_status"
	CommandInvalidatePAC = "invalidate_pac"
	CommandPing          = "ping"
)

// --- Command Data Payloads ---

// ResolveData asks for the proxy settings of one URL.
type ResolveData struct {
	URL string `json:"url"`
}

// InvalidatePACData drops a cached PAC script so the next resolution
// downloads it again.
type InvalidatePACData struct {
	ScriptURL string `json:"script_url"`
}

// --- Response Data Payloads ---

// ResolveResultData carries proxy.Settings over the wire. Optional fields are
// pointers so that "unset" and "empty" stay distinct.
type ResolveResultData struct {
	URL      string  `json:"url"`
	Enabled  bool    `json:"enabled"`
	Server   *string `json:"server,omitempty"`
	Port     uint32  `json:"port,omitempty"`
	User     *string `json:"user,omitempty"`
	Password *string `json:"password,omitempty"`
}

// GetStatusData is sent in response to get_status.
type GetStatusData struct {
	Status            string `json:"status"` // "running"
	ServiceVersion    string `json:"service_version"`
	UptimeSeconds     int64  `json:"uptime_seconds"`
	Source            string `json:"source"`
	CredentialStore   string `json:"credential_store"`
	Resolutions       uint64 `json:"resolutions"`
	Proxied           uint64 `json:"proxied"`
	ActiveConnections int64  `json:"active_connections"`
}

// NewResolveResult converts settings resolved for rawURL.
func NewResolveResult(rawURL string, s proxy.Settings) ResolveResultData {
	out := ResolveResultData{URL: rawURL, Enabled: s.Enabled}
	if !s.Enabled {
		return out
	}
	out.Port = s.Port
	out.Server = optionalPtr(s.Server)
	out.User = optionalPtr(s.User)
	out.Password = optionalPtr(s.Password)
	return out
}

// Settings converts the payload back to proxy.Settings.
func (r ResolveResultData) Settings() proxy.Settings {
	if !r.Enabled {
		return proxy.Disabled
	}
	return proxy.Settings{
		Enabled:  true,
		Server:   ptrOptional(r.Server),
		Port:     r.Port,
		User:     ptrOptional(r.User),
		Password: ptrOptional(r.Password),
	}
}

func optionalPtr(o proxy.Optional[string]) *string {
	if v, ok := o.Get(); ok {
		return &v
	}
	return nil
}

func ptrOptional(p *string) proxy.Optional[string] {
	if p == nil {
		return proxy.None[string]()
	}
	return proxy.Some(*p)
}

// --- Helper Functions ---

// NewCommand creates a new Command structure, marshalling the data payload.
func NewCommand(command string, data interface{}) (*Command, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal command data for '%s': %w", command, err)
		}
	}
	return &Command{Command: command, Data: rawData}, nil
}

// NewResponse creates a new Response structure, marshalling data only on success.
func NewResponse(status string, data interface{}, errMsg string) (*Response, error) {
	resp := &Response{Status: status, Error: errMsg}
	if status == StatusOK && data != nil {
		rawData, err := json.Marshal(data)
		if err != nil {
			resp.Status = StatusError
			resp.Error = fmt.Sprintf("failed to marshal OK response data: %v", err)
			return resp, fmt.Errorf("failed to marshal OK response data: %w", err)
		}
		resp.Data = rawData
	}
	return resp, nil
}

// NewOKResponse creates a success response with optional data payload.
func NewOKResponse(data interface{}) (*Response, error) {
	return NewResponse(StatusOK, data, "")
}

// NewErrorResponse creates an error response with a message.
func NewErrorResponse(errMsg string) *Response {
	resp, _ := NewResponse(StatusError, nil, errMsg)
	return resp
}

// DecodeData unmarshals the raw data from a Command or Response into target.
// Empty or null data leaves target untouched.
func DecodeData(rawData json.RawMessage, target interface{}) error {
	if len(rawData) == 0 || string(rawData) == "null" {
		return nil
	}
	if target == nil {
		return fmt.Errorf("target interface for decoding cannot be nil")
	}
	if err := json.Unmarshal(rawData, target); err != nil {
		return fmt.Errorf("failed to unmarshal data payload: %w", err)
	}
	return nil
}
