package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/device"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/flow"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/hardware"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/history"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// DeviceView is the detailed representation of one device.
type DeviceView struct {
	device.Status
	Config  device.Config `json:"config"`
	Actions []string      `json:"actions"`
}

// BatchResponse reports the per-device outcome of a bulk operation.
type BatchResponse struct {
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed,omitempty"`
}

func batchResponse(results map[string]error) BatchResponse {
	resp := BatchResponse{Succeeded: []string{}}
	for id, err := range results {
		if err == nil {
			resp.Succeeded = append(resp.Succeeded, id)
			continue
		}
		if resp.Failed == nil {
			resp.Failed = make(map[string]string)
		}
		resp.Failed[id] = err.Error()
	}
	sort.Strings(resp.Succeeded)
	return resp
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.hw.AllDeviceStatuses())
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, err := s.hw.DeviceStatus(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cfg, err := s.hw.DeviceConfig(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeviceView{
		Status:  status,
		Config:  cfg,
		Actions: hardware.Actions(status.DeviceType),
	})
}

func (s *Server) writeStatus(w http.ResponseWriter, r *http.Request, id string) {
	status, err := s.hw.DeviceStatus(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.hw.ConnectDevice(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeStatus(w, r, id)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.hw.DisconnectDevice(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeStatus(w, r, id)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.hw.ResetDevice(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeStatus(w, r, id)
}

// handleReconnect drops the connection the way a cable pull does, which
// starts the orchestrator's recovery loop.
func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.hw.TriggerDeviceEvent(id, "connectionLost", nil); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reconnecting", "device": id})
}

func (s *Server) handleConnectAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, batchResponse(s.hw.ConnectAllDevices(r.Context())))
}

func (s *Server) handleDisconnectAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, batchResponse(s.hw.DisconnectAllDevices()))
}

func (s *Server) handleResetAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, batchResponse(s.hw.ResetAllDevices()))
}

// TriggerRequest is the body of POST /devices/{id}/trigger.
type TriggerRequest struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req TriggerRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Event == "" {
		s.writeError(w, r, errors.Join(errBadRequest, errors.New("event is required")))
		return
	}
	if err := s.hw.TriggerDeviceEvent(id, req.Event, req.Data); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeStatus(w, r, id)
}

// OperateRequest is the body of POST /devices/{id}/operate.
type OperateRequest struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
}

// OperateResponse wraps the result of a device action.
type OperateResponse struct {
	Device string `json:"device"`
	Action string `json:"action"`
	Result any    `json:"result"`
}

func (s *Server) handleOperate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req OperateRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.hw.Operate(r.Context(), id, req.Action, hardware.Params(req.Params))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OperateResponse{Device: id, Action: req.Action, Result: res})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.hw.DeviceConfig(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePatchConfig(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var patch device.ConfigPatch
	if err := decode(r, &patch); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.hw.UpdateDeviceConfig(r.Context(), id, patch); err != nil {
		s.writeError(w, r, err)
		return
	}
	cfg, err := s.hw.DeviceConfig(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f := history.Filter{
		DeviceID: q.Get("device"),
		Name:     model.EventName(q.Get("name")),
		Limit:    limit,
	}
	if raw := q.Get("device_type"); raw != "" {
		f.DeviceType = model.DeviceType(raw)
	}
	switch q.Get("simulated") {
	case "true":
		f.Simulated = boolPtr(true)
	case "false":
		f.Simulated = boolPtr(false)
	}

	events := s.hist.Query(f)
	out := make([]model.Record, 0, len(events))
	for _, e := range events {
		out = append(out, e.Record())
	}
	writeJSON(w, http.StatusOK, out)
}

func boolPtr(b bool) *bool { return &b }

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.hist.Stats())
}

func (s *Server) handleClearEvents(w http.ResponseWriter, r *http.Request) {
	s.hist.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// SimulateRequest is the body of POST /events/simulate. Either a single
// event or a sequence is given.
type SimulateRequest struct {
	DeviceType model.DeviceType         `json:"deviceType,omitempty"`
	DeviceID   string                   `json:"deviceId,omitempty"`
	Event      model.EventName          `json:"event,omitempty"`
	Payload    model.Payload            `json:"payload,omitempty"`
	Sequence   []history.SimulatedEvent `json:"sequence,omitempty"`
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	seq := req.Sequence
	if len(seq) == 0 {
		if req.DeviceType == "" || req.Event == "" {
			s.writeError(w, r, errors.Join(errBadRequest, errors.New("deviceType and event are required")))
			return
		}
		seq = []history.SimulatedEvent{{
			DeviceType: req.DeviceType,
			DeviceID:   req.DeviceID,
			Name:       req.Event,
			Payload:    req.Payload,
		}}
	}

	events, err := s.hist.SimulateEventSequence(r.Context(), seq)
	out := make([]model.Record, 0, len(events))
	for _, e := range events {
		out = append(out, e.Record())
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleListPatterns(w http.ResponseWriter, r *http.Request) {
	patterns := s.hist.Patterns()
	if patterns == nil {
		patterns = []history.Pattern{}
	}
	writeJSON(w, http.StatusOK, patterns)
}

func (s *Server) handleDefinePattern(w http.ResponseWriter, r *http.Request) {
	var p history.Pattern
	if err := decode(r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	if p.Name == "" {
		s.writeError(w, r, errors.Join(errBadRequest, errors.New("name is required")))
		return
	}
	if err := s.hist.DefinePattern(p.Name, p.Sequence); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleRemovePattern(w http.ResponseWriter, r *http.Request) {
	if err := s.hist.RemovePattern(chi.URLParam(r, "name")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FlowView describes a registered flow.
type FlowView struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Steps       []flow.Step `json:"steps"`
}

func (s *Server) handleListFlows(w http.ResponseWriter, r *http.Request) {
	defs := s.flows.Flows()
	out := make([]FlowView, 0, len(defs))
	for _, d := range defs {
		out = append(out, FlowView{Name: d.Name, Description: d.Description, Steps: d.Steps})
	}
	writeJSON(w, http.StatusOK, out)
}

// StartFlowRequest is the optional body of POST /flows/{name}/start.
type StartFlowRequest struct {
	Data map[string]any `json:"data,omitempty"`
}

func (s *Server) handleStartFlow(w http.ResponseWriter, r *http.Request) {
	var req StartFlowRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := s.flows.StartFlow(r.Context(), chi.URLParam(r, "name"), req.Data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeInstance(w, r, http.StatusCreated, id)
}

func (s *Server) writeInstance(w http.ResponseWriter, r *http.Request, status int, id string) {
	inst, err := s.flows.Instance(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, status, inst)
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	insts := s.flows.Instances()
	if insts == nil {
		insts = []*flow.Instance{}
	}
	writeJSON(w, http.StatusOK, insts)
}

func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	s.writeInstance(w, r, http.StatusOK, chi.URLParam(r, "id"))
}

func (s *Server) handleAdvanceFlow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.flows.AdvanceFlow(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeInstance(w, r, http.StatusOK, id)
}

func (s *Server) handleRemoveInstance(w http.ResponseWriter, r *http.Request) {
	if err := s.flows.RemoveInstance(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
