package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"runstream/internal/analysis"
	"runstream/internal/consent"
	"runstream/internal/service"
	"runstream/internal/store"
	"runstream/internal/telemetry"
	"runstream/internal/xslog"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto status codes. Consent states get
// distinct codes so clients can tell "ask the athlete" from "athlete said no".
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ingErr *telemetry.IngestionError
	switch {
	case errors.Is(err, consent.ErrDenied):
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error(), Code: "consent_denied"})
	case errors.Is(err, consent.ErrUnknown):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "consent_unknown"})
	case errors.As(err, &ingErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: ingErr.Error(), Code: "invalid_telemetry"})
	case errors.Is(err, analysis.ErrNotComparable):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Code: "not_comparable"})
	case errors.Is(err, store.ErrActivityNotFound),
		errors.Is(err, store.ErrNoStream),
		errors.Is(err, store.ErrResultNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, service.ErrNoSource):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error(), Code: "no_source"})
	default:
		xslog.FromContext(r.Context()).Error("request failed", xslog.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListActivities(w http.ResponseWriter, r *http.Request) {
	athleteID, err := strconv.ParseInt(r.URL.Query().Get("athlete_id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "athlete_id query parameter is required"})
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	activities, err := s.svc.Activities(r.Context(), athleteID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if activities == nil {
		activities = []store.Activity{}
	}
	writeJSON(w, http.StatusOK, activities)
}

func (s *Server) handleGetActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid activity id"})
		return
	}
	act, err := s.svc.Activity(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, act)
}

// channelsResponse reports which catalog channels an activity's stored
// stream carries.
type channelsResponse struct {
	ActivityID   int64               `json:"activity_id"`
	Present      []telemetry.Channel `json:"present"`
	Missing      []telemetry.Channel `json:"missing"`
	Completeness string              `json:"completeness"`
}

func (s *Server) handleGetChannels(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid activity id"})
		return
	}
	stream, err := s.svc.Stream(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, channelsResponse{
		ActivityID:   id,
		Present:      stream.Availability.Present,
		Missing:      stream.Availability.Missing,
		Completeness: stream.Availability.Completeness(),
	})
}

// ingestRequest carries activity metadata and raw channel payloads in one
// body so a single request can register and ingest an activity.
type ingestRequest struct {
	AthleteID   int64                 `json:"athlete_id"`
	Name        string                `json:"name"`
	Sport       string                `json:"sport"`
	StartDate   time.Time             `json:"start_date"`
	Distance    float64               `json:"distance"`
	MovingTime  int                   `json:"moving_time"`
	ElapsedTime int                   `json:"elapsed_time"`
	Streams     *telemetry.RawStreams `json:"streams"`
}

type ingestResponse struct {
	ActivityID int64                         `json:"activity_id"`
	Points     int                           `json:"points"`
	Channels   telemetry.ChannelAvailability `json:"channels"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid activity id"})
		return
	}
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if req.AthleteID == 0 || req.Streams == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "athlete_id and streams are required"})
		return
	}
	act := store.Activity{
		ID:          id,
		AthleteID:   req.AthleteID,
		Name:        req.Name,
		Sport:       req.Sport,
		StartDate:   req.StartDate,
		Distance:    req.Distance,
		MovingTime:  req.MovingTime,
		ElapsedTime: req.ElapsedTime,
	}
	stream, err := s.svc.Ingest(r.Context(), act, req.Streams)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ingestResponse{
		ActivityID: id,
		Points:     stream.Len(),
		Channels:   stream.Availability,
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid activity id"})
		return
	}
	result, err := s.svc.Analyze(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid activity id"})
		return
	}
	summaries, err := s.svc.Results(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if summaries == nil {
		summaries = []store.ResultSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleLatestResult(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid activity id"})
		return
	}
	result, err := s.svc.LatestResult(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleResultByVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid activity id"})
		return
	}
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version < 1 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid result version"})
		return
	}
	result, err := s.svc.ResultByVersion(r.Context(), id, version)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.Result(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	base, errBase := strconv.ParseInt(r.URL.Query().Get("base"), 10, 64)
	target, errTarget := strconv.ParseInt(r.URL.Query().Get("target"), 10, 64)
	if errBase != nil || errTarget != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "base and target query parameters are required"})
		return
	}
	cmp, err := s.svc.Compare(r.Context(), base, target)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

// consentBody is the wire form of a consent record. UpdatedAt is omitted for
// athletes who have never recorded a decision.
type consentBody struct {
	AthleteID int64         `json:"athlete_id"`
	State     consent.State `json:"state"`
	UpdatedAt *time.Time    `json:"updated_at,omitempty"`
}

func consentToBody(rec consent.Record) consentBody {
	body := consentBody{AthleteID: rec.AthleteID, State: rec.State}
	if !rec.UpdatedAt.IsZero() {
		body.UpdatedAt = &rec.UpdatedAt
	}
	return body
}

func (s *Server) handleGetConsent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid athlete id"})
		return
	}
	rec, err := s.svc.Consent(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, consentToBody(rec))
}

func (s *Server) handleSetConsent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid athlete id"})
		return
	}
	var req struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	state, err := consent.Parse(req.State)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := s.svc.SetConsent(r.Context(), id, state); err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.svc.Consent(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, consentToBody(rec))
}

// calibrationBody is the wire form of an athlete's reference values.
// Absent values stay null; zero never stands in for unknown.
type calibrationBody struct {
	AthleteID   int64    `json:"athlete_id"`
	ThresholdHR *float64 `json:"threshold_hr"`
	MaxHR       *float64 `json:"max_hr"`
	RestingHR   *float64 `json:"resting_hr"`
}

// validateCalibration bounds the reference values and keeps threshold
// below max, matching the CLI config rule.
func validateCalibration(cal analysis.Calibration) error {
	fields := []struct {
		name string
		v    *float64
	}{
		{"threshold_hr", cal.ThresholdHR},
		{"max_hr", cal.MaxHR},
		{"resting_hr", cal.RestingHR},
	}
	for _, f := range fields {
		if f.v != nil && (*f.v <= 20 || *f.v >= 250) {
			return fmt.Errorf("%s must be between 20 and 250 bpm", f.name)
		}
	}
	if cal.ThresholdHR != nil && cal.MaxHR != nil && *cal.ThresholdHR >= *cal.MaxHR {
		return fmt.Errorf("threshold_hr (%v) must be less than max_hr (%v)",
			*cal.ThresholdHR, *cal.MaxHR)
	}
	return nil
}

func (s *Server) handleGetCalibration(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid athlete id"})
		return
	}
	cal, err := s.svc.Calibration(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, calibrationBody{
		AthleteID:   id,
		ThresholdHR: cal.ThresholdHR,
		MaxHR:       cal.MaxHR,
		RestingHR:   cal.RestingHR,
	})
}

func (s *Server) handleSetCalibration(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid athlete id"})
		return
	}
	var req calibrationBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	cal := analysis.Calibration{
		ThresholdHR: req.ThresholdHR,
		MaxHR:       req.MaxHR,
		RestingHR:   req.RestingHR,
	}
	if err := validateCalibration(cal); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := s.svc.SetCalibration(r.Context(), id, cal); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, calibrationBody{
		AthleteID:   id,
		ThresholdHR: cal.ThresholdHR,
		MaxHR:       cal.MaxHR,
		RestingHR:   cal.RestingHR,
	})
}

type syncResponse struct {
	ActivitiesFetched int      `json:"activities_fetched"`
	ActivitiesStored  int      `json:"activities_stored"`
	StreamsFetched    int      `json:"streams_fetched"`
	ResultsComputed   int      `json:"results_computed"`
	Errors            []string `json:"errors"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AthleteID int64 `json:"athlete_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if req.AthleteID == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "athlete_id is required"})
		return
	}
	summary, err := s.svc.Sync(r.Context(), req.AthleteID, nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := syncResponse{
		ActivitiesFetched: summary.ActivitiesFetched,
		ActivitiesStored:  summary.ActivitiesStored,
		StreamsFetched:    summary.StreamsFetched,
		ResultsComputed:   summary.ResultsComputed,
		Errors:            []string{},
	}
	for _, e := range summary.Errors {
		resp.Errors = append(resp.Errors, e.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}
