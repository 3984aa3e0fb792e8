package pceapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pcehq/pce/pkg/pcetypes"
	"github.com/pcehq/pce/pkg/transcript"
)

func (s *Server) handleTranscriptSince(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r)
	defer cancel()

	since, err := parseCursor(r.URL.Query().Get("since"))
	if err != nil {
		WriteBadRequest(w, "since must be a non-negative integer cursor")
		return
	}

	items, err := s.deps.Transcript.Since(ctx, since)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	cursor := since
	if len(items) > 0 {
		cursor = items[len(items)-1].Cursor
	}
	writeJSON(w, http.StatusOK, map[string]any{"cursor": cursor, "items": items})
}

func parseCursor(raw string) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return v, nil
}

// handleStreamSSE serves the live transcript as Server-Sent Events,
// catching the client up from ?since=<cursor> before switching to the live
// subscription so no item is missed across the handoff.
func (s *Server) handleStreamSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteInternal(w, fmt.Errorf("pceapi: streaming unsupported"))
		return
	}

	since, err := parseCursor(r.URL.Query().Get("since"))
	if err != nil {
		WriteBadRequest(w, "since must be a non-negative integer cursor")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch, unsubscribe := s.deps.Transcript.Subscribe()
	defer unsubscribe()

	ctx := r.Context()
	backlog, err := s.deps.Transcript.Since(ctx, since)
	if err == nil {
		for _, item := range backlog {
			writeSSEItem(w, item)
		}
		flusher.Flush()
	}

	heartbeat := time.NewTicker(20 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case item := <-ch:
			writeSSEItem(w, item)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEItem(w http.ResponseWriter, item pcetypes.TranscriptItem) {
	payload, err := json.Marshal(item)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", transcript.EventName(item.Kind), payload)
}

// handleStreamWS serves the same live transcript stream over a raw
// WebSocket connection, for clients that prefer a persistent socket over
// SSE's text/event-stream framing.
func (s *Server) handleStreamWS(w http.ResponseWriter, r *http.Request) {
	since, err := parseCursor(r.URL.Query().Get("since"))
	if err != nil {
		WriteBadRequest(w, "since must be a non-negative integer cursor")
		return
	}

	ws, err := upgradeWebSocket(w, r)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	defer ws.Close()

	ch, unsubscribe := s.deps.Transcript.Subscribe()
	defer unsubscribe()

	ctx := r.Context()
	backlog, err := s.deps.Transcript.Since(ctx, since)
	if err == nil {
		for _, item := range backlog {
			if !writeWSItem(ws, item) {
				return
			}
		}
	}

	heartbeat := time.NewTicker(20 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case item := <-ch:
			if !writeWSItem(ws, item) {
				return
			}
		case <-heartbeat.C:
			if ws.WritePing() != nil {
				return
			}
		}
	}
}

func writeWSItem(ws *wsConn, item pcetypes.TranscriptItem) bool {
	payload, err := json.Marshal(map[string]any{
		"event": transcript.EventName(item.Kind),
		"item":  item,
	})
	if err != nil {
		return true
	}
	return ws.WriteText(payload) == nil
}
