package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"

	"github.com/stationmind/stationmind/internal/orchestrator"
)

// chatRequest is the inbound turn shape for both transports.
type chatRequest struct {
	UserInput string `json:"user_input"`
	SessionID string `json:"session_id"`
	AuthToken string `json:"auth_token,omitempty"`
}

// streamData is one WebSocket content frame payload.
type streamData struct {
	Chunk     string `json:"chunk"`
	SessionID string `json:"session_id"`
}

type chatHandler struct {
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
}

// chat serves POST /api/chat: the whole turn runs to completion and the
// concatenated answer returns in one response.
func (h *chatHandler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	res, err := h.orch.ProcessTurn(r.Context(), orchestrator.TurnRequest{
		SessionID: req.SessionID,
		UserInput: req.UserInput,
		AuthToken: req.AuthToken,
	}, orchestrator.Events{})
	if err != nil {
		h.logger.Error("turn failed", "session_id", req.SessionID, "error", err)
		if errors.Is(err, orchestrator.ErrStore) {
			writeError(w, http.StatusServiceUnavailable, "session store unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeOK(w, chatData{
		SessionID: res.SessionID,
		UserInput: res.UserInput,
		Answer:    res.Answer,
	})
}

// stream serves GET /ws/chat: each inbound frame is one turn whose
// answer streams back chunk by chunk, terminated by a stream_end frame.
// Tool completions appear as ordinary chunk frames carrying the marker.
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "server error")

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			h.logger.Debug("websocket read failed", "error", err)
			return
		}

		var req chatRequest
		if err := json.Unmarshal(data, &req); err != nil || strings.TrimSpace(req.SessionID) == "" {
			if err := h.writeFrame(ctx, conn, envelope{
				Code:    http.StatusBadRequest,
				Message: "session_id and user_input are required",
			}); err != nil {
				return
			}
			continue
		}

		if err := h.streamTurn(ctx, conn, req); err != nil {
			if errors.Is(err, orchestrator.ErrStore) {
				conn.Close(websocket.StatusInternalError, "session store unavailable")
				return
			}
			h.logger.Debug("stream turn ended", "session_id", req.SessionID, "error", err)
			return
		}
	}
}

// streamTurn runs one turn, forwarding chunks as they are produced.
func (h *chatHandler) streamTurn(ctx context.Context, conn *websocket.Conn, req chatRequest) error {
	ev := orchestrator.Events{
		OnChunk: func(ctx context.Context, chunk string) error {
			return h.writeFrame(ctx, conn, envelope{
				Code:    http.StatusOK,
				Message: "success",
				Data:    streamData{Chunk: chunk, SessionID: req.SessionID},
			})
		},
		OnToolDone: func(ctx context.Context) error {
			return h.writeFrame(ctx, conn, envelope{
				Code:    http.StatusOK,
				Message: "success",
				Data:    streamData{Chunk: orchestrator.MarkerToolDone, SessionID: req.SessionID},
			})
		},
	}

	if _, err := h.orch.ProcessTurn(ctx, orchestrator.TurnRequest{
		SessionID: req.SessionID,
		UserInput: req.UserInput,
		AuthToken: req.AuthToken,
	}, ev); err != nil {
		return err
	}

	return h.writeFrame(ctx, conn, envelope{
		Code:    http.StatusOK,
		Message: "stream_end",
		Data:    map[string]string{"session_id": req.SessionID},
	})
}

func (h *chatHandler) writeFrame(ctx context.Context, conn *websocket.Conn, frame envelope) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
