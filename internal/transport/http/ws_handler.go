package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"quiz-participation-service/internal/app"
	"quiz-participation-service/internal/domain"
)

// WSHandler streams a single attempt to a websocket client.
type WSHandler struct {
	service  *app.ParticipationService
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

func NewWSHandler(service *app.ParticipationService, log logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		service: service,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string      `json:"message"`
	Kind    domain.Kind `json:"kind"`
}

// errorMessage hides internal error details from the client and logs them instead.
func errorMessage(log logrus.FieldLogger, err error) outboundMessage[any] {
	kind := domain.KindOf(err)
	msg := err.Error()
	if kind == domain.KindInternal {
		log.WithError(err).Error("ws request failed")
		msg = "internal server error"
	}
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg, Kind: kind}}
}

// ServeWS upgrades /ws?attemptId=... and wires the connection into the participation use cases.
// Clients may send "toggle" and "submit"; selection changes made elsewhere are pushed as they happen.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	attemptID := r.URL.Query().Get("attemptId")
	if attemptID == "" {
		http.Error(w, "missing attemptId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()
	log := h.log.WithField("attempt_id", attemptID)

	updates, cancel := h.service.Hub().Subscribe(attemptID)
	defer cancel()

	content, err := h.service.Content(r.Context(), attemptID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(log, err))
		return
	}
	selections, err := h.service.Selections(r.Context(), attemptID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(log, err))
		return
	}
	if selections == nil {
		selections = []domain.Selection{}
	}

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("ws write failed")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: ev.Type, Payload: ev}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "content", Payload: content}
	send <- outboundMessage[any]{Type: "selections", Payload: selectionsResponse{ParticipationID: attemptID, Selections: selections}}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "toggle":
			var payload toggleRequest
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.QuestionID == "" || payload.AnswerID == "" {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid toggle payload", Kind: domain.KindInvalid}}
				continue
			}
			selected, err := h.service.ToggleAnswer(r.Context(), attemptID, payload.QuestionID, payload.AnswerID)
			if err != nil {
				send <- errorMessage(log, err)
				continue
			}
			send <- outboundMessage[any]{Type: "toggled", Payload: toggleResponse{
				QuestionID: payload.QuestionID,
				AnswerID:   payload.AnswerID,
				Selected:   selected,
			}}
		case "submit":
			result, disclosure, err := h.service.Submit(r.Context(), attemptID)
			if err != nil {
				send <- errorMessage(log, err)
				continue
			}
			send <- outboundMessage[any]{Type: "result", Payload: newSubmitResponse(result, disclosure)}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type", Kind: domain.KindInvalid}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
