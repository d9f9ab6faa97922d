package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lumistudy/LumiTutor/services/tutor/datatypes"
	"github.com/lumistudy/LumiTutor/services/tutor/generate"
	"github.com/lumistudy/LumiTutor/services/tutor/middleware"
	"github.com/lumistudy/LumiTutor/services/tutor/observability"
	"github.com/lumistudy/LumiTutor/services/tutor/session"
	"github.com/lumistudy/LumiTutor/services/tutor/streaming"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// wsInbound is the raw frame shape; Data is decoded per event.
type wsInbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// wsEmitter serializes writes to one connection. The read loop dispatches
// long work (generation, streaming) to goroutines, so concurrent writers
// are the norm and gorilla connections allow only one writer at a time.
type wsEmitter struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (e *wsEmitter) Emit(event string, data any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.ws.WriteJSON(datatypes.WSEnvelope{Event: event, Data: data})
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "event", event, "error", err)
	} else if event == datatypes.EventContentChunk {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordChunk()
		}
	}
	return err
}

func (e *wsEmitter) emitError(code, message string) {
	_ = e.Emit(datatypes.EventError, datatypes.ErrorPayload{Code: code, Message: message})
}

// errorCode maps domain errors to the wire error taxonomy.
func errorCode(err error) string {
	switch {
	case errors.Is(err, errInvalidQuestion):
		return datatypes.CodeValidation
	case errors.Is(err, session.ErrSessionExpired):
		return datatypes.CodeSessionExpired
	case errors.Is(err, session.ErrNoSession):
		return datatypes.CodeNoSession
	case errors.Is(err, generate.ErrGenerationFailed):
		return datatypes.CodeGenerationFailed
	case errors.Is(err, streaming.ErrNotPaused), errors.Is(err, streaming.ErrNoAnswerData):
		return datatypes.CodeResumeError
	case errors.Is(err, streaming.ErrAlreadyStreaming):
		return datatypes.CodeStreamingError
	default:
		return datatypes.CodeInternal
	}
}

// HandleTutorWebSocket is the realtime tutoring channel.
//
// One websocket connection owns one session for its lifetime. The read
// loop is sequential; anything slow (generation, streaming) runs in a
// goroutine so pause and interrupt frames are still read while an
// explanation is in flight. Disconnecting ends the session eagerly.
func HandleTutorWebSocket(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		userID := ""
		userEmail := ""
		if id := middleware.GetIdentity(c); id != nil {
			userID = id.UserID
			userEmail = id.Email
		}

		ctx := c.Request.Context()
		connectionID := uuid.New().String()
		em := &wsEmitter{ws: ws}

		sessionID, err := deps.Sessions.Create(ctx, userID, connectionID)
		if err != nil {
			slog.Error("Failed to create websocket session", "error", err)
			em.emitError(datatypes.CodeInternal, "could not start a session")
			return
		}
		if err := deps.Sessions.BindConnection(ctx, connectionID, sessionID); err != nil {
			slog.Error("Failed to bind connection", "session_id", sessionID, "error", err)
			em.emitError(datatypes.CodeInternal, "could not start a session")
			return
		}
		if m := observability.DefaultMetrics; m != nil {
			m.SessionOpened()
		}
		slog.Info("Websocket client connected", "session_id", sessionID, "user_id", userID)

		if err := em.Emit(datatypes.EventConnected, datatypes.ConnectedPayload{
			SessionID: sessionID,
			UserInfo:  datatypes.UserInfo{UserID: userID, Email: userEmail},
		}); err != nil {
			return
		}

		// Long-running work started by this connection. Waited on before
		// teardown so a half-streamed answer doesn't write to a closed ws.
		var work sync.WaitGroup

		for {
			var frame wsInbound
			if err := ws.ReadJSON(&frame); err != nil {
				slog.Info("Websocket client disconnected", "session_id", sessionID, "error", err.Error())
				if m := observability.DefaultMetrics; m != nil {
					m.RecordClientDisconnect()
				}
				break
			}

			var req datatypes.WSRequest
			if len(frame.Data) > 0 {
				if err := json.Unmarshal(frame.Data, &req); err != nil {
					em.emitError(datatypes.CodeValidation, "malformed event payload")
					continue
				}
			}

			switch frame.Event {
			case datatypes.EventAskQuestion:
				handleAsk(ctx, deps, sessionID, userID, req, false, em, &work)

			case datatypes.EventAskFollowUp:
				handleAsk(ctx, deps, sessionID, userID, req, true, em, &work)

			case datatypes.EventPause:
				handlePause(ctx, deps, sessionID, em)

			case datatypes.EventResume:
				work.Add(1)
				go func() {
					defer work.Done()
					handleResume(ctx, deps, sessionID, em)
				}()

			case datatypes.EventInterrupt:
				work.Add(1)
				go func() {
					defer work.Done()
					handleInterrupt(ctx, deps, sessionID, connectionID, req, em)
				}()

			case datatypes.EventEndSession:
				work.Wait()
				endSession(deps, sessionID, connectionID, "client request")
				_ = em.Emit(datatypes.EventSessionEnded, datatypes.SessionEndedPayload{Reason: "client request"})
				return

			default:
				em.emitError(datatypes.CodeValidation, "unknown event: "+frame.Event)
			}
		}

		work.Wait()
		endSession(deps, sessionID, connectionID, "disconnect")
	}
}

// handleAsk validates, rate-limits, and launches the generate-and-stream
// pipeline in the background so the read loop stays responsive.
func handleAsk(ctx context.Context, deps *Deps, sessionID, userID string, req datatypes.WSRequest, followUp bool, em *wsEmitter, work *sync.WaitGroup) {
	endpoint := observability.EndpointAskQuestion
	action := "ask_question"
	question := req.Question
	if followUp {
		endpoint = observability.EndpointFollowUp
		action = "follow_up"
	}

	if err := validateQuestion(question); err != nil {
		em.emitError(datatypes.CodeValidation, err.Error())
		return
	}
	if !deps.allow(ctx, userID, action) {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeRateLimited)
		}
		em.emitError(datatypes.CodeRateLimited, "too many questions, slow down")
		return
	}

	if len(req.Context) > 0 {
		if err := deps.Sessions.Update(ctx, sessionID, session.Patch{ConversationContext: req.Context}); err != nil {
			slog.Warn("Failed to store conversation context", "session_id", sessionID, "error", err)
		}
	}

	work.Add(1)
	go func() {
		defer work.Done()

		priorQuestion, priorContext := priorTurn(ctx, deps, sessionID)

		_ = em.Emit(datatypes.EventWaitingPhrase, datatypes.WaitingPhrasePayload{
			Phrase:        deps.Generator.WaitingPhrase(),
			Category:      "generation",
			EstimatedTime: 10,
		})

		answer, hit, err := answerFor(ctx, deps, question, followUp, priorQuestion, priorContext)
		if err != nil {
			slog.Error("Failed to answer question", "session_id", sessionID, "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeGenerationFailed)
				m.RecordRequest(endpoint, false)
			}
			em.emitError(errorCode(err), "could not generate an answer, please try again")
			return
		}

		if m := observability.DefaultMetrics; m != nil {
			m.StreamStarted()
		}
		streamErr := deps.Coordinator.Stream(ctx, sessionID, answer, em)
		if m := observability.DefaultMetrics; m != nil {
			status := "success"
			if streamErr != nil {
				status = "error"
			}
			m.StreamEnded(float64(answer.TotalDuration), status)
			m.RecordRequest(endpoint, streamErr == nil)
		}
		if streamErr != nil {
			slog.Error("Streaming failed", "session_id", sessionID, "cache_hit", hit, "error", streamErr)
			em.emitError(errorCode(streamErr), "explanation stream failed")
		}
	}()
}

// handlePause records the pause intent in the session store. The
// streaming loop observes the flag at its next chunk or step boundary,
// persists the exact stop offset, and acknowledges with streaming_paused.
func handlePause(ctx context.Context, deps *Deps, sessionID string, em *wsEmitter) {
	sess, err := deps.Sessions.Get(ctx, sessionID)
	if err != nil {
		em.emitError(errorCode(err), "session is gone, please reconnect")
		return
	}
	if !sess.IsStreaming {
		if sess.IsPaused {
			return // already paused, nothing to do
		}
		em.emitError(datatypes.CodePauseError, "nothing is streaming")
		return
	}

	// Clear is_streaming in the same write as the intent flag so a status
	// read during the pause window never sees both set. The streaming loop
	// still overwrites with the exact stop offset at its next yield point.
	paused, streaming := true, false
	if err := deps.Sessions.Update(ctx, sessionID, session.Patch{IsPaused: &paused, IsStreaming: &streaming}); err != nil {
		em.emitError(errorCode(err), "could not pause")
		return
	}
	if m := observability.DefaultMetrics; m != nil {
		m.RecordPause("client")
		m.RecordRequest(observability.EndpointPause, true)
	}
}

func handleResume(ctx context.Context, deps *Deps, sessionID string, em *wsEmitter) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordResume()
	}
	if err := deps.Coordinator.Resume(ctx, sessionID, nil, em); err != nil {
		slog.Warn("Resume failed", "session_id", sessionID, "error", err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordRequest(observability.EndpointResume, false)
		}
		em.emitError(errorCode(err), "could not resume the explanation")
		return
	}
	if m := observability.DefaultMetrics; m != nil {
		m.RecordRequest(observability.EndpointResume, true)
	}
}

func handleInterrupt(ctx context.Context, deps *Deps, sessionID, connectionID string, req datatypes.WSRequest, em *wsEmitter) {
	if err := validateQuestion(req.ClarificationQuestion); err != nil {
		em.emitError(datatypes.CodeValidation, err.Error())
		return
	}

	clarifyReq := streaming.ClarifyRequest{
		SessionID:    sessionID,
		ConnectionID: connectionID,
		Question:     req.ClarificationQuestion,
		Mode:         req.ResponseMode,
		StepContent:  currentStepContent(ctx, deps, sessionID),
	}
	if req.SessionID != "" {
		clarifyReq.SessionID = req.SessionID
	}

	mode := req.ResponseMode
	if mode != generate.ModeDetailed {
		mode = generate.ModeBrief
	}
	if m := observability.DefaultMetrics; m != nil {
		m.RecordPause("interruption")
		m.RecordInterruption(mode)
	}

	if err := deps.Arbiter.Clarify(ctx, clarifyReq, em); err != nil {
		slog.Warn("Clarification failed", "session_id", sessionID, "error", err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(observability.EndpointInterrupt, observability.ErrorCodeGenerationFailed)
			m.RecordRequest(observability.EndpointInterrupt, false)
		}
		em.emitError(errorCode(err), "could not answer the clarification")
		return
	}

	if m := observability.DefaultMetrics; m != nil {
		m.RecordRequest(observability.EndpointInterrupt, true)
	}
	_ = em.Emit(datatypes.EventClarificationOptions, datatypes.ClarificationOptionsPayload{
		Options: []string{"continue", "new_question"},
	})
}

// priorTurn recovers the previous question's text and the stored
// conversation context for follow-up framing. Best effort: a cache
// eviction just means the follow-up is framed without the prior text.
func priorTurn(ctx context.Context, deps *Deps, sessionID string) (string, map[string]any) {
	sess, err := deps.Sessions.Get(ctx, sessionID)
	if err != nil {
		return "", nil
	}
	priorQuestion := ""
	if sess.CurrentQuestion != "" {
		if prior, err := deps.Cache.Lookup(ctx, sess.CurrentQuestion); err == nil {
			priorQuestion = prior.QuestionText
		}
	}
	return priorQuestion, sess.ConversationContext
}

// currentStepContent fetches the text of the step the session is paused
// in, to ground the clarification. Empty on any miss.
func currentStepContent(ctx context.Context, deps *Deps, sessionID string) string {
	sess, err := deps.Sessions.Get(ctx, sessionID)
	if err != nil || sess.CurrentQuestion == "" {
		return ""
	}
	answer, err := deps.Cache.Lookup(ctx, sess.CurrentQuestion)
	if err != nil || sess.CurrentStep >= len(answer.Steps) {
		return ""
	}
	return answer.Steps[sess.CurrentStep].Content
}

// endSession runs on a fresh context: the request context is already
// canceled by the time a disconnect reaches teardown.
func endSession(deps *Deps, sessionID, connectionID, reason string) {
	ctx := context.Background()
	if err := deps.Sessions.End(ctx, sessionID); err != nil {
		slog.Warn("Failed to end session on teardown", "session_id", sessionID, "error", err)
	}
	if err := deps.Sessions.UnbindConnection(ctx, connectionID); err != nil {
		slog.Warn("Failed to unbind connection", "connection_id", connectionID, "error", err)
	}
	if m := observability.DefaultMetrics; m != nil {
		m.SessionClosed()
	}
	slog.Info("Websocket session torn down", "session_id", sessionID, "reason", reason)
}
