package http

import (
	"net/http"
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/utils/errutil"
	"github.com/LalaIAm/case-agent/pkg/utils/logging"
	"github.com/LalaIAm/case-agent/pkg/utils/safe"
	"github.com/gorilla/websocket"
	"github.com/m-mizutani/goerr/v2"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// streamEvents pushes the progress events of a case over a websocket.
// The first message is a workflow_update snapshot; a ping is sent every heartbeat.
// Clients are read-only observers; anything they send is discarded.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := caseIDParam(r)

	if _, err := s.uc.Case.GetCase(ctx, caseID); err != nil {
		errutil.HandleHTTP(ctx, w, err)
		return
	}

	// Subscribe before taking the snapshot so no event falls between them
	sub := s.broadcaster.Subscribe(caseID)
	defer sub.Close()

	state, err := s.uc.Workflow.GetStatus(ctx, caseID)
	if err != nil {
		errutil.HandleHTTP(ctx, w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.From(ctx).Warn("failed to upgrade websocket", "case_id", caseID, "error", err)
		return
	}
	defer safe.Close(ctx, conn, "case_id", caseID)

	logger := logging.From(ctx).With("case_id", caseID, "subscription_id", sub.ID())
	logger.Info("observer attached")
	defer logger.Info("observer detached")

	readTimeout := 2 * s.heartbeat
	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		logger.Warn("failed to set read deadline", "error", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeEvent(conn, model.NewWorkflowEvent(state, time.Now().UTC())); err != nil {
		logger.Warn("failed to send snapshot", "error", err)
		return
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				if err := conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"),
					time.Now().Add(writeWait)); err != nil {
					logger.Debug("failed to send close frame", "error", err)
				}
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				logger.Warn("failed to send event", "event_type", ev.Type, "error", err)
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logger.Warn("heartbeat failed", "error", err)
				return
			}

		case <-readDone:
			return

		case <-ctx.Done():
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, ev *model.Event) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return goerr.Wrap(err, "failed to set write deadline")
	}
	if err := conn.WriteJSON(ev); err != nil {
		return goerr.Wrap(err, "failed to write event", goerr.V("event_type", ev.Type))
	}
	return nil
}
