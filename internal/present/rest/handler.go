package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/attestry/attestry"
	"github.com/attestry/attestry/internal/domain"
	"github.com/attestry/attestry/internal/present/rest/presenter"
	"github.com/attestry/attestry/internal/service"
	"github.com/attestry/attestry/internal/usecase"
)

type Handler struct {
	config   domain.Config
	mutation *usecase.MutationUsecase
	query    *usecase.QueryUsecase
	signal   *service.SignalService
}

func NewHandler(
	config domain.Config,
	mutation *usecase.MutationUsecase,
	query *usecase.QueryUsecase,
	signal *service.SignalService,
) *Handler {
	return &Handler{
		config:   config,
		mutation: mutation,
		query:    query,
		signal:   signal,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/.well-known/attestry", h.handleWellKnown)
	e.POST("/commit", h.handleCommit)
	e.GET("/streams/:id", h.handleStream)
	e.GET("/streams/:id/chain", h.handleChain)
	e.GET("/streams", h.handleStreams)
	e.GET("/attestations", h.handleAttestations)
	e.GET("/viewer", h.handleViewer)
	e.GET("/realtime", h.handleRealtime)
}

func (h *Handler) handleWellKnown(c echo.Context) error {
	wellknown := attestry.WellKnownAttestry{
		Version: "1.0",
		Domain:  h.config.FQDN,
		AID:     h.config.AID,
		Endpoints: map[string]attestry.AttestryEndpoint{
			"dev.attestry.commit": {
				Template: "/commit",
				Method:   "POST",
			},
			"dev.attestry.stream": {
				Template: "/streams/{id}",
				Method:   "GET",
				Query:    &[]string{"asOf"},
			},
			"dev.attestry.chain": {
				Template: "/streams/{id}/chain",
				Method:   "GET",
				Query:    &[]string{"asOf"},
			},
			"dev.attestry.streams": {
				Template: "/streams",
				Method:   "GET",
				Query:    &[]string{"kind", "owner"},
			},
			"dev.attestry.attestations": {
				Template: "/attestations",
				Method:   "GET",
				Query:    &[]string{"target"},
			},
			"dev.attestry.viewer": {
				Template: "/viewer",
				Method:   "GET",
			},
			"dev.attestry.realtime": {
				Template: "/realtime",
				Method:   "GET",
			},
		},
	}
	return presenter.OK(c, wellknown)
}

func (h *Handler) handleCommit(c echo.Context) error {
	ctx := c.Request().Context()

	var sd attestry.SignedDocument
	err := c.Bind(&sd)
	if err != nil {
		return presenter.BadRequest(c, err)
	}

	signature, err := attestry.SignatureFromHex(sd.Proof.Signature)
	if err != nil {
		return presenter.BadRequestMessage(c, "malformed signature")
	}

	author, err := attestry.RecoverAddress([]byte(sd.Document), signature, "aid")
	if err != nil {
		return presenter.BadRequestMessage(c, "unverifiable signature")
	}

	var doc attestry.Document[map[string]any]
	err = json.Unmarshal([]byte(sd.Document), &doc)
	if err != nil {
		return presenter.BadRequest(c, err)
	}

	if doc.Author != author {
		return presenter.BadRequestMessage(c, "document author does not match signature")
	}

	var result attestry.CommitResult
	if doc.StreamID == nil {
		result, err = h.mutation.Create(ctx, usecase.CreateInput{
			Kind:   doc.Kind,
			Fields: doc.Value,
			Actor:  author,
			Raw:    sd,
		})
	} else {
		result, err = h.mutation.Update(ctx, usecase.UpdateInput{
			StreamID: *doc.StreamID,
			Fields:   doc.Value,
			Actor:    author,
			Base:     doc.Previous,
			Raw:      sd,
		})
	}
	if err != nil {
		return commitError(c, err)
	}

	h.publish(c, result)

	return presenter.OK(c, result)
}

func commitError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrImmutableField):
		return presenter.BadRequestCode(c, "immutable_field", err)
	case errors.Is(err, domain.ErrSchemaNotFound):
		return presenter.BadRequestCode(c, "schema_not_found", err)
	case errors.Is(err, domain.ErrValidation):
		return presenter.BadRequest(c, err)
	case errors.Is(err, domain.ErrNotAuthorized):
		return presenter.Forbidden(c, err)
	case errors.Is(err, domain.ErrConflict):
		return presenter.Conflict(c, err)
	case errors.Is(err, domain.ErrNotFound):
		return presenter.NotFound(c, "stream not found")
	default:
		return presenter.InternalError(c, err)
	}
}

func (h *Handler) publish(c echo.Context, result attestry.CommitResult) {
	if h.signal == nil {
		return
	}

	ctx := c.Request().Context()
	snapshot, err := h.query.GetEntity(ctx, result.StreamID, nil)
	if err != nil {
		return
	}

	err = h.signal.Publish(ctx, attestry.Event{
		StreamID:   snapshot.StreamID,
		Kind:       snapshot.Kind,
		RevisionID: result.RevisionID,
		Owner:      snapshot.Owner,
		AnchorTime: snapshot.AnchorTime,
	})
	if err != nil {
		slog.ErrorContext(
			ctx, "Error publishing event",
			slog.String("error", err.Error()),
			slog.String("module", "rest"),
		)
	}
}

func parseAsOf(c echo.Context) (*time.Time, error) {
	asOfStr := c.QueryParam("asOf")
	if asOfStr == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, asOfStr)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func (h *Handler) handleStream(c echo.Context) error {
	ctx := c.Request().Context()

	asOf, err := parseAsOf(c)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid asOf parameter")
	}

	snapshot, err := h.query.GetEntity(ctx, c.Param("id"), asOf)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return presenter.NotFound(c, "stream not found")
		}
		return presenter.InternalError(c, err)
	}
	return presenter.OK(c, snapshot)
}

func (h *Handler) handleChain(c echo.Context) error {
	ctx := c.Request().Context()

	asOf, err := parseAsOf(c)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid asOf parameter")
	}

	chain, err := h.query.GetChain(ctx, c.Param("id"), asOf)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return presenter.NotFound(c, "stream not found")
		}
		return presenter.InternalError(c, err)
	}
	return presenter.OK(c, chain)
}

func (h *Handler) handleStreams(c echo.Context) error {
	ctx := c.Request().Context()

	kind := c.QueryParam("kind")
	if kind == "" {
		return presenter.BadRequestMessage(c, "kind parameter is required")
	}

	owner := c.QueryParam("owner")
	if owner == "" {
		viewer, err := h.query.ResolveCurrentAccount(ctx)
		if err != nil {
			return presenter.Unauthenticated(c)
		}
		owner = viewer
	}

	snapshots, err := h.query.ListByOwner(ctx, kind, owner)
	if err != nil {
		return presenter.InternalError(c, err)
	}
	return presenter.OK(c, snapshots)
}

func (h *Handler) handleAttestations(c echo.Context) error {
	ctx := c.Request().Context()

	target := c.QueryParam("target")
	if target == "" {
		return presenter.BadRequestMessage(c, "target parameter is required")
	}

	snapshots, err := h.query.ListAttestationsForTarget(ctx, target)
	if err != nil {
		return presenter.InternalError(c, err)
	}
	return presenter.OK(c, snapshots)
}

func (h *Handler) handleViewer(c echo.Context) error {
	ctx := c.Request().Context()

	viewer, err := h.query.ResolveCurrentAccount(ctx)
	if err != nil {
		return presenter.Unauthenticated(c)
	}
	return presenter.OK(c, echo.Map{"aid": viewer})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Request struct {
	Type    string   `json:"type"`
	Streams []string `json:"streams"`
}

func (h *Handler) handleRealtime(c echo.Context) error {
	if h.signal == nil {
		return presenter.NotFound(c, "realtime feed not enabled")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"Failed to upgrade WebSocket",
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
		return err
	}
	defer func() {
		ws.Close()
	}()

	// Teardown runs on cancellation alone. The channels are never closed
	// here: Realtime may be mid-send on output when this handler returns,
	// so it selects on ctx.Done around every send instead.
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	input := make(chan []string)
	output := make(chan attestry.Event)

	go h.signal.Realtime(ctx, input, output)

	quit := make(chan struct{})

	go func() {
		defer close(quit)
		for {
			var req Request
			err := ws.ReadJSON(&req)
			if err != nil {

				wsErr, ok := err.(*websocket.CloseError)
				if ok {
					if !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
						slog.DebugContext(
							ctx, "WebSocket closed",
							slog.String("error", wsErr.Error()),
							slog.String("module", "socket"),
						)
					}
				} else {
					slog.ErrorContext(
						ctx, "Error reading message",
						slog.String("error", err.Error()),
						slog.String("module", "socket"),
					)
				}

				return
			}

			switch req.Type {
			case "listen":
				select {
				case input <- req.Streams:
				case <-ctx.Done():
					return
				}
				slog.DebugContext(
					ctx, fmt.Sprintf("Socket subscribe: %s", req.Streams),
					slog.String("module", "socket"),
				)
			case "h": // heartbeat
				// do nothing
			default:
				slog.InfoContext(
					ctx, "Unknown request type",
					slog.String("type", req.Type),
					slog.String("module", "socket"),
				)
			}
		}
	}()

	for {
		select {
		case <-quit:
			return nil
		case event := <-output:
			err := ws.WriteJSON(event)
			if err != nil {
				slog.ErrorContext(
					ctx, "Error writing message",
					slog.String("error", err.Error()),
					slog.String("module", "socket"),
				)
				return nil
			}
		}
	}
}
