// Package devserver emulates the output backend locally: the REST boundary,
// bearer identification and the realtime push channel. It exists so the
// clients in this repository have something to run and test against; it is
// not the production backend.
package devserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/fumikura/outfeed"
	"github.com/fumikura/outfeed/internal/devserver/middleware"
	"github.com/fumikura/outfeed/internal/devserver/presenter"
)

// PageSize matches the 3x3 card grid of the web frontend.
const PageSize = 9

// OutputStore persists and pages records.
type OutputStore interface {
	Store(ctx context.Context, ownerID string, d outfeed.Draft) (outfeed.Record, error)
	Page(ctx context.Context, ownerID string, page int, f outfeed.Filter, size int) ([]outfeed.Record, int64, error)
}

// Signal fans insert events out to realtime subscribers.
type Signal interface {
	Publish(ctx context.Context, ownerID string, event outfeed.Event) error
	Listen(ctx context.Context, ownerID string, out chan<- outfeed.Event)
}

// PageCounter memoizes page counts per owner and filter.
type PageCounter interface {
	Get(ownerID string, f outfeed.Filter) (int, bool)
	Set(ownerID string, f outfeed.Filter, totalPages int)
	Invalidate(ownerID string)
}

type Handler struct {
	store  OutputStore
	signal Signal
	pages  PageCounter
}

func NewHandler(store OutputStore, signal Signal, pages PageCounter) *Handler {
	return &Handler{
		store:  store,
		signal: signal,
		pages:  pages,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/get-outputs/", h.handleGetOutputs)
	e.POST("/api/store-output/", h.handleStoreOutput)
	e.GET("/realtime", h.handleRealtime)
}

type outputsResponse struct {
	Data       []outfeed.Record `json:"data"`
	TotalPages int              `json:"total_pages"`
}

func (h *Handler) handleGetOutputs(c echo.Context) error {
	ctx := c.Request().Context()

	ownerID, ok := middleware.RequesterID(ctx)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	page := 1
	pageStr := c.QueryParam("page")
	if pageStr != "" {
		pageInt, err := strconv.Atoi(pageStr)
		if err != nil || pageInt < 1 {
			return presenter.BadRequestMessage(c, "invalid page parameter")
		}
		page = pageInt
	}

	filter := outfeed.Filter{
		Tool: c.QueryParam("tool"),
		Date: c.QueryParam("date"),
	}

	records, total, err := h.store.Page(ctx, ownerID, page, filter, PageSize)
	if err != nil {
		if errors.Is(err, outfeed.ErrValidation) {
			return presenter.BadRequest(c, err)
		}
		return presenter.InternalError(c, err)
	}

	totalPages := h.totalPages(ownerID, filter, total)

	if records == nil {
		records = []outfeed.Record{}
	}
	return presenter.OK(c, outputsResponse{
		Data:       records,
		TotalPages: totalPages,
	})
}

func (h *Handler) totalPages(ownerID string, f outfeed.Filter, total int64) int {
	if cached, ok := h.pages.Get(ownerID, f); ok {
		return cached
	}
	pages := int((total + PageSize - 1) / PageSize)
	if pages < 1 {
		pages = 1
	}
	h.pages.Set(ownerID, f, pages)
	return pages
}

type storeRequest struct {
	ToolName string                `json:"tool_name"`
	Content  outfeed.OutputContent `json:"output_content"`
}

func (h *Handler) handleStoreOutput(c echo.Context) error {
	ctx := c.Request().Context()

	ownerID, ok := middleware.RequesterID(ctx)
	if !ok {
		return presenter.Unauthorized(c, "authentication required")
	}

	var req storeRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	draft, err := outfeed.Draft{
		ToolName:   req.ToolName,
		Questions:  req.Content.Questions,
		Difficulty: req.Content.Difficulty,
	}.Clean()
	if err != nil {
		return presenter.BadRequest(c, err)
	}

	record, err := h.store.Store(ctx, ownerID, draft)
	if err != nil {
		return presenter.InternalError(c, err)
	}

	h.pages.Invalidate(ownerID)

	if err := h.signal.Publish(ctx, ownerID, outfeed.Event{
		Type:   outfeed.EventInsert,
		Record: record,
	}); err != nil {
		// The record is stored; subscribers just miss the push and pick
		// the record up on their next refresh.
		slog.ErrorContext(
			ctx, "Failed to publish insert event",
			slog.String("error", err.Error()),
			slog.String("module", "devserver"),
		)
	}

	return presenter.Created(c, record)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type realtimeRequest struct {
	Type  string `json:"type"`
	Owner string `json:"owner"`
}

func (h *Handler) handleRealtime(c echo.Context) error {
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

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	output := make(chan outfeed.Event)

	quit := make(chan struct{})

	go func() {
		defer close(quit)
		for {
			var req realtimeRequest
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
				go h.signal.Listen(ctx, req.Owner, output)
				slog.DebugContext(
					ctx, "Socket subscribe",
					slog.String("owner", req.Owner),
					slog.String("module", "socket"),
				)
			case outfeed.EventHeartbeat:
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
