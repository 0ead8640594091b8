package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/uma-arai/barber-booking/internal/model"
	"github.com/uma-arai/barber-booking/internal/service/booking"
	"github.com/uma-arai/barber-booking/internal/service/report"
	"github.com/uma-arai/barber-booking/internal/session"
)

const defaultUpcomingDays = 7

// Slots は指定日の予約可能な時刻を返します
type Slots interface {
	SlotsForDate(ctx context.Context, date string) ([]string, error)
}

// Reports は参照系の集計を提供します
type Reports interface {
	ByDate(ctx context.Context, date string) ([]model.Reservation, error)
	ByCustomer(ctx context.Context, customerID string) ([]model.Reservation, error)
	Upcoming(ctx context.Context, days int) ([]model.Reservation, error)
	Statistics(ctx context.Context) (report.Statistics, error)
	Export(ctx context.Context, w io.Writer) (int, error)
	DefaultExportName() string
}

// Bookings は運用者による予約の変更とキャンセルです
type Bookings interface {
	Update(ctx context.Context, id string, changes booking.Changes) (model.Reservation, error)
	Cancel(ctx context.Context, id string) (model.Reservation, error)
}

// Chat はチャット入力を予約会話やメニューへ振り分けます
type Chat interface {
	Dispatch(ctx context.Context, chatID, customerID, text string) (session.Reply, error)
}

type handler struct {
	slots    Slots
	reports  Reports
	bookings Bookings
	chat     Chat
}

type chatRequest struct {
	ChatID     string `json:"chat_id" binding:"required"`
	CustomerID string `json:"customer_id"`
	Text       string `json:"text" binding:"required"`
}

type chatResponse struct {
	Text        string             `json:"text"`
	Step        session.Step       `json:"step,omitempty"`
	Options     []string           `json:"options,omitempty"`
	Reservation *model.Reservation `json:"reservation,omitempty"`
}

// NewRouter は運用者向けのAPIを作成します
// 予約の変更は PATCH/DELETE /api/bookings/:id と /api/chat 経由で、いずれもライフサイクル管理を通ります
// bookings や chat が nil の場合は該当のルートを登録しません
func NewRouter(slots Slots, reports Reports, bookings Bookings, chat Chat) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	h := &handler{slots: slots, reports: reports, bookings: bookings, chat: chat}
	r.GET("/healthz", h.health)

	api := r.Group("/api")
	{
		api.GET("/slots", h.getSlots)
		api.GET("/bookings", h.getBookings)
		api.GET("/bookings/upcoming", h.getUpcoming)
		api.GET("/stats", h.getStats)
		api.GET("/export", h.export)
		if bookings != nil {
			api.PATCH("/bookings/:id", h.patchBooking)
			api.DELETE("/bookings/:id", h.deleteBooking)
		}
		if chat != nil {
			api.POST("/chat", h.postChat)
		}
	}
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Printf("%s %s | Status: %d | Time: %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func respondWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
	case booking.IsNotFound(err):
		status = http.StatusNotFound
	case model.IsUnavailable(err), errors.Is(err, model.ErrInvalidTransition):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		log.Printf("API request %s failed: %v", c.Request.URL.Path, err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) getSlots(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		respondWithError(c, &model.ValidationError{Field: "date", Reason: "is required"})
		return
	}
	slots, err := h.slots.SlotsForDate(c.Request.Context(), date)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "slots": slots})
}

func (h *handler) getBookings(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		rs  []model.Reservation
		err error
	)
	switch {
	case c.Query("date") != "":
		rs, err = h.reports.ByDate(ctx, c.Query("date"))
	case c.Query("customer") != "":
		rs, err = h.reports.ByCustomer(ctx, c.Query("customer"))
	default:
		err = &model.ValidationError{Field: "query", Reason: "date or customer is required"}
	}
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": rs, "count": len(rs)})
}

func (h *handler) getUpcoming(c *gin.Context) {
	days := defaultUpcomingDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondWithError(c, &model.ValidationError{Field: "days", Value: raw, Reason: "must be an integer"})
			return
		}
		days = n
	}
	rs, err := h.reports.Upcoming(c.Request.Context(), days)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "bookings": rs, "count": len(rs)})
}

func (h *handler) getStats(c *gin.Context) {
	stats, err := h.reports.Statistics(c.Request.Context())
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *handler) export(c *gin.Context) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", h.reports.DefaultExportName()))
	n, err := h.reports.Export(c.Request.Context(), c.Writer)
	if err != nil {
		// ヘッダー送信後はステータスを変更できない
		log.Printf("CSV export failed after %d rows: %v", n, err)
		if !c.Writer.Written() {
			c.Header("Content-Type", "")
			c.Header("Content-Disposition", "")
			respondWithError(c, err)
		}
		return
	}
	log.Printf("Exported %d bookings over API", n)
}

func (h *handler) patchBooking(c *gin.Context) {
	var fields map[string]any
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	changes, err := booking.ChangesFromMap(fields)
	if err != nil {
		respondWithError(c, err)
		return
	}
	r, err := h.bookings.Update(c.Request.Context(), c.Param("id"), changes)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *handler) deleteBooking(c *gin.Context) {
	r, err := h.bookings.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *handler) postChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reply, err := h.chat.Dispatch(c.Request.Context(), req.ChatID, req.CustomerID, req.Text)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, chatResponse{
		Text:        reply.Text,
		Step:        reply.Step,
		Options:     reply.Options,
		Reservation: reply.Reservation,
	})
}
