package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Leganyst/charter-booking/internal/admission"
	"github.com/Leganyst/charter-booking/internal/service"
)

// CaptainHeader: идентификатор капитана для операций над календарём.
const CaptainHeader = "X-Captain-ID"

// Handler: HTTP-шлюз к тем же методам, что обслуживает gRPC.
type Handler struct {
	svc service.AvailabilityServer
}

func NewHandler(svc service.AvailabilityServer) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) CreateCharter(c *gin.Context) {
	var req service.CreateCharterRequest
	if !bindJSON(c, &req) {
		return
	}
	req.CaptainID = c.GetHeader(CaptainHeader)

	resp, err := h.svc.CreateCharter(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) DayAvailability(c *gin.Context) {
	resp, err := h.svc.GetDayAvailability(c.Request.Context(), &service.DayAvailabilityRequest{
		CharterID: c.Param("id"),
		Date:      c.Query("date"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// AdmitBooking: 201: новое бронирование, 200: повтор, 409: отказ.
func (h *Handler) AdmitBooking(c *gin.Context) {
	var req service.AdmitBookingRequest
	if !bindJSON(c, &req) {
		return
	}
	req.CharterID = c.Param("id")
	if key := c.GetHeader("Idempotency-Key"); key != "" && req.IdempotencyKey == "" {
		req.IdempotencyKey = key
	}

	resp, err := h.svc.AdmitBooking(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	switch {
	case resp.Status != string(admission.StatusConfirmed):
		c.JSON(http.StatusConflict, resp)
	case resp.Replayed:
		c.JSON(http.StatusOK, resp)
	default:
		c.JSON(http.StatusCreated, resp)
	}
}

func (h *Handler) ListBookings(c *gin.Context) {
	resp, err := h.svc.ListBookings(c.Request.Context(), &service.ListBookingsRequest{
		CaptainID: c.GetHeader(CaptainHeader),
		CharterID: c.Param("id"),
		From:      c.Query("from"),
		To:        c.Query("to"),
		Page:      queryInt(c, "page"),
		PageSize:  queryInt(c, "page_size"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) CancelBooking(c *gin.Context) {
	var req service.CancelBookingRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	req.BookingID = c.Param("id")

	resp, err := h.svc.CancelBooking(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) QuoteRefund(c *gin.Context) {
	resp, err := h.svc.QuoteRefund(c.Request.Context(), &service.QuoteRefundRequest{BookingID: c.Param("id")})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) RescheduleBooking(c *gin.Context) {
	var req service.RescheduleBookingRequest
	if !bindJSON(c, &req) {
		return
	}
	req.BookingID = c.Param("id")

	resp, err := h.svc.RescheduleBooking(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	if resp.Admission.Status != string(admission.StatusConfirmed) {
		c.JSON(http.StatusConflict, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ConfigureSlot(c *gin.Context) {
	var req service.ConfigureSlotRequest
	if !bindJSON(c, &req) {
		return
	}
	req.CaptainID = c.GetHeader(CaptainHeader)
	req.CharterID = c.Param("id")
	req.Date = c.Param("date")
	req.Slot = c.Param("slot")

	resp, err := h.svc.ConfigureSlot(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CreateBlock: 409 со списком дат, если в диапазоне есть подтверждённые бронирования.
func (h *Handler) CreateBlock(c *gin.Context) {
	var req service.CreateBlockRequest
	if !bindJSON(c, &req) {
		return
	}
	req.CaptainID = c.GetHeader(CaptainHeader)
	req.CharterID = c.Param("id")

	resp, err := h.svc.CreateBlock(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	if resp.Rejected {
		c.JSON(http.StatusConflict, resp)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) DeleteBlock(c *gin.Context) {
	_, err := h.svc.DeleteBlock(c.Request.Context(), &service.DeleteBlockRequest{
		CaptainID: c.GetHeader(CaptainHeader),
		BlockID:   c.Param("id"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListBlocks(c *gin.Context) {
	resp, err := h.svc.ListBlocks(c.Request.Context(), &service.ListBlocksRequest{
		CharterID: c.Param("id"),
		From:      c.Query("from"),
		To:        c.Query("to"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) CreatePriceRule(c *gin.Context) {
	var req service.CreatePriceRuleRequest
	if !bindJSON(c, &req) {
		return
	}
	req.CaptainID = c.GetHeader(CaptainHeader)
	req.CharterID = c.Param("id")

	resp, err := h.svc.CreatePriceRule(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) DeletePriceRule(c *gin.Context) {
	_, err := h.svc.DeletePriceRule(c.Request.Context(), &service.DeletePriceRuleRequest{
		CaptainID: c.GetHeader(CaptainHeader),
		RuleID:    c.Param("id"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListPriceRules(c *gin.Context) {
	resp, err := h.svc.ListPriceRules(c.Request.Context(), &service.ListPriceRulesRequest{
		CharterID: c.Param("id"),
		Page:      queryInt(c, "page"),
		PageSize:  queryInt(c, "page_size"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListEvents(c *gin.Context) {
	resp, err := h.svc.ListEvents(c.Request.Context(), &service.ListEventsRequest{
		CharterID: c.Param("id"),
		Limit:     queryInt(c, "limit"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// queryInt: отсутствующий или кривой параметр: 0, дальше сработают дефолты сервиса.
func queryInt(c *gin.Context, name string) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return v
}

func writeError(c *gin.Context, err error) {
	st, _ := status.FromError(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(httpStatus(st.Code()), gin.H{
		"error": st.Message(),
		"code":  st.Code().String(),
	})
}

func httpStatus(code codes.Code) int {
	switch code {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.AlreadyExists, codes.FailedPrecondition:
		return http.StatusConflict
	case codes.Aborted, codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Canceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
