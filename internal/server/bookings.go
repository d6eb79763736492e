package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	bookingdomain "github.com/smallbiznis/academy/internal/booking/domain"
	"github.com/smallbiznis/academy/pkg/db/pagination"
)

type listBookingsQuery struct {
	pagination.Pagination
}

func (s *Server) ListBookings(c *gin.Context) {
	query := validated[listBookingsQuery](c)
	resp, err := s.bookings.ListForUser(c.Request.Context(), bookingdomain.ListBookingsRequest{
		UserID:     currentUserID(c),
		Pagination: query.Pagination,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetBooking(c *gin.Context) {
	booking, err := s.bookings.GetForUser(c.Request.Context(), currentUserID(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": booking})
}

func (s *Server) BookingStats(c *gin.Context) {
	stats, err := s.bookings.Stats(c.Request.Context(), validated[bookingdomain.StatsRequest](c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stats})
}
