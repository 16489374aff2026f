package gateway

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/udhos/tokenproxy/downstream"
)

// EntityDataResponse is the downstream entity payload.
type EntityDataResponse struct {
	ResCode    *int    `json:"resCode"`
	Message    *string `json:"message"`
	EntityInfo string  `json:"EntityInfo"`
	Amount     float64 `json:"Amount"`
}

func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		logEntry(c).Info("health check requested")
		c.String(http.StatusOK, "Healthy!")
	}
}

func (s *Server) handleEntityAction() gin.HandlerFunc {
	return func(c *gin.Context) {
		page := c.Query("page")
		log := logEntry(c).WithField("page", page)

		log.Info("entity data requested")

		result, err := downstream.Get[EntityDataResponse](c.Request.Context(), s.options.Downstream,
			"entity/action?page="+url.QueryEscape(page))

		if err != nil && result.StatusCode == 0 {
			log.WithError(err).Error("entity data request failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			log.WithError(err).Warn("entity data response not decoded")
		}

		if result.StatusCode == http.StatusOK && result.Data != nil {
			log.WithField("status", result.StatusCode).Info("entity data retrieved")
			c.JSON(http.StatusOK, result.Data)
			return
		}

		log.WithFields(logrus.Fields{
			"status":   result.StatusCode,
			"raw_body": result.RawBody,
		}).Warn("entity data not retrieved")

		c.Data(result.StatusCode, "text/plain; charset=utf-8", []byte(result.RawBody))
	}
}
