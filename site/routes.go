package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"furitingoasis/greenhouse/internal/controller"
	"furitingoasis/greenhouse/internal/history"
)

type historyReader interface {
	Readings(ctx context.Context, limit int) ([]history.Reading, error)
	IrrigationEvents(ctx context.Context, limit int) ([]controller.IrrigationEvent, error)
	ModeChanges(ctx context.Context, limit int) ([]controller.ModeEvent, error)
}

func newRouter(store historyReader, maxPoints int) *gin.Engine {
	router := gin.New()
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	router.Use(gin.Recovery())

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// At most maxPoints readings, evenly thinned over the whole history.
	router.GET("/api/readings", func(c *gin.Context) {
		limit, ok := limitParam(c, maxPoints)
		if !ok {
			return
		}
		readings, err := store.Readings(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Error querying readings: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, readings)
	})

	router.GET("/api/irrigation", func(c *gin.Context) {
		limit, ok := limitParam(c, maxPoints)
		if !ok {
			return
		}
		events, err := store.IrrigationEvents(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Error querying irrigation events: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, nonNil(events))
	})

	router.GET("/api/modes", func(c *gin.Context) {
		limit, ok := limitParam(c, maxPoints)
		if !ok {
			return
		}
		events, err := store.ModeChanges(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Error querying mode changes: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, nonNil(events))
	})

	return router
}

// limitParam reads ?limit=, defaulting to and capped at ceiling. It writes a
// 400 response and returns false when the value is not a positive integer.
func limitParam(c *gin.Context, ceiling int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return ceiling, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return 0, false
	}
	return min(n, ceiling), true
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
