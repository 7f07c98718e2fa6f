package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"live-digest/internal/live_digest/helper"
	"live-digest/internal/live_digest/model"
	"live-digest/internal/live_digest/render"
	"live-digest/internal/live_digest/store"
	"live-digest/internal/middleware/logger"
)

// Server 只读 HTTP 接口：分片目录、分片内容、渲染好的静态页
type Server struct {
	Log       *zap.Logger
	Store     store.ShardStore
	OutputDir string
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(logger.GinLogger(s.Log), gin.Recovery())

	r.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	r.GET("/shards", s.listShards)    // ?asOf=YYYY-MM-DD 只列出该日及之后
	r.GET("/shards/:key", s.getShard) // ?page=1&limit=50
	r.Static("/pages", s.OutputDir)
	r.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/pages/"+render.CurrentFile)
	})
	return r
}

func (s *Server) listShards(c *gin.Context) {
	dir, err := store.LoadDirectory(c, s.Store)
	if err != nil {
		s.Log.Error("Failed to list shards", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	keys := dir.Keys
	if v := c.Query("asOf"); v != "" {
		asOf, err := helper.ParseAsOf(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		keys = dir.Upcoming(asOf)
	}
	if keys == nil {
		keys = []model.ShardKey{}
	}
	c.JSON(http.StatusOK, gin.H{"total": len(keys), "data": keys})
}

func (s *Server) getShard(c *gin.Context) {
	key, err := model.ParseShardKey(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dir, err := store.LoadDirectory(c, s.Store)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !dir.Has(key) {
		c.JSON(http.StatusNotFound, gin.H{"error": "shard not found", "shard": key})
		return
	}

	recs, err := s.Store.List(c, key)
	if err != nil {
		s.Log.Error("Failed to read shard",
			zap.String("shard", key.String()),
			zap.Bool("corrupt", errors.Is(err, store.ErrCorruptShard)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "shard": key})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	start := (page - 1) * limit
	if start > len(recs) {
		start = len(recs)
	}
	end := start + limit
	if end > len(recs) {
		end = len(recs)
	}

	c.JSON(http.StatusOK, gin.H{
		"shard": key,
		"total": len(recs),
		"data":  recs[start:end],
		"page":  page,
		"limit": limit,
	})
}
