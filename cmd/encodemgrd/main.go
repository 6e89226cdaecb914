// Command encodemgrd runs the Encode Manager as a standalone daemon,
// fronted by a thin admin HTTP surface for enqueueing, cancelling, and
// observing encode jobs. This HTTP surface is not the real application's
// HTTP/XML API (out of scope, §2 Non-goals); it exists to exercise the
// manager end to end.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/edirooss/encode-manager/internal/config"
	"github.com/edirooss/encode-manager/internal/encodemgr"
	"github.com/edirooss/encode-manager/internal/eventbus"
	"github.com/edirooss/encode-manager/internal/fsutil"
	"github.com/edirooss/encode-manager/internal/procexec"
	"github.com/edirooss/encode-manager/internal/store"
	"github.com/edirooss/encode-manager/pkg/jsonx"
)

// ZapLogger mirrors the teacher's request-logging middleware.
func ZapLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		var errs []error
		for _, ge := range c.Errors {
			if ge.Err != nil {
				errs = append(errs, ge.Err)
			}
		}
		joinedErr := errors.Join(errs...)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("latency", latency),
		}
		if joinedErr != nil {
			fields = append(fields, zap.Error(joinedErr))
		}

		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

func main() {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	log := zap.Must(logConfig.Build())
	defer log.Sync()
	log = log.Named("main")

	configPath := flag.String("config", "encodemgrd.toml", "path to configuration file")
	flag.Parse()

	cfgFile, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	binding.EnableDecoderDisallowUnknownFields = true

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := store.NewClient(cfgFile.Redis.Addr, cfgFile.Redis.DB, log)
	recordedStore := store.NewRecordedStore(redisClient, log, 5*time.Second)
	videoFileStore := store.NewVideoFileStore(redisClient, log, 5*time.Second)
	videoUtil := store.NewVideoUtil(videoFileStore, cfgFile.Encode.ParentDirs)
	fs := fsutil.New()
	spawner := procexec.New(log)
	procutil := procexec.NewUtil()
	events := eventbus.New(log)

	mgr := encodemgr.New(ctx, cfgFile.EncodeConfig(), log, recordedStore, videoFileStore, videoUtil, fs, spawner, procutil, events)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"127.0.0.1"})
	r.Use(gin.Recovery())

	if cfgFile.Server.Dev {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:5173"},
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(ZapLogger(log))

	registerRoutes(r, mgr, events)

	httpServer := &http.Server{
		Addr:           cfgFile.Server.Addr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   0, // the SSE stream endpoint is long-lived
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 15,
		ErrorLog:       zap.NewStdLog(log.Named("http").WithOptions(zap.AddCallerSkip(1))),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown failed", zap.Error(err))
		}
	}()

	log.Info("running HTTP server", zap.String("addr", cfgFile.Server.Addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server failed", zap.Error(err))
	}
}

type enqueueRequest struct {
	RecordedID        int64  `json:"recordedId"`
	SourceVideoFileID int64  `json:"sourceVideoFileId"`
	Mode              string `json:"mode"`
	ParentDir         string `json:"parentDir"`
	Directory         string `json:"directory"`
	RemoveOriginal    bool   `json:"removeOriginal"`
}

func registerRoutes(r *gin.Engine, mgr *encodemgr.Manager, events *eventbus.Bus) {
	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	r.POST("/api/encode", func(c *gin.Context) {
		var req enqueueRequest
		if err := jsonx.ParseStrictJSONBody(c.Request, &req); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}

		id, err := mgr.Enqueue(encodemgr.JobRequest{
			RecordedID:        req.RecordedID,
			SourceVideoFileID: req.SourceVideoFileID,
			Mode:              req.Mode,
			ParentDir:         req.ParentDir,
			Directory:         req.Directory,
			RemoveOriginal:    req.RemoveOriginal,
		})
		if err != nil {
			_ = c.Error(err)
			status := http.StatusInternalServerError
			if errors.Is(err, encodemgr.ErrGetExecutionTimeout) {
				status = http.StatusServiceUnavailable
			}
			c.JSON(status, gin.H{"message": err.Error()})
			return
		}

		c.Header("Location", fmt.Sprintf("/api/encode/%d", id))
		c.JSON(http.StatusCreated, gin.H{"jobId": id})
	})

	r.DELETE("/api/encode/:id", func(c *gin.Context) {
		idStr := c.Param("id")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid id"})
			return
		}

		if err := mgr.Cancel(encodemgr.JobID(id)); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id})
	})

	r.DELETE("/api/recorded/:id/encode", func(c *gin.Context) {
		idStr := c.Param("id")
		recordedID, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid id"})
			return
		}

		if err := mgr.CancelByRecordedID(recordedID); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"recordedId": recordedID})
	})

	r.GET("/api/recorded/:id/encode", func(c *gin.Context) {
		idStr := c.Param("id")
		recordedID, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid id"})
			return
		}
		c.JSON(http.StatusOK, mgr.GetRecordedIndex(recordedID))
	})

	r.GET("/api/encode/events", func(c *gin.Context) {
		id, ch := events.Subscribe()
		defer events.Unsubscribe(id)

		c.Stream(func(w io.Writer) bool {
			select {
			case ev, ok := <-ch:
				if !ok {
					return false
				}
				c.SSEvent(string(ev.Kind), ev)
				return true
			case <-c.Request.Context().Done():
				return false
			}
		})
	})
}
