package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VascoOnEarth/PhotoShare/blobs"
	"github.com/VascoOnEarth/PhotoShare/blobs/uploadtoken"
	"github.com/VascoOnEarth/PhotoShare/config"
	"github.com/VascoOnEarth/PhotoShare/core"
	"github.com/VascoOnEarth/PhotoShare/handlers/api/images"
	"github.com/VascoOnEarth/PhotoShare/handlers/api/uploads"
	"github.com/VascoOnEarth/PhotoShare/handlers/api/users"
	"github.com/VascoOnEarth/PhotoShare/handlers/auth"
	"github.com/VascoOnEarth/PhotoShare/handlers/websocket"
	authMiddleware "github.com/VascoOnEarth/PhotoShare/middleware"
	"github.com/VascoOnEarth/PhotoShare/service"
	"github.com/VascoOnEarth/PhotoShare/stores"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

type routerConfig struct {
	Props          *config.Properties
	Images         images.ImageService
	Users          core.UserStore
	Pending        uploads.PendingUploads
	Blobs          core.BlobStore
	Signer         *uploadtoken.Signer
	Metrics        *authMiddleware.Metrics
	MetricsHandler http.Handler
}

func setupRouter(cfg routerConfig) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cfg.Metrics.Handler)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Props.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/images", images.HandleListFeed(cfg.Images))
		r.Get("/images/{imageId}/watchers", websocket.HandleWatchers)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.AuthJWT)
			r.Get("/me", users.HandleMe(cfg.Users))
			r.Post("/images", images.HandleRegisterImage(cfg.Images))
			r.Post("/images/upload-url", images.HandleRequestUploadSlot(cfg.Images))
			r.Delete("/images/{imageId}", images.HandleDeleteImage(cfg.Images))
			r.Post("/images/{imageId}/like", images.HandleToggleLike(cfg.Images))
		})

		// Anonymous callers, and callers with a stale token, get empty answers.
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.OptionalJWT)
			r.Get("/images/mine", images.HandleListOwn(cfg.Images))
			r.Get("/images/{imageId}/liked", images.HandleIsLiked(cfg.Images))
		})

		if hosted, ok := cfg.Blobs.(core.HostedBlobStore); ok {
			r.Put("/uploads/{token}", uploads.HandleUpload(hosted, cfg.Pending, cfg.Signer, cfg.Props.Blob.MaxBytes))
			r.Get("/blobs/{storageId}", uploads.HandleDownload(hosted))
		}
	})

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", auth.HandleLogin)
		r.Get("/callback", auth.HandleCallback)
		r.Post("/dev", auth.HandleDevLogin)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]any{
			"status":        "ok",
			"watchedImages": len(websocket.GetWatchedImages()),
		})
	})
	r.Handle("/metrics", cfg.MetricsHandler)

	return r
}

func setupLogging(level, format string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(lvl)

	if format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

func waitForShutdown(srv *http.Server, ioo *socketio.Server, closers ...func()) {
	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	s := <-signalC
	logrus.WithField("signal", s.String()).Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("HTTP server did not shut down cleanly")
	}
	ioo.Close(nil)
	for _, closeFn := range closers {
		closeFn()
	}
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	props, err := config.ReadProperties()
	if err != nil {
		logrus.Fatal(err)
	}

	flag.StringVar(&props.Listen, "listen", props.Listen, "The address to listen on.")
	flag.StringVar(&props.LogLevel, "loglevel", props.LogLevel, "The log level (debug, info, warn, error).")
	flag.Parse()

	setupLogging(props.LogLevel, props.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := stores.GetStore(ctx, props)
	signer := uploadtoken.NewSigner([]byte(props.Auth.JWTSecret))
	blobStore := blobs.GetBlobStore(ctx, props, signer)

	auth.InitAuth(ctx, props, store)

	ioo := websocket.SetupSocketIO(props.CORSAllowedOrigins)
	imageService := service.NewImageService(store, blobStore, websocket.NewFeedNotifier(ioo), props.Blob.UploadTTL)

	r := setupRouter(routerConfig{
		Props:          props,
		Images:         imageService,
		Users:          store,
		Pending:        store,
		Blobs:          blobStore,
		Signer:         signer,
		Metrics:        authMiddleware.NewMetrics(prometheus.DefaultRegisterer),
		MetricsHandler: promhttp.Handler(),
	})
	r.Mount("/socket.io/", ioo.ServeHandler(nil))

	sweeper := service.NewSweeper(store, blobStore, props.Sweep.BatchSize, props.Sweep.MaxAttempts)
	go sweeper.Run(ctx, props.Sweep.Interval)

	srv := &http.Server{
		Addr:              props.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logrus.WithField("addr", props.Listen).Info("starting server")
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	logrus.Debug("Server is running in the background")
	waitForShutdown(srv, ioo, cancel, func() {
		if c, ok := store.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logrus.WithError(err).Warn("Failed to close storage")
			}
		}
	})
}
