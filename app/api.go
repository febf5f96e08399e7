package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/pgray/feedserver/config"
	"github.com/pgray/feedserver/lib/feedserver"
	"github.com/pgray/feedserver/lib/store"
)

func NewHTTPServer(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, feeds *feedserver.Server) *http.Server {
	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	srv := &http.Server{Addr: addr, Handler: router(log, feeds)}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go srv.ListenAndServe()
			return nil
		},
		OnStop: srv.Shutdown,
	})

	return srv
}

func router(log *zap.Logger, feeds *feedserver.Server) http.Handler {
	ctrl := &controller{log, feeds}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/feeds", func(r chi.Router) {
			r.Post("/", ctrl.registerFeed)
			r.Get("/{feed_id}", ctrl.feedInfo)
			r.Get("/{feed_id}/items", ctrl.listItems)
		})
		r.Put("/refresh", ctrl.setRefreshInterval)
	})

	return r
}

type controller struct {
	log   *zap.Logger
	feeds *feedserver.Server
}

func (ctrl *controller) reject(w http.ResponseWriter, status int, err error) {
	if err != nil {
		http.Error(w, err.Error(), status)
	} else {
		w.WriteHeader(status)
	}
}

func (ctrl *controller) resolve(w http.ResponseWriter, status int, body any) {
	if b, err := json.Marshal(body); err != nil {
		ctrl.reject(w, http.StatusInternalServerError, err)
		ctrl.log.Sugar().Errorw("Request failed", "err", err)
		return
	} else {
		w.WriteHeader(status)
		if b != nil {
			w.Write(b)
		}
	}
}

func (ctrl *controller) registerFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	url := r.FormValue("url")

	if url == "" {
		ctrl.reject(w, 400, errors.New("Feed url is required"))
		return
	}

	id, err := ctrl.feeds.Register(ctx, url)
	if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, http.StatusAccepted, map[string]any{"feed_id": id})
}

func (ctrl *controller) feedInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "feed_id")

	info, err := ctrl.feeds.FeedInfo(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		ctrl.reject(w, 404, nil)
		return
	} else if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, 200, info)
}

func (ctrl *controller) listItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "feed_id")

	items, err := ctrl.feeds.Items(ctx, id)
	if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, 200, map[string]any{"items": items})
}

func (ctrl *controller) setRefreshInterval(w http.ResponseWriter, r *http.Request) {
	secs, err := strconv.Atoi(r.FormValue("seconds"))
	if err != nil || secs <= 0 {
		ctrl.reject(w, 400, errors.New("seconds must be a positive integer"))
		return
	}

	ctrl.feeds.SetRefreshInterval(time.Duration(secs) * time.Second)
	ctrl.resolve(w, 200, map[string]any{"refresh_interval_secs": secs})
}
