/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package server exposes the compiler over HTTP.
//
// POST /compile takes the script source as the request body and answers with
// the encoded Document, or with a 422 carrying the structured compile error.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"dialogical/internal/compiler"
	"dialogical/internal/export"
	applog "dialogical/internal/log"
	"dialogical/internal/version"
)

// DefaultMaxBodyBytes caps a request body when Options.MaxBodyBytes is zero.
const DefaultMaxBodyBytes int64 = 1 << 20

// Options configure the HTTP service.
type Options struct {
	Compile      compiler.Options
	MaxBodyBytes int64
	// Validate checks JSON responses against the document schema.
	Validate bool
	Logger   *slog.Logger
}

// Server is the HTTP compile service.
type Server struct {
	router chi.Router
	opts   Options
	log    *slog.Logger
}

// ErrorBody is the JSON body of a failed compilation.
type ErrorBody struct {
	Kind  string `json:"kind"`
	Line  int    `json:"line,omitempty"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error"`
}

// New creates the service and its routes.
func New(opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	l := opts.Logger
	if l == nil {
		l = applog.WithComponent("server")
	}
	if opts.Compile.Logger == nil {
		opts.Compile.Logger = l
	}
	s := &Server{opts: opts, log: l}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	r.Get("/healthz", s.handleHealth)
	r.Get("/version", s.handleVersion)
	r.Post("/compile", s.handleCompile)

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": version.Version,
		"commit":  version.Commit,
	})
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	l := s.log.With(slog.String("req_id", middleware.GetReqID(r.Context())))

	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	name := r.URL.Query().Get("path")
	if name == "" {
		name = "request"
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			jsonError(w, fmt.Sprintf("request body exceeds %d bytes", tooBig.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}

	opts := s.opts.Compile
	opts.Logger = l
	doc, err := compiler.CompileString(r.Context(), name, string(body), opts)
	if err != nil {
		var ce *compiler.Error
		if !errors.As(err, &ce) {
			ce = &compiler.Error{Kind: compiler.KindIO, Path: name, Err: err}
		}
		l.Info("compile failed", slog.String("kind", ce.Kind.String()), slog.Int("line", ce.Line), slog.Any("err", ce.Err))
		writeJSON(w, http.StatusUnprocessableEntity, ErrorBody{
			Kind:  ce.Kind.String(),
			Line:  ce.Line,
			Path:  ce.Path,
			Error: ce.Message(),
		})
		return
	}

	var buf bytes.Buffer
	if err := export.Encode(&buf, doc, format); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if s.opts.Validate && format == export.FormatJSON {
		if err := export.ValidateJSON(buf.Bytes()); err != nil {
			l.Error("output failed schema validation", slog.Any("err", err))
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	w.Header().Set("Content-Type", export.ContentType(format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// ListenAndServe serves h on addr until ctx is canceled, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, l *slog.Logger) error {
	if l == nil {
		l = applog.WithComponent("server")
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		l.Info("listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	l.Info("server stopped")
	return nil
}
