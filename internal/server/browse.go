package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voyagen/primecast/internal/browse"
	"github.com/voyagen/primecast/internal/playback"
)

// BrowseCookie carries the browse session id.
const BrowseCookie = "primecast_browse"

// browseSession returns the caller's browse session, issuing a cookie when a
// new one had to be created.
func (s *Server) browseSession(w http.ResponseWriter, r *http.Request) *browse.Session {
	var id string
	if c, err := r.Cookie(BrowseCookie); err == nil {
		id = c.Value
	}
	sess := s.deps.Browse.Get(id)
	if sess.ID() != id {
		s.setCookie(w, BrowseCookie, sess.ID(), time.Now().Add(s.cfg.BrowseIdleTTL))
	}
	return sess
}

func (s *Server) handleBrowseState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.browseSession(w, r).Snapshot())
}

func (s *Server) handleShowCountries(w http.ResponseWriter, r *http.Request) {
	sess := s.browseSession(w, r)
	countries, err := sess.ShowCountries(r.Context())
	if err != nil {
		writeMsg(w, http.StatusBadGateway, browse.MsgLoadCountries)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"countries": countries})
}

func (s *Server) handleListCountries(w http.ResponseWriter, r *http.Request) {
	sess := s.browseSession(w, r)
	countries := sess.Countries(r.URL.Query().Get("search"))
	if countries == nil {
		writeJSON(w, http.StatusOK, map[string]any{"countries": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"countries": countries})
}

func (s *Server) handleSelectCountry(w http.ResponseWriter, r *http.Request) {
	sess := s.browseSession(w, r)
	code := chi.URLParam(r, "code")
	err := sess.SelectCountry(r.Context(), code)
	switch {
	case errors.Is(err, browse.ErrUnknownCountry):
		writeErr(w, http.StatusNotFound, err)
		return
	case errors.Is(err, browse.ErrSessionClosed):
		writeErr(w, http.StatusConflict, err)
		return
	case err != nil:
		writeMsg(w, http.StatusBadGateway, browse.MsgLoadChannels)
		return
	}
	writeJSON(w, http.StatusOK, sess.Channels(""))
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	sess := s.browseSession(w, r)
	writeJSON(w, http.StatusOK, sess.Channels(r.URL.Query().Get("search")))
}

func (s *Server) handleSkipChecking(w http.ResponseWriter, r *http.Request) {
	sess := s.browseSession(w, r)
	sess.SkipChecking()
	writeJSON(w, http.StatusOK, sess.Channels(r.URL.Query().Get("search")))
}

func (s *Server) handleSelectChannel(w http.ResponseWriter, r *http.Request) {
	sess := s.browseSession(w, r)
	_, err := sess.SelectChannel(chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, browse.ErrUnknownChannel):
		writeErr(w, http.StatusNotFound, err)
		return
	case errors.Is(err, browse.ErrNoStreams):
		writeErr(w, http.StatusUnprocessableEntity, err)
		return
	case err != nil:
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleSelectStream(w http.ResponseWriter, r *http.Request) {
	sess := s.browseSession(w, r)
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeMsg(w, http.StatusBadRequest, "invalid stream index")
		return
	}
	_, err = sess.SelectStream(index)
	switch {
	case errors.Is(err, browse.ErrNotPlaying):
		writeErr(w, http.StatusConflict, err)
		return
	case errors.Is(err, playback.ErrNoStream):
		writeErr(w, http.StatusBadRequest, err)
		return
	case err != nil:
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

type playbackRequest struct {
	Event string `json:"event"`
}

type playbackResponse struct {
	Decision playback.Decision `json:"decision"`
	State    browse.State      `json:"state"`
}

func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	sess := s.browseSession(w, r)
	var req playbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	ev, err := playback.ParseEvent(req.Event)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	d, err := sess.ReportPlayback(ev)
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, playbackResponse{Decision: d, State: sess.Snapshot()})
}

func (s *Server) handleGoBack(w http.ResponseWriter, r *http.Request) {
	sess := s.browseSession(w, r)
	sess.GoBack()
	writeJSON(w, http.StatusOK, sess.Snapshot())
}
