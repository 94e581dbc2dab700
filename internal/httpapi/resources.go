package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cpo/internal/models"
	"cpo/internal/pagination"
	"cpo/internal/services"
)

// resourceRoutes serves the collection and singleton interfaces of one resource kind.
type resourceRoutes[T models.Syncable[T]] struct {
	s       *Server
	module  models.ModuleID
	svc     *services.ResourceService[T]
	idParam string
	// ownerInPath means the owning party is named by the country_code and party_id path
	// parameters instead of being this CPO.
	ownerInPath bool
}

func (rr resourceRoutes[T]) singleton(patch bool) methods {
	m := methods{
		http.MethodGet:    rr.Get,
		http.MethodPut:    rr.Put,
		http.MethodDelete: rr.Delete,
	}
	if patch {
		m[http.MethodPatch] = rr.Patch
	}
	return m
}

func (rr resourceRoutes[T]) identity(r *http.Request) models.Identity {
	id := chi.URLParam(r, rr.idParam)
	if rr.ownerInPath {
		return models.NewIdentity(chi.URLParam(r, "country_code"), chi.URLParam(r, "party_id"), id)
	}
	return models.NewIdentity(rr.s.Self.CountryCode, rr.s.Self.PartyID, id)
}

func (rr resourceRoutes[T]) List(w http.ResponseWriter, r *http.Request) {
	f := pagination.BuildFilter(r.URL.Query())
	page, err := rr.svc.List(r.Context(), f)
	if err != nil {
		rr.s.writeError(w, r, err)
		return
	}
	collection := rr.s.baseURL(r) + r.URL.Path
	for k, v := range pagination.BuildHeaders(collection, page.AllCount, page.FilteredCount, f) {
		w.Header()[k] = v
	}
	items := page.Items
	if items == nil {
		items = []T{}
	}
	writeSuccess(w, http.StatusOK, items)
}

func (rr resourceRoutes[T]) Get(w http.ResponseWriter, r *http.Request) {
	v, err := rr.svc.Get(r.Context(), rr.identity(r))
	if err != nil {
		rr.s.writeError(w, r, err)
		return
	}
	writeVersioned(w, http.StatusOK, v)
}

func (rr resourceRoutes[T]) Put(w http.ResponseWriter, r *http.Request) {
	var item T
	if _, err := decodeBody(r, &item); err != nil {
		rr.s.writeError(w, r, err)
		return
	}
	v, created, err := rr.svc.Put(r.Context(), rr.identity(r), item, services.WriteOptions{AllowDowngrade: allowDowngrade(r)})
	if err != nil {
		rr.s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeVersioned(w, status, v)
}

func (rr resourceRoutes[T]) Patch(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeBody(r, nil)
	if err != nil {
		rr.s.writeError(w, r, err)
		return
	}
	v, err := rr.svc.Patch(r.Context(), rr.identity(r), raw, services.WriteOptions{AllowDowngrade: allowDowngrade(r)})
	if err != nil {
		rr.s.writeError(w, r, err)
		return
	}
	writeVersioned(w, http.StatusOK, v)
}

func (rr resourceRoutes[T]) Delete(w http.ResponseWriter, r *http.Request) {
	if err := rr.svc.Delete(r.Context(), rr.identity(r)); err != nil {
		rr.s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}

func writeVersioned[T models.Resource](w http.ResponseWriter, status int, v services.Versioned[T]) {
	w.Header().Set("ETag", v.ETag)
	setLastModified(w, v.Item.Updated())
	writeSuccess(w, status, v.Item)
}

func setLastModified(w http.ResponseWriter, ts time.Time) {
	if !ts.IsZero() {
		w.Header().Set("Last-Modified", ts.UTC().Format(http.TimeFormat))
	}
}
