package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/gatehouse/pkg/access"
	"github.com/stretchr/testify/assert"
)

type staticItemtypes map[string]*Itemtype

func (s staticItemtypes) ItemtypeByName(_ context.Context, orgID int64, name string) (*Itemtype, error) {
	it, ok := s[name]
	if !ok || it.OrganizationID != orgID {
		return nil, ErrNotFound
	}
	return it, nil
}

func newTestRouter(ev *Evaluator) *mux.Router {
	itemtypes := staticItemtypes{ItemtypeDocument: {ID: 7, OrganizationID: 1, Name: ItemtypeDocument}}
	mw := NewPermissionMiddleware(ev, itemtypes, quietLogger())

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ItemtypeFromContext(r.Context()) == nil {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	r := mux.NewRouter()
	r.Handle("/orgs/{org_id}/documents", mw.Require(access.Create, ItemtypeDocument)(ok)).Methods(http.MethodPost)
	r.Handle("/orgs/{org_id}/documents", mw.Require(access.Read, ItemtypeDocument)(ok)).Methods(http.MethodGet)
	r.Handle("/orgs/{org_id}/documents/{item_id}", mw.Require(access.Read, ItemtypeDocument)(ok)).Methods(http.MethodGet)
	r.Handle("/orgs/{org_id}/documents/{item_id}", mw.Require(access.Update, ItemtypeDocument)(ok)).Methods(http.MethodPut)
	r.Handle("/orgs/{org_id}/documents/{item_id}", mw.Require(access.Delete, ItemtypeDocument)(ok)).Methods(http.MethodDelete)
	r.Handle("/orgs/{org_id}/archive", mw.Require(access.Execute, ItemtypeDocument)(ok)).Methods(http.MethodPost)
	return r
}

func TestPermissionMiddleware(t *testing.T) {
	g := newMemoryGraph().addRole(1, 42).addGuest(1, 2).assign(actorAlice, 42)
	g.grant(7, nil, 42, "CR").grant(7, int64Ptr(99), 42, "U")
	router := newTestRouter(newTestEvaluator(fakeIdentity{actorID: actorAlice}, g))

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"create granted", http.MethodPost, "/orgs/1/documents", http.StatusOK},
		{"list granted", http.MethodGet, "/orgs/1/documents", http.StatusOK},
		{"read falls back to generic", http.MethodGet, "/orgs/1/documents/5", http.StatusOK},
		{"update on granted item", http.MethodPut, "/orgs/1/documents/99", http.StatusOK},
		{"update on other item", http.MethodPut, "/orgs/1/documents/5", http.StatusForbidden},
		{"delete denied", http.MethodDelete, "/orgs/1/documents/99", http.StatusForbidden},
		{"execute needs an item", http.MethodPost, "/orgs/1/archive", http.StatusBadRequest},
		{"bad org id", http.MethodGet, "/orgs/abc/documents", http.StatusBadRequest},
		{"bad item id", http.MethodGet, "/orgs/1/documents/abc", http.StatusBadRequest},
		{"unknown itemtype in org", http.MethodGet, "/orgs/2/documents", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestPermissionMiddleware_BackendFailure(t *testing.T) {
	g := newMemoryGraph().addRole(1, 42).assign(actorAlice, 42)
	g.permsErr = errBackend
	router := newTestRouter(newTestEvaluator(fakeIdentity{actorID: actorAlice}, g))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orgs/1/documents/5", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), errBackend.Error())
}

func TestPermissionMiddleware_RequireGeneric(t *testing.T) {
	g := newMemoryGraph().addRole(1, 42).assign(actorAlice, 42)
	g.grant(7, nil, 42, "D").grant(7, int64Ptr(5), 42, "X")
	itemtypes := staticItemtypes{ItemtypePermission: {ID: 7, OrganizationID: 1, Name: ItemtypePermission}}
	mw := NewPermissionMiddleware(newTestEvaluator(fakeIdentity{actorID: actorAlice}, g), itemtypes, quietLogger())

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	r := mux.NewRouter()
	r.Handle("/orgs/{org_id}/permissions/{item_id}", mw.RequireGeneric(access.Delete, ItemtypePermission)(ok)).Methods(http.MethodDelete)
	r.Handle("/orgs/{org_id}/permissions/{item_id}", mw.RequireGeneric(access.Execute, ItemtypePermission)(ok)).Methods(http.MethodPost)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/orgs/1/permissions/3", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	// the item grant on 5 is ignored: only itemtype-wide grants count
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/orgs/1/permissions/5", nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}
