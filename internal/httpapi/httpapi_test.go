package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatus struct{ domains []DomainStatus }

func (f fakeStatus) DomainStatuses() []DomainStatus { return f.domains }

func TestHandleHealth_ReturnsOK(t *testing.T) {
	s := New(fakeStatus{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleStatus_ReturnsDomainSnapshot(t *testing.T) {
	s := New(fakeStatus{domains: []DomainStatus{
		{SourceServerID: "src-1", MirrorServerID: "mir-1", NextSyncIn: "30m0s", ActivityState: "ok"},
	}})
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Domains, 1)
	assert.Equal(t, "src-1", resp.Domains[0].SourceServerID)
	assert.Equal(t, "30m0s", resp.Domains[0].NextSyncIn)
}

func TestHandleStatus_NilProviderReturnsEmptyList(t *testing.T) {
	s := New(nil)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Domains)
}
